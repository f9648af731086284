package main

import (
	"fmt"

	"github.com/Purisky/mono/image"
	"github.com/spf13/cobra"
)

var (
	resourceOffset uint32
	resourceID     uint32
	resourceLangID uint32
	resourceWin32  bool
)

var resourcesCmd = &cobra.Command{
	Use:   "resources <image-file>",
	Short: "Read a managed resource blob or look up a Win32 resource",
	Long: `Read a length-prefixed managed resource at a given offset into the
CLI resources directory, or (with --win32) walk the PE Win32 resource
directory for a specific resource/language identifier pair.`,
	Args: cobra.ExactArgs(1),
	RunE: runResources,
}

func init() {
	resourcesCmd.Flags().Uint32Var(&resourceOffset, "offset", 0, "byte offset into the CLI resources directory")
	resourcesCmd.Flags().BoolVar(&resourceWin32, "win32", false, "look up a Win32 resource instead of a managed resource")
	resourcesCmd.Flags().Uint32Var(&resourceID, "id", 0, "Win32 resource type identifier")
	resourcesCmd.Flags().Uint32Var(&resourceLangID, "lang", 0, "Win32 resource language identifier (0 for any)")
}

func runResources(cmd *cobra.Command, args []string) error {
	path := args[0]

	img, status, err := image.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open image (%s): %w", image.Strerror(status), err)
	}
	defer img.Close()

	if resourceWin32 {
		entry, err := img.LookupResource(resourceID, resourceLangID, nil)
		if err != nil {
			return fmt.Errorf("resource lookup failed: %w", err)
		}
		if entry == nil {
			fmt.Fprintf(output, "no matching Win32 resource\n")
			return nil
		}
		fmt.Fprintf(output, "OffsetToData=0x%08X Size=%d CodePage=%d\n", entry.OffsetToData, entry.Size, entry.CodePage)
		return nil
	}

	data, size := img.Resource(resourceOffset)
	if data == nil {
		fmt.Fprintf(output, "no resource at offset 0x%08X\n", resourceOffset)
		return nil
	}
	fmt.Fprintf(output, "Resource at 0x%08X: %d bytes\n", resourceOffset, size)
	fmt.Fprintf(output, "%x\n", data)
	return nil
}
