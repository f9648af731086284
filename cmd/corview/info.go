package main

import (
	"fmt"

	"github.com/Purisky/mono/image"
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info <image-file>",
	Short: "Display PE/CLI image information",
	Long:  `Display general information about a managed-code image: PE section layout, CLI header, assembly/module identity, and metadata table row counts.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	path := args[0]

	img, status, err := image.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open image (%s): %w", image.Strerror(status), err)
	}
	defer img.Close()

	fmt.Fprintf(output, "Image: %s\n", img.Filename())
	fmt.Fprintf(output, "Assembly Name: %s\n", img.AssemblyName())
	fmt.Fprintf(output, "Module Name: %s\n", img.ModuleName())
	fmt.Fprintf(output, "MVID: %s\n", img.GUID())
	fmt.Fprintf(output, "Dynamic: %v\n", img.IsDynamic())
	fmt.Fprintf(output, "RefOnly: %v\n", img.IsRefOnly())
	fmt.Fprintf(output, "Entry Point Token: 0x%08X\n", img.EntryPoint())
	fmt.Fprintf(output, "Has Authenticode Signature: %v\n", img.HasAuthenticodeEntry())

	parsed := img.Parsed()
	if parsed != nil && parsed.Sections != nil {
		fmt.Fprintf(output, "\nSections: %d\n", parsed.Sections.Count())
		for i, s := range parsed.Sections.Headers() {
			fmt.Fprintf(output, "  [%d] %-8s RVA=0x%08X Size=0x%08X\n", i, s.NameString(), s.VirtualAddress, s.SizeOfRawData)
		}
	}

	fmt.Fprintf(output, "\nModuleRef Count: %d\n", img.ModuleCount())
	fmt.Fprintf(output, "File Count: %d\n", img.FileCount())

	return nil
}
