package main

import (
	"fmt"
	"strings"

	"github.com/Purisky/mono/image"
	"github.com/spf13/cobra"
)

var modulesCmd = &cobra.Command{
	Use:   "modules <image-file>",
	Short: "Walk the ModuleRef/File graph an image references",
	Long:  `Resolve and load every ModuleRef and File table entry an image carries, reporting which ones the loader could open.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runModules,
}

func runModules(cmd *cobra.Command, args []string) error {
	path := args[0]

	img, status, err := image.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open image (%s): %w", image.Strerror(status), err)
	}
	defer img.Close()

	fmt.Fprintf(output, "%-5s %-8s %s\n", "INDEX", "KIND", "NAME / STATUS")
	fmt.Fprintf(output, "%s\n", strings.Repeat("-", 60))

	for i := 1; i <= img.ModuleCount(); i++ {
		child, err := img.LoadModule(i)
		switch {
		case err != nil:
			fmt.Fprintf(output, "%-5d %-8s error: %v\n", i, "module", err)
		case child == nil:
			fmt.Fprintf(output, "%-5d %-8s (not in file table)\n", i, "module")
		default:
			fmt.Fprintf(output, "%-5d %-8s %s\n", i, "module", child.Filename())
		}
	}

	for i := 1; i <= img.FileCount(); i++ {
		child, err := img.LoadFile(i)
		switch {
		case err != nil:
			fmt.Fprintf(output, "%-5d %-8s error: %v\n", i, "file", err)
		case child == nil:
			fmt.Fprintf(output, "%-5d %-8s (no metadata)\n", i, "file")
		default:
			fmt.Fprintf(output, "%-5d %-8s %s\n", i, "file", child.Filename())
		}
	}

	return nil
}
