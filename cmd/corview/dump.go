package main

import (
	"encoding/json"
	"fmt"

	"github.com/Purisky/mono/image"
	"github.com/spf13/cobra"
)

var dumpFormat string

var dumpCmd = &cobra.Command{
	Use:   "dump <image-file>",
	Short: "Dump all image information",
	Long: `Dump header, identity, and module graph information from an image
in structured format.

Supported formats:
  - text: Human-readable text (default)
  - json: JSON format`,
	Args: cobra.ExactArgs(1),
	RunE: runDump,
}

func init() {
	dumpCmd.Flags().StringVarP(&dumpFormat, "format", "f", "text", "output format (text, json)")
}

func runDump(cmd *cobra.Command, args []string) error {
	path := args[0]

	switch dumpFormat {
	case "json":
		return dumpJSON(path)
	case "text":
		return dumpText(path)
	default:
		return fmt.Errorf("unknown format: %s", dumpFormat)
	}
}

type ImageDump struct {
	File         string   `json:"file"`
	AssemblyName string   `json:"assembly_name"`
	ModuleName   string   `json:"module_name"`
	GUID         string   `json:"guid"`
	EntryPoint   uint32   `json:"entry_point"`
	Sections     []string `json:"sections"`
	ModuleRefs   int      `json:"module_ref_count"`
	Files        int      `json:"file_count"`
}

func dumpJSON(path string) error {
	img, status, err := image.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open image (%s): %w", image.Strerror(status), err)
	}
	defer img.Close()

	dump := ImageDump{
		File:         img.Filename(),
		AssemblyName: img.AssemblyName(),
		ModuleName:   img.ModuleName(),
		GUID:         img.GUID(),
		EntryPoint:   img.EntryPoint(),
		ModuleRefs:   img.ModuleCount(),
		Files:        img.FileCount(),
	}
	if parsed := img.Parsed(); parsed != nil && parsed.Sections != nil {
		for _, s := range parsed.Sections.Headers() {
			dump.Sections = append(dump.Sections, s.NameString())
		}
	}

	encoder := json.NewEncoder(output)
	encoder.SetIndent("", "  ")
	return encoder.Encode(dump)
}

func dumpText(path string) error {
	fmt.Fprintln(output, "=== Image Information ===")
	if err := runInfo(nil, []string{path}); err != nil {
		return err
	}

	fmt.Fprintln(output)
	fmt.Fprintln(output, "=== Module Graph ===")
	if err := runModules(nil, []string{path}); err != nil {
		return err
	}

	return nil
}
