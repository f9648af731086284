package pe

// Parsed bundles the header, section, CLI, metadata, and table-descriptor
// results of a single image parse. CLI, Metadata, and Tables are nil when
// parsing was skipped (a PE-file-only open) or when the image carries no
// CLI header, no metadata root, or an empty table stream respectively.
type Parsed struct {
	Headers  *Headers
	Sections *SectionTable
	CLI      *CLIHeader
	Metadata *MetadataRoot
	Tables   *TableHeader
}

// ParseImage runs the full header → section → CLI header → metadata root →
// table descriptor pipeline over raw. When skipCLI is true (a PE-file-only
// open) it stops after the section table.
func ParseImage(raw []byte, skipCLI bool, logger Logger) (*Parsed, error) {
	logger = loggerOrDefault(logger)

	headers, err := ParseHeaders(raw)
	if err != nil {
		return nil, err
	}
	sections, err := ParseSectionTable(raw, headers)
	if err != nil {
		return nil, err
	}

	p := &Parsed{Headers: headers, Sections: sections}
	if skipCLI {
		return p, nil
	}

	dir := headers.CLIHeaderDirectory()
	if dir.RVA == 0 {
		return p, nil
	}

	cli, err := ParseCLIHeader(raw, dir, sections, logger)
	if err != nil {
		return nil, err
	}
	p.CLI = cli

	if cli.Metadata.RVA == 0 {
		return p, nil
	}
	base := sections.RVAToOffset(cli.Metadata.RVA)
	if base == invalidOffset {
		return nil, parseErrf("metadata-root", int64(cli.Metadata.RVA), ErrOutOfRange, "metadata root RVA %#x not covered by any section", cli.Metadata.RVA)
	}

	md, err := ParseMetadataRoot(raw, base, logger)
	if err != nil {
		return nil, err
	}
	p.Metadata = md

	if md.Tables.Size > 0 {
		th, err := ParseTableHeader(raw, md.Tables, logger)
		if err != nil {
			return nil, err
		}
		p.Tables = th
	}

	return p, nil
}
