package pe

import "testing"

func buildCLIHeaderBytes(metadataRVA, metadataSize uint32) []byte {
	h := make([]byte, cliHeaderSize)
	putU32(h, 0, cliHeaderSize)
	putU16(h, 4, 2)
	putU16(h, 6, 5)
	putU32(h, 8, metadataRVA)
	putU32(h, 12, metadataSize)
	putU32(h, 16, 1) // Flags: COMIMAGE_FLAGS_ILONLY
	putU32(h, 20, 0x06000001)
	return h
}

func TestParseCLIHeader(t *testing.T) {
	b := newPEBuilder(1)
	b.setDataDirectory(dirCLIHeader, 0x3000, cliHeaderSize)
	b.addSection(0, ".text", 0x2000, 0x400, 0x2000)
	raw := b.bytes()

	h, err := ParseHeaders(raw)
	if err != nil {
		t.Fatalf("ParseHeaders: %v", err)
	}
	sections, err := ParseSectionTable(raw, h)
	if err != nil {
		t.Fatalf("ParseSectionTable: %v", err)
	}

	fileOff := sections.RVAToOffset(0x3000)
	clihdr := buildCLIHeaderBytes(0x4000, 200)
	copy(raw[fileOff:], clihdr)

	cli, err := ParseCLIHeader(raw, h.CLIHeaderDirectory(), sections, NopLogger{})
	if err != nil {
		t.Fatalf("ParseCLIHeader: %v", err)
	}
	if cli.Cb != cliHeaderSize {
		t.Fatalf("Cb = %d, want %d", cli.Cb, cliHeaderSize)
	}
	if cli.Metadata.RVA != 0x4000 || cli.Metadata.Size != 200 {
		t.Fatalf("Metadata = %+v", cli.Metadata)
	}
	if cli.EntryPointToken != 0x06000001 {
		t.Fatalf("EntryPointToken = %#x", cli.EntryPointToken)
	}
}

func TestParseCLIHeaderOutOfRange(t *testing.T) {
	b := newPEBuilder(1)
	b.addSection(0, ".text", 0x2000, 0x400, 0x10)
	raw := b.bytes()

	h, err := ParseHeaders(raw)
	if err != nil {
		t.Fatalf("ParseHeaders: %v", err)
	}
	sections, err := ParseSectionTable(raw, h)
	if err != nil {
		t.Fatalf("ParseSectionTable: %v", err)
	}

	dir := DataDirectory{RVA: 0xdeadbeef, Size: cliHeaderSize}
	if _, err := ParseCLIHeader(raw, dir, sections, NopLogger{}); err == nil {
		t.Fatal("expected error for CLI header RVA not covered by any section")
	}
}

func TestParseCLIHeaderTolerateReservedFields(t *testing.T) {
	b := newPEBuilder(1)
	b.setDataDirectory(dirCLIHeader, 0x3000, cliHeaderSize)
	b.addSection(0, ".text", 0x2000, 0x400, 0x2000)
	raw := b.bytes()

	h, err := ParseHeaders(raw)
	if err != nil {
		t.Fatalf("ParseHeaders: %v", err)
	}
	sections, err := ParseSectionTable(raw, h)
	if err != nil {
		t.Fatalf("ParseSectionTable: %v", err)
	}

	fileOff := sections.RVAToOffset(0x3000)
	clihdr := buildCLIHeaderBytes(0x4000, 200)
	putU32(clihdr, 40, 0xaaaaaaaa) // CodeManagerTable.RVA, should be zero but must be tolerated
	copy(raw[fileOff:], clihdr)

	cli, err := ParseCLIHeader(raw, h.CLIHeaderDirectory(), sections, NopLogger{})
	if err != nil {
		t.Fatalf("ParseCLIHeader: %v", err)
	}
	if cli.CodeManagerTable.RVA != 0xaaaaaaaa {
		t.Fatalf("CodeManagerTable.RVA = %#x, want preserved", cli.CodeManagerTable.RVA)
	}
}
