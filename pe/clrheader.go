package pe

import (
	"github.com/Purisky/mono/internal/bin"
)

// cliHeaderSize is sizeof(IMAGE_COR20_HEADER): Cb + 2x uint16 + 8x
// DataDirectory-or-uint32 pairs = 4+2+2+8+4+4+8+8+8+8+8+8 = 72 bytes.
const cliHeaderSize = 72

// CLIHeader mirrors the CLI-specific header ECMA-335 places in the PE data
// directory. CodeManagerTable, VTableFixups, ExportAddressTableJumps, and
// ManagedNativeHeader are parsed and exposed but must be zero by the ECMA
// spec; non-zero values are tolerated and logged, never rejected.
type CLIHeader struct {
	Cb                      uint32
	MajorRuntimeVersion     uint16
	MinorRuntimeVersion     uint16
	Metadata                DataDirectory
	Flags                   uint32
	EntryPointToken         uint32
	Resources               DataDirectory
	StrongNameSignature     DataDirectory
	CodeManagerTable        DataDirectory
	VTableFixups            DataDirectory
	ExportAddressTableJumps DataDirectory
	ManagedNativeHeader     DataDirectory
}

// ParseCLIHeader maps dir.RVA to a file offset via sections and reads the
// CLIHeader struct. Every field is decoded explicitly as little-endian via
// encoding/binary regardless of host byte order, so there is no
// struct-overlay to byte-swap on big-endian hosts.
func ParseCLIHeader(raw []byte, dir DataDirectory, sections *SectionTable, logger Logger) (*CLIHeader, error) {
	logger = loggerOrDefault(logger)

	off := sections.RVAToOffset(dir.RVA)
	if off == invalidOffset {
		return nil, parseErrf("cli-header", int64(dir.RVA), ErrOutOfRange, "CLI header RVA %#x not covered by any section", dir.RVA)
	}
	if uint64(off)+cliHeaderSize > uint64(len(raw)) {
		return nil, parseErrf("cli-header", int64(off), ErrOutOfRange, "CLI header extends past end of file")
	}

	r := bin.NewReader(raw)
	r.SetOffset(int(off))

	var h CLIHeader
	h.Cb, _ = r.ReadU32()
	h.MajorRuntimeVersion, _ = r.ReadU16()
	h.MinorRuntimeVersion, _ = r.ReadU16()
	h.Metadata.RVA, _ = r.ReadU32()
	h.Metadata.Size, _ = r.ReadU32()
	h.Flags, _ = r.ReadU32()
	h.EntryPointToken, _ = r.ReadU32()
	h.Resources.RVA, _ = r.ReadU32()
	h.Resources.Size, _ = r.ReadU32()
	h.StrongNameSignature.RVA, _ = r.ReadU32()
	h.StrongNameSignature.Size, _ = r.ReadU32()
	h.CodeManagerTable.RVA, _ = r.ReadU32()
	h.CodeManagerTable.Size, _ = r.ReadU32()
	h.VTableFixups.RVA, _ = r.ReadU32()
	h.VTableFixups.Size, _ = r.ReadU32()
	h.ExportAddressTableJumps.RVA, _ = r.ReadU32()
	h.ExportAddressTableJumps.Size, _ = r.ReadU32()
	h.ManagedNativeHeader.RVA, _ = r.ReadU32()
	h.ManagedNativeHeader.Size, _ = r.ReadU32()

	if h.CodeManagerTable != (DataDirectory{}) {
		logger.Warnf("pe: CLI header CodeManagerTable is non-zero (%#v), tolerating", h.CodeManagerTable)
	}
	if h.VTableFixups != (DataDirectory{}) {
		logger.Warnf("pe: CLI header VTableFixups is non-zero (%#v), tolerating", h.VTableFixups)
	}
	if h.ExportAddressTableJumps != (DataDirectory{}) {
		logger.Warnf("pe: CLI header ExportAddressTableJumps is non-zero (%#v), tolerating", h.ExportAddressTableJumps)
	}
	if h.ManagedNativeHeader != (DataDirectory{}) {
		logger.Warnf("pe: CLI header ManagedNativeHeader is non-zero (%#v), tolerating", h.ManagedNativeHeader)
	}

	return &h, nil
}
