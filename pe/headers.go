package pe

import (
	"github.com/Purisky/mono/internal/bin"
)

const (
	machineI386 = 0x14c
	peMagic32   = 0x10B

	dosSignature  = 0x5a4d // "MZ"
	peSignature   = 0x00004550
	bsjbSignature = 0x424a5342 // "BSJB"

	peOffsetFieldOffset = 0x3c

	// optionalHeaderSize is sizeof(IMAGE_OPTIONAL_HEADER32): 96 bytes of
	// fixed fields plus 16 IMAGE_DATA_DIRECTORY entries (8 bytes each).
	optionalHeaderSize = 224

	numDataDirectories = 16

	// Data directory indices used by this package; the rest are parsed
	// and exposed but never interpreted.
	dirSecurity  = 4
	dirCLIHeader = 14

	sectionHeaderRecordSize = 40
)

// DataDirectory is a single IMAGE_DATA_DIRECTORY entry.
type DataDirectory struct {
	RVA  uint32
	Size uint32
}

// FileHeader mirrors IMAGE_FILE_HEADER (the COFF header).
type FileHeader struct {
	Machine              uint16
	NumberOfSections     uint16
	TimeDateStamp        uint32
	PointerToSymbolTable uint32
	NumberOfSymbols      uint32
	SizeOfOptionalHeader uint16
	Characteristics      uint16
}

// OptionalHeader mirrors IMAGE_OPTIONAL_HEADER32. Fields the core never
// interprets (linker version, checksum, subsystem, stack/heap reservations)
// are still parsed and exposed, tolerated regardless of their value.
type OptionalHeader struct {
	Magic                       uint16
	MajorLinkerVersion          uint8
	MinorLinkerVersion          uint8
	SizeOfCode                  uint32
	SizeOfInitializedData       uint32
	SizeOfUninitializedData     uint32
	AddressOfEntryPoint         uint32
	BaseOfCode                  uint32
	BaseOfData                  uint32
	ImageBase                   uint32
	SectionAlignment            uint32
	FileAlignment               uint32
	MajorOperatingSystemVersion uint16
	MinorOperatingSystemVersion uint16
	MajorImageVersion           uint16
	MinorImageVersion           uint16
	MajorSubsystemVersion       uint16
	MinorSubsystemVersion       uint16
	Win32VersionValue           uint32
	SizeOfImage                 uint32
	SizeOfHeaders               uint32
	CheckSum                    uint32
	Subsystem                   uint16
	DllCharacteristics          uint16
	SizeOfStackReserve          uint32
	SizeOfStackCommit           uint32
	SizeOfHeapReserve           uint32
	SizeOfHeapCommit            uint32
	LoaderFlags                 uint32
	NumberOfRvaAndSizes         uint32
	DataDirectories             [numDataDirectories]DataDirectory
}

// Headers bundles the COFF/optional headers and the location they were read
// from, prior to section-table parsing.
type Headers struct {
	PEOffset uint32
	File     FileHeader
	Optional OptionalHeader
}

// CLIHeaderDirectory returns the CLI header's data-directory entry.
func (h *Headers) CLIHeaderDirectory() DataDirectory { return h.Optional.DataDirectories[dirCLIHeader] }

// SecurityDirectory returns the Authenticode certificate data-directory entry.
func (h *Headers) SecurityDirectory() DataDirectory { return h.Optional.DataDirectories[dirSecurity] }

// HasAuthenticodeEntry reports true iff the certificate directory has a
// non-zero RVA and a size greater than 8 (larger than just the
// WIN_CERTIFICATE header).
func (h *Headers) HasAuthenticodeEntry() bool {
	d := h.SecurityDirectory()
	return d.RVA != 0 && d.Size > 8
}

// ParseHeaders validates and reads the MS-DOS stub, PE signature, COFF
// header, and optional header. It does not parse the section table; see
// ParseSectionTable.
func ParseHeaders(raw []byte) (*Headers, error) {
	r := bin.NewReader(raw)

	if r.Remaining() < 64 {
		return nil, parseErrf("header", 0, ErrOutOfRange, "file too short for MS-DOS header")
	}
	magic, _ := r.ReadU16()
	if magic != dosSignature {
		return nil, parseErrf("header", 0, ErrBadSignature, "missing MZ signature")
	}

	r.SetOffset(peOffsetFieldOffset)
	peOffset, err := r.ReadU32()
	if err != nil {
		return nil, parseErrf("header", peOffsetFieldOffset, err, "reading e_lfanew")
	}

	r.SetOffset(int(peOffset))
	sig, err := r.ReadU32()
	if err != nil {
		return nil, parseErrf("header", int64(peOffset), err, "reading PE signature")
	}
	if sig != peSignature {
		return nil, parseErrf("header", int64(peOffset), ErrBadSignature, "missing PE\\0\\0 signature")
	}

	var fh FileHeader
	fh.Machine, _ = r.ReadU16()
	fh.NumberOfSections, _ = r.ReadU16()
	fh.TimeDateStamp, _ = r.ReadU32()
	fh.PointerToSymbolTable, _ = r.ReadU32()
	fh.NumberOfSymbols, _ = r.ReadU32()
	fh.SizeOfOptionalHeader, err = r.ReadU16()
	if err != nil {
		return nil, parseErrf("header", int64(r.Offset()), err, "reading COFF header")
	}
	fh.Characteristics, _ = r.ReadU16()

	if fh.Machine != machineI386 {
		return nil, parseErrf("header", int64(r.Offset()), ErrUnsupportedMachine, "machine %#x is not I386 (PE+ and non-x86 are out of scope)", fh.Machine)
	}
	if int(fh.SizeOfOptionalHeader) != optionalHeaderSize {
		return nil, parseErrf("header", int64(r.Offset()), ErrOutOfRange, "optional header size %d != %d", fh.SizeOfOptionalHeader, optionalHeaderSize)
	}

	optStart := r.Offset()
	var oh OptionalHeader
	oh.Magic, err = r.ReadU16()
	if err != nil {
		return nil, parseErrf("header", int64(r.Offset()), err, "reading optional header magic")
	}
	if oh.Magic != peMagic32 {
		return nil, parseErrf("header", int64(r.Offset()), ErrUnsupportedMachine, "optional header magic %#x is not PE32 (PE32+ is out of scope)", oh.Magic)
	}
	oh.MajorLinkerVersion, _ = r.ReadU8()
	oh.MinorLinkerVersion, _ = r.ReadU8()
	oh.SizeOfCode, _ = r.ReadU32()
	oh.SizeOfInitializedData, _ = r.ReadU32()
	oh.SizeOfUninitializedData, _ = r.ReadU32()
	oh.AddressOfEntryPoint, _ = r.ReadU32()
	oh.BaseOfCode, _ = r.ReadU32()
	oh.BaseOfData, _ = r.ReadU32()
	oh.ImageBase, _ = r.ReadU32()
	oh.SectionAlignment, _ = r.ReadU32()
	oh.FileAlignment, _ = r.ReadU32()
	oh.MajorOperatingSystemVersion, _ = r.ReadU16()
	oh.MinorOperatingSystemVersion, _ = r.ReadU16()
	oh.MajorImageVersion, _ = r.ReadU16()
	oh.MinorImageVersion, _ = r.ReadU16()
	oh.MajorSubsystemVersion, _ = r.ReadU16()
	oh.MinorSubsystemVersion, _ = r.ReadU16()
	oh.Win32VersionValue, _ = r.ReadU32()
	oh.SizeOfImage, _ = r.ReadU32()
	oh.SizeOfHeaders, _ = r.ReadU32()
	oh.CheckSum, _ = r.ReadU32()
	oh.Subsystem, _ = r.ReadU16()
	oh.DllCharacteristics, _ = r.ReadU16()
	oh.SizeOfStackReserve, _ = r.ReadU32()
	oh.SizeOfStackCommit, _ = r.ReadU32()
	oh.SizeOfHeapReserve, _ = r.ReadU32()
	oh.SizeOfHeapCommit, _ = r.ReadU32()
	oh.LoaderFlags, _ = r.ReadU32()
	oh.NumberOfRvaAndSizes, err = r.ReadU32()
	if err != nil {
		return nil, parseErrf("header", int64(r.Offset()), err, "reading optional header fixed fields")
	}
	for i := 0; i < numDataDirectories; i++ {
		oh.DataDirectories[i].RVA, _ = r.ReadU32()
		oh.DataDirectories[i].Size, err = r.ReadU32()
		if err != nil {
			return nil, parseErrf("header", int64(r.Offset()), err, "reading data directory %d", i)
		}
	}
	if r.Offset()-optStart != optionalHeaderSize {
		return nil, parseErrf("header", int64(r.Offset()), ErrOutOfRange, "optional header parse did not consume exactly %d bytes", optionalHeaderSize)
	}

	return &Headers{PEOffset: peOffset, File: fh, Optional: oh}, nil
}

// sectionTableOffset returns the file offset immediately following the
// optional header, where the section table begins.
func sectionTableOffset(h *Headers) int {
	// 4 (PE sig) + 20 (COFF header) == 24
	return int(h.PEOffset) + 24 + int(h.File.SizeOfOptionalHeader)
}
