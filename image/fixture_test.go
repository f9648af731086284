package image

import "encoding/binary"

// The constants and layout below mirror pe's own PE32/CLI/BSJB structure
// (see pe/testdata_test.go and pe/metadata_test.go) but are rebuilt here
// since those helpers are unexported test-only symbols in a different
// package. buildImageFixture assembles the smallest complete CLI image
// this package's tests need: one section holding a CLI header, a BSJB
// metadata root, a "#~" table stream with one row each in Module,
// ModuleRef, Assembly, and File, and the #Strings/#Blob/#GUID heaps those
// rows reference.
const (
	fixtureDOSSignature = 0x5a4d
	fixturePESignature  = 0x00004550
	fixtureMachineI386  = 0x14c
	fixturePEMagic32    = 0x10B
	fixtureNumDirs      = 16
	fixtureOptHeaderLen = 224
	fixtureSectionLen   = 40
	fixtureDirCLI       = 14
	fixturePayloadRVA   = 0x400
)

type fixtureStream struct {
	name string
	data []byte
}

type fixtureNames struct {
	moduleName    string
	moduleRefName string
	assemblyName  string
	fileName      string
}

// buildImageFixture returns a complete raw image and the names embedded in
// its Module/ModuleRef/Assembly/File table rows.
func buildImageFixture() ([]byte, fixtureNames) {
	return buildImageFixtureNamed(fixtureNames{
		moduleName:    "Test.Module",
		moduleRefName: "Other.dll",
		assemblyName:  "TestAssembly",
		fileName:      "resources.dat",
	})
}

// buildImageFixtureNamed is buildImageFixture with caller-chosen table row
// names, used by tests that need a ModuleRef name to line up with a File
// table entry.
func buildImageFixtureNamed(names fixtureNames) ([]byte, fixtureNames) {
	stringsHeap := []byte{0x00}
	idxModuleName := len(stringsHeap)
	stringsHeap = append(stringsHeap, append([]byte(names.moduleName), 0)...)
	idxModuleRefName := len(stringsHeap)
	stringsHeap = append(stringsHeap, append([]byte(names.moduleRefName), 0)...)
	idxAssemblyName := len(stringsHeap)
	stringsHeap = append(stringsHeap, append([]byte(names.assemblyName), 0)...)
	idxFileName := len(stringsHeap)
	stringsHeap = append(stringsHeap, append([]byte(names.fileName), 0)...)

	blob := []byte{0x00}
	idxPublicKey := len(blob)
	blob = append(blob, 0x04, 0xDE, 0xAD, 0xBE, 0xEF)

	guid := make([]byte, 16)
	for i := range guid {
		guid[i] = byte(i + 1)
	}

	tableStream := buildTableStream(uint16(idxModuleName), uint16(idxModuleRefName), uint16(idxAssemblyName), uint16(idxFileName), uint16(idxPublicKey))

	metadataRoot := buildBSJB("v4.0.30319", []fixtureStream{
		{"#~", tableStream},
		{"#Strings", stringsHeap},
		{"#US", []byte{0}},
		{"#Blob", blob},
		{"#GUID", guid},
	})

	cliHeader := make([]byte, 72)
	binary.LittleEndian.PutUint32(cliHeader[0:4], 72)
	binary.LittleEndian.PutUint16(cliHeader[4:6], 2)
	binary.LittleEndian.PutUint16(cliHeader[6:8], 5)
	binary.LittleEndian.PutUint32(cliHeader[8:12], fixturePayloadRVA+72) // Metadata.RVA
	binary.LittleEndian.PutUint32(cliHeader[12:16], uint32(len(metadataRoot)))
	binary.LittleEndian.PutUint32(cliHeader[16:20], 0) // Flags
	binary.LittleEndian.PutUint32(cliHeader[20:24], 0x06000001)

	payload := append(cliHeader, metadataRoot...)

	raw := make([]byte, 64)
	binary.LittleEndian.PutUint16(raw[0:2], fixtureDOSSignature)
	peOffset := 64
	binary.LittleEndian.PutUint32(raw[0x3c:0x40], uint32(peOffset))

	nt := make([]byte, 0, 4+20+fixtureOptHeaderLen)
	sig := make([]byte, 4)
	binary.LittleEndian.PutUint32(sig, fixturePESignature)
	nt = append(nt, sig...)

	coff := make([]byte, 20)
	binary.LittleEndian.PutUint16(coff[0:2], fixtureMachineI386)
	binary.LittleEndian.PutUint16(coff[2:4], 1) // one section
	binary.LittleEndian.PutUint16(coff[16:18], fixtureOptHeaderLen)
	nt = append(nt, coff...)

	opt := make([]byte, fixtureOptHeaderLen)
	binary.LittleEndian.PutUint16(opt[0:2], fixturePEMagic32)
	binary.LittleEndian.PutUint32(opt[92:96], fixtureNumDirs)
	dirOff := 96 + fixtureDirCLI*8
	binary.LittleEndian.PutUint32(opt[dirOff:dirOff+4], fixturePayloadRVA)
	binary.LittleEndian.PutUint32(opt[dirOff+4:dirOff+8], 72)
	nt = append(nt, opt...)

	raw = append(raw, nt...)

	section := make([]byte, fixtureSectionLen)
	copy(section[0:8], ".cli")
	binary.LittleEndian.PutUint32(section[8:12], uint32(len(payload)))
	binary.LittleEndian.PutUint32(section[12:16], fixturePayloadRVA)
	binary.LittleEndian.PutUint32(section[16:20], uint32(len(payload)))
	binary.LittleEndian.PutUint32(section[20:24], fixturePayloadRVA)
	raw = append(raw, section...)

	for len(raw) < fixturePayloadRVA {
		raw = append(raw, 0)
	}
	raw = append(raw, payload...)

	return raw, names
}

// buildImageFixtureWithResources is buildImageFixture plus a populated CLI
// Resources directory: one 8-byte resource entry ("DATA") declared by the
// directory's Size, followed by a second entry ("MORE") that lies within
// the .cli section but past the declared directory size.
func buildImageFixtureWithResources() []byte {
	raw, _ := buildImageFixture()

	entryOne := append([]byte{0x04, 0x00, 0x00, 0x00}, []byte("DATA")...)
	entryTwo := append([]byte{0x04, 0x00, 0x00, 0x00}, []byte("MORE")...)
	resources := append(append([]byte{}, entryOne...), entryTwo...)

	// File offset equals RVA throughout this section (PointerToRawData ==
	// VirtualAddress == fixturePayloadRVA), so the resource area's RVA is
	// just the current end of the file.
	resourcesRVA := uint32(len(raw))

	cliHeaderOff := fixturePayloadRVA
	putU32(raw, cliHeaderOff+24, resourcesRVA)
	putU32(raw, cliHeaderOff+28, uint32(len(entryOne)))

	raw = append(raw, resources...)

	sectionHeaderOff := 64 + 4 + 20 + fixtureOptHeaderLen
	newPayloadLen := uint32(len(raw) - fixturePayloadRVA)
	putU32(raw, sectionHeaderOff+8, newPayloadLen)
	putU32(raw, sectionHeaderOff+16, newPayloadLen)

	return raw
}

func putU16(b []byte, off int, v uint16) { binary.LittleEndian.PutUint16(b[off:off+2], v) }
func putU32(b []byte, off int, v uint32) { binary.LittleEndian.PutUint32(b[off:off+4], v) }
func putU64(b []byte, off int, v uint64) { binary.LittleEndian.PutUint64(b[off:off+8], v) }

// buildTableStream lays out the 24-byte "#~" header (no wide heap indices)
// plus one row each in Module, ModuleRef, Assembly, and File, in that
// ascending table-ID order.
func buildTableStream(moduleNameIdx, moduleRefNameIdx, assemblyNameIdx, fileNameIdx, publicKeyIdx uint16) []byte {
	var validMask uint64
	validMask |= 1 << uint(tableModule)
	validMask |= 1 << uint(tableModuleRef)
	validMask |= 1 << uint(tableAssembly)
	validMask |= 1 << uint(tableFile)

	buf := make([]byte, 24)
	putU64(buf, 8, validMask)

	rowCounts := make([]byte, 16)
	putU32(rowCounts, 0, 1)  // Module
	putU32(rowCounts, 4, 1)  // ModuleRef
	putU32(rowCounts, 8, 1)  // Assembly
	putU32(rowCounts, 12, 1) // File
	buf = append(buf, rowCounts...)

	moduleRow := make([]byte, 10)
	putU16(moduleRow, 2, moduleNameIdx)
	buf = append(buf, moduleRow...)

	moduleRefRow := make([]byte, 2)
	putU16(moduleRefRow, 0, moduleRefNameIdx)
	buf = append(buf, moduleRefRow...)

	assemblyRow := make([]byte, 22)
	putU32(assemblyRow, 0, 0x8004) // HashAlgId
	putU16(assemblyRow, 16, publicKeyIdx)
	putU16(assemblyRow, 18, assemblyNameIdx)
	buf = append(buf, assemblyRow...)

	fileRow := make([]byte, 8)
	putU32(fileRow, 0, 0) // Flags: carries metadata
	putU16(fileRow, 4, fileNameIdx)
	buf = append(buf, fileRow...)

	return buf
}

// buildBSJB assembles a BSJB metadata root header around the given
// streams. Major and minor version each occupy a 4-byte slot (2-byte value
// plus 2 reserved bytes), matching the on-disk layout every real .NET
// assembly carries.
func buildBSJB(version string, streams []fixtureStream) []byte {
	buf := []byte{'B', 'S', 'J', 'B'}

	u16 := make([]byte, 2)
	binary.LittleEndian.PutUint16(u16, 1)
	buf = append(buf, u16...) // major
	buf = append(buf, 0, 0)   // reserved
	buf = append(buf, u16...) // minor
	buf = append(buf, 0, 0)   // reserved

	vb := append([]byte(version), 0)
	padded := make([]byte, (len(vb)+3)/4*4)
	copy(padded, vb)
	u32 := make([]byte, 4)
	binary.LittleEndian.PutUint32(u32, uint32(len(padded)))
	buf = append(buf, u32...)
	buf = append(buf, padded...)

	buf = append(buf, 0, 0) // reserved
	binary.LittleEndian.PutUint16(u16, uint16(len(streams)))
	buf = append(buf, u16...)

	headerLen := 0
	for _, s := range streams {
		nameLen := ((len(s.name) + 1 + 3) / 4) * 4
		headerLen += 8 + nameLen
	}
	heapStart := uint32(len(buf) + headerLen)

	var headerBytes, heapBytes []byte
	cursor := heapStart
	for _, s := range streams {
		off := make([]byte, 4)
		binary.LittleEndian.PutUint32(off, cursor)
		sz := make([]byte, 4)
		binary.LittleEndian.PutUint32(sz, uint32(len(s.data)))
		headerBytes = append(headerBytes, off...)
		headerBytes = append(headerBytes, sz...)

		nameBytes := append([]byte(s.name), 0)
		padLen := ((len(nameBytes) + 3) / 4) * 4
		namePadded := make([]byte, padLen)
		copy(namePadded, nameBytes)
		headerBytes = append(headerBytes, namePadded...)

		heapBytes = append(heapBytes, s.data...)
		cursor += uint32(len(s.data))
	}

	buf = append(buf, headerBytes...)
	buf = append(buf, heapBytes...)
	return buf
}
