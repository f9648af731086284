package pe

import "encoding/binary"

// peBuilder assembles the smallest byte-exact PE32 image this package
// accepts: MS-DOS stub, COFF header (I386, numSections sections), and a
// full PE32 optional header with 16 data directories. Section headers are
// written by addSection. It is the shared scaffold every fixture in this
// package's tests builds on.
type peBuilder struct {
	buf          []byte
	peOffset     int
	dirDataStart int
}

func newPEBuilder(numSections int) *peBuilder {
	b := &peBuilder{}
	b.buf = make([]byte, 64)
	binary.LittleEndian.PutUint16(b.buf[0:2], dosSignature)
	b.peOffset = 64
	binary.LittleEndian.PutUint32(b.buf[0x3c:0x40], uint32(b.peOffset))

	nt := make([]byte, 0, 4+20+optionalHeaderSize+sectionHeaderRecordSize*numSections)

	var sig [4]byte
	binary.LittleEndian.PutUint32(sig[:], peSignature)
	nt = append(nt, sig[:]...)

	coff := make([]byte, 20)
	binary.LittleEndian.PutUint16(coff[0:2], machineI386)
	binary.LittleEndian.PutUint16(coff[2:4], uint16(numSections))
	binary.LittleEndian.PutUint16(coff[16:18], optionalHeaderSize)
	nt = append(nt, coff...)

	opt := make([]byte, optionalHeaderSize)
	binary.LittleEndian.PutUint16(opt[0:2], peMagic32)
	binary.LittleEndian.PutUint32(opt[92:96], numDataDirectories)
	nt = append(nt, opt...)

	b.dirDataStart = len(b.buf) + 4 + 20 + 96
	b.buf = append(b.buf, nt...)
	return b
}

func (b *peBuilder) setDataDirectory(index int, rva, size uint32) {
	off := b.dirDataStart + index*8
	binary.LittleEndian.PutUint32(b.buf[off:off+4], rva)
	binary.LittleEndian.PutUint32(b.buf[off+4:off+8], size)
}

// addSection writes a section header into slot idx of the section table and
// grows buf to hold size raw bytes at the given file offset.
func (b *peBuilder) addSection(idx int, name string, rva, fileOffset, size uint32) {
	headerOff := sectionTableOffset(&Headers{PEOffset: uint32(b.peOffset), File: FileHeader{SizeOfOptionalHeader: optionalHeaderSize}}) + idx*sectionHeaderRecordSize
	for len(b.buf) < headerOff+sectionHeaderRecordSize {
		b.buf = append(b.buf, 0)
	}
	copy(b.buf[headerOff:headerOff+8], name)
	binary.LittleEndian.PutUint32(b.buf[headerOff+8:headerOff+12], size)
	binary.LittleEndian.PutUint32(b.buf[headerOff+12:headerOff+16], rva)
	binary.LittleEndian.PutUint32(b.buf[headerOff+16:headerOff+20], size)
	binary.LittleEndian.PutUint32(b.buf[headerOff+20:headerOff+24], fileOffset)

	needed := int(fileOffset + size)
	for len(b.buf) < needed {
		b.buf = append(b.buf, 0)
	}
}

func (b *peBuilder) bytes() []byte { return b.buf }

func putU16(b []byte, off int, v uint16) { binary.LittleEndian.PutUint16(b[off:off+2], v) }
func putU32(b []byte, off int, v uint32) { binary.LittleEndian.PutUint32(b[off:off+4], v) }
func putU64(b []byte, off int, v uint64) { binary.LittleEndian.PutUint64(b[off:off+8], v) }
