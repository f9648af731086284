package pe

import (
	"github.com/Purisky/mono/internal/bin"
	"github.com/google/uuid"
)

// Well-known metadata heap stream names.
const (
	StreamTables             = "#~"
	StreamTablesUncompressed = "#-"
	StreamStrings            = "#Strings"
	StreamUserStrings        = "#US"
	StreamBlob               = "#Blob"
	StreamGUID               = "#GUID"
)

// HeapSlice is an {offset, size} pair identifying a named heap's bytes
// within raw_data. Every derived pointer is stored as an offset plus a
// length alongside the owning slice, rather than as a raw pointer.
type HeapSlice struct {
	Offset uint32
	Size   uint32
}

// Bytes returns the heap's contents from raw. It returns nil if the slice
// is empty (the heap was never present).
func (h HeapSlice) Bytes(raw []byte) []byte {
	if h.Size == 0 {
		return nil
	}
	return raw[h.Offset : h.Offset+h.Size]
}

// MetadataRoot holds the parsed #~/#- table descriptor location plus the
// four named content heaps.
type MetadataRoot struct {
	MajorVersion uint16
	MinorVersion uint16
	Version      string

	Tables               HeapSlice
	UncompressedMetadata bool // true when the table stream was named "#-"
	Strings              HeapSlice
	UserStrings          HeapSlice
	Blob                 HeapSlice
	GUID                 HeapSlice

	// MVID is the first 16 bytes of the #GUID heap, formatted as a GUID
	// string.
	MVID string
}

// ParseMetadataRoot reads the BSJB metadata root starting at file offset
// base (sections.RVAToOffset(cliHeader.Metadata.RVA)).
func ParseMetadataRoot(raw []byte, base uint32, logger Logger) (*MetadataRoot, error) {
	logger = loggerOrDefault(logger)

	root, err := bin.NewReader(raw).Slice(int(base), len(raw)-int(base))
	if err != nil {
		return nil, parseErrf("metadata-root", int64(base), err, "metadata root RVA out of range")
	}

	sig, err := root.ReadU32()
	if err != nil {
		return nil, parseErrf("metadata-root", int64(base), err, "reading BSJB signature")
	}
	if sig != bsjbSignature {
		return nil, parseErrf("metadata-root", int64(base), ErrBadSignature, "missing BSJB signature")
	}

	// Each 16-bit version field occupies a 4-byte slot; the trailing 2 bytes
	// of major's slot and of minor's slot are reserved and skipped.
	major, err := root.ReadU16()
	if err != nil {
		return nil, parseErrf("metadata-root", int64(root.Offset()), err, "reading major version")
	}
	if err := root.Skip(2); err != nil {
		return nil, parseErrf("metadata-root", int64(root.Offset()), err, "skipping reserved field")
	}
	minor, err := root.ReadU16()
	if err != nil {
		return nil, parseErrf("metadata-root", int64(root.Offset()), err, "reading minor version")
	}
	if err := root.Skip(2); err != nil {
		return nil, parseErrf("metadata-root", int64(root.Offset()), err, "skipping reserved field")
	}

	versionLen, err := root.ReadU32()
	if err != nil {
		return nil, parseErrf("metadata-root", int64(root.Offset()), err, "reading version string length")
	}
	versionBytes, err := root.ReadBytes(int(versionLen))
	if err != nil {
		return nil, parseErrf("metadata-root", int64(root.Offset()), err, "reading version string")
	}
	version := nullTruncate(versionBytes)
	root.Align(4)

	if err := root.Skip(2); err != nil {
		return nil, parseErrf("metadata-root", int64(root.Offset()), err, "skipping reserved field")
	}
	numStreams, err := root.ReadU16()
	if err != nil {
		return nil, parseErrf("metadata-root", int64(root.Offset()), err, "reading stream count")
	}

	m := &MetadataRoot{MajorVersion: major, MinorVersion: minor, Version: version}

	for i := 0; i < int(numStreams); i++ {
		relOffset, err := root.ReadU32()
		if err != nil {
			return nil, parseErrf("metadata-root", int64(root.Offset()), err, "reading stream %d offset", i)
		}
		size, err := root.ReadU32()
		if err != nil {
			return nil, parseErrf("metadata-root", int64(root.Offset()), err, "reading stream %d size", i)
		}
		name, err := root.ReadCString()
		if err != nil {
			return nil, parseErrf("metadata-root", int64(root.Offset()), err, "reading stream %d name", i)
		}
		root.Align(4)

		absOffset := base + relOffset
		if uint64(absOffset)+uint64(size) > uint64(len(raw)) {
			return nil, parseErrf("metadata-root", int64(root.Offset()), ErrOutOfRange, "stream %q [%#x,+%#x) exceeds file length", name, absOffset, size)
		}
		slice := HeapSlice{Offset: absOffset, Size: size}

		switch name {
		case StreamTables:
			m.Tables = slice
		case StreamTablesUncompressed:
			m.Tables = slice
			m.UncompressedMetadata = true
		case StreamStrings:
			m.Strings = slice
		case StreamUserStrings:
			m.UserStrings = slice
		case StreamBlob:
			m.Blob = slice
		case StreamGUID:
			m.GUID = slice
		default:
			logger.Warnf("pe: unknown metadata stream %q, skipping", name)
		}
	}

	if m.GUID.Size < 16 {
		return nil, parseErrf("metadata-root", int64(m.GUID.Offset), ErrMissingHeap, "#GUID heap is %d bytes, need >= 16", m.GUID.Size)
	}
	id, err := uuid.FromBytes(clrGUIDToRFC4122(m.GUID.Bytes(raw)[:16]))
	if err != nil {
		return nil, parseErrf("metadata-root", int64(m.GUID.Offset), err, "formatting MVID")
	}
	m.MVID = id.String()

	return m, nil
}

// clrGUIDToRFC4122 reorders a CLI GUID's first three little-endian fields
// (Data1 uint32, Data2/Data3 uint16) into the big-endian byte order
// uuid.FromBytes expects, leaving the trailing 8-byte Data4 unchanged. This
// is what makes the formatted string match the GUID a .NET tool would show
// for the same MVID, rather than a byte-reversed lookalike.
func clrGUIDToRFC4122(b []byte) []byte {
	out := make([]byte, 16)
	out[0], out[1], out[2], out[3] = b[3], b[2], b[1], b[0]
	out[4], out[5] = b[5], b[4]
	out[6], out[7] = b[7], b[6]
	copy(out[8:], b[8:16])
	return out
}

func nullTruncate(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
