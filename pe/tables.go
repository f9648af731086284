package pe

import "github.com/Purisky/mono/internal/bin"

// TableCount is the number of table-ID bits a valid/sorted mask can carry.
const TableCount = 64

// LastTable is the highest legal metadata-table index; table IDs above
// this are never legal.
const LastTable = 0x2D

// HeapSizes bit positions within the #~/#- header's heap-sizes byte.
const (
	heapSizeStringWide = 1 << 0
	heapSizeGUIDWide   = 1 << 1
	heapSizeBlobWide   = 1 << 2
)

// HeapWidths records whether each of the string/guid/blob heaps is indexed
// with a 2-byte or 4-byte index.
type HeapWidths struct {
	StringWide bool
	GUIDWide   bool
	BlobWide   bool
}

// RowWidthFunc is the "primitive row-column decoder" seam this package
// reserves for the metadata layer: given a table ID, the image's heap
// widths, and every table's row count, it returns that table's per-row byte
// size. This package never calls it — decoding table columns is explicitly
// out of scope here — but exposes the type so the metadata layer can share
// HeapWidths/TableHeader without re-deriving them.
type RowWidthFunc func(tableID int, widths HeapWidths, rows [TableCount]uint32) (uint32, error)

// TableHeader is the decoded #~/#- stream header: index widths, the
// valid/sorted bit-masks, and per-table row counts. By design
// the core only stores row counts — per-table base pointers are the
// metadata layer's responsibility, built from TablesBase, Rows, and a
// RowWidthFunc.
type TableHeader struct {
	MajorVersion byte
	MinorVersion byte
	Widths       HeapWidths
	ValidMask    uint64
	SortedMask   uint64
	Rows         [TableCount]uint32

	// TablesBase is the absolute file offset of the first table row,
	// i.e. heap_tables.data + 24 + 4*(valid bits consumed).
	TablesBase uint32
}

// RowCount returns the row count for table id, or (0, false) if id is out
// of range.
func (t *TableHeader) RowCount(id int) (uint32, bool) {
	if id < 0 || id >= TableCount {
		return 0, false
	}
	return t.Rows[id], true
}

// ParseTableHeader decodes the #~ (or #-) stream header: 4 reserved bytes,
// major/minor/heap-sizes/reserved, the two 64-bit masks, then one uint32
// row count per set bit in validMask with index <=
// LastTable. Bits above LastTable are logged and skipped without consuming
// a row count, matching long-standing tooling behavior for malformed images.
func ParseTableHeader(raw []byte, tables HeapSlice, logger Logger) (*TableHeader, error) {
	logger = loggerOrDefault(logger)

	data := tables.Bytes(raw)
	r := bin.NewReader(data)

	if err := r.Skip(4); err != nil {
		return nil, parseErrf("table-header", int64(tables.Offset), err, "skipping reserved field")
	}
	major, err := r.ReadU8()
	if err != nil {
		return nil, parseErrf("table-header", int64(r.Offset()), err, "reading major version")
	}
	minor, err := r.ReadU8()
	if err != nil {
		return nil, parseErrf("table-header", int64(r.Offset()), err, "reading minor version")
	}
	heapSizes, err := r.ReadU8()
	if err != nil {
		return nil, parseErrf("table-header", int64(r.Offset()), err, "reading heap-sizes byte")
	}
	if err := r.Skip(1); err != nil {
		return nil, parseErrf("table-header", int64(r.Offset()), err, "skipping reserved field")
	}

	validMask, err := r.ReadU64()
	if err != nil {
		return nil, parseErrf("table-header", int64(r.Offset()), err, "reading valid mask")
	}
	sortedMask, err := r.ReadU64()
	if err != nil {
		return nil, parseErrf("table-header", int64(r.Offset()), err, "reading sorted mask")
	}

	th := &TableHeader{
		MajorVersion: major,
		MinorVersion: minor,
		Widths: HeapWidths{
			StringWide: heapSizes&heapSizeStringWide != 0,
			GUIDWide:   heapSizes&heapSizeGUIDWide != 0,
			BlobWide:   heapSizes&heapSizeBlobWide != 0,
		},
		ValidMask:  validMask,
		SortedMask: sortedMask,
	}

	consumed := 0
	for t := 0; t < TableCount; t++ {
		if validMask&(uint64(1)<<uint(t)) == 0 {
			continue
		}
		if t > LastTable {
			logger.Warnf("pe: valid_mask sets table %#x above LAST (%#x), ignoring", t, LastTable)
			continue
		}
		rows, err := r.ReadU32()
		if err != nil {
			return nil, parseErrf("table-header", int64(r.Offset()), err, "reading row count for table %#x", t)
		}
		th.Rows[t] = rows
		consumed++
	}

	if r.Offset() != 24+4*consumed {
		return nil, parseErrf("table-header", int64(r.Offset()), ErrTableOverflow,
			"cursor at %d, expected %d after consuming %d row counts", r.Offset(), 24+4*consumed, consumed)
	}

	th.TablesBase = tables.Offset + uint32(r.Offset())
	return th, nil
}
