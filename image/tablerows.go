package image

import (
	"encoding/binary"

	"github.com/Purisky/mono/pe"
)

// readHeapIndex reads a 2- or 4-byte heap index at off within row, bounds
// checking before it slices. ok is false if off is negative or the index
// would run past the end of row, in which case the returned values must
// not be used.
func readHeapIndex(row []byte, off int, wide bool) (idx uint32, next int, ok bool) {
	width := 2
	if wide {
		width = 4
	}
	if off < 0 || off+width > len(row) {
		return 0, off, false
	}
	if wide {
		return binary.LittleEndian.Uint32(row[off : off+4]), off + 4, true
	}
	return uint32(binary.LittleEndian.Uint16(row[off : off+2])), off + 2, true
}

// moduleRowName resolves the Module table's single row's Name column
// (a #Strings index) to a string. It returns "" if the table has no rows or
// its row offset cannot be computed (e.g. an unrecognized preceding table).
func moduleRowName(raw []byte, parsed *pe.Parsed) string {
	th := parsed.Tables
	if th == nil {
		return ""
	}
	rows, ok := th.RowCount(tableModule)
	if !ok || rows == 0 {
		return ""
	}
	off, err := rowOffset(th, th.Widths, tableModule, 0)
	if err != nil || off < 0 || off+2 > len(raw) {
		return ""
	}
	off += 2 // Generation
	nameIdx, _, ok := readHeapIndex(raw, off, th.Widths.StringWide)
	if !ok {
		return ""
	}
	return readStringHeap(parsed.Metadata, raw, nameIdx)
}

// assemblyRowNameAndKey resolves the Assembly table's single row's Name and
// PublicKey columns. ok is false if the table has no rows.
func assemblyRowNameAndKey(raw []byte, parsed *pe.Parsed) (name string, publicKeyIdx uint32, ok bool) {
	th := parsed.Tables
	if th == nil {
		return "", 0, false
	}
	rows, has := th.RowCount(tableAssembly)
	if !has || rows == 0 {
		return "", 0, false
	}
	off, err := rowOffset(th, th.Widths, tableAssembly, 0)
	if err != nil {
		return "", 0, false
	}
	off += 4 + 2 + 2 + 2 + 2 + 4 // HashAlgId, Major/Minor/Build/Revision, Flags
	if off < 0 || off > len(raw) {
		return "", 0, false
	}
	pk, next, ok := readHeapIndex(raw, off, th.Widths.BlobWide)
	if !ok {
		return "", 0, false
	}
	nameIdx, _, ok := readHeapIndex(raw, next, th.Widths.StringWide)
	if !ok {
		return "", 0, false
	}
	return readStringHeap(parsed.Metadata, raw, nameIdx), pk, true
}

// moduleRefRowName resolves the ModuleRef table's row i (0-based) Name
// column.
func moduleRefRowName(raw []byte, parsed *pe.Parsed, i int) (string, error) {
	th := parsed.Tables
	off, err := rowOffset(th, th.Widths, tableModuleRef, i)
	if err != nil {
		return "", err
	}
	if off < 0 || off > len(raw) {
		return "", imageErrf("module-graph", pe.ErrOutOfRange, "ModuleRef row %d offset out of range", i)
	}
	nameIdx, _, ok := readHeapIndex(raw, off, th.Widths.StringWide)
	if !ok {
		return "", imageErrf("module-graph", pe.ErrOutOfRange, "ModuleRef row %d name index out of range", i)
	}
	return readStringHeap(parsed.Metadata, raw, nameIdx), nil
}

// fileRow resolves the File table's row i (0-based) Flags and Name columns.
func fileRow(raw []byte, parsed *pe.Parsed, i int) (name string, flags uint32, err error) {
	th := parsed.Tables
	off, err := rowOffset(th, th.Widths, tableFile, i)
	if err != nil {
		return "", 0, err
	}
	if off < 0 || off+4 > len(raw) {
		return "", 0, imageErrf("module-graph", pe.ErrOutOfRange, "File row %d offset out of range", i)
	}
	flags = binary.LittleEndian.Uint32(raw[off : off+4])
	nameIdx, _, ok := readHeapIndex(raw, off+4, th.Widths.StringWide)
	if !ok {
		return "", 0, imageErrf("module-graph", pe.ErrOutOfRange, "File row %d name index out of range", i)
	}
	return readStringHeap(parsed.Metadata, raw, nameIdx), flags, nil
}
