package pe

import "github.com/Purisky/mono/internal/bin"

const (
	// dirResourceTable is IMAGE_DIRECTORY_ENTRY_RESOURCE, the Win32 .rsrc
	// directory. Distinct from the CLI header's own Resources directory,
	// which holds a flat length-prefixed blob region rather than a tree.
	dirResourceTable = 2

	resourceEntryNameBit   = 0x80000000
	resourceEntrySubdirBit = 0x80000000

	resourceDirectoryHeaderSize = 16
	resourceDataEntrySize       = 16
)

// ResourceEntry is one IMAGE_RESOURCE_DIRECTORY_ENTRY: either a numeric ID
// or a name-string offset, and either a subdirectory offset or a leaf data
// offset, both relative to the resource directory's base.
type ResourceEntry struct {
	IsName     bool
	ID         uint32
	NameOffset uint32

	IsSubdir bool
	Offset   uint32
}

// NameMatcher is the level-1 name-comparison hook: given the resource
// section's base bytes and a named entry, it decides whether that entry
// matches a caller-supplied name. LookupResource accepts every level-1
// entry when nameMatch is nil.
type NameMatcher func(resourceBase []byte, entry ResourceEntry) bool

// ResourceDataEntry mirrors the 16-byte IMAGE_RESOURCE_DATA_ENTRY leaf.
type ResourceDataEntry struct {
	OffsetToData uint32
	Size         uint32
	CodePage     uint32
	Reserved     uint32
}

// LookupResource walks the three-level Win32 resource directory (type,
// name, language) depth-first and returns the first leaf matching resID at
// level 0 and langID (or any language, if langID is 0) at level 2. Level 1
// accepts every entry unless nameMatch rejects it. It returns (nil, nil)
// when there is no resource directory or no match, and a non-nil error
// only for a structurally malformed directory.
func LookupResource(raw []byte, sections *SectionTable, headers *Headers, resID, langID uint32, nameMatch NameMatcher) (*ResourceDataEntry, error) {
	dir := headers.Optional.DataDirectories[dirResourceTable]
	if dir.RVA == 0 {
		return nil, nil
	}
	base := sections.RVAToOffset(dir.RVA)
	if base == invalidOffset {
		return nil, parseErrf("resource", int64(dir.RVA), ErrOutOfRange, "resource directory RVA %#x not covered by any section", dir.RVA)
	}
	if uint64(base)+uint64(dir.Size) > uint64(len(raw)) {
		return nil, parseErrf("resource", int64(base), ErrOutOfRange, "resource directory extends past end of file")
	}

	resourceBase := raw[base:]
	return walkResourceLevel0(raw, resourceBase, base, 0, resID, langID, nameMatch)
}

func walkResourceLevel0(raw []byte, resourceBase []byte, base, dirOffset, resID, langID uint32, nameMatch NameMatcher) (*ResourceDataEntry, error) {
	entries, err := readResourceEntries(raw, base, dirOffset)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.IsName || e.ID != resID || !e.IsSubdir {
			continue
		}
		leaf, err := walkResourceLevel1(raw, resourceBase, base, e.Offset, langID, nameMatch)
		if err != nil {
			return nil, err
		}
		if leaf != nil {
			return leaf, nil
		}
	}
	return nil, nil
}

func walkResourceLevel1(raw []byte, resourceBase []byte, base, dirOffset, langID uint32, nameMatch NameMatcher) (*ResourceDataEntry, error) {
	entries, err := readResourceEntries(raw, base, dirOffset)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if !e.IsSubdir {
			continue
		}
		if e.IsName && nameMatch != nil && !nameMatch(resourceBase, e) {
			continue
		}
		leaf, err := walkResourceLevel2(raw, base, e.Offset, langID)
		if err != nil {
			return nil, err
		}
		if leaf != nil {
			return leaf, nil
		}
	}
	return nil, nil
}

func walkResourceLevel2(raw []byte, base, dirOffset, langID uint32) (*ResourceDataEntry, error) {
	entries, err := readResourceEntries(raw, base, dirOffset)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.IsName || e.IsSubdir {
			continue
		}
		if langID != 0 && e.ID != langID {
			continue
		}
		return readResourceDataEntry(raw, base, e.Offset)
	}
	return nil, nil
}

func readResourceEntries(raw []byte, base, dirOffset uint32) ([]ResourceEntry, error) {
	off := uint64(base) + uint64(dirOffset)
	if off+resourceDirectoryHeaderSize > uint64(len(raw)) {
		return nil, parseErrf("resource", int64(off), ErrOutOfRange, "resource directory header out of range")
	}

	r := bin.NewReader(raw)
	r.SetOffset(int(off))
	if err := r.Skip(12); err != nil {
		return nil, parseErrf("resource", int64(off), err, "skipping resource directory header fields")
	}
	namedCount, err := r.ReadU16()
	if err != nil {
		return nil, parseErrf("resource", int64(r.Offset()), err, "reading named-entry count")
	}
	idCount, err := r.ReadU16()
	if err != nil {
		return nil, parseErrf("resource", int64(r.Offset()), err, "reading id-entry count")
	}

	total := int(namedCount) + int(idCount)
	entries := make([]ResourceEntry, 0, total)
	for i := 0; i < total; i++ {
		nameOrID, err := r.ReadU32()
		if err != nil {
			return nil, parseErrf("resource", int64(r.Offset()), err, "reading entry %d name/id field", i)
		}
		offsetField, err := r.ReadU32()
		if err != nil {
			return nil, parseErrf("resource", int64(r.Offset()), err, "reading entry %d offset field", i)
		}

		var e ResourceEntry
		if nameOrID&resourceEntryNameBit != 0 {
			e.IsName = true
			e.NameOffset = nameOrID &^ resourceEntryNameBit
		} else {
			e.ID = nameOrID
		}
		if offsetField&resourceEntrySubdirBit != 0 {
			e.IsSubdir = true
			e.Offset = offsetField &^ resourceEntrySubdirBit
		} else {
			e.Offset = offsetField
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func readResourceDataEntry(raw []byte, base, offset uint32) (*ResourceDataEntry, error) {
	off := uint64(base) + uint64(offset)
	if off+resourceDataEntrySize > uint64(len(raw)) {
		return nil, parseErrf("resource", int64(off), ErrOutOfRange, "resource data entry out of range")
	}
	r := bin.NewReader(raw)
	r.SetOffset(int(off))

	d := &ResourceDataEntry{}
	d.OffsetToData, _ = r.ReadU32()
	d.Size, _ = r.ReadU32()
	d.CodePage, _ = r.ReadU32()
	d.Reserved, _ = r.ReadU32()
	return d, nil
}
