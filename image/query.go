package image

import (
	"encoding/binary"

	"github.com/Purisky/mono/pe"
)

// invalidRVAOffset mirrors the sentinel pe.SectionTable.RVAToOffset
// returns for an RVA not covered by any section.
const invalidRVAOffset = 0xffffffff

// EntryPoint returns the CLI header's entry point token, or 0 for an image
// with no CLI header (a PE-file-only open, or a native image).
func (img *Image) EntryPoint() uint32 {
	if img.parsed == nil || img.parsed.CLI == nil {
		return 0
	}
	return img.parsed.CLI.EntryPointToken
}

// Resource returns the length-prefixed managed resource blob at offset
// within the CLI resources directory: a 4-byte little-endian length
// followed by that many bytes. It returns (nil, 0) if the length prefix or
// the data it describes would run past the CLI header's declared Resources
// size (or past the mapped section bytes, if those end sooner).
func (img *Image) Resource(offset uint32) ([]byte, uint32) {
	if img.parsed == nil || img.parsed.CLI == nil {
		return nil, 0
	}
	dir := img.parsed.CLI.Resources
	if dir.RVA == 0 {
		return nil, 0
	}
	base := img.parsed.Sections.RVAToPointer(img.RawBytes(), dir.RVA)
	if base == nil {
		return nil, 0
	}

	total := min(uint64(dir.Size), uint64(len(base)))
	prefixEnd := uint64(offset) + 4
	if prefixEnd > total {
		return nil, 0
	}
	length := binary.LittleEndian.Uint32(base[offset:prefixEnd])
	dataEnd := prefixEnd + uint64(length)
	if dataEnd > total {
		return nil, 0
	}
	return base[prefixEnd:dataEnd], length
}

// StrongName returns the strong-name signature bytes and their length, or
// (nil, 0) if the image carries no strong-name directory.
func (img *Image) StrongName() ([]byte, uint32) {
	if img.parsed == nil || img.parsed.CLI == nil {
		return nil, 0
	}
	dir := img.parsed.CLI.StrongNameSignature
	if dir.RVA == 0 || dir.Size == 0 {
		return nil, 0
	}
	ptr := img.parsed.Sections.RVAToPointer(img.RawBytes(), dir.RVA)
	if ptr == nil || uint64(len(ptr)) < uint64(dir.Size) {
		return nil, 0
	}
	return ptr[:dir.Size], dir.Size
}

// StrongNamePosition returns the file offset of the strong-name signature
// and its declared size. size is populated from the CLI header's directory
// even when offset comes back 0 because the directory is empty or its RVA
// is not covered by any section.
func (img *Image) StrongNamePosition() (offset, size uint32) {
	if img.parsed == nil || img.parsed.CLI == nil {
		return 0, 0
	}
	dir := img.parsed.CLI.StrongNameSignature
	size = dir.Size
	if dir.Size == 0 || dir.RVA == 0 {
		return 0, size
	}
	off := img.parsed.Sections.RVAToOffset(dir.RVA)
	if off == invalidRVAOffset {
		return 0, size
	}
	return off, size
}

// PublicKey returns the Assembly table's PublicKey blob, or nil if the
// image carries no Assembly row or that row's PublicKey index is zero.
func (img *Image) PublicKey() []byte {
	if img.parsed == nil || img.parsed.Tables == nil {
		return nil
	}
	raw := img.RawBytes()
	_, pkIdx, ok := assemblyRowNameAndKey(raw, img.parsed)
	if !ok || pkIdx == 0 {
		return nil
	}
	return readBlobHeap(img.parsed.Metadata, raw, pkIdx)
}

// HasAuthenticodeEntry reports whether the image carries a non-empty
// certificate table data directory.
func (img *Image) HasAuthenticodeEntry() bool {
	if img.parsed == nil || img.parsed.Headers == nil {
		return false
	}
	return img.parsed.Headers.HasAuthenticodeEntry()
}

// LookupResource walks the image's Win32 resource tree for the given
// resource and language identifiers. name is accepted for parity with the
// level-1 name-match hook but is unused: the walk runs with a nil
// NameMatcher, so every level-1 entry is accepted.
func (img *Image) LookupResource(resID, langID uint32, name *string) (*pe.ResourceDataEntry, error) {
	if img.parsed == nil {
		return nil, nil
	}
	return pe.LookupResource(img.RawBytes(), img.parsed.Sections, img.parsed.Headers, resID, langID, nil)
}

// TableRows returns the row count of metadata table id, and whether the
// table stream was present at all.
func (img *Image) TableRows(id int) (uint32, bool) {
	if img.parsed == nil || img.parsed.Tables == nil {
		return 0, false
	}
	return img.parsed.Tables.RowCount(id)
}

// EnsureSection maps and caches the named section's bytes.
func (img *Image) EnsureSection(name string) []byte {
	if img.parsed == nil {
		return nil
	}
	return img.parsed.Sections.EnsureSectionByName(img.RawBytes(), name)
}

// EnsureSectionIdx maps and caches section i's bytes.
func (img *Image) EnsureSectionIdx(i int) []byte {
	if img.parsed == nil {
		return nil
	}
	return img.parsed.Sections.EnsureSectionIdx(img.RawBytes(), i)
}

// RVAMap resolves rva to a byte slice within the mapped section that
// covers it, or nil if no section does.
func (img *Image) RVAMap(rva uint32) []byte {
	if img.parsed == nil {
		return nil
	}
	return img.parsed.Sections.RVAToPointer(img.RawBytes(), rva)
}

// Strerror renders a pe.Status as a human-readable string.
func Strerror(s pe.Status) string { return pe.Strerror(s) }
