package pe

import (
	"sync"

	"github.com/Purisky/mono/internal/bin"
)

const (
	memWrite = 0x80000000

	invalidOffset = 0xffffffff
)

// SectionHeader mirrors IMAGE_SECTION_HEADER: the same 40-byte on-disk
// layout and field names as the Win32 struct.
type SectionHeader struct {
	Name                 [8]byte
	VirtualSize          uint32
	VirtualAddress       uint32 // RVA of the section
	SizeOfRawData        uint32
	PointerToRawData     uint32
	PointerToRelocations uint32
	PointerToLinenumbers uint32
	NumberOfRelocations  uint16
	NumberOfLinenumbers  uint16
	Characteristics      uint32
}

// NameString returns the section name, trimmed at the first NUL.
func (s *SectionHeader) NameString() string {
	n := 0
	for n < 8 && s.Name[n] != 0 {
		n++
	}
	return string(s.Name[:n])
}

// Writable reports whether IMAGE_SCN_MEM_WRITE is set. This flag is only
// recorded, never enforced — this package never patches section content.
func (s *SectionHeader) Writable() bool { return s.Characteristics&memWrite != 0 }

// SectionTable holds the parsed section headers and lazily-ensured pointers
// into raw_data for each section.
type SectionTable struct {
	sections []SectionHeader

	mu     sync.Mutex
	mapped []bool
	ptrs   [][]byte
}

// ParseSectionTable reads exactly h.File.NumberOfSections entries
// immediately following the optional header. Any entry whose raw data
// would extend beyond len(raw) aborts the parse.
func ParseSectionTable(raw []byte, h *Headers) (*SectionTable, error) {
	start := sectionTableOffset(h)
	n := int(h.File.NumberOfSections)

	r := bin.NewReader(raw)
	r.SetOffset(start)

	sections := make([]SectionHeader, n)
	for i := 0; i < n; i++ {
		var s SectionHeader
		nameBytes, err := r.ReadBytes(8)
		if err != nil {
			return nil, parseErrf("section-table", int64(r.Offset()), err, "reading section %d name", i)
		}
		copy(s.Name[:], nameBytes)
		s.VirtualSize, _ = r.ReadU32()
		s.VirtualAddress, _ = r.ReadU32()
		s.SizeOfRawData, _ = r.ReadU32()
		s.PointerToRawData, _ = r.ReadU32()
		s.PointerToRelocations, _ = r.ReadU32()
		s.PointerToLinenumbers, _ = r.ReadU32()
		s.NumberOfRelocations, _ = r.ReadU16()
		s.NumberOfLinenumbers, err = r.ReadU16()
		if err != nil {
			return nil, parseErrf("section-table", int64(r.Offset()), err, "reading section %d", i)
		}
		s.Characteristics, _ = r.ReadU32()

		end := uint64(s.PointerToRawData) + uint64(s.SizeOfRawData)
		if end > uint64(len(raw)) {
			return nil, parseErrf("section-table", int64(r.Offset()), ErrOutOfRange,
				"section %d raw data [%#x,%#x) exceeds file length %#x", i, s.PointerToRawData, end, len(raw))
		}

		sections[i] = s
	}

	return &SectionTable{
		sections: sections,
		mapped:   make([]bool, n),
		ptrs:     make([][]byte, n),
	}, nil
}

// Count returns the number of sections.
func (st *SectionTable) Count() int { return len(st.sections) }

// Headers returns the raw section headers.
func (st *SectionTable) Headers() []SectionHeader { return st.sections }

// RVAToOffset linearly scans the section table and returns the first
// section whose virtual range contains rva, translated to a file offset,
// or the sentinel 0xffffffff.
func (st *SectionTable) RVAToOffset(rva uint32) uint32 {
	for i := range st.sections {
		s := &st.sections[i]
		if rva >= s.VirtualAddress && rva < s.VirtualAddress+s.SizeOfRawData {
			return s.PointerToRawData + (rva - s.VirtualAddress)
		}
	}
	return invalidOffset
}

// FindSection returns the index of the section containing rva, or -1.
func (st *SectionTable) FindSection(rva uint32) int {
	for i := range st.sections {
		s := &st.sections[i]
		if rva >= s.VirtualAddress && rva < s.VirtualAddress+s.SizeOfRawData {
			return i
		}
	}
	return -1
}

// EnsureSectionIdx lazily computes and caches the byte slice for section i
// within raw, returning it on every subsequent call without rescanning.
func (st *SectionTable) EnsureSectionIdx(raw []byte, i int) []byte {
	if i < 0 || i >= len(st.sections) {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.mapped[i] {
		return st.ptrs[i]
	}
	s := &st.sections[i]
	end := uint64(s.PointerToRawData) + uint64(s.SizeOfRawData)
	if end > uint64(len(raw)) {
		st.mapped[i] = true
		st.ptrs[i] = nil
		return nil
	}
	st.ptrs[i] = raw[s.PointerToRawData:end]
	st.mapped[i] = true
	return st.ptrs[i]
}

// EnsureSectionByName looks up a section by its (NUL-trimmed) name and
// ensures it.
func (st *SectionTable) EnsureSectionByName(raw []byte, name string) []byte {
	for i := range st.sections {
		if st.sections[i].NameString() == name {
			return st.EnsureSectionIdx(raw, i)
		}
	}
	return nil
}

// RVAToPointer locates and ensures the section containing rva, then
// returns the slice starting at rva within raw_data, or nil if rva is not
// covered by any section.
func (st *SectionTable) RVAToPointer(raw []byte, rva uint32) []byte {
	i := st.FindSection(rva)
	if i < 0 {
		return nil
	}
	sec := st.EnsureSectionIdx(raw, i)
	if sec == nil {
		return nil
	}
	within := rva - st.sections[i].VirtualAddress
	if uint64(within) > uint64(len(sec)) {
		return nil
	}
	return sec[within:]
}
