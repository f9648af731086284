package image

import "github.com/Purisky/mono/pe"

// readStringHeap returns the null-terminated string at byte offset idx
// within the #Strings heap, or "" if idx is out of range.
func readStringHeap(m *pe.MetadataRoot, raw []byte, idx uint32) string {
	data := m.Strings.Bytes(raw)
	if data == nil || idx >= uint32(len(data)) {
		return ""
	}
	end := idx
	for end < uint32(len(data)) && data[end] != 0 {
		end++
	}
	return string(data[idx:end])
}

// readBlobHeap decodes the compressed length prefix ECMA-335 II.24.2.4
// describes (1, 2, or 4 bytes depending on the top bits of the first byte)
// and returns the blob bytes that follow, or nil if idx is out of range or
// the token is zero.
func readBlobHeap(m *pe.MetadataRoot, raw []byte, idx uint32) []byte {
	if idx == 0 {
		return nil
	}
	data := m.Blob.Bytes(raw)
	if data == nil || idx >= uint32(len(data)) {
		return nil
	}
	b0 := data[idx]
	var length, prefix uint32
	switch {
	case b0&0x80 == 0:
		length = uint32(b0 & 0x7F)
		prefix = 1
	case b0&0xC0 == 0x80:
		if idx+1 >= uint32(len(data)) {
			return nil
		}
		length = (uint32(b0&0x3F) << 8) | uint32(data[idx+1])
		prefix = 2
	case b0&0xE0 == 0xC0:
		if idx+3 >= uint32(len(data)) {
			return nil
		}
		length = (uint32(b0&0x1F) << 24) | uint32(data[idx+1])<<16 | uint32(data[idx+2])<<8 | uint32(data[idx+3])
		prefix = 4
	default:
		return nil
	}
	start := idx + prefix
	end := uint64(start) + uint64(length)
	if end > uint64(len(data)) {
		return nil
	}
	return data[start:end]
}
