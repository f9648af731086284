package pe

import (
	"fmt"
	"os"
)

// RawBuffer abstracts a contiguous read-only byte region backed either by a
// file's full contents or by a caller-supplied slice. It tracks whether the
// backing storage is owned (and must be released on Close) or merely
// borrowed from the caller.
//
// Memory-mapping the file is explicitly out of scope; file-backed buffers
// are read fully into memory once at open time, which is sufficient for the
// random-access reads this package performs afterward.
type RawBuffer struct {
	data  []byte
	owned bool
}

// NewRawBufferFromFile opens path, reads it fully into an owned buffer, and
// returns the buffer plus the open *os.File. The caller (image.Image) holds
// the handle until teardown closes it; nothing reads through it, since the
// bytes are already copied into memory.
func NewRawBufferFromFile(path string) (*RawBuffer, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("pe: open %s: %w", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("pe: read %s: %w", path, err)
	}
	return &RawBuffer{data: data, owned: true}, f, nil
}

// NewRawBufferFromBytes wraps an in-memory buffer. When copyData is true the
// core duplicates the slice so later mutation of the caller's buffer cannot
// affect accessor results; when false, the buffer is borrowed and the
// caller remains responsible for its lifetime.
func NewRawBufferFromBytes(b []byte, copyData bool) *RawBuffer {
	if !copyData {
		return &RawBuffer{data: b, owned: false}
	}
	dup := make([]byte, len(b))
	copy(dup, b)
	return &RawBuffer{data: dup, owned: true}
}

// Bytes returns the buffer's contents. The returned slice must not be
// mutated by callers; it is treated as read-only for the lifetime of the
// owning image.
func (r *RawBuffer) Bytes() []byte { return r.data }

// Len returns the buffer length.
func (r *RawBuffer) Len() int { return len(r.data) }

// Owned reports whether this RawBuffer holds a duplicated allocation that
// must be released on Close, as opposed to a borrowed slice.
func (r *RawBuffer) Owned() bool { return r.owned }

// Release drops the reference to the owned allocation. It is a no-op for
// borrowed buffers; Go's GC reclaims the backing array once nothing else
// references it.
func (r *RawBuffer) Release() {
	if r.owned {
		r.data = nil
	}
}
