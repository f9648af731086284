// Package image implements the cached, reference-counted managed-code
// image type built on top of package pe: lifecycle (open/addref/close), a
// process-wide registry keyed by path and by metadata GUID, the module and
// file graph loader, and the public read-only query surface.
package image

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/Purisky/mono/pe"
)

// auxCaches holds the per-image secondary caches owned by collaborators
// elsewhere in a runtime built on this package (method, class, field,
// wrapper, and signature lookups keyed by metadata token). This package
// only allocates and destroys them; it never populates or reads them.
type auxCaches struct {
	methods    map[uint32]any
	classes    map[uint32]any
	fields     map[uint32]any
	wrappers   map[uint32]any
	signatures map[uint32]any
}

func newAuxCaches() *auxCaches {
	return &auxCaches{
		methods:    make(map[uint32]any),
		classes:    make(map[uint32]any),
		fields:     make(map[uint32]any),
		wrappers:   make(map[uint32]any),
		signatures: make(map[uint32]any),
	}
}

// Image is the central entity this package manages: a parsed, cached,
// reference-counted view of one CLI managed-code image.
type Image struct {
	registry *Registry

	name    string
	refOnly bool
	dynamic bool

	raw  *pe.RawBuffer
	file *os.File

	refCount int32 // atomic; starts at 1

	parsed *pe.Parsed

	assemblyName string
	moduleName   string
	guid         string
	version      string

	// modules/files are populated lazily, one slot at a time, guarded by
	// the matching entry in modulesOnce/filesOnce (first-writer-wins).
	// Once an index's Once has run, its slot is safe to read directly by
	// any goroutine that also went through LoadModule or LoadFile for
	// that index.
	modules     []*Image
	modulesOnce []sync.Once
	modulesErr  []error

	files     []*Image
	filesOnce []sync.Once
	filesErr  []error

	// assembly is a non-owning back-pointer set by an external assembly
	// layer; this package never dereferences it.
	assembly any

	mu     sync.Mutex
	closed bool
	aux    *auxCaches
}

// AddRef increments the image's reference count. Pairs with Close.
func (img *Image) AddRef() {
	atomic.AddInt32(&img.refCount, 1)
}

// release atomically decrements the reference count and reports whether it
// reached zero.
func (img *Image) release() bool {
	return atomic.AddInt32(&img.refCount, -1) == 0
}

// Close decrements the image's reference count; when it reaches zero the
// image is removed from its owning registry and torn down. Close after
// Close on an already-destroyed image is undefined behavior; Close after
// AddRef never destroys.
func (img *Image) Close() {
	if !img.release() {
		return
	}
	if img.registry != nil {
		img.registry.removeAndTeardown(img)
	} else {
		img.teardown(false)
	}
}

// Name returns the image's canonical path, or "" once torn down (unless
// opened under debug-unload mode, in which case it carries a diagnostic
// suffix).
func (img *Image) Name() string {
	img.mu.Lock()
	defer img.mu.Unlock()
	return img.name
}

// AssemblyName returns the Assembly table's Name column, or "" if the
// image carries no Assembly row.
func (img *Image) AssemblyName() string { return img.assemblyName }

// ModuleName returns the Module table's Name column, or "" if unavailable.
func (img *Image) ModuleName() string { return img.moduleName }

// GUID returns the 36-character hyphenated MVID string, or "" for a
// dynamic image or one with no metadata root.
func (img *Image) GUID() string { return img.guid }

// IsDynamic reports whether this image was built with buildFromBytes'
// dynamic flag set, representing an in-process emitted assembly rather
// than one read from disk; dynamic images skip parsing entirely. The
// exported open functions, OpenFromData included, never set it.
func (img *Image) IsDynamic() bool { return img.dynamic }

// IsRefOnly reports whether this image was opened via OpenFull with
// refOnly=true.
func (img *Image) IsRefOnly() bool { return img.refOnly }

// Assembly returns the back-pointer set by an external assembly layer, or
// nil if none has been assigned.
func (img *Image) Assembly() any { return img.assembly }

// SetAssembly is the publication point an external assembly layer uses to
// set the back-pointer once, typically immediately after Open succeeds.
func (img *Image) SetAssembly(a any) { img.assembly = a }

// Filename is a synonym for Name.
func (img *Image) Filename() string { return img.Name() }

// Parsed exposes the underlying pe.Parsed result for collaborators that
// need direct access to headers, sections, or table descriptors.
func (img *Image) Parsed() *pe.Parsed { return img.parsed }

// RawBytes returns the image's backing bytes. The returned slice must not
// be mutated.
func (img *Image) RawBytes() []byte {
	if img.raw == nil {
		return nil
	}
	return img.raw.Bytes()
}

func newImage(registry *Registry, name string, refOnly bool) *Image {
	return &Image{
		registry: registry,
		name:     name,
		refOnly:  refOnly,
		refCount: 1,
		aux:      newAuxCaches(),
	}
}

// buildFromFile opens path, reads it fully, and runs the full pe.ParseImage
// pipeline (unless skipCLI, used by PEFileOpen).
func buildFromFile(registry *Registry, path string, refOnly, skipCLI bool, logger pe.Logger) (*Image, error) {
	raw, f, err := pe.NewRawBufferFromFile(path)
	if err != nil {
		return nil, err
	}
	img := newImage(registry, path, refOnly)
	img.raw = raw
	img.file = f

	parsed, err := pe.ParseImage(raw.Bytes(), skipCLI, logger)
	if err != nil {
		img.teardown(false)
		return nil, err
	}
	img.finish(parsed, logger)
	return img, nil
}

// buildFromBytes wraps an in-memory buffer, optionally duplicating it, and
// runs the same parse pipeline. A dynamic image skips parsing entirely.
func buildFromBytes(registry *Registry, name string, data []byte, copyData, refOnly, dynamic bool, logger pe.Logger) (*Image, error) {
	img := newImage(registry, name, refOnly)
	img.dynamic = dynamic
	img.raw = pe.NewRawBufferFromBytes(data, copyData)

	if dynamic {
		return img, nil
	}

	parsed, err := pe.ParseImage(img.raw.Bytes(), false, logger)
	if err != nil {
		img.teardown(false)
		return nil, err
	}
	img.finish(parsed, logger)
	return img, nil
}

// finish populates the derived fields (module/assembly names, GUID, module
// and file graph slots) once parsing has succeeded.
func (img *Image) finish(parsed *pe.Parsed, logger pe.Logger) {
	img.parsed = parsed
	if parsed.Metadata != nil {
		img.guid = parsed.Metadata.MVID
		img.version = parsed.Metadata.Version
	}
	if parsed.Tables == nil {
		return
	}

	raw := img.raw.Bytes()
	img.moduleName = moduleRowName(raw, parsed)
	if name, _, ok := assemblyRowNameAndKey(raw, parsed); ok {
		img.assemblyName = name
	}

	if n, ok := parsed.Tables.RowCount(tableModuleRef); ok && n > 0 {
		img.modules = make([]*Image, n)
		img.modulesOnce = make([]sync.Once, n)
		img.modulesErr = make([]error, n)
	}
	if n, ok := parsed.Tables.RowCount(tableFile); ok && n > 0 {
		img.files = make([]*Image, n)
		img.filesOnce = make([]sync.Once, n)
		img.filesErr = make([]error, n)
	}
}

// teardown releases the file handle, raw buffer, and child module/file
// images, and either clears or (under debugUnload) renames the image's
// identity strings. It is always safe to call on a partially initialized
// image: every step checks for nil before acting.
func (img *Image) teardown(debugUnload bool) {
	img.mu.Lock()
	if img.closed {
		img.mu.Unlock()
		return
	}
	img.closed = true
	img.mu.Unlock()

	if img.file != nil {
		img.file.Close()
		img.file = nil
	}
	if img.raw != nil {
		img.raw.Release()
		img.raw = nil
	}

	for _, child := range img.modules {
		if child != nil {
			child.Close()
		}
	}
	for _, child := range img.files {
		if child != nil {
			child.Close()
		}
	}

	img.mu.Lock()
	if debugUnload {
		img.name = img.name + " - UNLOADED"
	} else {
		img.name = ""
		img.guid = ""
		img.version = ""
		img.aux = nil
		img.modules = nil
		img.files = nil
	}
	img.mu.Unlock()
}
