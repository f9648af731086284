package image

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/Purisky/mono/pe"
)

// Registry is the process-wide image cache: four keyed tables partitioned
// by ref_only, a single lock guarding lookup/insert/remove, and a
// singleflight.Group collapsing concurrent opens of the same canonical
// path into one parse. It is an injected object rather than package-level
// global state so unit tests can hold a private instance; DefaultRegistry
// is the process-wide one the package-level Open/Close-family functions
// use.
type Registry struct {
	mu            sync.Mutex
	byPathNormal  map[string]*Image
	byPathRefOnly map[string]*Image
	byGUIDNormal  map[string]*Image
	byGUIDRefOnly map[string]*Image

	flight singleflight.Group

	debugUnload bool
	logger      pe.Logger
}

// NewRegistry constructs an empty registry, reading the debug-unload
// environment flag once.
func NewRegistry() *Registry {
	return &Registry{
		byPathNormal:  make(map[string]*Image),
		byPathRefOnly: make(map[string]*Image),
		byGUIDNormal:  make(map[string]*Image),
		byGUIDRefOnly: make(map[string]*Image),
		debugUnload:   debugAssemblyUnloadEnabled(),
		logger:        pe.DefaultLogger(),
	}
}

// DefaultRegistry is the process-wide registry the package-level
// Open/OpenFull/etc. functions delegate to.
var DefaultRegistry = NewRegistry()

func Open(path string) (*Image, pe.Status, error) { return DefaultRegistry.Open(path) }

func OpenFull(path string, refOnly bool) (*Image, pe.Status, error) {
	return DefaultRegistry.OpenFull(path, refOnly)
}

func OpenFromData(name string, data []byte, copyData, refOnly bool) (*Image, pe.Status, error) {
	return DefaultRegistry.OpenFromData(name, data, copyData, refOnly)
}

func PEFileOpen(path string) (*Image, pe.Status, error) { return DefaultRegistry.PEFileOpen(path) }

func Loaded(name string, refOnly bool) *Image { return DefaultRegistry.Loaded(name, refOnly) }

func LoadedByGUID(guid string, refOnly bool) *Image {
	return DefaultRegistry.LoadedByGUID(guid, refOnly)
}

func (r *Registry) pathTable(refOnly bool) map[string]*Image {
	if refOnly {
		return r.byPathRefOnly
	}
	return r.byPathNormal
}

func (r *Registry) guidTable(refOnly bool) map[string]*Image {
	if refOnly {
		return r.byGUIDRefOnly
	}
	return r.byGUIDNormal
}

// Open is OpenFull with refOnly=false.
func (r *Registry) Open(path string) (*Image, pe.Status, error) {
	return r.OpenFull(path, false)
}

// openResult is the value shared by every caller collapsed onto the same
// singleflight key.
type openResult struct {
	img            *Image
	freshlyCreated bool
}

func flightKey(canon string, refOnly bool) string {
	if refOnly {
		return "ref\x00" + canon
	}
	return "normal\x00" + canon
}

// OpenFull opens path, returning a live, ref-counted image for it.
// Concurrent callers for the same canonical path collapse onto a single
// singleflight call; see DESIGN.md's Open Question resolution for why the
// AddRef decision uses a call-local builtHere flag rather than Group.Do's
// shared return value.
func (r *Registry) OpenFull(path string, refOnly bool) (*Image, pe.Status, error) {
	canon, err := canonicalize(path)
	if err != nil {
		return nil, statusFor(err), err
	}

	r.mu.Lock()
	if existing := r.pathTable(refOnly)[canon]; existing != nil {
		existing.AddRef()
		r.mu.Unlock()
		return existing, pe.OK, nil
	}
	r.mu.Unlock()

	var builtHere bool
	v, err, _ := r.flight.Do(flightKey(canon, refOnly), func() (any, error) {
		builtHere = true
		return r.openLeader(canon, refOnly)
	})
	if err != nil {
		return nil, statusFor(err), err
	}

	res := v.(*openResult)
	if !builtHere || !res.freshlyCreated {
		res.img.AddRef()
	}
	return res.img, pe.OK, nil
}

// openLeader runs once per in-flight canonical path: it re-checks the
// cache under lock (another call may have inserted while this one was
// queued behind the singleflight key), and on a genuine miss performs the
// expensive file open and parse with the lock released.
func (r *Registry) openLeader(canon string, refOnly bool) (*openResult, error) {
	r.mu.Lock()
	if existing := r.pathTable(refOnly)[canon]; existing != nil {
		r.mu.Unlock()
		return &openResult{img: existing, freshlyCreated: false}, nil
	}
	r.mu.Unlock()

	img, err := buildFromFile(r, canon, refOnly, false, r.logger)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if existing := r.pathTable(refOnly)[canon]; existing != nil {
		r.mu.Unlock()
		img.teardown(false) // never inserted, never shared: safe to discard directly
		return &openResult{img: existing, freshlyCreated: false}, nil
	}
	r.insertLocked(img, refOnly)
	r.mu.Unlock()
	return &openResult{img: img, freshlyCreated: true}, nil
}

// insertLocked publishes img under its canonical path, its assembly name
// (if set and not already claimed), and its GUID. Callers must hold r.mu.
func (r *Registry) insertLocked(img *Image, refOnly bool) {
	paths := r.pathTable(refOnly)
	paths[img.name] = img
	if img.assemblyName != "" {
		if _, taken := paths[img.assemblyName]; !taken {
			paths[img.assemblyName] = img
		}
	}
	if img.guid != "" {
		r.guidTable(refOnly)[img.guid] = img
	}
}

// OpenFromData wraps an in-memory buffer, parses it, and registers it in
// the cache exactly as a file-backed open would. A name of "" gets a
// synthesized "data-<addr>" identity.
func (r *Registry) OpenFromData(name string, data []byte, copyData, refOnly bool) (*Image, pe.Status, error) {
	img, err := buildFromBytes(r, name, data, copyData, refOnly, false, r.logger)
	if err != nil {
		return nil, statusFor(err), err
	}
	if img.name == "" {
		img.name = fmt.Sprintf("data-%p", img)
	}

	r.mu.Lock()
	r.insertLocked(img, refOnly)
	r.mu.Unlock()
	return img, pe.OK, nil
}

// PEFileOpen runs the header/section parse only, skipping CLI/metadata and
// never touching the registry.
func (r *Registry) PEFileOpen(path string) (*Image, pe.Status, error) {
	canon, err := canonicalize(path)
	if err != nil {
		return nil, statusFor(err), err
	}
	img, err := buildFromFile(nil, canon, false, true, r.logger)
	if err != nil {
		return nil, statusFor(err), err
	}
	return img, pe.OK, nil
}

// Loaded is a pure cache lookup: it never opens or parses. A hit AddRefs
// the returned image, consistent with every other accessor returning a
// live reference to the caller.
func (r *Registry) Loaded(name string, refOnly bool) *Image {
	r.mu.Lock()
	defer r.mu.Unlock()
	img := r.pathTable(refOnly)[name]
	if img != nil {
		img.AddRef()
	}
	return img
}

// LoadedByGUID is Loaded's GUID-keyed counterpart.
func (r *Registry) LoadedByGUID(guid string, refOnly bool) *Image {
	r.mu.Lock()
	defer r.mu.Unlock()
	img := r.guidTable(refOnly)[guid]
	if img != nil {
		img.AddRef()
	}
	return img
}

// removeAndTeardown removes img from its tables only if it is still the
// entry stored there (guards the open-in-progress race), rebuilds the GUID
// table, releases the lock, then tears the image down.
func (r *Registry) removeAndTeardown(img *Image) {
	r.mu.Lock()
	paths := r.pathTable(img.refOnly)
	if paths[img.name] == img {
		delete(paths, img.name)
	}
	if img.assemblyName != "" && paths[img.assemblyName] == img {
		delete(paths, img.assemblyName)
	}
	r.rebuildGUIDTableLocked(img.refOnly)
	r.mu.Unlock()

	img.teardown(r.debugUnload)
}

// rebuildGUIDTableLocked replaces the GUID table for the refOnly partition
// by scanning the (already-updated) path table, so an image sharing a GUID
// with the one just removed remains reachable. Callers must hold r.mu.
func (r *Registry) rebuildGUIDTableLocked(refOnly bool) {
	rebuilt := make(map[string]*Image)
	for _, img := range r.pathTable(refOnly) {
		if img.guid != "" {
			rebuilt[img.guid] = img
		}
	}
	if refOnly {
		r.byGUIDRefOnly = rebuilt
	} else {
		r.byGUIDNormal = rebuilt
	}
}
