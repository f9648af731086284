package image

import "path/filepath"

// ModuleCount returns the row count of the ModuleRef table (the size of
// the modules sequence).
func (img *Image) ModuleCount() int { return len(img.modules) }

// FileCount returns the row count of the File table.
func (img *Image) FileCount() int { return len(img.files) }

// LoadModule resolves child module idx (1-based) via the #Strings heap and
// the File table's valid name set, opening it through the owning registry
// on first access. A second call with the same idx returns the exact
// pointer the first call returned, guarded by modulesOnce[idx-1]'s
// first-writer-wins semantics. A ModuleRef naming a file absent from a
// non-empty File table is not an error: modules[idx-1] stays nil and the
// slot is still marked loaded.
func (img *Image) LoadModule(idx int) (*Image, error) {
	i := idx - 1
	if i < 0 || i >= len(img.modules) {
		return nil, imageErrf("module-graph", nil, "module index %d out of range", idx)
	}
	img.modulesOnce[i].Do(func() {
		img.modules[i], img.modulesErr[i] = img.loadModuleAt(i)
	})
	return img.modules[i], img.modulesErr[i]
}

func (img *Image) loadModuleAt(i int) (*Image, error) {
	raw := img.RawBytes()
	name, err := moduleRefRowName(raw, img.parsed, i)
	if err != nil {
		return nil, err
	}

	valid, filtered := img.validFileNames()
	if filtered && !valid[name] {
		return nil, nil
	}

	child, err := img.openSibling(name)
	if err != nil {
		return nil, err
	}
	child.assembly = img.assembly
	return child, nil
}

// LoadFile resolves File table row idx (1-based) the same way LoadModule
// resolves a ModuleRef, except every row not flagged
// FILE_CONTAINS_NO_METADATA is eligible (there is no secondary filter
// table for File itself). Successfully loaded children, and any of their
// own already-loaded modules and files, inherit this image's assembly
// back-pointer.
func (img *Image) LoadFile(idx int) (*Image, error) {
	i := idx - 1
	if i < 0 || i >= len(img.files) {
		return nil, imageErrf("module-graph", nil, "file index %d out of range", idx)
	}
	img.filesOnce[i].Do(func() {
		img.files[i], img.filesErr[i] = img.loadFileAt(i)
	})
	return img.files[i], img.filesErr[i]
}

func (img *Image) loadFileAt(i int) (*Image, error) {
	raw := img.RawBytes()
	name, flags, err := fileRow(raw, img.parsed, i)
	if err != nil {
		return nil, err
	}
	if flags&fileContainsNoMetadata != 0 {
		return nil, nil
	}

	child, err := img.openSibling(name)
	if err != nil {
		return nil, err
	}
	propagateAssembly(child, img.assembly)
	return child, nil
}

func (img *Image) openSibling(name string) (*Image, error) {
	childPath := filepath.Join(filepath.Dir(img.name), name)
	registry := img.registry
	if registry == nil {
		registry = DefaultRegistry
	}
	child, _, err := registry.OpenFull(childPath, img.refOnly)
	if err != nil {
		return nil, err
	}
	return child, nil
}

// propagateAssembly sets img's assembly back-pointer and recurses into
// every already-loaded child module and file.
func propagateAssembly(img *Image, assembly any) {
	img.assembly = assembly
	for _, m := range img.modules {
		if m != nil {
			propagateAssembly(m, assembly)
		}
	}
	for _, f := range img.files {
		if f != nil {
			propagateAssembly(f, assembly)
		}
	}
}

// validFileNames builds the set of File table rows whose flags do not
// carry FILE_CONTAINS_NO_METADATA. The bool return is false when the File
// table is empty or absent, signaling "accept unconditionally" rather than
// "reject everything".
func (img *Image) validFileNames() (set map[string]bool, filtered bool) {
	if img.parsed == nil || img.parsed.Tables == nil {
		return nil, false
	}
	n, ok := img.parsed.Tables.RowCount(tableFile)
	if !ok || n == 0 {
		return nil, false
	}

	raw := img.RawBytes()
	set = make(map[string]bool, n)
	for i := 0; i < int(n); i++ {
		name, flags, err := fileRow(raw, img.parsed, i)
		if err != nil {
			continue
		}
		if flags&fileContainsNoMetadata == 0 {
			set[name] = true
		}
	}
	return set, true
}
