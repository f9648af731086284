package image

import "path/filepath"

// canonicalize resolves path to an absolute, symlink-free form so that two
// different spellings of the same file collapse to one cache key. No pack
// repo carries a path-canonicalization library; filepath.Abs plus
// filepath.EvalSymlinks is the standard-library idiom every Go program
// reaches for here, so introducing a dependency for it would be
// gratuitous.
func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	return resolved, nil
}
