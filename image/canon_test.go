package image

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestCanonicalizePlainFile(t *testing.T) {
	f, err := os.CreateTemp("", "canon-*.dll")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer os.Remove(f.Name())
	f.Close()

	got, err := canonicalize(f.Name())
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if !filepath.IsAbs(got) {
		t.Fatalf("expected an absolute path, got %q", got)
	}
}

func TestCanonicalizeResolvesSymlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation needs elevated privileges on windows")
	}
	dir := t.TempDir()
	target := filepath.Join(dir, "real.dll")
	if err := os.WriteFile(target, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	link := filepath.Join(dir, "link.dll")
	if err := os.Symlink(target, link); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	wantTarget, err := canonicalize(target)
	if err != nil {
		t.Fatalf("canonicalize(target): %v", err)
	}
	gotLink, err := canonicalize(link)
	if err != nil {
		t.Fatalf("canonicalize(link): %v", err)
	}
	if gotLink != wantTarget {
		t.Fatalf("canonicalize(link) = %q, want %q", gotLink, wantTarget)
	}
}

func TestCanonicalizeNotFound(t *testing.T) {
	if _, err := canonicalize(filepath.Join(t.TempDir(), "missing.dll")); err == nil {
		t.Fatal("expected an error for a nonexistent path")
	}
}
