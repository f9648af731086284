package image

import (
	"testing"

	"github.com/Purisky/mono/pe"
)

func openFixtureParsed(t *testing.T) *Image {
	t.Helper()
	raw, _ := buildImageFixture()
	img, err := buildFromBytes(nil, "fixture.dll", raw, true, false, false, pe.NopLogger{})
	if err != nil {
		t.Fatalf("buildFromBytes: %v", err)
	}
	return img
}

func TestEntryPoint(t *testing.T) {
	img := openFixtureParsed(t)
	if got := img.EntryPoint(); got != 0x06000001 {
		t.Fatalf("EntryPoint = %#x, want 0x06000001", got)
	}
}

func TestResourceNoDirectory(t *testing.T) {
	img := openFixtureParsed(t)
	data, length := img.Resource(0)
	if data != nil || length != 0 {
		t.Fatalf("Resource = (%v, %d), want (nil, 0) with no resources directory", data, length)
	}
}

func TestStrongNameNoDirectory(t *testing.T) {
	img := openFixtureParsed(t)
	data, length := img.StrongName()
	if data != nil || length != 0 {
		t.Fatalf("StrongName = (%v, %d), want (nil, 0)", data, length)
	}
	if pos, size := img.StrongNamePosition(); pos != 0 || size != 0 {
		t.Fatalf("StrongNamePosition = (%d, %d), want (0, 0)", pos, size)
	}
}

func TestPublicKey(t *testing.T) {
	img := openFixtureParsed(t)
	key := img.PublicKey()
	if len(key) != 4 || key[0] != 0xDE || key[3] != 0xEF {
		t.Fatalf("PublicKey = %x, want DEADBEEF", key)
	}
}

func TestResourceRespectsDirectorySize(t *testing.T) {
	raw := buildImageFixtureWithResources()
	img, err := buildFromBytes(nil, "fixture.dll", raw, true, false, false, pe.NopLogger{})
	if err != nil {
		t.Fatalf("buildFromBytes: %v", err)
	}

	data, length := img.Resource(0)
	if length != 4 || string(data) != "DATA" {
		t.Fatalf("Resource(0) = (%q, %d), want (DATA, 4)", data, length)
	}

	// The second entry lies within the .cli section but past the CLI
	// header's declared Resources directory size, so it must not be
	// reachable even though the underlying section bytes exist.
	if data, length := img.Resource(8); data != nil || length != 0 {
		t.Fatalf("Resource(8) = (%v, %d), want (nil, 0): offset is past the declared directory size", data, length)
	}
}

func TestHasAuthenticodeEntryFalseByDefault(t *testing.T) {
	img := openFixtureParsed(t)
	if img.HasAuthenticodeEntry() {
		t.Fatal("fixture carries no certificate table directory")
	}
}

func TestLookupResourceNoDirectory(t *testing.T) {
	img := openFixtureParsed(t)
	entry, err := img.LookupResource(1, 0, nil)
	if err != nil {
		t.Fatalf("LookupResource: %v", err)
	}
	if entry != nil {
		t.Fatal("expected nil entry with no resource directory")
	}
}

func TestTableRows(t *testing.T) {
	img := openFixtureParsed(t)
	rows, ok := img.TableRows(tableModule)
	if !ok || rows != 1 {
		t.Fatalf("TableRows(Module) = (%d, %v), want (1, true)", rows, ok)
	}
	rows, ok = img.TableRows(tableTypeDef)
	if !ok || rows != 0 {
		t.Fatalf("TableRows(TypeDef) = (%d, %v), want (0, true)", rows, ok)
	}
	if _, ok := img.TableRows(999); ok {
		t.Fatal("expected ok=false for an out-of-range table id")
	}
}

func TestEnsureSectionAndRVAMap(t *testing.T) {
	img := openFixtureParsed(t)
	byName := img.EnsureSection(".cli")
	if len(byName) == 0 {
		t.Fatal("expected non-empty section bytes by name")
	}
	byIdx := img.EnsureSectionIdx(0)
	if len(byIdx) != len(byName) {
		t.Fatalf("EnsureSectionIdx length = %d, want %d", len(byIdx), len(byName))
	}
	mapped := img.RVAMap(fixturePayloadRVA)
	if len(mapped) != len(byName) {
		t.Fatalf("RVAMap length = %d, want %d", len(mapped), len(byName))
	}
}

func TestStrerror(t *testing.T) {
	if got := Strerror(pe.OK); got == "" {
		t.Fatal("expected a non-empty status string")
	}
}
