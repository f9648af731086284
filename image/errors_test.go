package image

import (
	"errors"
	"os"
	"testing"

	"github.com/Purisky/mono/pe"
)

func TestImageErrorFormatting(t *testing.T) {
	cause := errors.New("boom")
	err := imageErrf("module-graph", cause, "loading index %d", 3)

	var ie *ImageError
	if !errors.As(err, &ie) {
		t.Fatal("expected *ImageError")
	}
	if ie.Stage != "module-graph" {
		t.Fatalf("Stage = %q", ie.Stage)
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected Unwrap to expose the cause")
	}
	if got := err.Error(); got == "" {
		t.Fatal("expected non-empty error string")
	}
}

func TestImageErrorNoCause(t *testing.T) {
	err := imageErrf("cache", nil, "not found")
	if errors.Unwrap(err) != nil {
		t.Fatal("expected nil Unwrap with no cause")
	}
}

func TestStatusFor(t *testing.T) {
	if got := statusFor(nil); got != pe.OK {
		t.Fatalf("statusFor(nil) = %v, want OK", got)
	}
	if got := statusFor(errors.New("boom")); got != pe.InvalidStatus {
		t.Fatalf("statusFor(generic) = %v, want InvalidStatus", got)
	}

	_, err := os.Open("/does/not/exist/at/all")
	if got := statusFor(err); got != pe.ErrnoStatus {
		t.Fatalf("statusFor(path error) = %v, want ErrnoStatus", got)
	}
}
