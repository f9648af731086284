package image

import (
	"errors"
	"fmt"
	"os"

	"github.com/Purisky/mono/pe"
)

// ErrClosed is returned by operations attempted against an image whose
// reference count has already reached zero.
var ErrClosed = errors.New("image: operation on a closed image")

// ImageError carries the stage, byte offset, and underlying cause of a
// registry-level failure, mirroring pe.ParseError's shape for the cache and
// module-graph layers that sit above the parser.
type ImageError struct {
	Stage   string
	Offset  int64
	Message string
	Err     error
}

func (e *ImageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("image: %s: %s: %v", e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("image: %s: %s", e.Stage, e.Message)
}

func (e *ImageError) Unwrap() error { return e.Err }

func imageErrf(stage string, cause error, format string, args ...any) error {
	return &ImageError{Stage: stage, Message: fmt.Sprintf(format, args...), Err: cause}
}

// statusFor classifies err into one of the status codes the open() family
// reports: an *os.PathError (or any wrapped syscall error) is ERROR_ERRNO,
// everything else that reached this layer is IMAGE_INVALID.
func statusFor(err error) pe.Status {
	if err == nil {
		return pe.OK
	}
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return pe.ErrnoStatus
	}
	return pe.InvalidStatus
}
