package supplier

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means this source has no symbol file for the module.
	// Other sources may still have one.
	ErrNotFound = errors.New("symbol file not found")
	// ErrMissingDebugFileOrID means the module lacks the debug file or debug
	// id needed to build a lookup path.
	ErrMissingDebugFileOrID = errors.New("the debug file or id were missing")
	// ErrFileNotFound is returned by LocateFile when no source has the file.
	ErrFileNotFound = errors.New("file not found")
)

// LoadError is returned when a symbol file exists but cannot be read.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("couldn't read input stream: %v", e.Err)
	}
	return fmt.Sprintf("couldn't read %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

type httpStatusError struct {
	statusCode int
	body       string
}

func (e httpStatusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("unexpected HTTP status: %d", e.statusCode)
	}
	return fmt.Sprintf("unexpected HTTP status: %d: %s", e.statusCode, e.body)
}

func isHTTPStatusError(err error) (int, bool) {
	var httpErr httpStatusError
	if errors.As(err, &httpErr) {
		return httpErr.statusCode, true
	}
	return 0, false
}
