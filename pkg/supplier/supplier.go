// Package supplier locates symbol files for modules and loads them.
//
// Suppliers report absence with ErrNotFound so that a Cascade can move on to
// the next source. A symbol file that exists but cannot be read (*LoadError)
// or parsed (*symfile.ParseError) stops the cascade.
package supplier

import (
	"context"
	"errors"

	"github.com/grafana/breakpad-symbolizer/pkg/module"
	"github.com/grafana/breakpad-symbolizer/pkg/symfile"
)

// Supplier locates and loads symbol files.
type Supplier interface {
	// LocateSymbols finds and parses the symbol file for m.
	LocateSymbols(ctx context.Context, m module.Module) (*symfile.SymbolFile, error)
	// LocateFile returns a local path to the file of the given kind for m.
	LocateFile(ctx context.Context, m module.Module, kind FileKind) (string, error)
}

// loadSymbolFile parses the symbol file at path, dropping records outside
// of m's extent.
func loadSymbolFile(path string, m module.Module) (*symfile.SymbolFile, error) {
	sf, err := symfile.ParseFile(path, symfile.WithModuleSize(m.Size()))
	if err != nil {
		var perr *symfile.ParseError
		if errors.As(err, &perr) {
			return nil, perr
		}
		return nil, &LoadError{Path: path, Err: err}
	}
	return sf, nil
}

// IsNotFound reports whether err means the symbols are absent from a source
// rather than broken.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrFileNotFound) || errors.Is(err, ErrMissingDebugFileOrID)
}
