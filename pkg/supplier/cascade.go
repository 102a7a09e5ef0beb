package supplier

import (
	"context"
	"errors"

	"github.com/grafana/breakpad-symbolizer/pkg/module"
	"github.com/grafana/breakpad-symbolizer/pkg/symfile"
)

// Cascade tries its suppliers in order. It moves on when a supplier has
// nothing for the module and stops at the first load or parse error: a
// broken symbol file is assumed to be broken in every source.
type Cascade struct {
	suppliers []Supplier
}

func NewCascade(suppliers ...Supplier) *Cascade {
	return &Cascade{suppliers: suppliers}
}

func (c *Cascade) LocateSymbols(ctx context.Context, m module.Module) (*symfile.SymbolFile, error) {
	missingIdentity := len(c.suppliers) > 0
	for _, s := range c.suppliers {
		sf, err := s.LocateSymbols(ctx, m)
		switch {
		case err == nil:
			return sf, nil
		case errors.Is(err, ErrMissingDebugFileOrID):
		case errors.Is(err, ErrNotFound):
			missingIdentity = false
		default:
			return nil, err
		}
	}
	if missingIdentity {
		return nil, ErrMissingDebugFileOrID
	}
	return nil, ErrNotFound
}

func (c *Cascade) LocateFile(ctx context.Context, m module.Module, kind FileKind) (string, error) {
	for _, s := range c.suppliers {
		path, err := s.LocateFile(ctx, m, kind)
		if err == nil {
			return path, nil
		}
		if !IsNotFound(err) {
			return "", err
		}
	}
	return "", ErrFileNotFound
}
