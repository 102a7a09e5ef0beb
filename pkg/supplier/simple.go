package supplier

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/grafana/breakpad-symbolizer/pkg/module"
	"github.com/grafana/breakpad-symbolizer/pkg/symfile"
)

// SimpleSupplier loads symbol files from local directories laid out as
// described in BreakpadSymLookup. Directories are searched in order.
type SimpleSupplier struct {
	paths  []string
	logger log.Logger
}

func NewSimpleSupplier(logger log.Logger, paths ...string) *SimpleSupplier {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &SimpleSupplier{paths: paths, logger: logger}
}

func (s *SimpleSupplier) LocateSymbols(ctx context.Context, m module.Module) (*symfile.SymbolFile, error) {
	path, err := s.LocateFile(ctx, m, BreakpadSym)
	if err != nil {
		if errors.Is(err, ErrMissingDebugFileOrID) {
			return nil, err
		}
		return nil, ErrNotFound
	}
	sf, err := loadSymbolFile(path, m)
	if err != nil {
		level.Debug(s.logger).Log("msg", "failed to load symbol file", "path", path, "err", err)
		return nil, err
	}
	level.Debug(s.logger).Log("msg", "loaded symbol file", "path", path)
	return sf, nil
}

func (s *SimpleSupplier) LocateFile(ctx context.Context, m module.Module, kind FileKind) (string, error) {
	lookup, ok := Lookup(m, kind)
	if !ok {
		level.Debug(s.logger).Log("msg", "could not build lookup path", "module", module.Basename(m.CodeFile()), "kind", kind)
		return "", ErrMissingDebugFileOrID
	}
	for _, root := range s.paths {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		path := filepath.Join(root, filepath.FromSlash(lookup.CacheRel))
		if fi, err := os.Stat(path); err == nil && fi.Mode().IsRegular() {
			return path, nil
		}
	}
	return "", ErrFileNotFound
}
