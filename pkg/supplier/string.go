package supplier

import (
	"context"

	"github.com/grafana/breakpad-symbolizer/pkg/module"
	"github.com/grafana/breakpad-symbolizer/pkg/symfile"
)

// StringSupplier serves symbol files held in memory, keyed by the module's
// code file. It never resolves files and is meant for tests.
type StringSupplier struct {
	modules map[string]string
}

func NewStringSupplier(modules map[string]string) *StringSupplier {
	return &StringSupplier{modules: modules}
}

func (s *StringSupplier) LocateSymbols(_ context.Context, m module.Module) (*symfile.SymbolFile, error) {
	text, ok := s.modules[m.CodeFile()]
	if !ok {
		return nil, ErrNotFound
	}
	return symfile.ParseBytes([]byte(text), symfile.WithModuleSize(m.Size()))
}

func (s *StringSupplier) LocateFile(context.Context, module.Module, FileKind) (string, error) {
	return "", ErrFileNotFound
}
