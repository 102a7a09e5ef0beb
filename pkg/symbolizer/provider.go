package symbolizer

import (
	"context"
	"maps"

	"github.com/hashicorp/go-multierror"

	"github.com/grafana/breakpad-symbolizer/pkg/module"
	"github.com/grafana/breakpad-symbolizer/pkg/supplier"
	"github.com/grafana/breakpad-symbolizer/pkg/walker"
)

// Provider answers symbol queries for stack frames.
type Provider interface {
	FillSymbol(ctx context.Context, m module.Module, frame FrameSymbolizer) error
	WalkFrame(ctx context.Context, m module.Module, w walker.FrameWalker) bool
	GetFilePath(ctx context.Context, m module.Module, kind supplier.FileKind) (string, error)
	Stats() map[string]SymbolStats
}

var _ Provider = (*Symbolizer)(nil)

// MultiProvider queries several providers in order.
type MultiProvider struct {
	providers []Provider
}

func NewMultiProvider(providers ...Provider) *MultiProvider {
	return &MultiProvider{providers: providers}
}

func (p *MultiProvider) Add(provider Provider) {
	p.providers = append(p.providers, provider)
}

// FillSymbol asks every provider to fill the frame and succeeds if any of
// them did, so that a frame some provider could symbolize is never reported
// as a failure.
func (p *MultiProvider) FillSymbol(ctx context.Context, m module.Module, frame FrameSymbolizer) error {
	if len(p.providers) == 0 {
		return ErrNoSymbol
	}
	var (
		errs *multierror.Error
		ok   bool
	)
	for _, provider := range p.providers {
		if err := provider.FillSymbol(ctx, m, frame); err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		ok = true
	}
	if ok {
		return nil
	}
	return errs.ErrorOrNil()
}

// WalkFrame returns at the first provider that recovers the caller frame.
func (p *MultiProvider) WalkFrame(ctx context.Context, m module.Module, w walker.FrameWalker) bool {
	for _, provider := range p.providers {
		if provider.WalkFrame(ctx, m, w) {
			return true
		}
	}
	return false
}

// GetFilePath returns the path found by the first provider that has one.
// Every provider is asked.
func (p *MultiProvider) GetFilePath(ctx context.Context, m module.Module, kind supplier.FileKind) (string, error) {
	var (
		errs  *multierror.Error
		found string
		ok    bool
	)
	for _, provider := range p.providers {
		path, err := provider.GetFilePath(ctx, m, kind)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if !ok {
			found, ok = path, true
		}
	}
	if ok {
		return found, nil
	}
	if errs == nil {
		return "", supplier.ErrFileNotFound
	}
	return "", errs
}

// Stats merges the stats of every provider. A module reported by several
// providers keeps the stats of the last one.
func (p *MultiProvider) Stats() map[string]SymbolStats {
	stats := make(map[string]SymbolStats)
	for _, provider := range p.providers {
		maps.Copy(stats, provider.Stats())
	}
	return stats
}
