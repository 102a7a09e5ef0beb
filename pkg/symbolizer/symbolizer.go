// Package symbolizer resolves stack frames against Breakpad symbol files and
// recovers caller frames from their unwind records.
//
// Symbol files are loaded at most once per module for the lifetime of a
// Symbolizer. Queries for a module that is being loaded wait for that load,
// and failed loads are remembered rather than retried.
package symbolizer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"

	"github.com/grafana/breakpad-symbolizer/pkg/module"
	"github.com/grafana/breakpad-symbolizer/pkg/supplier"
	"github.com/grafana/breakpad-symbolizer/pkg/symfile"
	"github.com/grafana/breakpad-symbolizer/pkg/util"
	"github.com/grafana/breakpad-symbolizer/pkg/walker"
)

// ErrNoSymbol is returned by FillSymbol when the module's symbols were
// loaded but no function or public symbol covers the address.
var ErrNoSymbol = errors.New("no symbol covers the address")

// SymbolStats describes the symbols of one module.
type SymbolStats struct {
	// LoadedSymbols is set once a symbol file was loaded for the module.
	LoadedSymbols bool
	// CorruptSymbols is set when a symbol file was found but could not
	// be parsed.
	CorruptSymbols bool
	// SymbolsFound and SymbolsMissing count FillSymbol calls that did and
	// did not resolve an address.
	SymbolsFound   uint64
	SymbolsMissing uint64
}

// moduleSymbols is the cache cell of one module. file and err are written
// once, before done is closed.
type moduleSymbols struct {
	done chan struct{}
	file *symfile.SymbolFile
	err  error

	found   atomic.Uint64
	missing atomic.Uint64
}

func (e *moduleSymbols) loaded() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

type Symbolizer struct {
	supplier supplier.Supplier
	logger   log.Logger
	metrics  *metrics

	mu      sync.Mutex
	modules map[module.Key]*moduleSymbols
}

func New(s supplier.Supplier, logger log.Logger, reg prometheus.Registerer) *Symbolizer {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Symbolizer{
		supplier: s,
		logger:   logger,
		metrics:  newMetrics(reg),
		modules:  make(map[module.Key]*moduleSymbols),
	}
}

// symbols returns the cache cell of m once its load has completed. The first
// caller for a module starts the load; it runs to completion even if that
// caller's context is cancelled, since other callers may be waiting on it.
func (s *Symbolizer) symbols(ctx context.Context, m module.Module) (*moduleSymbols, error) {
	key := module.KeyOf(m)

	s.mu.Lock()
	e, ok := s.modules[key]
	if !ok {
		e = &moduleSymbols{done: make(chan struct{})}
		s.modules[key] = e
		go s.load(context.WithoutCancel(ctx), m, key, e)
	}
	s.mu.Unlock()

	select {
	case <-e.done:
		return e, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Symbolizer) load(ctx context.Context, m module.Module, key module.Key, e *moduleSymbols) {
	defer close(e.done)
	span, ctx := opentracing.StartSpanFromContext(ctx, "Symbolizer.load")
	span.SetTag("module", key.String())
	defer span.Finish()
	logger := util.LoggerWithContext(ctx, s.logger)

	start := time.Now()
	e.file, e.err = s.supplier.LocateSymbols(ctx, m)
	status := loadStatus(e.err)
	s.metrics.loadDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	span.SetTag("status", status)

	switch {
	case e.err == nil:
		s.metrics.loadedModules.Inc()
		level.Debug(logger).Log(
			"msg", "loaded symbols",
			"module", key,
			"functions", len(e.file.Functions),
			"publics", len(e.file.Publics),
			"skipped_records", e.file.SkippedRecords,
			"duration", time.Since(start),
		)
	case supplier.IsNotFound(e.err):
		level.Debug(logger).Log("msg", "no symbols for module", "module", key, "status", status)
	default:
		level.Warn(logger).Log("msg", "failed to load symbols", "module", key, "err", e.err)
	}
}

// FillSymbol resolves the frame's instruction in module m and reports the
// result to frame. It fails when m has no usable symbols or when nothing
// covers the address.
func (s *Symbolizer) FillSymbol(ctx context.Context, m module.Module, frame FrameSymbolizer) error {
	e, err := s.symbols(ctx, m)
	if err != nil {
		return err
	}
	if e.err != nil {
		s.metrics.fillSymbol.WithLabelValues(statusNoSymbols).Inc()
		return fmt.Errorf("symbols for %s: %w", module.KeyOf(m), e.err)
	}
	if !fillSymbol(e.file, m, frame) {
		e.missing.Inc()
		s.metrics.fillSymbol.WithLabelValues(statusNoSymbol).Inc()
		return ErrNoSymbol
	}
	e.found.Inc()
	s.metrics.fillSymbol.WithLabelValues(util.StatusSuccess).Inc()
	return nil
}

// moduleOffset converts an absolute instruction address into an offset
// within m. Addresses below the base, or past the end when the size is
// known, do not belong to m.
func moduleOffset(m module.Module, instruction uint64) (uint64, bool) {
	base := m.BaseAddress()
	if instruction < base {
		return 0, false
	}
	offset := instruction - base
	if size := m.Size(); size > 0 && offset >= size {
		return 0, false
	}
	return offset, true
}

func fillSymbol(sf *symfile.SymbolFile, m module.Module, frame FrameSymbolizer) bool {
	addr, ok := moduleOffset(m, frame.Instruction())
	if !ok {
		return false
	}
	base := m.BaseAddress()

	fn, ok := sf.FunctionAt(addr)
	if !ok {
		pub, ok := sf.PublicAt(addr)
		if !ok {
			return false
		}
		frame.SetFunction(pub.Name, base+pub.Address, pub.ParameterSize)
		return true
	}

	frame.SetFunction(fn.Name, base+fn.Address, fn.ParameterSize)
	line, file, hasLine := sf.LineAt(fn, addr)
	lineBase := base + fn.Address
	if hasLine {
		lineBase = base + line.Address
	}

	inlineFrame, ok := frame.(InlineFrameSymbolizer)
	inlines := sf.InlinesAt(fn, addr)
	if !ok || len(inlines) == 0 {
		if hasLine {
			frame.SetSourceFile(file, line.Line, lineBase)
		}
		return true
	}

	// The outer function executes the outermost call site; each inlined
	// function executes the call site of the next one, and the innermost
	// executes the line record.
	frame.SetSourceFile(inlines[0].CallFile, inlines[0].CallLine, lineBase)
	for i := len(inlines) - 1; i >= 0; i-- {
		var (
			callFile string
			callLine uint32
		)
		switch {
		case i < len(inlines)-1:
			callFile, callLine = inlines[i+1].CallFile, inlines[i+1].CallLine
		case hasLine:
			callFile, callLine = file, line.Line
		}
		inlineFrame.AddInlineFrame(inlines[i].Name, callFile, callLine)
	}
	return true
}

// WalkFrame recovers the caller of the frame described by w using the
// unwind records of module m. STACK CFI records take precedence over STACK
// WIN records. It reports whether the caller frame was recovered.
func (s *Symbolizer) WalkFrame(ctx context.Context, m module.Module, w walker.FrameWalker) bool {
	e, err := s.symbols(ctx, m)
	if err != nil || e.err != nil {
		s.metrics.walkFrame.WithLabelValues(methodNone, statusNoSymbols).Inc()
		return false
	}
	addr, ok := moduleOffset(m, w.Instruction())
	if !ok {
		s.metrics.walkFrame.WithLabelValues(methodNone, statusNoSymbol).Inc()
		return false
	}
	if rules, ok := e.file.CFIRulesFor(addr); ok {
		return s.observeWalk(methodCFI, walker.WalkWithCFI(rules, w))
	}
	if info, ok := e.file.WinFrameDataFor(addr); ok {
		return s.observeWalk(methodWin, walker.WalkWithWin(info, w))
	}
	s.metrics.walkFrame.WithLabelValues(methodNone, statusNoSymbol).Inc()
	return false
}

func (s *Symbolizer) observeWalk(method string, ok bool) bool {
	status := util.StatusSuccess
	if !ok {
		status = statusOther
	}
	s.metrics.walkFrame.WithLabelValues(method, status).Inc()
	return ok
}

// GetFilePath returns a local path to the file of the given kind for m.
func (s *Symbolizer) GetFilePath(ctx context.Context, m module.Module, kind supplier.FileKind) (string, error) {
	return s.supplier.LocateFile(ctx, m, kind)
}

// GetSymbolAtAddress returns the name of the function or public symbol
// covering the module-relative address in the module identified by
// debugFile and debugID.
func (s *Symbolizer) GetSymbolAtAddress(ctx context.Context, debugFile string, debugID module.DebugID, address uint64) (string, bool) {
	frame := NewSimpleFrame(address)
	if err := s.FillSymbol(ctx, module.NewSimpleModule(debugFile, debugID), frame); err != nil {
		return "", false
	}
	return frame.Function, frame.HasFunction
}

// Stats returns the symbol statistics of every module queried so far,
// keyed by module name and identifier.
func (s *Symbolizer) Stats() map[string]SymbolStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := make(map[string]SymbolStats, len(s.modules))
	for key, e := range s.modules {
		st := SymbolStats{
			SymbolsFound:   e.found.Load(),
			SymbolsMissing: e.missing.Load(),
		}
		if e.loaded() {
			var perr *symfile.ParseError
			st.LoadedSymbols = e.err == nil
			st.CorruptSymbols = errors.As(e.err, &perr)
		}
		stats[key.String()] = st
	}
	return stats
}
