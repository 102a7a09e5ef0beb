package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-kit/log/level"
	"github.com/ianlancetaylor/demangle"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/sync/errgroup"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/grafana/breakpad-symbolizer/pkg/symbolizer"
	"github.com/grafana/breakpad-symbolizer/pkg/symfile"
	"github.com/grafana/breakpad-symbolizer/pkg/util"
)

type lookupParams struct {
	*symbolsParams
	*moduleParams
	addresses   []string
	output      string
	demangle    bool
	concurrency util.ConcurrencyLimit
}

func addLookupParams(cmd *kingpin.CmdClause) *lookupParams {
	var (
		params = &lookupParams{}
	)
	params.symbolsParams = addSymbolsParams(cmd)
	params.moduleParams = addModuleParams(cmd)
	cmd.Flag("output", "How to output the result: console or json.").Default("console").EnumVar(&params.output, "console", "json")
	cmd.Flag("demangle", "Demangle C++ and Rust symbol names.").Default("true").BoolVar(&params.demangle)
	cmd.Flag("concurrency", "Number of addresses resolved concurrently. auto uses GOMAXPROCS.").Default("auto").SetValue(&params.concurrency)
	cmd.Arg("address", "Instruction addresses, in hex.").Required().StringsVar(&params.addresses)
	return params
}

type inlineResult struct {
	Function string `json:"function"`
	File     string `json:"file,omitempty"`
	Line     uint32 `json:"line,omitempty"`
}

type lookupResult struct {
	Address  string         `json:"address"`
	Function string         `json:"function,omitempty"`
	Offset   string         `json:"offset,omitempty"`
	File     string         `json:"file,omitempty"`
	Line     uint32         `json:"line,omitempty"`
	Inlines  []inlineResult `json:"inlines,omitempty"`
	Error    string         `json:"error,omitempty"`
}

func lookup(ctx context.Context, params *lookupParams) error {
	m, err := params.module()
	if err != nil {
		return err
	}
	addresses := make([]uint64, len(params.addresses))
	for i, a := range params.addresses {
		if addresses[i], err = symfile.ParseAddress(a); err != nil {
			return fmt.Errorf("invalid address %q: %w", a, err)
		}
	}
	s, err := params.symbolizer(ctx, nil)
	if err != nil {
		return err
	}

	results := make([]lookupResult, len(addresses))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(int(params.concurrency), 1))
	for i, addr := range addresses {
		g.Go(func() error {
			frame := symbolizer.NewSimpleFrame(addr)
			err := s.FillSymbol(ctx, m, frame)
			if errors.Is(err, context.Canceled) {
				return err
			}
			results[i] = newLookupResult(frame, err, params.demangle)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for key, st := range s.Stats() {
		level.Debug(logger).Log("msg", "symbol stats", "module", key, "loaded", st.LoadedSymbols, "corrupt", st.CorruptSymbols, "found", st.SymbolsFound, "missing", st.SymbolsMissing)
	}

	if params.output == "json" {
		enc := json.NewEncoder(output(ctx))
		for _, r := range results {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	}
	table := tablewriter.NewWriter(output(ctx))
	table.SetHeader([]string{"Address", "Function", "Source", "Inlined"})
	table.SetAutoWrapText(false)
	for _, r := range results {
		function := r.Function
		if r.Offset != "" {
			function += "+" + r.Offset
		}
		if r.Error != "" {
			function = "<" + r.Error + ">"
		}
		var source string
		if r.File != "" {
			source = fmt.Sprintf("%s:%d", r.File, r.Line)
		}
		inlines := make([]string, 0, len(r.Inlines))
		for _, in := range r.Inlines {
			inlines = append(inlines, fmt.Sprintf("%s (%s:%d)", in.Function, in.File, in.Line))
		}
		table.Append([]string{r.Address, function, source, strings.Join(inlines, "\n")})
	}
	table.Render()
	return nil
}

func newLookupResult(frame *symbolizer.SimpleFrame, err error, demangleNames bool) lookupResult {
	name := func(s string) string {
		if demangleNames {
			return demangle.Filter(s)
		}
		return s
	}
	r := lookupResult{Address: fmt.Sprintf("0x%x", frame.Address)}
	if err != nil {
		r.Error = err.Error()
		return r
	}
	if frame.HasFunction {
		r.Function = name(frame.Function)
		r.Offset = fmt.Sprintf("0x%x", frame.Address-frame.FunctionBase)
	}
	if frame.HasSource {
		r.File, r.Line = frame.SourceFile, frame.SourceLine
	}
	for _, in := range frame.Inlines {
		r.Inlines = append(r.Inlines, inlineResult{Function: name(in.Function), File: in.SourceFile, Line: in.SourceLine})
	}
	return r
}
