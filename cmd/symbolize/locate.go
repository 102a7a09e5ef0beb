package main

import (
	"context"
	"fmt"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/grafana/breakpad-symbolizer/pkg/supplier"
)

type locateParams struct {
	*symbolsParams
	*moduleParams
	kind string
}

var fileKinds = map[string]supplier.FileKind{
	"sym":        supplier.BreakpadSym,
	"binary":     supplier.Binary,
	"debug-info": supplier.ExtraDebugInfo,
}

func addLocateParams(cmd *kingpin.CmdClause) *locateParams {
	var (
		params = &locateParams{}
	)
	params.symbolsParams = addSymbolsParams(cmd)
	params.moduleParams = addModuleParams(cmd)
	cmd.Flag("kind", "Kind of file to locate: sym, binary or debug-info.").Default("sym").EnumVar(&params.kind, "sym", "binary", "debug-info")
	return params
}

func locate(ctx context.Context, params *locateParams) error {
	m, err := params.module()
	if err != nil {
		return err
	}
	s, err := params.symbolizer(ctx, nil)
	if err != nil {
		return err
	}
	path, err := s.GetFilePath(ctx, m, fileKinds[params.kind])
	if err != nil {
		return fmt.Errorf("locate %s file for %s: %w", params.kind, m.CodeFile(), err)
	}
	_, err = fmt.Fprintln(output(ctx), path)
	return err
}
