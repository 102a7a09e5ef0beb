package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/grafana/breakpad-symbolizer/pkg/symfile"
)

type inspectParams struct {
	files       []string
	diagnostics int
}

func addInspectParams(cmd *kingpin.CmdClause) *inspectParams {
	var (
		params = &inspectParams{}
	)
	cmd.Flag("diagnostics", "Maximum number of skipped records to print per file.").Default("10").IntVar(&params.diagnostics)
	cmd.Arg("file", "Symbol file path, optionally gzip or zstd compressed.").Required().ExistingFilesVar(&params.files)
	return params
}

func inspect(ctx context.Context, params *inspectParams) error {
	out := output(ctx)
	warn := color.New(color.FgYellow)
	for _, path := range params.files {
		fi, err := os.Stat(path)
		if err != nil {
			return err
		}
		sf, err := symfile.ParseFile(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		fmt.Fprintf(out, "%s (%s)\n", path, humanize.Bytes(uint64(fi.Size())))
		table := tablewriter.NewWriter(out)
		table.SetHeader([]string{"Field", "Value"})
		table.AppendBulk([][]string{
			{"OS", sf.OS},
			{"Arch", sf.Arch},
			{"Debug file", sf.DebugFile},
			{"Debug id", sf.DebugID},
			{"Code file", sf.CodeFile},
			{"Code id", sf.CodeID},
			{"Files", humanize.Comma(int64(len(sf.Files)))},
			{"Functions", humanize.Comma(int64(len(sf.Functions)))},
			{"Public symbols", humanize.Comma(int64(len(sf.Publics)))},
			{"CFI records", humanize.Comma(int64(len(sf.CFI)))},
			{"WIN frame data records", humanize.Comma(int64(len(sf.WinFrameData)))},
			{"WIN FPO records", humanize.Comma(int64(len(sf.WinFPO)))},
			{"Skipped records", humanize.Comma(int64(sf.SkippedRecords))},
		})
		table.Render()

		for i, d := range sf.Diagnostics {
			if i >= params.diagnostics {
				warn.Fprintf(out, "... and %d more\n", sf.SkippedRecords-i)
				break
			}
			warn.Fprintf(out, "line %d: %s\n", d.Line, d.Tag)
		}
	}
	return nil
}
