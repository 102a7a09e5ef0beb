package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/grafana/breakpad-symbolizer/pkg/objstore/providers/filesystem"
)

type cacheParams struct {
	dir    string
	prefix string
}

func addCacheParams(cmd *kingpin.CmdClause) *cacheParams {
	var (
		params = &cacheParams{}
	)
	cmd.Flag("cache-dir", "Directory caching files fetched from symbol servers or a symbol store bucket.").Required().StringVar(&params.dir)
	cmd.Flag("prefix", "Only list files below this debug file directory, e.g. foo.pdb.").StringVar(&params.prefix)
	return params
}

func listCache(ctx context.Context, params *cacheParams) error {
	bucket, err := filesystem.NewBucket(params.dir)
	if err != nil {
		return err
	}
	names, err := bucket.Objects(ctx, params.prefix)
	if err != nil {
		return fmt.Errorf("list %s: %w", params.dir, err)
	}

	table := tablewriter.NewWriter(output(ctx))
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"File", "Size"})
	var total uint64
	for _, name := range names {
		size, err := bucket.Size(name)
		if err != nil {
			return err
		}
		total += uint64(size)
		table.Append([]string{name, humanize.Bytes(uint64(size))})
	}
	table.SetFooter([]string{humanize.Comma(int64(len(names))) + " files", humanize.Bytes(total)})
	table.Render()
	return nil
}
