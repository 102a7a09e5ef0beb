package main

import (
	"context"
	"fmt"

	"github.com/grafana/dskit/flagext"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/grafana/breakpad-symbolizer/pkg/module"
	"github.com/grafana/breakpad-symbolizer/pkg/objstore/client"
	"github.com/grafana/breakpad-symbolizer/pkg/symbolizer"
	"github.com/grafana/breakpad-symbolizer/pkg/symfile"
)

type symbolsParams struct {
	configFile string
	expandEnv  bool
	paths      []string
	urls       []string
	cacheDir   string
	bucketDir  string
}

func addSymbolsParams(cmd commander) *symbolsParams {
	var (
		params = &symbolsParams{}
	)
	cmd.Flag("config.file", "YAML file to load the symbol sources from.").StringVar(&params.configFile)
	cmd.Flag("config.expand-env", "Expands ${var} in the config file according to the values of the environment variables.").Default("false").BoolVar(&params.expandEnv)
	cmd.Flag("symbols-path", "Local symbol directory. Can be repeated; directories are searched in order.").StringsVar(&params.paths)
	cmd.Flag("symbols-url", "Symbol server URL. Can be repeated; servers are tried in order after local directories.").StringsVar(&params.urls)
	cmd.Flag("cache-dir", "Directory caching files fetched from symbol servers or a symbol store bucket.").StringVar(&params.cacheDir)
	cmd.Flag("symbols-bucket-dir", "Directory holding a symbol store laid out like a symbol server. Other bucket backends are set in the config file.").StringVar(&params.bucketDir)
	return params
}

// config merges the config file, if any, with the command line flags.
func (p *symbolsParams) config() (symbolizer.Config, error) {
	var cfg symbolizer.Config
	flagext.DefaultValues(&cfg)
	if p.configFile != "" {
		if err := symbolizer.LoadConfig(p.configFile, p.expandEnv, &cfg); err != nil {
			return cfg, err
		}
	}
	cfg.Symbols.SymbolPaths = lo.Uniq(append(cfg.Symbols.SymbolPaths, p.paths...))
	cfg.Symbols.SymbolURLs = lo.Uniq(append(cfg.Symbols.SymbolURLs, p.urls...))
	if p.cacheDir != "" {
		cfg.Symbols.CacheDir = p.cacheDir
	}
	if p.bucketDir != "" {
		cfg.Symbols.Bucket.Backend = client.Filesystem
		cfg.Symbols.Bucket.Filesystem.Directory = p.bucketDir
	}
	return cfg, nil
}

func (p *symbolsParams) symbolizer(ctx context.Context, reg prometheus.Registerer) (*symbolizer.Symbolizer, error) {
	cfg, err := p.config()
	if err != nil {
		return nil, err
	}
	return symbolizer.NewFromConfig(ctx, cfg, logger, reg)
}

type moduleParams struct {
	codeFile  string
	codeID    string
	debugFile string
	debugID   string
	base      string
	size      string
}

func addModuleParams(cmd commander) *moduleParams {
	var (
		params = &moduleParams{}
	)
	cmd.Flag("code-file", "Path of the module's binary.").StringVar(&params.codeFile)
	cmd.Flag("code-id", "Code identifier of the module, e.g. a PE timestamp and size or an ELF build id.").StringVar(&params.codeID)
	cmd.Flag("debug-file", "Name of the module's debug file, e.g. foo.pdb or libfoo.so.").StringVar(&params.debugFile)
	cmd.Flag("debug-id", "Debug identifier of the module, in Breakpad or GUID form.").StringVar(&params.debugID)
	cmd.Flag("base", "Load address of the module, in hex. Addresses are module relative when 0.").Default("0").StringVar(&params.base)
	cmd.Flag("size", "Size of the module, in hex. 0 if unknown.").Default("0").StringVar(&params.size)
	return params
}

func (p *moduleParams) module() (*module.SimpleModule, error) {
	m := &module.SimpleModule{Code: p.codeFile}
	var err error
	if m.Base, err = symfile.ParseAddress(p.base); err != nil {
		return nil, fmt.Errorf("invalid base address %q: %w", p.base, err)
	}
	if m.ImageSize, err = symfile.ParseAddress(p.size); err != nil {
		return nil, fmt.Errorf("invalid module size %q: %w", p.size, err)
	}
	if p.codeID != "" {
		id := module.NewCodeID(p.codeID)
		m.CodeID = &id
	}
	if p.debugFile != "" {
		debugFile := p.debugFile
		m.Debug = &debugFile
	}
	if p.debugID != "" {
		id, err := module.ParseDebugID(p.debugID)
		if err != nil {
			return nil, err
		}
		m.DebugID = &id
	}
	if m.Code == "" && m.Debug == nil {
		return nil, fmt.Errorf("either --code-file or --debug-file is required")
	}
	return m, nil
}

type commander interface {
	Flag(name, help string) *kingpin.FlagClause
	Arg(name, help string) *kingpin.ArgClause
}
