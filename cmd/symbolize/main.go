package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/common/version"
	"gopkg.in/alecthomas/kingpin.v2"
)

var cfg struct {
	verbose bool
}

var (
	consoleOutput = os.Stderr
	logger        = log.NewLogfmtLogger(consoleOutput)
)

func main() {
	ctx := withOutput(context.Background(), os.Stdout)

	app := kingpin.New(filepath.Base(os.Args[0]), "Symbolize addresses and inspect Breakpad symbol files.").UsageWriter(os.Stdout)
	app.Version(version.Print("symbolize"))
	app.HelpFlag.Short('h')
	app.Flag("verbose", "Enable verbose logging.").Short('v').Default("0").BoolVar(&cfg.verbose)

	lookupCmd := app.Command("lookup", "Resolve module relative or absolute addresses to functions and source lines.")
	lookupParams := addLookupParams(lookupCmd)

	locateCmd := app.Command("locate", "Print the local path of a module's symbol file, binary or debug file, downloading it if needed.")
	locateParams := addLocateParams(locateCmd)

	inspectCmd := app.Command("inspect", "Parse symbol files and print a summary of their records.")
	inspectParams := addInspectParams(inspectCmd)

	cacheCmd := app.Command("cache", "List the files held in a symbol cache directory.")
	cacheParams := addCacheParams(cacheCmd)

	parsedCmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	if !cfg.verbose {
		logger = level.NewFilter(logger, level.AllowInfo())
	}
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)

	switch parsedCmd {
	case lookupCmd.FullCommand():
		os.Exit(checkError(lookup(ctx, lookupParams)))
	case locateCmd.FullCommand():
		os.Exit(checkError(locate(ctx, locateParams)))
	case inspectCmd.FullCommand():
		os.Exit(checkError(inspect(ctx, inspectParams)))
	case cacheCmd.FullCommand():
		os.Exit(checkError(listCache(ctx, cacheParams)))
	default:
		level.Error(logger).Log("msg", "unknown command", "cmd", parsedCmd)
	}
}

func checkError(err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	return 1
}

type contextKey uint8

const (
	contextKeyOutput contextKey = iota
)

func withOutput(ctx context.Context, w io.Writer) context.Context {
	return context.WithValue(ctx, contextKeyOutput, w)
}

func output(ctx context.Context) io.Writer {
	if w, ok := ctx.Value(contextKeyOutput).(io.Writer); ok {
		return w
	}
	return os.Stdout
}
