package util

import (
	"context"

	"github.com/go-kit/log"
	"github.com/grafana/dskit/tracing"
)

// LoggerWithTraceID returns a Logger that has information about the traceID in
// its details.
func LoggerWithTraceID(traceID string, l log.Logger) log.Logger {
	return log.With(l, "traceID", traceID)
}

// LoggerWithContext returns a Logger carrying the sampled trace of ctx, if
// any.
//
// e.g.
//
//	logger = util.LoggerWithContext(ctx, logger)
//	# level=warn traceID=123abc msg="failed to load symbols" module=foo.pdb
func LoggerWithContext(ctx context.Context, l log.Logger) log.Logger {
	traceID, ok := tracing.ExtractSampledTraceID(ctx)
	if !ok {
		return l
	}
	return LoggerWithTraceID(traceID, l)
}
