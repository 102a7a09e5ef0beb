package symbolizer

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/grafana/breakpad-symbolizer/pkg/supplier"
	"github.com/grafana/breakpad-symbolizer/pkg/symfile"
	"github.com/grafana/breakpad-symbolizer/pkg/util"
)

var (
	statusNotFound        = util.ErrorStatus("not_found")
	statusMissingIdentity = util.ErrorStatus("missing_identity")
	statusLoadError       = util.ErrorStatus("load_error")
	statusParseError      = util.ErrorStatus("parse_error")
	statusNoSymbol        = util.ErrorStatus("no_symbol")
	statusNoSymbols       = util.ErrorStatus("no_symbols")
	statusOther           = util.ErrorStatus("other")
)

// Unwind methods.
const (
	methodCFI  = "cfi"
	methodWin  = "win"
	methodNone = "none"
)

type metrics struct {
	loadDuration  *prometheus.HistogramVec
	loadedModules prometheus.Gauge
	fillSymbol    *prometheus.CounterVec
	walkFrame     *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		loadDuration: util.RegisterOrGet(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "breakpad_symbolizer_symbol_load_duration_seconds",
			Help:    "Time spent locating and parsing symbol files by status",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"status"})),
		loadedModules: util.RegisterOrGet(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "breakpad_symbolizer_loaded_modules",
			Help: "Number of modules with symbols in memory",
		})),
		fillSymbol: util.RegisterOrGet(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "breakpad_symbolizer_frames_symbolized_total",
			Help: "Total number of frame symbolization attempts by status",
		}, []string{"status"})),
		walkFrame: util.RegisterOrGet(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "breakpad_symbolizer_frames_walked_total",
			Help: "Total number of frame unwinding attempts by method and status",
		}, []string{"method", "status"})),
	}
}

// loadStatus maps a supplier error to a metric status.
func loadStatus(err error) string {
	var (
		loadErr  *supplier.LoadError
		parseErr *symfile.ParseError
	)
	switch {
	case err == nil:
		return util.StatusSuccess
	case errors.Is(err, supplier.ErrMissingDebugFileOrID):
		return statusMissingIdentity
	case supplier.IsNotFound(err):
		return statusNotFound
	case errors.As(err, &parseErr):
		return statusParseError
	case errors.As(err, &loadErr):
		return statusLoadError
	}
	return statusOther
}
