package supplier

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/grafana/breakpad-symbolizer/pkg/util"
)

var (
	// HTTP error statuses
	statusErrorNotFound     = util.ErrorStatus("not_found")
	statusErrorUnauthorized = util.ErrorStatus("unauthorized")
	statusErrorRateLimited  = util.ErrorStatus("rate_limited")
	statusErrorClientError  = util.ErrorStatus("client_error")
	statusErrorServerError  = util.ErrorStatus("server_error")
	statusErrorHTTPOther    = util.ErrorStatus("http_other")

	// General error statuses
	statusErrorCanceled = util.ErrorStatus("canceled")
	statusErrorTimeout  = util.ErrorStatus("timeout")
	statusErrorOther    = util.ErrorStatus("other")
)

// Cache operations and their results.
const (
	cacheOpGet = "get"
	cacheOpPut = "put"

	cacheHit      = "hit"
	cacheMiss     = "miss"
	cacheNegative = "negative_hit"
)

type metrics struct {
	requestDuration *prometheus.HistogramVec
	downloadedBytes prometheus.Histogram
	cacheOperations *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		requestDuration: util.RegisterOrGet(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "breakpad_symbolizer_symbol_server_request_duration_seconds",
			Help:    "Time spent fetching files from symbol servers and symbol store buckets by status",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}, []string{"kind", "status"})),
		downloadedBytes: util.RegisterOrGet(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "breakpad_symbolizer_downloaded_file_size_bytes",
			Help: "Size of files fetched from symbol servers and symbol store buckets",
			// 64KB to 4GB
			Buckets: prometheus.ExponentialBuckets(64*1024, 4, 9),
		})),
		cacheOperations: util.RegisterOrGet(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "breakpad_symbolizer_cache_operations_total",
			Help: "Total number of symbol file cache operations by operation and status",
		}, []string{"operation", "status"})),
	}
}
