package supplier

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"time"

	"github.com/go-kit/log"
	"github.com/grafana/dskit/backoff"
	"github.com/grafana/dskit/flagext"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/grafana/breakpad-symbolizer/pkg/objstore/client"
	"github.com/grafana/breakpad-symbolizer/pkg/objstore/providers/filesystem"
	"github.com/grafana/breakpad-symbolizer/pkg/util/circuitbreaker"
)

// Config describes where symbol files come from: local symbol directories
// first, then a symbol store bucket, then symbol servers. Files fetched from
// the bucket or the servers are cached on disk.
type Config struct {
	SymbolPaths       flagext.StringSliceCSV `yaml:"symbol_paths"`
	SymbolURLs        flagext.StringSliceCSV `yaml:"symbol_urls"`
	CacheDir          string                 `yaml:"cache_dir"`
	UserAgent         string                 `yaml:"user_agent"`
	RequestTimeout    time.Duration          `yaml:"request_timeout"`
	NotFoundTTL       time.Duration          `yaml:"not_found_ttl"`
	NotFoundCacheSize int                    `yaml:"not_found_cache_size"`
	Backoff           backoff.Config         `yaml:"backoff"`

	CircuitBreakerFailures    uint          `yaml:"circuit_breaker_failures" category:"advanced"`
	CircuitBreakerOpenTimeout time.Duration `yaml:"circuit_breaker_open_timeout" category:"advanced"`

	Bucket client.Config `yaml:"bucket"`
}

func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	cfg.RegisterFlagsWithPrefix("symbols", f)
}

func (cfg *Config) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	f.Var(&cfg.SymbolPaths, prefix+".paths", "Comma separated list of local symbol directories, searched in order.")
	f.Var(&cfg.SymbolURLs, prefix+".urls", "Comma separated list of symbol server URLs, tried in order after the local directories.")
	f.StringVar(&cfg.CacheDir, prefix+".cache-dir", "", "Directory where files fetched from symbol servers or the symbol store bucket are cached. Required when either is set.")
	f.StringVar(&cfg.UserAgent, prefix+".user-agent", "breakpad-symbolizer", "User-Agent header sent to symbol servers.")
	f.DurationVar(&cfg.RequestTimeout, prefix+".request-timeout", 10*time.Minute, "Timeout of a single symbol server request, including the download.")
	f.DurationVar(&cfg.NotFoundTTL, prefix+".not-found-ttl", time.Hour, "How long files missing from every symbol server are not requested again. 0 to disable.")
	f.IntVar(&cfg.NotFoundCacheSize, prefix+".not-found-cache-size", 10000, "Maximum number of missing files remembered.")
	cfg.Backoff.RegisterFlagsWithPrefix(prefix, f)
	f.UintVar(&cfg.CircuitBreakerFailures, prefix+".circuit-breaker-failures", 10, "Consecutive failures after which a symbol server is no longer contacted until the open timeout expires. 0 to disable.")
	f.DurationVar(&cfg.CircuitBreakerOpenTimeout, prefix+".circuit-breaker-open-timeout", 30*time.Second, "How long a failing symbol server is skipped before it is tried again.")
	cfg.Bucket.RegisterFlagsWithPrefix(prefix+".bucket.", f)
}

func (cfg *Config) Validate() error {
	if (len(cfg.SymbolURLs) > 0 || cfg.Bucket.Enabled()) && cfg.CacheDir == "" {
		return fmt.Errorf("symbols.cache-dir is required when symbol server URLs or a symbol store bucket are configured")
	}
	if err := cfg.Bucket.Validate(); err != nil {
		return fmt.Errorf("invalid symbol store bucket: %w", err)
	}
	for _, u := range cfg.SymbolURLs {
		parsed, err := url.Parse(u)
		if err != nil {
			return fmt.Errorf("invalid symbol server URL %q: %w", u, err)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return fmt.Errorf("invalid symbol server URL %q: scheme must be http or https", u)
		}
	}
	if cfg.NotFoundTTL < 0 {
		return fmt.Errorf("symbols.not-found-ttl must not be negative")
	}
	return nil
}

// NewFromConfig builds the supplier described by cfg, cascading from the
// local directories to the symbol store bucket and then the symbol servers.
func NewFromConfig(ctx context.Context, cfg Config, logger log.Logger, reg prometheus.Registerer) (Supplier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var suppliers []Supplier
	if len(cfg.SymbolPaths) > 0 {
		suppliers = append(suppliers, NewSimpleSupplier(logger, cfg.SymbolPaths...))
	}
	var cache *filesystem.Bucket
	if len(cfg.SymbolURLs) > 0 || cfg.Bucket.Enabled() {
		var err error
		cache, err = filesystem.NewBucket(cfg.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("create symbol cache: %w", err)
		}
	}
	if cfg.Bucket.Enabled() {
		remote, err := client.NewBucket(ctx, cfg.Bucket, "symbol-store", logger, reg)
		if err != nil {
			return nil, fmt.Errorf("create symbol store bucket: %w", err)
		}
		suppliers = append(suppliers, NewBucketSupplier(logger, remote, cache, reg))
	}
	if len(cfg.SymbolURLs) > 0 {
		httpCfg := HTTPConfig{
			URLs:              cfg.SymbolURLs,
			BackoffConfig:     cfg.Backoff,
			UserAgent:         cfg.UserAgent,
			NotFoundTTL:       cfg.NotFoundTTL,
			NotFoundCacheSize: cfg.NotFoundCacheSize,
			CircuitBreaker: circuitbreaker.Config{
				MaxConsecutiveFailures: uint32(cfg.CircuitBreakerFailures),
				OpenTimeout:            cfg.CircuitBreakerOpenTimeout,
			},
		}
		supplier := NewHTTPSupplier(logger, httpCfg, cache, reg)
		if cfg.RequestTimeout > 0 {
			supplier.cfg.HTTPClient.Timeout = cfg.RequestTimeout
		}
		suppliers = append(suppliers, supplier)
	}
	if len(suppliers) == 1 {
		return suppliers[0], nil
	}
	return NewCascade(suppliers...), nil
}
