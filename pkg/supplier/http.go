package supplier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/backoff"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/thanos-io/objstore"
	"golang.org/x/sync/singleflight"

	"github.com/grafana/breakpad-symbolizer/pkg/module"
	"github.com/grafana/breakpad-symbolizer/pkg/symfile"
	"github.com/grafana/breakpad-symbolizer/pkg/util"
	"github.com/grafana/breakpad-symbolizer/pkg/util/circuitbreaker"
)

// CacheBucket is an object store whose objects are files on local disk.
type CacheBucket interface {
	objstore.Bucket
	LocalPath(name string) string
	UploadAtomic(ctx context.Context, name string, r io.Reader) error
}

// HTTPConfig configures an HTTPSupplier.
type HTTPConfig struct {
	// URLs of the symbol servers, tried in order.
	URLs []string

	// HTTPClient is the HTTP client to use for requests.
	// If nil, a default client will be created.
	HTTPClient *http.Client

	// BackoffConfig configures the retry backoff behavior.
	BackoffConfig backoff.Config

	// UserAgent is the User-Agent header to use for requests.
	UserAgent string

	// Files missing from every server are not requested again for
	// NotFoundTTL. Zero disables the negative cache.
	NotFoundTTL       time.Duration
	NotFoundCacheSize int

	// CircuitBreaker applies to the default client only. Zero
	// MaxConsecutiveFailures disables it.
	CircuitBreaker circuitbreaker.Config
}

// HTTPSupplier downloads files from symbol servers into a local cache
// bucket. Files already in the cache are never downloaded again.
type HTTPSupplier struct {
	cfg     HTTPConfig
	cache   CacheBucket
	metrics *metrics
	logger  log.Logger

	// Used to deduplicate concurrent downloads of the same file.
	group    singleflight.Group
	notFound *expirable.LRU[string, struct{}]
}

func NewHTTPSupplier(logger log.Logger, cfg HTTPConfig, cache CacheBucket, reg prometheus.Registerer) *HTTPSupplier {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if cfg.HTTPClient == nil {
		var transport http.RoundTripper = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		}
		if cfg.CircuitBreaker.MaxConsecutiveFailures > 0 {
			transport = circuitbreaker.NewRoundTripper(cfg.CircuitBreaker, transport)
		}
		cfg.HTTPClient = &http.Client{
			Transport: transport,
			Timeout:   10 * time.Minute,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		}
	}
	if cfg.BackoffConfig == (backoff.Config{}) {
		cfg.BackoffConfig = backoff.Config{
			MinBackoff: 1 * time.Second,
			MaxBackoff: 10 * time.Second,
			MaxRetries: 3,
		}
	}
	s := &HTTPSupplier{
		cfg:     cfg,
		cache:   cache,
		metrics: newMetrics(reg),
		logger:  logger,
	}
	if cfg.NotFoundTTL > 0 {
		s.notFound = expirable.NewLRU[string, struct{}](cfg.NotFoundCacheSize, nil, cfg.NotFoundTTL)
	}
	return s
}

func (s *HTTPSupplier) LocateSymbols(ctx context.Context, m module.Module) (*symfile.SymbolFile, error) {
	path, err := s.LocateFile(ctx, m, BreakpadSym)
	switch {
	case err == nil:
	case errors.Is(err, ErrMissingDebugFileOrID):
		return nil, err
	case errors.Is(err, ErrFileNotFound):
		return nil, ErrNotFound
	default:
		return nil, &LoadError{Err: err}
	}
	return loadSymbolFile(path, m)
}

func (s *HTTPSupplier) LocateFile(ctx context.Context, m module.Module, kind FileKind) (string, error) {
	lookup, ok := Lookup(m, kind)
	if !ok {
		return "", ErrMissingDebugFileOrID
	}

	exists, err := s.cache.Exists(ctx, lookup.CacheRel)
	if err != nil {
		level.Warn(s.logger).Log("msg", "failed to check symbol cache", "file", lookup.CacheRel, "err", err)
	}
	if exists {
		s.metrics.cacheOperations.WithLabelValues(cacheOpGet, cacheHit).Inc()
		return s.cache.LocalPath(lookup.CacheRel), nil
	}
	if s.notFound != nil {
		if _, ok := s.notFound.Get(lookup.CacheRel); ok {
			s.metrics.cacheOperations.WithLabelValues(cacheOpGet, cacheNegative).Inc()
			return "", ErrFileNotFound
		}
	}
	s.metrics.cacheOperations.WithLabelValues(cacheOpGet, cacheMiss).Inc()

	candidates := []string{lookup.ServerRel}
	if kind != BreakpadSym {
		candidates = append(candidates, MozLookup(lookup).ServerRel)
	}
	_, err, _ = s.group.Do(lookup.CacheRel, func() (interface{}, error) {
		// A download that completed since the check above.
		if ok, _ := s.cache.Exists(ctx, lookup.CacheRel); ok {
			return nil, nil
		}
		return nil, s.fetch(ctx, kind, lookup.CacheRel, candidates)
	})
	if err != nil {
		if errors.Is(err, ErrFileNotFound) && s.notFound != nil {
			s.notFound.Add(lookup.CacheRel, struct{}{})
		}
		return "", err
	}
	return s.cache.LocalPath(lookup.CacheRel), nil
}

// fetch tries every server and candidate path until one download succeeds.
func (s *HTTPSupplier) fetch(ctx context.Context, kind FileKind, cacheRel string, candidates []string) error {
	var lastErr error
	for _, base := range s.cfg.URLs {
		for _, rel := range candidates {
			u := strings.TrimSuffix(base, "/") + "/" + rel
			err := s.download(ctx, kind, u, cacheRel)
			if err == nil {
				level.Debug(s.logger).Log("msg", "downloaded file", "url", u)
				return nil
			}
			if errors.Is(err, ErrFileNotFound) {
				continue
			}
			level.Warn(s.logger).Log("msg", "failed to download file", "url", u, "err", err)
			lastErr = err
		}
	}
	if lastErr != nil {
		return lastErr
	}
	return ErrFileNotFound
}

func (s *HTTPSupplier) download(ctx context.Context, kind FileKind, u, cacheRel string) (err error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "HTTPSupplier.download")
	span.SetTag("url", u)
	start := time.Now()
	status := util.StatusSuccess
	defer func() {
		if err != nil {
			span.SetTag("error", err.Error())
		}
		span.Finish()
		s.metrics.requestDuration.WithLabelValues(kind.String(), status).Observe(time.Since(start).Seconds())
	}()

	body, err := s.getWithRetries(ctx, u)
	if err != nil {
		status = categorizeError(err)
		return err
	}
	defer body.Close()

	cr := &countingReader{r: body}
	if err := s.cache.UploadAtomic(ctx, cacheRel, cr); err != nil {
		status = categorizeError(err)
		s.metrics.cacheOperations.WithLabelValues(cacheOpPut, util.ErrorStatus("write")).Inc()
		return fmt.Errorf("store %s: %w", cacheRel, err)
	}
	s.metrics.cacheOperations.WithLabelValues(cacheOpPut, util.StatusSuccess).Inc()
	s.metrics.downloadedBytes.Observe(float64(cr.n))
	return nil
}

// getWithRetries attempts to fetch u with retries on transient errors.
// A 404 is reported as ErrFileNotFound and never retried.
func (s *HTTPSupplier) getWithRetries(ctx context.Context, u string) (io.ReadCloser, error) {
	backOff := backoff.New(ctx, s.cfg.BackoffConfig)

	var lastErr error
	for backOff.Ongoing() {
		body, err := s.doRequest(ctx, u)
		if err == nil {
			return body, nil
		}
		if statusCode, ok := isHTTPStatusError(err); ok && statusCode == http.StatusNotFound {
			return nil, ErrFileNotFound
		}
		lastErr = err
		if !isRetryableError(err) {
			break
		}
		backOff.Wait()
	}
	if lastErr == nil {
		lastErr = backOff.Err()
	}
	return nil, fmt.Errorf("fetch %s after %d attempts: %w", u, backOff.NumRetries()+1, lastErr)
}

// doRequest performs a GET request and returns the decoded response body.
func (s *HTTPSupplier) doRequest(ctx context.Context, u string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept-Encoding", "gzip, zstd")
	if s.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", s.cfg.UserAgent)
	}

	resp, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		// Truncate large error responses
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1000))
		return nil, httpStatusError{
			statusCode: resp.StatusCode,
			body:       string(data),
		}
	}
	body, err := decodeBody(resp)
	if err != nil {
		resp.Body.Close()
		return nil, err
	}
	return body, nil
}

type decodedBody struct {
	io.ReadCloser
	body io.Closer
}

func (b decodedBody) Close() error {
	_ = b.ReadCloser.Close()
	return b.body.Close()
}

func decodeBody(resp *http.Response) (io.ReadCloser, error) {
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		gr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		return decodedBody{ReadCloser: gr, body: resp.Body}, nil
	case "zstd":
		zr, err := zstd.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("create zstd reader: %w", err)
		}
		return decodedBody{ReadCloser: zr.IOReadCloser(), body: resp.Body}, nil
	}
	return resp.Body, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// categorizeError maps download errors to metric status strings.
func categorizeError(err error) string {
	switch {
	case errors.Is(err, ErrFileNotFound):
		return statusErrorNotFound
	case errors.Is(err, context.Canceled):
		return statusErrorCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return statusErrorTimeout
	}
	statusCode, ok := isHTTPStatusError(err)
	if !ok {
		return statusErrorOther
	}
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return statusErrorUnauthorized
	case statusCode == http.StatusTooManyRequests:
		return statusErrorRateLimited
	case statusCode >= 400 && statusCode < 500:
		return statusErrorClientError
	case statusCode >= 500:
		return statusErrorServerError
	default:
		return statusErrorHTTPOther
	}
}

// isRetryableError determines if an error should trigger a retry attempt.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	if statusCode, ok := isHTTPStatusError(err); ok {
		// Don't retry 4xx client errors except for 429 (too many requests)
		if statusCode == http.StatusTooManyRequests {
			return true
		}
		return statusCode >= 500
	}
	// Retry on network timeouts
	if os.IsTimeout(err) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Timeout() || urlErr.Temporary()
	}
	return false
}
