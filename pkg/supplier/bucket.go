package supplier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/thanos-io/objstore"
	"golang.org/x/sync/singleflight"

	"github.com/grafana/breakpad-symbolizer/pkg/module"
	"github.com/grafana/breakpad-symbolizer/pkg/symfile"
	"github.com/grafana/breakpad-symbolizer/pkg/util"
)

// BucketSupplier copies files from a symbol store kept in an object store
// bucket into the local cache bucket. The remote bucket uses the same
// layout as a symbol server.
type BucketSupplier struct {
	remote  objstore.BucketReader
	cache   CacheBucket
	metrics *metrics
	logger  log.Logger

	group singleflight.Group
}

func NewBucketSupplier(logger log.Logger, remote objstore.BucketReader, cache CacheBucket, reg prometheus.Registerer) *BucketSupplier {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &BucketSupplier{
		remote:  remote,
		cache:   cache,
		metrics: newMetrics(reg),
		logger:  logger,
	}
}

func (s *BucketSupplier) LocateSymbols(ctx context.Context, m module.Module) (*symfile.SymbolFile, error) {
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

func (s *BucketSupplier) LocateFile(ctx context.Context, m module.Module, kind FileKind) (string, error) {
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
	s.metrics.cacheOperations.WithLabelValues(cacheOpGet, cacheMiss).Inc()

	candidates := []string{lookup.ServerRel}
	if kind != BreakpadSym {
		candidates = append(candidates, MozLookup(lookup).ServerRel)
	}
	_, err, _ = s.group.Do(lookup.CacheRel, func() (interface{}, error) {
		if ok, _ := s.cache.Exists(ctx, lookup.CacheRel); ok {
			return nil, nil
		}
		return nil, s.fetch(ctx, kind, lookup.CacheRel, candidates)
	})
	if err != nil {
		return "", err
	}
	return s.cache.LocalPath(lookup.CacheRel), nil
}

func (s *BucketSupplier) fetch(ctx context.Context, kind FileKind, cacheRel string, candidates []string) error {
	for _, name := range candidates {
		err := s.copy(ctx, kind, name, cacheRel)
		if err == nil {
			level.Debug(s.logger).Log("msg", "copied file from bucket", "object", name)
			return nil
		}
		if !errors.Is(err, ErrFileNotFound) {
			return err
		}
	}
	return ErrFileNotFound
}

func (s *BucketSupplier) copy(ctx context.Context, kind FileKind, name, cacheRel string) (err error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "BucketSupplier.copy")
	span.SetTag("object", name)
	start := time.Now()
	status := util.StatusSuccess
	defer func() {
		if err != nil {
			span.SetTag("error", err.Error())
		}
		span.Finish()
		s.metrics.requestDuration.WithLabelValues(kind.String(), status).Observe(time.Since(start).Seconds())
	}()

	rc, err := s.remote.Get(ctx, name)
	if err != nil {
		if s.remote.IsObjNotFoundErr(err) {
			status = statusErrorNotFound
			return ErrFileNotFound
		}
		status = categorizeError(err)
		return fmt.Errorf("get %s: %w", name, err)
	}
	defer rc.Close()

	cr := &countingReader{r: rc}
	if err := s.cache.UploadAtomic(ctx, cacheRel, cr); err != nil {
		status = categorizeError(err)
		s.metrics.cacheOperations.WithLabelValues(cacheOpPut, util.ErrorStatus("write")).Inc()
		return fmt.Errorf("store %s: %w", cacheRel, err)
	}
	s.metrics.cacheOperations.WithLabelValues(cacheOpPut, util.StatusSuccess).Inc()
	s.metrics.downloadedBytes.Observe(float64(cr.n))
	return nil
}
