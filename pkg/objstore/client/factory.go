package client

import (
	"context"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/thanos-io/objstore"
	thanosfs "github.com/thanos-io/objstore/providers/filesystem"
	tracing "github.com/thanos-io/objstore/tracing/opentracing"

	"github.com/grafana/breakpad-symbolizer/pkg/objstore/providers/azure"
	"github.com/grafana/breakpad-symbolizer/pkg/objstore/providers/s3"
	"github.com/grafana/breakpad-symbolizer/pkg/objstore/providers/swift"
)

// NewBucket creates a new bucket client based on the configured backend.
// The client is instrumented with metrics and traces.
func NewBucket(_ context.Context, cfg Config, name string, logger log.Logger, reg prometheus.Registerer) (objstore.Bucket, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}

	var (
		backendClient objstore.Bucket
		err           error
	)
	switch cfg.Backend {
	case S3:
		backendClient, err = s3.NewBucketClient(cfg.S3, name, logger)
	case Azure:
		backendClient, err = azure.NewBucketClient(cfg.Azure, name, logger)
	case Swift:
		backendClient, err = swift.NewBucketClient(cfg.Swift, name, logger)
	case Filesystem:
		backendClient, err = thanosfs.NewBucket(cfg.Filesystem.Directory)
	default:
		return nil, ErrUnsupportedStorageBackend
	}
	if err != nil {
		return nil, err
	}

	var bkt objstore.Bucket = objstore.WrapWithMetrics(backendClient, reg, name)
	bkt = tracing.WrapWithTraces(bkt)
	if cfg.StoragePrefix != "" {
		bkt = objstore.NewPrefixedBucket(bkt, cfg.StoragePrefix)
	}
	return bkt, nil
}
