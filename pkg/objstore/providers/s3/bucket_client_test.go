package s3

import (
	"testing"

	"github.com/grafana/dskit/flagext"
	"github.com/stretchr/testify/assert"
	"github.com/thanos-io/objstore/providers/s3"
)

func TestNewS3ConfigLookupType(t *testing.T) {
	for lookup, want := range map[string]s3.BucketLookupType{
		"":                       s3.AutoLookup,
		AutoLookup:               s3.AutoLookup,
		VirtualHostedStyleLookup: s3.VirtualHostLookup,
		PathStyleLookup:          s3.PathLookup,
	} {
		t.Run(lookup, func(t *testing.T) {
			var cfg Config
			flagext.DefaultValues(&cfg)
			cfg.BucketName = "breakpad-symbols"
			cfg.Endpoint = "minio.local:9000"
			cfg.BucketLookupType = lookup

			got := newS3Config(cfg)
			assert.Equal(t, want, got.BucketLookupType)
			assert.Equal(t, "breakpad-symbols", got.Bucket)
			assert.Equal(t, "minio.local:9000", got.Endpoint)
		})
	}
}
