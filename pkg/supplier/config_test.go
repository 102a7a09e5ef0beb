package supplier

import (
	"context"
	"flag"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/grafana/dskit/flagext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/breakpad-symbolizer/pkg/objstore/client"
	"github.com/grafana/breakpad-symbolizer/pkg/objstore/providers/filesystem"
)

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	flagext.DefaultValues(&cfg)

	assert.Empty(t, cfg.SymbolPaths)
	assert.Empty(t, cfg.SymbolURLs)
	assert.Equal(t, "breakpad-symbolizer", cfg.UserAgent)
	assert.Equal(t, 10*time.Minute, cfg.RequestTimeout)
	assert.Equal(t, time.Hour, cfg.NotFoundTTL)
	assert.Equal(t, 10000, cfg.NotFoundCacheSize)
	assert.Equal(t, 10, cfg.Backoff.MaxRetries)
	assert.Equal(t, uint(10), cfg.CircuitBreakerFailures)
	assert.False(t, cfg.Bucket.Enabled())
	require.NoError(t, cfg.Validate())
}

func TestConfigFlags(t *testing.T) {
	var cfg Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{
		"-symbols.paths=/a,/b",
		"-symbols.urls=https://symbols.example.com/",
		"-symbols.cache-dir=/tmp/cache",
		"-symbols.backoff-retries=2",
		"-symbols.bucket.backend=s3",
		"-symbols.bucket.s3.bucket-name=symbols",
	}))
	assert.Equal(t, client.S3, cfg.Bucket.Backend)
	assert.Equal(t, "symbols", cfg.Bucket.S3.BucketName)
	assert.Equal(t, []string{"/a", "/b"}, []string(cfg.SymbolPaths))
	assert.Equal(t, []string{"https://symbols.example.com/"}, []string(cfg.SymbolURLs))
	assert.Equal(t, 2, cfg.Backoff.MaxRetries)
	require.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	for _, tc := range []struct {
		name string
		cfg  Config
		err  string
	}{
		{
			name: "urls without cache",
			cfg:  Config{SymbolURLs: []string{"https://example.com"}},
			err:  "cache-dir is required",
		},
		{
			name: "bucket without cache",
			cfg:  Config{Bucket: client.Config{Backend: client.Filesystem}},
			err:  "cache-dir is required",
		},
		{
			name: "bad bucket",
			cfg:  Config{Bucket: client.Config{Backend: "tape"}, CacheDir: "/tmp"},
			err:  "unsupported storage backend",
		},
		{
			name: "bad scheme",
			cfg:  Config{SymbolURLs: []string{"ftp://example.com"}, CacheDir: "/tmp"},
			err:  "scheme must be http or https",
		},
		{
			name: "negative ttl",
			cfg:  Config{NotFoundTTL: -time.Second},
			err:  "must not be negative",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorContains(t, tc.cfg.Validate(), tc.err)
		})
	}
}

func TestNewFromConfig(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, testSymPath, testSymbolFile)

	s, err := NewFromConfig(context.Background(), Config{SymbolPaths: []string{root}}, log.NewNopLogger(), nil)
	require.NoError(t, err)
	require.IsType(t, &SimpleSupplier{}, s)
	_, err = s.LocateSymbols(context.Background(), testModule())
	require.NoError(t, err)

	s, err = NewFromConfig(context.Background(), Config{
		SymbolPaths: []string{root},
		SymbolURLs:  []string{"http://127.0.0.1:0"},
		CacheDir:    filepath.Join(t.TempDir(), "cache"),
	}, log.NewNopLogger(), nil)
	require.NoError(t, err)
	require.IsType(t, &Cascade{}, s)
	_, err = s.LocateSymbols(context.Background(), testModule())
	require.NoError(t, err)

	// A symbol store bucket on its own.
	cache := filepath.Join(t.TempDir(), "cache")
	s, err = NewFromConfig(context.Background(), Config{
		CacheDir: cache,
		Bucket:   client.Config{Backend: client.Filesystem, Filesystem: filesystem.Config{Directory: root}},
	}, log.NewNopLogger(), nil)
	require.NoError(t, err)
	require.IsType(t, &BucketSupplier{}, s)
	path, err := s.LocateFile(context.Background(), testModule(), BreakpadSym)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cache, filepath.FromSlash(testSymPath)), path)
}
