package supplier

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/grafana/dskit/backoff"
	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/breakpad-symbolizer/pkg/module"
	"github.com/grafana/breakpad-symbolizer/pkg/objstore/providers/filesystem"
	"github.com/grafana/breakpad-symbolizer/pkg/util"
	"github.com/grafana/breakpad-symbolizer/pkg/util/circuitbreaker"
)

const testSymbolFile = "MODULE windows x86 ABCD1234ABCD1234ABCDABCD12345678a foo.pdb\nPUBLIC 1000 0 foo\n"

// symbolServer serves files by path and counts requests.
type symbolServer struct {
	mu       sync.Mutex
	files    map[string]string
	status   int
	gzip     bool
	requests map[string]int
}

func (s *symbolServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := strings.TrimPrefix(r.URL.Path, "/")
	s.requests[path]++
	if s.status != 0 {
		w.WriteHeader(s.status)
		return
	}
	body, ok := s.files[path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	if s.gzip && strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		var buf bytes.Buffer
		gw := gzip.NewWriter(&buf)
		_, _ = gw.Write([]byte(body))
		_ = gw.Close()
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write(buf.Bytes())
		return
	}
	_, _ = w.Write([]byte(body))
}

func (s *symbolServer) count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[path]
}

func newTestHTTPSupplier(t *testing.T, reg prometheus.Registerer, urls ...string) (*HTTPSupplier, *filesystem.Bucket) {
	t.Helper()
	bucket, err := filesystem.NewBucket(t.TempDir())
	require.NoError(t, err)
	s := NewHTTPSupplier(log.NewNopLogger(), HTTPConfig{
		URLs: urls,
		BackoffConfig: backoff.Config{
			MinBackoff: time.Millisecond,
			MaxBackoff: 2 * time.Millisecond,
			MaxRetries: 3,
		},
		UserAgent:         "test",
		NotFoundTTL:       time.Minute,
		NotFoundCacheSize: 16,
	}, bucket, reg)
	return s, bucket
}

func TestHTTPSupplierDownloadsOnce(t *testing.T) {
	for _, compressed := range []bool{false, true} {
		srv := &symbolServer{
			files:    map[string]string{testSymPath: testSymbolFile},
			requests: map[string]int{},
			gzip:     compressed,
		}
		ts := httptest.NewServer(srv)

		reg := prometheus.NewRegistry()
		s, bucket := newTestHTTPSupplier(t, reg, ts.URL)
		m := testModule()

		for i := 0; i < 3; i++ {
			sf, err := s.LocateSymbols(context.Background(), m)
			require.NoError(t, err)
			require.Len(t, sf.Publics, 1)
			assert.Equal(t, "foo", sf.Publics[0].Name)
		}
		assert.Equal(t, 1, srv.count(testSymPath))

		data, err := os.ReadFile(bucket.LocalPath(testSymPath))
		require.NoError(t, err)
		assert.Equal(t, testSymbolFile, string(data))

		assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.cacheOperations.WithLabelValues(cacheOpGet, cacheMiss)))
		assert.Equal(t, 2.0, testutil.ToFloat64(s.metrics.cacheOperations.WithLabelValues(cacheOpGet, cacheHit)))
		assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.cacheOperations.WithLabelValues(cacheOpPut, util.StatusSuccess)))
		ts.Close()
	}
}

func TestHTTPSupplierFallsBackToNextServer(t *testing.T) {
	empty := &symbolServer{files: map[string]string{}, requests: map[string]int{}}
	full := &symbolServer{files: map[string]string{testSymPath: testSymbolFile}, requests: map[string]int{}}
	ts1 := httptest.NewServer(empty)
	defer ts1.Close()
	ts2 := httptest.NewServer(full)
	defer ts2.Close()

	s, _ := newTestHTTPSupplier(t, nil, ts1.URL, ts2.URL+"/")
	_, err := s.LocateSymbols(context.Background(), testModule())
	require.NoError(t, err)
	assert.Equal(t, 1, empty.count(testSymPath))
	assert.Equal(t, 1, full.count(testSymPath))
}

func TestHTTPSupplierNotFoundIsRemembered(t *testing.T) {
	srv := &symbolServer{files: map[string]string{}, requests: map[string]int{}}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	s, _ := newTestHTTPSupplier(t, prometheus.NewRegistry(), ts.URL)
	for i := 0; i < 2; i++ {
		_, err := s.LocateSymbols(context.Background(), testModule())
		require.ErrorIs(t, err, ErrNotFound)
	}
	// 404s are neither retried nor repeated.
	assert.Equal(t, 1, srv.count(testSymPath))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.cacheOperations.WithLabelValues(cacheOpGet, cacheNegative)))
}

func TestHTTPSupplierServerError(t *testing.T) {
	srv := &symbolServer{status: http.StatusInternalServerError, requests: map[string]int{}}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	s, _ := newTestHTTPSupplier(t, nil, ts.URL)
	_, err := s.LocateSymbols(context.Background(), testModule())
	var lerr *LoadError
	require.ErrorAs(t, err, &lerr)
	statusCode, ok := isHTTPStatusError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusInternalServerError, statusCode)
	assert.Equal(t, 3, srv.count(testSymPath))

	// Transient failures are not remembered.
	_, err = s.LocateSymbols(context.Background(), testModule())
	require.Error(t, err)
	assert.Equal(t, 6, srv.count(testSymPath))
}

func TestHTTPSupplierClientErrorIsNotRetried(t *testing.T) {
	srv := &symbolServer{status: http.StatusForbidden, requests: map[string]int{}}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	s, _ := newTestHTTPSupplier(t, nil, ts.URL)
	_, err := s.LocateSymbols(context.Background(), testModule())
	var lerr *LoadError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, 1, srv.count(testSymPath))
}

func TestHTTPSupplierMozLookup(t *testing.T) {
	srv := &symbolServer{
		files:    map[string]string{"foo.dll/5ca8a2f6c000/foo.dl_": "cab"},
		requests: map[string]int{},
	}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	s, bucket := newTestHTTPSupplier(t, nil, ts.URL)
	m := testModule()
	m.Code = `C:\foo.dll`
	codeID := module.NewCodeID("5CA8A2F6C000")
	m.CodeID = &codeID

	path, err := s.LocateFile(context.Background(), m, Binary)
	require.NoError(t, err)
	assert.Equal(t, bucket.LocalPath("foo.pdb/ABCD1234ABCD1234ABCDABCD12345678a/foo.dll"), path)
	assert.Equal(t, 1, srv.count("foo.dll/5ca8a2f6c000/foo.dll"))
	assert.Equal(t, 1, srv.count("foo.dll/5ca8a2f6c000/foo.dl_"))
}

func TestHTTPSupplierMissingIdentity(t *testing.T) {
	s, _ := newTestHTTPSupplier(t, nil, "http://127.0.0.1:0")
	_, err := s.LocateSymbols(context.Background(), &module.SimpleModule{Code: "foo"})
	require.ErrorIs(t, err, ErrMissingDebugFileOrID)
}

func TestHTTPSupplierConcurrentDownloads(t *testing.T) {
	srv := &symbolServer{files: map[string]string{testSymPath: testSymbolFile}, requests: map[string]int{}}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	s, _ := newTestHTTPSupplier(t, nil, ts.URL)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.LocateSymbols(context.Background(), testModule())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, srv.count(testSymPath))
}

func TestHTTPSupplierCircuitBreaker(t *testing.T) {
	failing := &symbolServer{status: http.StatusInternalServerError, requests: map[string]int{}}
	good := &symbolServer{files: map[string]string{testSymPath: testSymbolFile}, requests: map[string]int{}}
	tsFailing := httptest.NewServer(failing)
	defer tsFailing.Close()
	tsGood := httptest.NewServer(good)
	defer tsGood.Close()

	bucket, err := filesystem.NewBucket(t.TempDir())
	require.NoError(t, err)
	s := NewHTTPSupplier(log.NewNopLogger(), HTTPConfig{
		URLs: []string{tsFailing.URL, tsGood.URL},
		BackoffConfig: backoff.Config{
			MinBackoff: time.Millisecond,
			MaxBackoff: 2 * time.Millisecond,
			MaxRetries: 5,
		},
		CircuitBreaker: circuitbreaker.Config{MaxConsecutiveFailures: 2, OpenTimeout: time.Minute},
	}, bucket, nil)

	_, err = s.LocateSymbols(context.Background(), testModule())
	require.NoError(t, err)
	// Retries stop once the circuit of the failing server opens.
	assert.Equal(t, 2, failing.count(testSymPath))
	assert.Equal(t, 1, good.count(testSymPath))
}
