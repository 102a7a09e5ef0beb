// Package circuitbreaker stops sending requests to hosts that keep failing.
package circuitbreaker

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

var errServerFailure = errors.New("server failure")

// Config of the per host circuit breakers. Once a host fails
// MaxConsecutiveFailures times in a row, its circuit opens and requests to
// it fail immediately. After OpenTimeout a single trial request is let
// through, and its outcome decides whether the circuit closes again.
type Config struct {
	MaxConsecutiveFailures uint32
	OpenTimeout            time.Duration
}

// RoundTripper keeps one circuit breaker per request host. Transport errors,
// 5xx responses and 429 responses count as failures.
type RoundTripper struct {
	next     http.RoundTripper
	settings gobreaker.Settings

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[*http.Response]
}

func NewRoundTripper(cfg Config, next http.RoundTripper) *RoundTripper {
	return &RoundTripper{
		next: next,
		settings: gobreaker.Settings{
			MaxRequests: 1,
			Timeout:     cfg.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.MaxConsecutiveFailures
			},
		},
		breakers: make(map[string]*gobreaker.CircuitBreaker[*http.Response]),
	}
}

func (rt *RoundTripper) breaker(host string) *gobreaker.CircuitBreaker[*http.Response] {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	cb, ok := rt.breakers[host]
	if !ok {
		settings := rt.settings
		settings.Name = host
		cb = gobreaker.NewCircuitBreaker[*http.Response](settings)
		rt.breakers[host] = cb
	}
	return cb
}

// State returns the circuit state of host.
func (rt *RoundTripper) State(host string) gobreaker.State {
	return rt.breaker(host).State()
}

func (rt *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := rt.breaker(req.URL.Host).Execute(func() (*http.Response, error) {
		resp, err := rt.next.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return resp, errServerFailure
		}
		return resp, nil
	})
	if errors.Is(err, errServerFailure) {
		return resp, nil
	}
	return resp, err
}
