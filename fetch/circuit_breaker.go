package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/cenk/backoff"
	circuit "github.com/rubyist/circuitbreaker"
)

// BreakerConfig controls when a host's breaker opens and how long it stays open.
type BreakerConfig struct {
	Threshold       int64 // consecutive failures before tripping
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultBreakerConfig trips after 5 consecutive failures and backs off
// from 30s up to 5m.
var DefaultBreakerConfig = BreakerConfig{
	Threshold:       5,
	InitialInterval: 30 * time.Second,
	MaxInterval:     5 * time.Minute,
}

// CircuitBreakerFetcher wraps a Getter with one circuit breaker per host.
// Missing artifacts do not count as failures; only transport errors and
// server-side statuses do.
type CircuitBreakerFetcher struct {
	fetcher  Getter
	config   BreakerConfig
	breakers map[string]*circuit.Breaker
	mu       sync.RWMutex
}

// NewCircuitBreakerFetcher wraps f using DefaultBreakerConfig.
func NewCircuitBreakerFetcher(f Getter) *CircuitBreakerFetcher {
	return NewCircuitBreakerFetcherWithConfig(f, DefaultBreakerConfig)
}

// NewCircuitBreakerFetcherWithConfig wraps f using cfg.
func NewCircuitBreakerFetcherWithConfig(f Getter, cfg BreakerConfig) *CircuitBreakerFetcher {
	return &CircuitBreakerFetcher{
		fetcher:  f,
		config:   cfg,
		breakers: make(map[string]*circuit.Breaker),
	}
}

func (cbf *CircuitBreakerFetcher) getBreaker(host string) *circuit.Breaker {
	cbf.mu.RLock()
	breaker, exists := cbf.breakers[host]
	cbf.mu.RUnlock()

	if exists {
		return breaker
	}

	cbf.mu.Lock()
	defer cbf.mu.Unlock()

	if breaker, exists := cbf.breakers[host]; exists {
		return breaker
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = cbf.config.InitialInterval
	expBackoff.MaxInterval = cbf.config.MaxInterval
	expBackoff.Multiplier = 2.0
	expBackoff.Reset()

	breaker = circuit.NewBreakerWithOptions(&circuit.Options{
		BackOff:    expBackoff,
		ShouldTrip: circuit.ThresholdTripFunc(cbf.config.Threshold),
	})
	cbf.breakers[host] = breaker
	return breaker
}

// tripping reports whether err says something about the host's health.
func tripping(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrTooLarge):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode < 500 && httpErr.StatusCode != 429 {
		return false
	}
	return true
}

func (cbf *CircuitBreakerFetcher) call(rawURL string, fn func() error) error {
	host := hostOf(rawURL)
	breaker := cbf.getBreaker(host)

	if !breaker.Ready() {
		return fmt.Errorf("circuit breaker open for %s: %w", host, ErrUpstreamDown)
	}

	var callErr error
	err := breaker.Call(func() error {
		callErr = fn()
		if tripping(callErr) {
			return callErr
		}
		return nil
	}, 0)
	if callErr != nil {
		return callErr
	}
	if err != nil {
		return fmt.Errorf("circuit breaker open for %s: %w", host, ErrUpstreamDown)
	}
	return nil
}

// Fetch calls the wrapped Fetch behind the host's breaker.
func (cbf *CircuitBreakerFetcher) Fetch(ctx context.Context, fetchURL string) (*Download, error) {
	var d *Download
	err := cbf.call(fetchURL, func() error {
		var fetchErr error
		d, fetchErr = cbf.fetcher.Fetch(ctx, fetchURL)
		return fetchErr
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Head calls the wrapped Head behind the host's breaker.
func (cbf *CircuitBreakerFetcher) Head(ctx context.Context, headURL string) (size int64, contentType string, err error) {
	err = cbf.call(headURL, func() error {
		var headErr error
		size, contentType, headErr = cbf.fetcher.Head(ctx, headURL)
		return headErr
	})
	return size, contentType, err
}

// hostOf returns the breaker key for a URL.
func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		if len(rawURL) > 50 {
			return rawURL[:50]
		}
		return rawURL
	}
	return parsed.Host
}

// BreakerStates reports "open" or "closed" per host.
func (cbf *CircuitBreakerFetcher) BreakerStates() map[string]string {
	cbf.mu.RLock()
	defer cbf.mu.RUnlock()

	states := make(map[string]string, len(cbf.breakers))
	for host, breaker := range cbf.breakers {
		if breaker.Tripped() {
			states[host] = "open"
		} else {
			states[host] = "closed"
		}
	}
	return states
}
