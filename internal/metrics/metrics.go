// Package metrics collects process-wide resolution counters.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Tryboy869/pkg-system/internal/core"
)

// Collector holds the counters. All methods are safe for concurrent use.
type Collector struct {
	attempts                atomic.Int64
	successes               atomic.Int64
	failures                atomic.Int64
	cacheHits               atomic.Int64
	downloads               atomic.Int64
	synthesized             atomic.Int64
	fetchFailures           atomic.Int64
	integrityFailures       atomic.Int64
	materializationFailures atomic.Int64
	securityBlocks          atomic.Int64
	latencyNanos            atomic.Int64

	mu      sync.RWMutex
	started time.Time
}

// New creates a Collector whose uptime starts now.
func New() *Collector {
	return &Collector{started: time.Now()}
}

// Attempt records the start of a resolution.
func (c *Collector) Attempt() { c.attempts.Add(1) }

// CacheHit records an artifact served from the cache after validation.
func (c *Collector) CacheHit() { c.cacheHits.Add(1) }

// Download records an artifact fetched from a provider endpoint.
func (c *Collector) Download() { c.downloads.Add(1) }

// Synthesized records a placeholder artifact built in permissive mode.
func (c *Collector) Synthesized() { c.synthesized.Add(1) }

// FetchFailed records a resolution that exhausted every endpoint candidate.
func (c *Collector) FetchFailed() { c.fetchFailures.Add(1) }

// Succeeded records a completed resolution and its latency.
func (c *Collector) Succeeded(d time.Duration) {
	c.successes.Add(1)
	c.latencyNanos.Add(int64(d))
}

// Failed records a failed resolution, classifying err.
func (c *Collector) Failed(err error, d time.Duration) {
	c.failures.Add(1)
	c.latencyNanos.Add(int64(d))
	switch core.Kind(err) {
	case core.KindIntegrity:
		c.integrityFailures.Add(1)
	case core.KindMaterialization:
		c.materializationFailures.Add(1)
	}
	if core.IsSecurityFailure(err) {
		c.securityBlocks.Add(1)
	}
}

// Snapshot is a point-in-time view of the counters.
type Snapshot struct {
	Uptime      time.Duration `json:"uptime" yaml:"uptime"`
	Imports     Imports       `json:"imports" yaml:"imports"`
	Performance Performance   `json:"performance" yaml:"performance"`
	Security    Security      `json:"security" yaml:"security"`
}

// Imports counts resolutions by outcome.
type Imports struct {
	Attempted   int64   `json:"attempted" yaml:"attempted"`
	Successful  int64   `json:"successful" yaml:"successful"`
	Failed      int64   `json:"failed" yaml:"failed"`
	SuccessRate float64 `json:"success_rate" yaml:"success_rate"`
}

// Performance counts where artifacts came from and how long resolution took.
type Performance struct {
	CacheHits               int64         `json:"cache_hits" yaml:"cache_hits"`
	Downloads               int64         `json:"downloads" yaml:"downloads"`
	Synthesized             int64         `json:"synthesized" yaml:"synthesized"`
	FetchFailures           int64         `json:"fetch_failures" yaml:"fetch_failures"`
	MaterializationFailures int64         `json:"materialization_failures" yaml:"materialization_failures"`
	CacheHitRate            float64       `json:"cache_hit_rate" yaml:"cache_hit_rate"`
	AverageResolveTime      time.Duration `json:"average_resolve_time" yaml:"average_resolve_time"`
}

// Security counts blocked resolutions and trusted providers.
type Security struct {
	Blocks            int64 `json:"blocks" yaml:"blocks"`
	IntegrityFailures int64 `json:"integrity_failures" yaml:"integrity_failures"`
	VerifiedProviders int   `json:"verified_providers" yaml:"verified_providers"`
}

// Snapshot reads every counter. verifiedProviders comes from the trust registry.
func (c *Collector) Snapshot(verifiedProviders int) Snapshot {
	c.mu.RLock()
	started := c.started
	c.mu.RUnlock()

	s := Snapshot{Uptime: time.Since(started)}
	s.Imports.Attempted = c.attempts.Load()
	s.Imports.Successful = c.successes.Load()
	s.Imports.Failed = c.failures.Load()
	s.Performance.CacheHits = c.cacheHits.Load()
	s.Performance.Downloads = c.downloads.Load()
	s.Performance.Synthesized = c.synthesized.Load()
	s.Performance.FetchFailures = c.fetchFailures.Load()
	s.Performance.MaterializationFailures = c.materializationFailures.Load()
	s.Security.Blocks = c.securityBlocks.Load()
	s.Security.IntegrityFailures = c.integrityFailures.Load()
	s.Security.VerifiedProviders = verifiedProviders

	if s.Imports.Attempted > 0 {
		s.Imports.SuccessRate = float64(s.Imports.Successful) / float64(s.Imports.Attempted)
	}
	if lookups := s.Performance.CacheHits + s.Performance.Downloads; lookups > 0 {
		s.Performance.CacheHitRate = float64(s.Performance.CacheHits) / float64(lookups)
	}
	if done := s.Imports.Successful + s.Imports.Failed; done > 0 {
		s.Performance.AverageResolveTime = time.Duration(c.latencyNanos.Load() / done)
	}
	return s
}

// Reset zeroes every counter and restarts the uptime clock.
func (c *Collector) Reset() {
	for _, v := range []*atomic.Int64{
		&c.attempts, &c.successes, &c.failures, &c.cacheHits, &c.downloads,
		&c.synthesized, &c.fetchFailures, &c.integrityFailures,
		&c.materializationFailures, &c.securityBlocks, &c.latencyNanos,
	} {
		v.Store(0)
	}
	c.mu.Lock()
	c.started = time.Now()
	c.mu.Unlock()
}
