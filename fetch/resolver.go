package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/Tryboy869/pkg-system/client"
	"github.com/Tryboy869/pkg-system/internal/cache"
	"github.com/Tryboy869/pkg-system/internal/core"
)

const (
	// DefaultFetchTimeout bounds each endpoint candidate.
	DefaultFetchTimeout = 10 * time.Second

	// DefaultMaxArtifactBytes bounds a downloaded archive.
	DefaultMaxArtifactBytes = 10 << 20
)

// Store is the artifact cache used by the Resolver.
type Store interface {
	Get(provider, name string) (*cache.Entry, bool, error)
	Put(provider, name string, data []byte) error
	Delete(provider, name string) error
}

// Validator turns raw archive bytes into a trusted artifact.
type Validator interface {
	Validate(raw []byte, provider, name string, prov core.Provenance) (*core.PackageArtifact, error)
}

// Synthesizer produces placeholder archives when no endpoint serves one.
type Synthesizer interface {
	Synthesize(provider, name string) ([]byte, error)
}

// Counter receives resolver events.
type Counter interface {
	CacheHit()
	Download()
	Synthesized()
	FetchFailed()
}

// Resolver produces validated artifacts, cache first.
type Resolver struct {
	getter    Getter
	store     Store
	validator Validator
	synth     Synthesizer
	counter   Counter
	timeout   time.Duration
	maxBytes  int64
	branches  []string
	logger    *log.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithSynthesizer enables placeholder synthesis when every candidate fails.
// Without one the resolver is strict and surfaces the FetchError.
func WithSynthesizer(s Synthesizer) ResolverOption {
	return func(r *Resolver) {
		r.synth = s
	}
}

// WithCounter sets the metrics sink.
func WithCounter(c Counter) ResolverOption {
	return func(r *Resolver) {
		r.counter = c
	}
}

// WithFetchTimeout bounds each endpoint candidate.
func WithFetchTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithMaxArtifactBytes bounds a downloaded archive.
func WithMaxArtifactBytes(n int64) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.maxBytes = n
		}
	}
}

// WithBranches sets the source branches tried after the release asset.
func WithBranches(branches ...string) ResolverOption {
	return func(r *Resolver) {
		if len(branches) > 0 {
			r.branches = branches
		}
	}
}

// WithResolverLogger sets the logger.
func WithResolverLogger(l *log.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = l
	}
}

// NewResolver creates a Resolver.
func NewResolver(getter Getter, store Store, validator Validator, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		getter:    getter,
		store:     store,
		validator: validator,
		counter:   nopCounter{},
		timeout:   DefaultFetchTimeout,
		maxBytes:  DefaultMaxArtifactBytes,
		branches:  client.DefaultBranches,
		logger:    log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Strict reports whether synthesis is disabled.
func (r *Resolver) Strict() bool {
	return r.synth == nil
}

// Candidates returns the ordered endpoint URLs tried for name.
func (r *Resolver) Candidates(rec core.ProviderRecord, name string) ([]string, error) {
	urls, err := core.ForProvider(rec)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", rec.Name, err)
	}
	return client.Candidates(urls, name, r.branches), nil
}

// Resolve returns the artifact for rec/name. Unverified providers are
// rejected before any cache or network access.
func (r *Resolver) Resolve(ctx context.Context, rec core.ProviderRecord, name string) (*core.PackageArtifact, error) {
	if !rec.Verified {
		return nil, &core.UntrustedProviderError{Provider: rec.Name, Reason: "unverified"}
	}
	if err := core.ValidateName("package", name); err != nil {
		return nil, err
	}

	if a, hit, err := r.fromCache(rec.Name, name); hit {
		return a, err
	}

	raw, prov, err := r.download(ctx, rec, name)
	if err != nil {
		var fetchErr *core.FetchError
		if !errors.As(err, &fetchErr) {
			return nil, err
		}
		r.counter.FetchFailed()
		if r.synth == nil {
			return nil, err
		}
		r.logger.Warn("no endpoint served the artifact, synthesizing a placeholder", "provider", rec.Name, "name", name, "attempts", len(fetchErr.Attempts))
		raw, err = r.synth.Synthesize(rec.Name, name)
		if err != nil {
			return nil, fmt.Errorf("synthesize %s/%s: %w", rec.Name, name, err)
		}
		prov = core.Provenance{Origin: core.OriginSynthesized, FetchedAt: time.Now()}
	}

	a, err := r.validator.Validate(raw, rec.Name, name, prov)
	if err != nil {
		return nil, err
	}

	if err := r.store.Put(rec.Name, name, raw); err != nil {
		r.logger.Warn("cache write failed", "provider", rec.Name, "name", name, "err", err)
	}
	r.counter.Download()
	if prov.Origin == core.OriginSynthesized {
		r.counter.Synthesized()
	}
	return a, nil
}

// fromCache reports hit=true when a cache entry exists. A cached entry that
// no longer validates is evicted and its error returned; only entries that
// validate count as cache hits.
func (r *Resolver) fromCache(provider, name string) (*core.PackageArtifact, bool, error) {
	entry, ok, err := r.store.Get(provider, name)
	if err != nil {
		r.logger.Warn("cache read failed, treating as miss", "provider", provider, "name", name, "err", err)
		return nil, false, nil
	}
	if !ok {
		return nil, false, nil
	}

	a, err := r.validator.Validate(entry.Data, provider, name, core.Provenance{Origin: core.OriginCache, FetchedAt: entry.StoredAt})
	if err != nil {
		if delErr := r.store.Delete(provider, name); delErr != nil {
			r.logger.Warn("evicting rejected cache entry failed", "provider", provider, "name", name, "err", delErr)
		} else {
			r.logger.Warn("evicted cache entry that failed validation", "provider", provider, "name", name, "err", err)
		}
		return nil, true, err
	}
	r.counter.CacheHit()
	return a, true, nil
}

// download tries every candidate in order. The first readable response wins.
func (r *Resolver) download(ctx context.Context, rec core.ProviderRecord, name string) ([]byte, core.Provenance, error) {
	candidates, err := r.Candidates(rec, name)
	if err != nil {
		return nil, core.Provenance{}, err
	}

	fetchErr := &core.FetchError{Provider: rec.Name, Name: name}
	for _, u := range candidates {
		raw, err := r.fetchOne(ctx, u)
		if err == nil {
			r.logger.Debug("fetched artifact", "provider", rec.Name, "name", name, "url", u, "bytes", len(raw))
			return raw, core.Provenance{Origin: core.OriginNetwork, URL: u, FetchedAt: time.Now()}, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, core.Provenance{}, fmt.Errorf("fetch %s/%s: %w", rec.Name, name, ctxErr)
		}
		r.logger.Debug("candidate failed", "url", u, "err", err)
		fetchErr.Attempts = append(fetchErr.Attempts, core.Attempt{URL: u, Err: err})
	}
	return nil, core.Provenance{}, fetchErr
}

func (r *Resolver) fetchOne(ctx context.Context, u string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	d, err := r.getter.Fetch(ctx, u)
	if err != nil {
		return nil, err
	}
	return ReadAll(d, r.maxBytes)
}

type nopCounter struct{}

func (nopCounter) CacheHit()    {}
func (nopCounter) Download()    {}
func (nopCounter) Synthesized() {}
func (nopCounter) FetchFailed() {}
