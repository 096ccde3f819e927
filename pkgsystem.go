// Package pkgsystem resolves (provider, name) references into sandboxed,
// integrity-checked modules.
//
// Code is only fetched from providers registered as verified, and every
// artifact is checked against its manifest digest and the provider's
// signing key before it is cached or executed.
//
// Basic usage:
//
//	import (
//		"context"
//		"github.com/Tryboy869/pkg-system"
//		"github.com/Tryboy869/pkg-system/internal/config"
//	)
//
//	cfg, _, err := config.Load(ctx, config.LoadOptions{})
//	if err != nil {
//		log.Fatal(err)
//	}
//	sys, err := pkgsystem.New(*cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := sys.Enable(ctx); err != nil {
//		log.Fatal(err)
//	}
//
//	mod, err := sys.Resolve(ctx, "acme", "tools")
//	if err != nil {
//		log.Fatal(err)
//	}
//	res, err := mod.Call(ctx, "hello", "world")
//
// Endpoint layouts (GitHub, GitLab, Bitbucket, static hosting) are
// registered by the all subpackage, which this package imports.
package pkgsystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/git-pkgs/purl"

	_ "github.com/Tryboy869/pkg-system/all"
	"github.com/Tryboy869/pkg-system/client"
	"github.com/Tryboy869/pkg-system/fetch"
	"github.com/Tryboy869/pkg-system/internal/binder"
	"github.com/Tryboy869/pkg-system/internal/cache"
	"github.com/Tryboy869/pkg-system/internal/config"
	"github.com/Tryboy869/pkg-system/internal/core"
	"github.com/Tryboy869/pkg-system/internal/materialize"
	"github.com/Tryboy869/pkg-system/internal/metrics"
	"github.com/Tryboy869/pkg-system/internal/signing"
	"github.com/Tryboy869/pkg-system/internal/synth"
	"github.com/Tryboy869/pkg-system/internal/trust"
	"github.com/Tryboy869/pkg-system/internal/validate"
)

// Re-export types from internal packages
type (
	// ProviderRecord is a registered provider.
	ProviderRecord = core.ProviderRecord

	// TrustLevel is the informational trust ranking of a provider.
	TrustLevel = core.TrustLevel

	// Ref names a package of a provider.
	Ref = core.Ref

	// Module is a materialized package.
	Module = materialize.Module

	// CallResult is the output of Module.Call.
	CallResult = materialize.CallResult

	// Namespace is the lazy, memoizing view of one provider's packages.
	Namespace = binder.Namespace

	// Snapshot is a point-in-time metrics view.
	Snapshot = metrics.Snapshot

	// CacheEntry describes one cached artifact.
	CacheEntry = cache.Entry

	// ResolveResult is the outcome of one reference in ResolveAll.
	ResolveResult = core.Result[*materialize.Module]
)

// Re-export constants
const (
	TrustLow    = core.TrustLow
	TrustMedium = core.TrustMedium
	TrustHigh   = core.TrustHigh
)

// Re-export errors
var (
	ErrUntrustedProvider = core.ErrUntrustedProvider
	ErrFetch             = core.ErrFetch
	ErrIntegrity         = core.ErrIntegrity
	ErrMaterialization   = core.ErrMaterialization
	ErrInvalidName       = core.ErrInvalidName
)

// Error types
type (
	UntrustedProviderError = core.UntrustedProviderError
	FetchError             = core.FetchError
	IntegrityError         = core.IntegrityError
	MaterializationError   = core.MaterializationError
)

// ErrNotEnabled is returned by operations that need the provider registry
// before Enable has loaded it.
var ErrNotEnabled = errors.New("package system not enabled")

// System is the resolution context. It owns the trust registry, artifact
// cache, resolver, validator, materializer, namespace binder and metrics.
// A System is safe for concurrent use.
type System struct {
	cfg    config.Config
	logger *log.Logger
	getter fetch.Getter

	registry     *trust.Registry
	cache        *cache.Cache
	breaker      *fetch.CircuitBreakerFetcher
	resolver     *fetch.Resolver
	materializer *materialize.Materializer
	binder       *binder.Binder
	metrics      *metrics.Collector

	mu      sync.Mutex
	enabled bool
}

// Option configures a System.
type Option func(*System)

// WithLogger sets the logger passed to every component.
func WithLogger(l *log.Logger) Option {
	return func(s *System) {
		s.logger = l
	}
}

// WithGetter replaces the HTTP fetcher. The circuit breaker still wraps it.
func WithGetter(g fetch.Getter) Option {
	return func(s *System) {
		s.getter = g
	}
}

// New assembles a System from cfg. Nothing is read from disk until Enable.
func New(cfg config.Config, opts ...Option) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &System{
		cfg:     cfg,
		logger:  log.New(io.Discard),
		metrics: metrics.New(),
	}
	for _, opt := range opts {
		opt(s)
	}

	c, err := cache.New(cfg.CacheDir, cache.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}
	s.cache = c
	s.registry = trust.NewRegistry(filepath.Join(cfg.ConfigDir, trust.FileName), trust.WithLogger(s.logger))

	if s.getter == nil {
		fopts := []fetch.Option{
			fetch.WithUserAgent(cfg.UserAgent),
			fetch.WithMaxRetries(cfg.MaxRetries),
			fetch.WithBaseDelay(cfg.RetryBaseDelay),
			fetch.WithLogger(s.logger),
		}
		if cfg.Token != "" {
			fopts = append(fopts, fetch.WithAuthFunc(s.authHeader))
		}
		s.getter = fetch.NewFetcher(fopts...)
	}
	s.breaker = fetch.NewCircuitBreakerFetcher(s.getter)

	validator := validate.New(s.registry.Get,
		validate.WithMaxEntryBytes(cfg.MaxArtifactBytes),
		validate.AllowSynthesized(!cfg.Strict),
	)
	ropts := []fetch.ResolverOption{
		fetch.WithCounter(s.metrics),
		fetch.WithFetchTimeout(cfg.FetchTimeout),
		fetch.WithMaxArtifactBytes(cfg.MaxArtifactBytes),
		fetch.WithBranches(cfg.Branches...),
		fetch.WithResolverLogger(s.logger),
	}
	if !cfg.Strict {
		ropts = append(ropts, fetch.WithSynthesizer(synth.New()))
	}
	s.resolver = fetch.NewResolver(s.breaker, s.cache, validator, ropts...)

	s.materializer = materialize.New(
		materialize.WithTimeout(cfg.MaterializeTimeout),
		materialize.WithLogger(s.logger),
	)
	s.binder = binder.New(s.pipeline,
		binder.WithTimeout(cfg.ResolveTimeout),
		binder.WithLogger(s.logger),
	)
	return s, nil
}

// Config returns the configuration the System was built with.
func (s *System) Config() config.Config {
	return s.cfg
}

// Enable loads the provider registry and binds a namespace for every
// verified provider. Providers added later are bound as they are added.
// Calling Enable again is a no-op.
func (s *System) Enable(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enabled {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.registry.Load(); err != nil {
		// Defaults are still in memory; resolution can proceed.
		s.logger.Warn("provider registry not persisted", "path", s.registry.Path(), "err", err)
	}
	for _, rec := range s.registry.List() {
		if rec.Verified {
			s.binder.Bind(rec.Name)
		}
	}
	s.registry.OnAdd(func(rec core.ProviderRecord) {
		s.binder.Bind(rec.Name)
	})
	s.enabled = true

	s.logger.Info("package system enabled",
		"providers", len(s.binder.Providers()),
		"strict", s.cfg.Strict,
		"cache", s.cache.Dir(),
	)
	return nil
}

func (s *System) checkEnabled() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled {
		return ErrNotEnabled
	}
	return nil
}

// ProviderOption configures a provider registered through AddProvider.
type ProviderOption func(*core.ProviderRecord)

// WithLayout forces an endpoint layout instead of detecting it from the host.
func WithLayout(layout string) ProviderOption {
	return func(r *core.ProviderRecord) {
		r.Layout = layout
	}
}

// AddProvider registers a verified provider and binds its namespace.
// publicKey must be an "ed25519:<base64>" key or an armored OpenPGP public
// key; artifacts from the provider are verified against it.
func (s *System) AddProvider(ctx context.Context, name, endpoint, publicKey string, level TrustLevel, opts ...ProviderOption) (ProviderRecord, error) {
	if err := s.checkEnabled(); err != nil {
		return ProviderRecord{}, err
	}
	if err := ctx.Err(); err != nil {
		return ProviderRecord{}, err
	}
	if _, err := signing.ParsePublicKey(publicKey); err != nil {
		return ProviderRecord{}, fmt.Errorf("provider %s: %w", name, err)
	}
	level, err := core.ParseTrustLevel(string(level))
	if err != nil {
		return ProviderRecord{}, fmt.Errorf("provider %s: %w", name, err)
	}

	rec := core.ProviderRecord{
		Name:       name,
		Endpoint:   endpoint,
		PublicKey:  strings.TrimSpace(publicKey),
		TrustLevel: level,
	}
	for _, opt := range opts {
		opt(&rec)
	}
	if rec.Layout != "" {
		if _, err := core.ForProvider(rec); err != nil {
			return ProviderRecord{}, fmt.Errorf("provider %s: %w", name, err)
		}
	}
	return s.registry.Add(rec)
}

// RevokeProvider marks a provider unverified. Its namespace stays bound
// but every further resolution fails with UntrustedProviderError.
func (s *System) RevokeProvider(name string) error {
	if err := s.checkEnabled(); err != nil {
		return err
	}
	return s.registry.Revoke(name)
}

// Providers returns every registered provider, sorted by name.
func (s *System) Providers() []ProviderRecord {
	return s.registry.List()
}

// Resolve runs the resolution pipeline for provider/name. Concurrent calls
// for the same pair share one run. Results are not memoized: a second call
// is served from the artifact cache and materialized afresh.
func (s *System) Resolve(ctx context.Context, provider, name string) (*Module, error) {
	if err := s.checkEnabled(); err != nil {
		return nil, err
	}
	return s.binder.Resolve(ctx, provider, name)
}

// ResolveRef resolves a "provider/name" or "pkg:generic/provider/name" reference.
func (s *System) ResolveRef(ctx context.Context, ref string) (*Module, error) {
	r, err := core.ParseRef(ref)
	if err != nil {
		return nil, err
	}
	return s.Resolve(ctx, r.Provider, r.Name)
}

// ResolveAll resolves refs in parallel, bounded by the configured concurrency.
// Every distinct ref has an entry in the result.
func (s *System) ResolveAll(ctx context.Context, refs []Ref) map[Ref]ResolveResult {
	return core.BulkResolve(ctx, refs, s.cfg.Concurrency, func(ctx context.Context, r Ref) (*Module, error) {
		return s.Resolve(ctx, r.Provider, r.Name)
	})
}

// Namespace returns the bound namespace of a provider.
func (s *System) Namespace(provider string) (*Namespace, error) {
	if err := s.checkEnabled(); err != nil {
		return nil, err
	}
	ns, ok := s.binder.Namespace(provider)
	if !ok {
		return nil, &core.UntrustedProviderError{Provider: provider, Reason: "not registered"}
	}
	return ns, nil
}

// Metrics returns a snapshot of the resolution counters.
func (s *System) Metrics() Snapshot {
	return s.metrics.Snapshot(s.registry.VerifiedCount())
}

// ResetMetrics zeroes every counter.
func (s *System) ResetMetrics() {
	s.metrics.Reset()
}

// ClearCache removes every cached artifact. Modules already materialized
// and memoized by namespaces are unaffected.
func (s *System) ClearCache() error {
	if err := s.cache.Clear(); err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}
	s.logger.Info("artifact cache cleared", "dir", s.cache.Dir())
	return nil
}

// CacheEntries lists the cached artifacts.
func (s *System) CacheEntries() ([]CacheEntry, error) {
	return s.cache.List()
}

// BreakerStates reports the circuit breaker state of every contacted host.
func (s *System) BreakerStates() map[string]string {
	return s.breaker.BreakerStates()
}

// URLs returns the named endpoint URLs of provider/name, keyed "release",
// "homepage" and "source:<branch>".
func (s *System) URLs(provider, name string) (map[string]string, error) {
	rec, err := s.lookup(provider, name)
	if err != nil {
		return nil, err
	}
	urls, err := core.ForProvider(rec)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", provider, err)
	}
	return client.BuildURLs(urls, name, s.cfg.Branches), nil
}

// Probe is the HEAD result of one candidate URL.
type Probe struct {
	URL         string `json:"url" yaml:"url"`
	Size        int64  `json:"size,omitempty" yaml:"size,omitempty"`
	ContentType string `json:"content_type,omitempty" yaml:"content_type,omitempty"`
	Err         string `json:"error,omitempty" yaml:"error,omitempty"`
}

// ProbeCandidates issues a HEAD request against every candidate URL of
// provider/name, in resolution order. Nothing is downloaded or cached.
func (s *System) ProbeCandidates(ctx context.Context, provider, name string) ([]Probe, error) {
	rec, err := s.lookup(provider, name)
	if err != nil {
		return nil, err
	}
	candidates, err := s.resolver.Candidates(rec, name)
	if err != nil {
		return nil, err
	}

	probes := make([]Probe, 0, len(candidates))
	for _, u := range candidates {
		p := Probe{URL: u}
		hctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
		p.Size, p.ContentType, err = s.breaker.Head(hctx, u)
		cancel()
		if err != nil {
			p.Err = err.Error()
		}
		probes = append(probes, p)
		if ctx.Err() != nil {
			return probes, ctx.Err()
		}
	}
	return probes, nil
}

func (s *System) lookup(provider, name string) (core.ProviderRecord, error) {
	if err := s.checkEnabled(); err != nil {
		return core.ProviderRecord{}, err
	}
	if err := core.ValidateName("package", name); err != nil {
		return core.ProviderRecord{}, err
	}
	return s.registry.Check(provider)
}

// pipeline is the single resolution path shared by Resolve and namespaces:
// trust gate, resolver, materializer. Every outcome is recorded in metrics.
func (s *System) pipeline(ctx context.Context, provider, name string) (*materialize.Module, error) {
	start := time.Now()
	s.metrics.Attempt()

	mod, err := s.run(ctx, provider, name)
	elapsed := time.Since(start)
	if err != nil {
		s.metrics.Failed(err, elapsed)
		logFailure(s.logger, provider, name, err)
		return nil, err
	}
	s.metrics.Succeeded(elapsed)
	s.logger.Debug("resolved", "provider", provider, "name", name, "version", mod.Version, "origin", mod.Provenance.Origin, "elapsed", elapsed)
	return mod, nil
}

func (s *System) run(ctx context.Context, provider, name string) (*materialize.Module, error) {
	if err := core.ValidateName("provider", provider); err != nil {
		return nil, err
	}
	if err := core.ValidateName("package", name); err != nil {
		return nil, err
	}
	rec, err := s.registry.Check(provider)
	if err != nil {
		return nil, err
	}
	a, err := s.resolver.Resolve(ctx, rec, name)
	if err != nil {
		return nil, err
	}
	return s.materializer.Materialize(ctx, a)
}

func logFailure(l *log.Logger, provider, name string, err error) {
	kv := []any{"provider", provider, "name", name, "kind", core.Kind(err), "err", err}
	if core.IsSecurityFailure(err) {
		l.Warn("resolution blocked", kv...)
		return
	}
	l.Error("resolution failed", kv...)
}

// authHeader attaches the configured token to requests for hosts of
// verified providers only.
func (s *System) authHeader(rawURL string) (string, string) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", ""
	}
	for _, rec := range s.registry.List() {
		if !rec.Verified {
			continue
		}
		if e, err := url.Parse(rec.Endpoint); err == nil && strings.EqualFold(e.Host, u.Host) {
			return "Authorization", "Bearer " + s.cfg.Token
		}
	}
	return "", ""
}

// PURL represents a parsed Package URL.
type PURL = purl.PURL

// ParsePURL parses a Package URL string such as pkg:generic/acme/tools@1.0.0.
func ParsePURL(purlStr string) (*PURL, error) {
	return purl.Parse(purlStr)
}

// ParseRef parses "provider/name" or "pkg:generic/provider/name[@version]".
func ParseRef(s string) (Ref, error) {
	return core.ParseRef(s)
}

// SupportedLayouts returns the registered endpoint layout names.
func SupportedLayouts() []string {
	return core.SupportedLayouts()
}
