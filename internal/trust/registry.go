// Package trust holds the set of providers the system will resolve packages from.
package trust

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/Tryboy869/pkg-system/internal/core"
	"github.com/Tryboy869/pkg-system/internal/fsx"
)

// FileName is the name of the persisted provider file inside the config directory.
const FileName = "providers.json"

// DefaultProviders returns the built-in provider set installed when no
// configuration exists. Their public keys are empty, so artifacts from them
// fail signature verification until an operator re-adds them with a key.
func DefaultProviders() []core.ProviderRecord {
	return []core.ProviderRecord{
		{
			Name:       "tryboy869",
			Endpoint:   "https://github.com/Tryboy869",
			TrustLevel: core.TrustHigh,
			Verified:   true,
		},
		{
			Name:       "demo",
			Endpoint:   "https://github.com/demo-packages",
			TrustLevel: core.TrustHigh,
			Verified:   true,
		},
	}
}

type persistedProvider struct {
	URL        string `json:"url"`
	PublicKey  string `json:"public_key"`
	Verified   bool   `json:"verified"`
	TrustLevel string `json:"trust_level"`
	Layout     string `json:"layout,omitempty"`
	AddedAt    string `json:"added_at,omitempty"`
}

// Registry is the in-memory provider set backed by a JSON file.
type Registry struct {
	path      string
	mu        sync.RWMutex
	providers map[string]core.ProviderRecord
	listeners []func(core.ProviderRecord)
	logger    *log.Logger
	now       func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// NewRegistry creates a registry persisted at path. An empty path keeps the
// registry in memory only. Call Load to populate it.
func NewRegistry(path string, opts ...Option) *Registry {
	r := &Registry{
		path:      path,
		providers: make(map[string]core.ProviderRecord),
		logger:    log.New(io.Discard),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Path returns the backing file.
func (r *Registry) Path() string {
	return r.path
}

// Load reads the persisted providers. A missing file installs and persists
// the defaults. An unreadable or corrupt file falls back to the defaults in
// memory and leaves the file untouched for the operator to inspect.
// The returned error only reports a failure to persist the defaults.
func (r *Registry) Load() error {
	loaded, err := r.read()
	switch {
	case err == nil:
		r.mu.Lock()
		r.providers = loaded
		r.mu.Unlock()
		r.logger.Debug("loaded providers", "path", r.path, "count", len(loaded))
		return nil

	case errors.Is(err, fs.ErrNotExist):
		defaults := defaultMap()
		r.mu.Lock()
		r.providers = defaults
		perr := r.persistLocked(defaults)
		r.mu.Unlock()
		if perr != nil {
			return fmt.Errorf("persisting default providers: %w", perr)
		}
		r.logger.Info("installed default providers", "path", r.path)
		return nil

	default:
		r.logger.Warn("provider configuration unusable, using defaults", "path", r.path, "error", err)
		r.mu.Lock()
		r.providers = defaultMap()
		r.mu.Unlock()
		return nil
	}
}

func defaultMap() map[string]core.ProviderRecord {
	m := make(map[string]core.ProviderRecord)
	for _, p := range DefaultProviders() {
		m[p.Name] = p
	}
	return m
}

func (r *Registry) read() (map[string]core.ProviderRecord, error) {
	if r.path == "" {
		return nil, fs.ErrNotExist
	}
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, err
	}

	var raw map[string]persistedProvider
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", r.path, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("parsing %s: not a provider map", r.path)
	}

	providers := make(map[string]core.ProviderRecord, len(raw))
	for name, p := range raw {
		if err := core.ValidateName("provider", name); err != nil {
			r.logger.Warn("skipping provider", "name", name, "error", err)
			continue
		}
		level, err := core.ParseTrustLevel(p.TrustLevel)
		if err != nil {
			r.logger.Warn("unknown trust level, using LOW", "provider", name, "trust_level", p.TrustLevel)
			level = core.TrustLow
		}
		rec := core.ProviderRecord{
			Name:       name,
			Endpoint:   p.URL,
			PublicKey:  p.PublicKey,
			TrustLevel: level,
			Verified:   p.Verified,
			Layout:     p.Layout,
		}
		if p.AddedAt != "" {
			if t, err := time.Parse(time.RFC3339, p.AddedAt); err == nil {
				rec.AddedAt = t
			}
		}
		providers[name] = rec
	}
	return providers, nil
}

func (r *Registry) persistLocked(providers map[string]core.ProviderRecord) error {
	if r.path == "" {
		return nil
	}
	raw := make(map[string]persistedProvider, len(providers))
	for name, p := range providers {
		pp := persistedProvider{
			URL:        p.Endpoint,
			PublicKey:  p.PublicKey,
			Verified:   p.Verified,
			TrustLevel: string(p.TrustLevel),
			Layout:     p.Layout,
		}
		if !p.AddedAt.IsZero() {
			pp.AddedAt = p.AddedAt.UTC().Format(time.RFC3339)
		}
		raw[name] = pp
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomic(r.path, append(data, '\n'), 0o600)
}

// IsTrusted reports whether the provider is known and verified.
func (r *Registry) IsTrusted(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return ok && p.Verified
}

// Get returns a copy of the provider record.
func (r *Registry) Get(name string) (core.ProviderRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Check returns the provider record if it may be resolved from, or an
// UntrustedProviderError.
func (r *Registry) Check(name string) (core.ProviderRecord, error) {
	p, ok := r.Get(name)
	if !ok {
		return core.ProviderRecord{}, &core.UntrustedProviderError{Provider: name, Reason: "unknown"}
	}
	if !p.Verified {
		return core.ProviderRecord{}, &core.UntrustedProviderError{Provider: name, Reason: "unverified"}
	}
	return p, nil
}

// List returns copies of all records sorted by name.
func (r *Registry) List() []core.ProviderRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.ProviderRecord, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// VerifiedCount returns the number of verified providers.
func (r *Registry) VerifiedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, p := range r.providers {
		if p.Verified {
			n++
		}
	}
	return n
}

// OnAdd registers fn to be called after a provider is added.
func (r *Registry) OnAdd(fn func(core.ProviderRecord)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Add inserts or replaces a provider, marks it verified and persists the
// registry. Listeners run after the record is stored.
func (r *Registry) Add(rec core.ProviderRecord) (core.ProviderRecord, error) {
	if err := core.ValidateName("provider", rec.Name); err != nil {
		return core.ProviderRecord{}, err
	}
	u, err := url.Parse(rec.Endpoint)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return core.ProviderRecord{}, fmt.Errorf("provider %s: endpoint %q must be an absolute http(s) URL", rec.Name, rec.Endpoint)
	}
	if rec.TrustLevel == "" {
		rec.TrustLevel = core.TrustMedium
	}
	rec.Verified = true
	if rec.AddedAt.IsZero() {
		rec.AddedAt = r.now().UTC().Truncate(time.Second)
	}

	r.mu.Lock()
	next := make(map[string]core.ProviderRecord, len(r.providers)+1)
	for k, v := range r.providers {
		next[k] = v
	}
	next[rec.Name] = rec
	if err := r.persistLocked(next); err != nil {
		r.mu.Unlock()
		return core.ProviderRecord{}, fmt.Errorf("persisting provider %s: %w", rec.Name, err)
	}
	r.providers = next
	listeners := append([]func(core.ProviderRecord){}, r.listeners...)
	r.mu.Unlock()

	r.logger.Info("provider added", "provider", rec.Name, "endpoint", rec.Endpoint, "trust_level", rec.TrustLevel)
	for _, fn := range listeners {
		fn(rec)
	}
	return rec, nil
}

// Revoke marks a provider unverified. The record is kept for audit.
func (r *Registry) Revoke(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.providers[name]
	if !ok {
		return fmt.Errorf("provider %s not found", name)
	}
	p.Verified = false

	next := make(map[string]core.ProviderRecord, len(r.providers))
	for k, v := range r.providers {
		next[k] = v
	}
	next[name] = p
	if err := r.persistLocked(next); err != nil {
		return fmt.Errorf("persisting provider %s: %w", name, err)
	}
	r.providers = next
	r.logger.Warn("provider revoked", "provider", name)
	return nil
}
