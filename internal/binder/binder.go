// Package binder exposes each trusted provider as a namespace whose
// packages resolve lazily, at most once at a time per package.
package binder

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/Tryboy869/pkg-system/internal/core"
	"github.com/Tryboy869/pkg-system/internal/materialize"
)

// DefaultTimeout bounds one shared resolution.
const DefaultTimeout = 2 * time.Minute

// Pipeline resolves, validates and materializes one package.
type Pipeline func(ctx context.Context, provider, name string) (*materialize.Module, error)

// Binder owns the provider namespaces and the per-package single-flight group.
type Binder struct {
	run     Pipeline
	timeout time.Duration
	logger  *log.Logger

	group singleflight.Group

	mu         sync.RWMutex
	namespaces map[string]*Namespace
}

// Option configures a Binder.
type Option func(*Binder)

// WithTimeout bounds a shared resolution once it has started. Callers that
// give up earlier do not cancel it.
func WithTimeout(d time.Duration) Option {
	return func(b *Binder) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(b *Binder) {
		b.logger = l
	}
}

// New creates a Binder that resolves packages with run.
func New(run Pipeline, opts ...Option) *Binder {
	b := &Binder{
		run:        run,
		timeout:    DefaultTimeout,
		logger:     log.New(io.Discard),
		namespaces: make(map[string]*Namespace),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Bind returns the namespace for provider, creating it on first use.
func (b *Binder) Bind(provider string) *Namespace {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ns, ok := b.namespaces[provider]; ok {
		return ns
	}
	ns := &Namespace{provider: provider, binder: b, entries: make(map[string]*entry)}
	b.namespaces[provider] = ns
	b.logger.Debug("bound provider namespace", "provider", provider)
	return ns
}

// Namespace returns the namespace bound for provider.
func (b *Binder) Namespace(provider string) (*Namespace, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ns, ok := b.namespaces[provider]
	return ns, ok
}

// Providers returns the bound provider names, sorted.
func (b *Binder) Providers() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.namespaces))
	for n := range b.namespaces {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Resolve runs the pipeline for provider/name without memoizing the result.
// Concurrent calls for the same package share one run.
func (b *Binder) Resolve(ctx context.Context, provider, name string) (*materialize.Module, error) {
	return b.do(ctx, provider, name)
}

func (b *Binder) do(ctx context.Context, provider, name string) (*materialize.Module, error) {
	key := core.Ref{Provider: provider, Name: name}.String()

	ch := b.group.DoChan(key, func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
		defer cancel()
		return b.run(runCtx, provider, name)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*materialize.Module), nil
	case <-ctx.Done():
		b.logger.Debug("caller stopped waiting, resolution continues", "key", key)
		return nil, fmt.Errorf("resolve %s: %w", key, ctx.Err())
	}
}
