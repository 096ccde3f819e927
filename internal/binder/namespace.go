package binder

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Tryboy869/pkg-system/internal/materialize"
)

// State is the resolution state of one package within a namespace.
type State int

const (
	Unresolved State = iota
	Resolving
	Resolved
	Failed
)

func (s State) String() string {
	switch s {
	case Unresolved:
		return "UNRESOLVED"
	case Resolving:
		return "RESOLVING"
	case Resolved:
		return "RESOLVED"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

type entry struct {
	state State
	mod   *materialize.Module
	err   error
	done  chan struct{}
}

// Namespace is the lazy view of one provider's packages. Successful
// resolutions are kept for the life of the process; failures are not, so
// the next Get retries.
type Namespace struct {
	provider string
	binder   *Binder

	mu      sync.Mutex
	entries map[string]*entry
}

// Provider returns the provider name.
func (n *Namespace) Provider() string {
	return n.provider
}

// Get returns the module for name, resolving it on first access. Callers
// that arrive while a resolution is in flight wait for its outcome; the
// result is stored before any of them is released.
func (n *Namespace) Get(ctx context.Context, name string) (*materialize.Module, error) {
	n.mu.Lock()
	e, ok := n.entries[name]
	if ok && e.state == Resolved {
		n.mu.Unlock()
		return e.mod, nil
	}
	if !ok || e.state != Resolving {
		e = &entry{state: Resolving, done: make(chan struct{})}
		n.entries[name] = e
		go n.resolve(context.WithoutCancel(ctx), name, e)
	}
	n.mu.Unlock()

	select {
	case <-e.done:
		if e.err != nil {
			return nil, e.err
		}
		return e.mod, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("get %s/%s: %w", n.provider, name, ctx.Err())
	}
}

// resolve runs the shared resolution for e and publishes its outcome.
func (n *Namespace) resolve(ctx context.Context, name string, e *entry) {
	mod, err := n.binder.do(ctx, n.provider, name)

	n.mu.Lock()
	defer n.mu.Unlock()
	if err != nil {
		e.state, e.err = Failed, err
	} else {
		e.state, e.mod = Resolved, mod
	}
	close(e.done)
}

// State reports the resolution state of name.
func (n *Namespace) State(name string) State {
	n.mu.Lock()
	defer n.mu.Unlock()
	if e, ok := n.entries[name]; ok {
		return e.state
	}
	return Unresolved
}

// Err returns the error of the last failed resolution of name.
func (n *Namespace) Err(name string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if e, ok := n.entries[name]; ok && e.state == Failed {
		return e.err
	}
	return nil
}

// Loaded returns the names of resolved packages, sorted.
func (n *Namespace) Loaded() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var names []string
	for name, e := range n.entries {
		if e.state == Resolved {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
