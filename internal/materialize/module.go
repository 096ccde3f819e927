package materialize

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/Tryboy869/pkg-system/internal/core"
)

// ErrNoSuchFunction is returned by Call for names the module does not export.
var ErrNoSuchFunction = errors.New("module does not export function")

// Module is a materialized package. It is immutable once created; every
// call runs in its own subshell of the initialized runner.
type Module struct {
	Provider   string
	Name       string
	Version    string
	Digest     string
	PURL       string
	License    string // canonical SPDX expression, empty when undeclared
	Provenance core.Provenance
	LoadedAt   time.Time
	Output     string // stdout produced by initialization

	mu          sync.Mutex // guards Subshell on runner
	runner      *interp.Runner
	funcs       map[string]bool
	values      map[string]string
	callTimeout time.Duration
	synthesized bool
}

// CallResult is the outcome of one function call.
type CallResult struct {
	Stdout     string
	Stderr     string
	ExitStatus int
}

// Call runs an exported function with args. When ctx has no deadline the
// call is bounded by the materializer timeout.
func (m *Module) Call(ctx context.Context, fn string, args ...string) (*CallResult, error) {
	if !m.funcs[fn] {
		return nil, fmt.Errorf("%w: %s/%s.%s", ErrNoSuchFunction, m.Provider, m.Name, fn)
	}

	stmt, err := syntax.NewParser().Parse(strings.NewReader(fn+` "$@"`), fn)
	if err != nil {
		return nil, fmt.Errorf("prepare call %s: %w", fn, err)
	}
	if err := rejectProcSubst(stmt); err != nil {
		return nil, fmt.Errorf("prepare call %s: %w", fn, err)
	}

	if _, ok := ctx.Deadline(); !ok && m.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.callTimeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	m.mu.Lock()
	sub := m.runner.Subshell()
	m.mu.Unlock()
	if err := interp.StdIO(nil, &stdout, &stderr)(sub); err != nil {
		return nil, fmt.Errorf("prepare call %s: %w", fn, err)
	}
	sub.Params = args

	res := &CallResult{}
	err = sub.Run(ctx, stmt)
	res.Stdout, res.Stderr = stdout.String(), stderr.String()
	if err != nil {
		var exitStatus interp.ExitStatus
		if !errors.As(err, &exitStatus) {
			return res, fmt.Errorf("call %s: %w", fn, err)
		}
		res.ExitStatus = int(exitStatus)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, fmt.Errorf("call %s: %w", fn, ctxErr)
	}
	return res, nil
}

// Value returns an exported variable.
func (m *Module) Value(name string) (string, bool) {
	v, ok := m.values[name]
	return v, ok
}

// Values returns a copy of the exported variables.
func (m *Module) Values() map[string]string {
	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

// Functions returns the exported function names, sorted.
func (m *Module) Functions() []string {
	names := make([]string, 0, len(m.funcs))
	for n := range m.funcs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name is an exported function or variable.
func (m *Module) Has(name string) bool {
	if m.funcs[name] {
		return true
	}
	_, ok := m.values[name]
	return ok
}

// Synthesized reports whether the module came from a placeholder artifact.
func (m *Module) Synthesized() bool {
	return m.synthesized
}

func (m *Module) String() string {
	return m.PURL
}
