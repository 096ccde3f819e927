// Package materialize turns validated artifacts into callable modules by
// running their entry point in a sandboxed shell interpreter.
package materialize

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/Tryboy869/pkg-system/internal/core"
)

const (
	// ExportsVar restricts the exported bindings to a space separated list.
	ExportsVar = "PKG_EXPORTS"

	// DefaultTimeout bounds entry point initialization.
	DefaultTimeout = 5 * time.Second

	reservedPrefix = "PKG_"
	maxInitOutput  = 64 << 10
)

// Materializer runs entry points.
type Materializer struct {
	timeout time.Duration
	logger  *log.Logger
}

// Option configures a Materializer.
type Option func(*Materializer)

// WithTimeout bounds entry point initialization.
func WithTimeout(d time.Duration) Option {
	return func(m *Materializer) {
		m.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(m *Materializer) {
		m.logger = l
	}
}

// New creates a Materializer.
func New(opts ...Option) *Materializer {
	m := &Materializer{
		timeout: DefaultTimeout,
		logger:  log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Materialize executes the artifact's entry point in a fresh runner and
// returns the module its public bindings define.
func (m *Materializer) Materialize(ctx context.Context, a *core.PackageArtifact) (*Module, error) {
	fail := func(err error) error {
		return &core.MaterializationError{Provider: a.Provider, Name: a.Name, Err: err}
	}

	prog, err := syntax.NewParser().Parse(bytes.NewReader(a.Source), a.EntryPoint)
	if err != nil {
		return nil, fail(fmt.Errorf("parse %s: %w", a.EntryPoint, err))
	}
	if err := rejectProcSubst(prog); err != nil {
		return nil, fail(err)
	}

	var stdout, stderr limitedBuffer
	stdout.limit, stderr.limit = maxInitOutput, maxInitOutput
	runner, err := interp.New(
		interp.Dir(os.TempDir()),
		interp.Env(expand.ListEnviron(
			"PKG_PROVIDER="+a.Provider,
			"PKG_NAME="+a.Name,
			"PKG_VERSION="+a.Version,
		)),
		interp.StdIO(nil, &stdout, &stderr),
		interp.CallHandler(denyDynamicProcSubst),
		interp.ExecHandlers(denyExec),
		interp.OpenHandler(denyOpen),
		interp.StatHandler(denyStat),
		interp.ReadDirHandler2(denyReadDir),
		interp.Params("-f"),
	)
	if err != nil {
		return nil, fail(fmt.Errorf("create interpreter: %w", err))
	}

	initCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := runner.Run(initCtx, prog); err != nil {
		if ctxErr := initCtx.Err(); ctxErr != nil {
			return nil, fail(fmt.Errorf("initialization did not finish: %w", ctxErr))
		}
		var exitStatus interp.ExitStatus
		if errors.As(err, &exitStatus) {
			return nil, fail(fmt.Errorf("initialization exited with status %d: %s", exitStatus, strings.TrimSpace(stderr.String())))
		}
		return nil, fail(err)
	}

	funcs, values, err := exports(prog, runner)
	if err != nil {
		return nil, fail(err)
	}

	m.logger.Debug("materialized module", "provider", a.Provider, "name", a.Name, "functions", len(funcs), "values", len(values))

	return &Module{
		Provider:   a.Provider,
		Name:       a.Name,
		Version:    a.Version,
		Digest:     a.Digest,
		PURL:       core.ModulePURL(a.Provider, a.Name, a.Version),
		License:    a.Manifest.License,
		Provenance: a.Provenance,
		LoadedAt:   time.Now(),
		Output:     stdout.String(),
		runner:     runner,
		funcs:      funcs,
		values:     values,

		callTimeout: m.timeout,
		synthesized: a.Synthesized(),
	}, nil
}

// exports collects the public bindings left by initialization: every
// function plus every variable assigned at the top level of the script.
func exports(prog *syntax.File, runner *interp.Runner) (map[string]bool, map[string]string, error) {
	funcs := make(map[string]bool)
	for name := range runner.Funcs {
		if public(name) {
			funcs[name] = true
		}
	}

	values := make(map[string]string)
	for _, name := range topLevelAssignments(prog) {
		if !public(name) {
			continue
		}
		if v, ok := runner.Vars[name]; ok && v.IsSet() {
			values[name] = v.String()
		}
	}

	v, ok := runner.Vars[ExportsVar]
	if !ok || !v.IsSet() {
		return funcs, values, nil
	}

	wanted := strings.Fields(v.String())
	restrictedFuncs := make(map[string]bool)
	restrictedValues := make(map[string]string)
	for _, name := range wanted {
		switch {
		case funcs[name]:
			restrictedFuncs[name] = true
		case hasKey(values, name):
			restrictedValues[name] = values[name]
		default:
			return nil, nil, fmt.Errorf("%s names undefined binding %q", ExportsVar, name)
		}
	}
	return restrictedFuncs, restrictedValues, nil
}

func topLevelAssignments(prog *syntax.File) []string {
	seen := make(map[string]bool)
	var names []string
	syntax.Walk(prog, func(node syntax.Node) bool {
		switch n := node.(type) {
		case *syntax.FuncDecl:
			return false
		case *syntax.Assign:
			if n.Name != nil && !seen[n.Name.Value] {
				seen[n.Name.Value] = true
				names = append(names, n.Name.Value)
			}
		}
		return true
	})
	sort.Strings(names)
	return names
}

func public(name string) bool {
	return name != "" && !strings.HasPrefix(name, "_") && !strings.HasPrefix(name, reservedPrefix)
}

func hasKey(m map[string]string, k string) bool {
	_, ok := m[k]
	return ok
}

// limitedBuffer keeps the first limit bytes written and drops the rest.
type limitedBuffer struct {
	bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.Len(); room > 0 {
		if len(p) > room {
			b.Buffer.Write(p[:room])
		} else {
			b.Buffer.Write(p)
		}
	}
	return len(p), nil
}
