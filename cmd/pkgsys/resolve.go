package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	pkgsystem "github.com/Tryboy869/pkg-system"
	"github.com/Tryboy869/pkg-system/internal/core"
)

func newResolveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <ref>...",
		Short: "Resolve packages and print their exported bindings",
		Long: `Resolve one or more references of the form provider/name or
pkg:generic/provider/name and print each resolved module.

The exit code reflects the first failure: 3 untrusted provider,
4 integrity failure, 5 fetch failure, 6 materialization failure.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			refs, err := parseRefs(args)
			if err != nil {
				return withExitCode(err)
			}

			if len(refs) == 1 {
				mod, err := a.sys.Resolve(cmd.Context(), refs[0].Provider, refs[0].Name)
				if err != nil {
					return withExitCode(err)
				}
				return a.render(newModuleView(mod))
			}

			results := a.sys.ResolveAll(cmd.Context(), refs)
			var (
				modules  []moduleView
				failures []resolveFailure
				firstErr error
			)
			for _, r := range refs {
				res, ok := results[r]
				if !ok {
					continue
				}
				if res.Err != nil {
					failures = append(failures, resolveFailure{Ref: r.String(), Kind: string(core.Kind(res.Err)), Error: res.Err.Error()})
					if firstErr == nil {
						firstErr = res.Err
					}
					continue
				}
				modules = append(modules, newModuleView(res.Value))
			}
			out := struct {
				Modules  []moduleView     `json:"modules" yaml:"modules"`
				Failures []resolveFailure `json:"failures,omitempty" yaml:"failures,omitempty"`
			}{modules, failures}
			if err := a.render(out); err != nil {
				return err
			}
			if firstErr != nil {
				return withExitCode(fmt.Errorf("%d of %d references failed: %w", len(failures), len(refs), firstErr))
			}
			return nil
		},
	}
}

func parseRefs(args []string) ([]pkgsystem.Ref, error) {
	refs := make([]pkgsystem.Ref, 0, len(args))
	seen := make(map[pkgsystem.Ref]bool, len(args))
	for _, arg := range args {
		r, err := pkgsystem.ParseRef(arg)
		if err != nil {
			return nil, err
		}
		if !seen[r] {
			seen[r] = true
			refs = append(refs, r)
		}
	}
	if len(refs) == 0 {
		return nil, errors.New("no references given")
	}
	return refs, nil
}

func newCallCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "call <ref> <function> [args...]",
		Short: "Resolve a package and call one of its functions",
		Long: `Resolve a package and call an exported function with the given
arguments. The function's stdout and stderr are passed through and its
exit status becomes the exit code of pkgsys.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mod, err := a.sys.ResolveRef(cmd.Context(), args[0])
			if err != nil {
				return withExitCode(err)
			}
			res, err := mod.Call(cmd.Context(), args[1], args[2:]...)
			if err != nil {
				return withExitCode(err)
			}
			_, _ = fmt.Fprint(a.stdout, res.Stdout)
			_, _ = fmt.Fprint(a.stderr, res.Stderr)
			if res.ExitStatus != 0 {
				return &ExitError{Code: res.ExitStatus}
			}
			return nil
		},
	}
}
