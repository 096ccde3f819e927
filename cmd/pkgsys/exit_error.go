package main

import (
	"fmt"

	"github.com/Tryboy869/pkg-system/internal/core"
)

// Exit codes by error kind.
const (
	ExitOther           = 1
	ExitUntrusted       = 3
	ExitIntegrity       = 4
	ExitFetch           = 5
	ExitMaterialization = 6
)

// ExitError signals a non-zero exit code without forcing os.Exit in RunE handlers.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// exitCode maps a resolution error to the process exit code.
func exitCode(err error) int {
	switch core.Kind(err) {
	case core.KindNone:
		return 0
	case core.KindUntrusted:
		return ExitUntrusted
	case core.KindIntegrity:
		return ExitIntegrity
	case core.KindFetch:
		return ExitFetch
	case core.KindMaterialization:
		return ExitMaterialization
	default:
		return ExitOther
	}
}

// withExitCode wraps err so main exits with the code of its kind.
func withExitCode(err error) error {
	if err == nil {
		return nil
	}
	return &ExitError{Code: exitCode(err), Err: err}
}
