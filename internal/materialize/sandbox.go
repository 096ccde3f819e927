package materialize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// ExitCommandDenied is the status reported when a script runs an external program.
const ExitCommandDenied = 127

const devNull = "/dev/null"

// denyExec refuses every external program. Builtins and functions never reach it.
func denyExec(next interp.ExecHandlerFunc) interp.ExecHandlerFunc {
	return func(ctx context.Context, args []string) error {
		hc := interp.HandlerCtx(ctx)
		if len(args) > 0 {
			_, _ = fmt.Fprintf(hc.Stderr, "%s: external commands are not available\n", args[0])
		}
		return interp.NewExitStatus(ExitCommandDenied)
	}
}

// ErrProcSubst is returned for scripts that use process substitution, which
// the interpreter implements with fifos in the host temp directory.
var ErrProcSubst = errors.New("process substitution is not available")

// rejectProcSubst reports the first process substitution in node.
func rejectProcSubst(node syntax.Node) error {
	var found *syntax.ProcSubst
	syntax.Walk(node, func(n syntax.Node) bool {
		if ps, ok := n.(*syntax.ProcSubst); ok && found == nil {
			found = ps
		}
		return found == nil
	})
	if found != nil {
		return fmt.Errorf("%w: %s", ErrProcSubst, found.Pos())
	}
	return nil
}

// denyDynamicProcSubst applies rejectProcSubst to source that builtins parse
// at run time.
func denyDynamicProcSubst(_ context.Context, args []string) ([]string, error) {
	if len(args) < 2 {
		return args, nil
	}
	switch args[0] {
	case "eval", "trap", "alias":
	default:
		return args, nil
	}
	prog, err := syntax.NewParser().Parse(strings.NewReader(strings.Join(args[1:], " ")), args[0])
	if err != nil {
		// The builtin reports its own parse error.
		return args, nil
	}
	if err := rejectProcSubst(prog); err != nil {
		return nil, fmt.Errorf("%s: %w", args[0], err)
	}
	return args, nil
}

func denyOpen(_ context.Context, path string, _ int, _ os.FileMode) (io.ReadWriteCloser, error) {
	if path == devNull {
		return nullFile{}, nil
	}
	return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrPermission}
}

func denyStat(_ context.Context, name string, _ bool) (fs.FileInfo, error) {
	return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrPermission}
}

func denyReadDir(_ context.Context, path string) ([]fs.DirEntry, error) {
	return nil, &fs.PathError{Op: "readdir", Path: path, Err: fs.ErrPermission}
}

type nullFile struct{}

func (nullFile) Read([]byte) (int, error)    { return 0, io.EOF }
func (nullFile) Write(p []byte) (int, error) { return len(p), nil }
func (nullFile) Close() error                { return nil }
