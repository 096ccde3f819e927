package materialize

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Tryboy869/pkg-system/internal/core"
)

func artifactFor(src string) *core.PackageArtifact {
	return &core.PackageArtifact{
		Provider:   "acme",
		Name:       "tools",
		Version:    "1.0.0",
		EntryPoint: "tools.sh",
		Source:     []byte(src),
		Digest:     "sha256:test",
		Provenance: core.Provenance{Origin: core.OriginNetwork},
	}
}

const toolsSource = `
VERSION_LABEL="tools $PKG_VERSION"
GREETING=hello
_private=1

greet() {
	echo "$GREETING ${1:-world}"
}

fail_with() {
	return "$1"
}

_helper() { :; }

echo "loaded $PKG_PROVIDER/$PKG_NAME"
`

func TestMaterializeExports(t *testing.T) {
	mod, err := New().Materialize(context.Background(), artifactFor(toolsSource))
	if err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}

	if got, want := mod.Functions(), []string{"fail_with", "greet"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Functions() = %v, want %v", got, want)
	}
	want := map[string]string{"GREETING": "hello", "VERSION_LABEL": "tools 1.0.0"}
	if got := mod.Values(); !reflect.DeepEqual(got, want) {
		t.Errorf("Values() = %v, want %v", got, want)
	}
	if mod.Has("_private") || mod.Has("_helper") || mod.Has("PKG_NAME") {
		t.Error("private or reserved binding exported")
	}
	if mod.Output != "loaded acme/tools\n" {
		t.Errorf("Output = %q", mod.Output)
	}
	if mod.PURL != "pkg:generic/acme/tools@1.0.0" {
		t.Errorf("PURL = %q", mod.PURL)
	}
}

func TestModuleCall(t *testing.T) {
	mod, err := New().Materialize(context.Background(), artifactFor(toolsSource))
	if err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}

	res, err := mod.Call(context.Background(), "greet", "gopher")
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if res.Stdout != "hello gopher\n" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "hello gopher\n")
	}
	if res.ExitStatus != 0 {
		t.Errorf("ExitStatus = %d, want 0", res.ExitStatus)
	}

	res, err = mod.Call(context.Background(), "fail_with", "3")
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if res.ExitStatus != 3 {
		t.Errorf("ExitStatus = %d, want 3", res.ExitStatus)
	}

	if _, err := mod.Call(context.Background(), "_helper"); !errors.Is(err, ErrNoSuchFunction) {
		t.Errorf("Call(_helper) err = %v, want ErrNoSuchFunction", err)
	}
}

func TestModuleCallConcurrent(t *testing.T) {
	mod, err := New().Materialize(context.Background(), artifactFor(toolsSource))
	if err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := mod.Call(context.Background(), "greet", "x")
			if err != nil || res.Stdout != "hello x\n" {
				t.Errorf("Call = %+v, %v", res, err)
			}
		}()
	}
	wg.Wait()
}

func TestCallDoesNotLeakState(t *testing.T) {
	src := "COUNT=0\nbump() { COUNT=$((COUNT+1)); echo $COUNT; }\n"
	mod, err := New().Materialize(context.Background(), artifactFor(src))
	if err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		res, err := mod.Call(context.Background(), "bump")
		if err != nil {
			t.Fatal(err)
		}
		if res.Stdout != "1\n" {
			t.Errorf("call %d Stdout = %q, want %q", i, res.Stdout, "1\n")
		}
	}
}

func TestExportsRestriction(t *testing.T) {
	src := "PKG_EXPORTS=\"greet NAME\"\nNAME=x\nOTHER=y\ngreet() { echo hi; }\nhidden() { :; }\n"
	mod, err := New().Materialize(context.Background(), artifactFor(src))
	if err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}
	if got := mod.Functions(); !reflect.DeepEqual(got, []string{"greet"}) {
		t.Errorf("Functions() = %v, want [greet]", got)
	}
	if _, ok := mod.Value("OTHER"); ok {
		t.Error("OTHER exported despite PKG_EXPORTS")
	}
	if v, _ := mod.Value("NAME"); v != "x" {
		t.Errorf("Value(NAME) = %q, want x", v)
	}
}

func TestMaterializeFailures(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		timeout time.Duration
		wantErr string
	}{
		{"syntax error", "greet() {\n", 0, "parse"},
		{"non-zero init", "echo boom >&2\nexit 4\n", 0, "status 4"},
		{"external command", "ls /\n", 0, "status 127"},
		{"file read", "read -r line < /etc/passwd || exit 9\n", 0, "status 9"},
		{"undefined export", "PKG_EXPORTS=missing\n", 0, "undefined binding"},
		{"timeout", "while :; do :; done\n", 50 * time.Millisecond, "did not finish"},
		{"process substitution", "P=$(echo <(echo hi))\nread -r LINE < \"$P\"\n", 0, "process substitution"},
		{"process substitution in function", "f() { cat <(echo hi); }\n", 0, "process substitution"},
		{"process substitution via eval", "eval 'X=$(echo <(echo hi))'\n", 0, "process substitution"},
		{"process substitution via trap", "trap 'echo <(echo hi)' EXIT\n", 0, "process substitution"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []Option
			if tt.timeout > 0 {
				opts = append(opts, WithTimeout(tt.timeout))
			}
			_, err := New(opts...).Materialize(context.Background(), artifactFor(tt.src))
			if !errors.Is(err, core.ErrMaterialization) {
				t.Fatalf("err = %v, want ErrMaterialization", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestSandboxAllowsDevNull(t *testing.T) {
	src := "echo discarded > /dev/null\nOK=1\n"
	mod, err := New().Materialize(context.Background(), artifactFor(src))
	if err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}
	if v, _ := mod.Value("OK"); v != "1" {
		t.Errorf("Value(OK) = %q, want 1", v)
	}
}

func TestCallRejectsDynamicProcSubst(t *testing.T) {
	mod, err := New().Materialize(context.Background(), artifactFor("run() { eval \"$1\"; }\n"))
	if err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}
	_, err = mod.Call(context.Background(), "run", "cat <(echo hi)")
	if err == nil || !strings.Contains(err.Error(), ErrProcSubst.Error()) {
		t.Errorf("err = %v, want %v", err, ErrProcSubst)
	}
}

func TestCallDefaultTimeout(t *testing.T) {
	mod, err := New(WithTimeout(50*time.Millisecond)).Materialize(context.Background(), artifactFor("spin() { while :; do :; done; }\n"))
	if err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := mod.Call(context.Background(), "spin")
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("err = %v, want DeadlineExceeded", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Call did not return")
	}
}
