package synth

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/Tryboy869/pkg-system/internal/artifact"
	"github.com/Tryboy869/pkg-system/internal/core"
	"github.com/Tryboy869/pkg-system/internal/materialize"
)

func TestKind(t *testing.T) {
	tests := map[string]string{
		"webscraper":    KindWebScraper,
		"fastapi_tools": KindFastAPITools,
		"data_tools":    KindDataTools,
		"anything":      KindGeneric,
	}
	for name, want := range tests {
		if got := Kind(name); got != want {
			t.Errorf("Kind(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestSynthesizeManifest(t *testing.T) {
	s := New()
	s.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }

	raw, err := s.Synthesize("acme", "widgets")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	a, err := artifact.Open(raw, 0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	m := a.Manifest
	if !m.Synthesized {
		t.Error("Synthesized = false, want true")
	}
	if m.Signature != nil {
		t.Error("placeholder manifest carries a signature")
	}
	if m.Provider != "acme" || m.Name != "widgets" || m.Version != Version {
		t.Errorf("manifest = %s/%s@%s", m.Provider, m.Name, m.Version)
	}
	if m.CreatedAt != "2026-03-01T00:00:00Z" {
		t.Errorf("CreatedAt = %q", m.CreatedAt)
	}
}

func TestSynthesizeRejectsBadNames(t *testing.T) {
	if _, err := New().Synthesize("acme", "../x"); err == nil {
		t.Error("expected error for path-like name")
	}
}

func materialized(t *testing.T, name string) *materialize.Module {
	t.Helper()
	src := []byte(Source(Kind(name)))
	mod, err := materialize.New().Materialize(context.Background(), &core.PackageArtifact{
		Provider:   "acme",
		Name:       name,
		Version:    Version,
		EntryPoint: artifact.EntryPointFor(name),
		Source:     src,
		Digest:     artifact.Digest(src),
		Provenance: core.Provenance{Origin: core.OriginSynthesized},
	})
	if err != nil {
		t.Fatalf("Materialize(%s) failed: %v", name, err)
	}
	return mod
}

func call(t *testing.T, mod *materialize.Module, fn string, args ...string) string {
	t.Helper()
	res, err := mod.Call(context.Background(), fn, args...)
	if err != nil {
		t.Fatalf("Call(%s) failed: %v", fn, err)
	}
	return res.Stdout
}

func TestPlaceholderFunctions(t *testing.T) {
	for _, name := range []string{"webscraper", "fastapi_tools", "data_tools", "widgets"} {
		mod := materialized(t, name)
		for _, fn := range []string{"hello", "get_info", "process_data"} {
			if !mod.Has(fn) {
				t.Errorf("%s: missing %s", name, fn)
			}
		}
		if !mod.Synthesized() {
			t.Errorf("%s: Synthesized() = false", name)
		}
	}

	mod := materialized(t, "widgets")
	if got, want := call(t, mod, "hello"), "Hello from acme.widgets! Package is working.\n"; got != want {
		t.Errorf("hello = %q, want %q", got, want)
	}
	if got, want := call(t, mod, "process_data", "abc"), `{"input":"abc","output":"ABC","provider":"acme"}`+"\n"; got != want {
		t.Errorf("process_data = %q, want %q", got, want)
	}
}

func TestDataTools(t *testing.T) {
	mod := materialized(t, "data_tools")
	if got, want := call(t, mod, "summary_stats", "3", "1", "2"), `{"count":3,"sum":6,"min":1,"max":3}`+"\n"; got != want {
		t.Errorf("summary_stats = %q, want %q", got, want)
	}
	if got, want := call(t, mod, "parse_csv_string", "a,b", "c"), "[\"a\",\"b\"]\n[\"c\"]\n"; got != want {
		t.Errorf("parse_csv_string = %q, want %q", got, want)
	}
}

func TestWebScraper(t *testing.T) {
	mod := materialized(t, "webscraper")
	html := `<a href="https://a.test/x">x</a> <a href="https://b.test/">b</a>`
	if got, want := call(t, mod, "extract_links", html), "https://a.test/x\nhttps://b.test/\n"; got != want {
		t.Errorf("extract_links = %q, want %q", got, want)
	}
	if got := mod.Functions(); !reflect.DeepEqual(got, []string{"extract_links", "get_info", "get_page_info", "hello", "process_data", "scrape_url"}) {
		t.Errorf("Functions() = %v", got)
	}
}
