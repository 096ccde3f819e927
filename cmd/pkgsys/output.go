package main

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/git-pkgs/spdx"
	"gopkg.in/yaml.v3"

	pkgsystem "github.com/Tryboy869/pkg-system"
)

// render writes v to stdout in the selected output format.
func (a *app) render(v any) error {
	if a.output == "json" {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	enc := yaml.NewEncoder(a.stdout)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

type moduleView struct {
	PURL        string            `json:"purl" yaml:"purl"`
	Provider    string            `json:"provider" yaml:"provider"`
	Name        string            `json:"name" yaml:"name"`
	Version     string            `json:"version" yaml:"version"`
	Digest      string            `json:"digest" yaml:"digest"`
	License     string            `json:"license,omitempty" yaml:"license,omitempty"`
	Categories  []string          `json:"license_categories,omitempty" yaml:"license_categories,omitempty"`
	Origin      string            `json:"origin" yaml:"origin"`
	URL         string            `json:"url,omitempty" yaml:"url,omitempty"`
	Synthesized bool              `json:"synthesized" yaml:"synthesized"`
	Functions   []string          `json:"functions" yaml:"functions"`
	Values      map[string]string `json:"values,omitempty" yaml:"values,omitempty"`
	Output      string            `json:"output,omitempty" yaml:"output,omitempty"`
}

func newModuleView(m *pkgsystem.Module) moduleView {
	return moduleView{
		PURL:        m.PURL,
		Provider:    m.Provider,
		Name:        m.Name,
		Version:     m.Version,
		Digest:      m.Digest,
		License:     m.License,
		Categories:  licenseCategories(m.License),
		Origin:      string(m.Provenance.Origin),
		URL:         m.Provenance.URL,
		Synthesized: m.Synthesized(),
		Functions:   m.Functions(),
		Values:      m.Values(),
		Output:      m.Output,
	}
}

func licenseCategories(expr string) []string {
	if expr == "" {
		return nil
	}
	cats, err := spdx.ExpressionCategories(expr)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(cats))
	for _, c := range cats {
		out = append(out, string(c))
	}
	sort.Strings(out)
	return out
}

type providerView struct {
	Name       string `json:"name" yaml:"name"`
	Endpoint   string `json:"endpoint" yaml:"endpoint"`
	TrustLevel string `json:"trust_level" yaml:"trust_level"`
	Verified   bool   `json:"verified" yaml:"verified"`
	Layout     string `json:"layout,omitempty" yaml:"layout,omitempty"`
	Key        string `json:"key" yaml:"key"`
	AddedAt    string `json:"added_at,omitempty" yaml:"added_at,omitempty"`
}

func newProviderView(r pkgsystem.ProviderRecord) providerView {
	v := providerView{
		Name:       r.Name,
		Endpoint:   r.Endpoint,
		TrustLevel: string(r.TrustLevel),
		Verified:   r.Verified,
		Layout:     r.Layout,
		Key:        keyKind(r.PublicKey),
	}
	if !r.AddedAt.IsZero() {
		v.AddedAt = r.AddedAt.UTC().Format(time.RFC3339)
	}
	return v
}

func keyKind(k string) string {
	switch {
	case k == "":
		return "none"
	case strings.Contains(k, "PGP PUBLIC KEY BLOCK"):
		return "openpgp"
	default:
		return "ed25519"
	}
}

type cacheView struct {
	Provider string `json:"provider" yaml:"provider"`
	Name     string `json:"name" yaml:"name"`
	Size     int64  `json:"size" yaml:"size"`
	StoredAt string `json:"stored_at" yaml:"stored_at"`
	Path     string `json:"path" yaml:"path"`
}

func newCacheViews(entries []pkgsystem.CacheEntry) []cacheView {
	views := make([]cacheView, 0, len(entries))
	for _, e := range entries {
		views = append(views, cacheView{
			Provider: e.Provider,
			Name:     e.Name,
			Size:     e.Size,
			StoredAt: e.StoredAt.UTC().Format(time.RFC3339),
			Path:     e.Path,
		})
	}
	sort.Slice(views, func(i, j int) bool {
		if views[i].Provider != views[j].Provider {
			return views[i].Provider < views[j].Provider
		}
		return views[i].Name < views[j].Name
	})
	return views
}

type resolveFailure struct {
	Ref   string `json:"ref" yaml:"ref"`
	Kind  string `json:"kind" yaml:"kind"`
	Error string `json:"error" yaml:"error"`
}
