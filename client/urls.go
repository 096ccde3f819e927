// Package client builds the endpoint URLs a provider publishes artifacts under.
package client

import "strings"

// URLBuilder constructs artifact URLs for one provider endpoint.
type URLBuilder interface {
	// Release returns the URL of the latest released artifact.
	Release(name string) string

	// Source returns the URL of the artifact committed on a source branch.
	Source(name, branch string) string

	// Homepage returns a human-facing page for the package.
	Homepage(name string) string
}

// BaseURLs provides a default URLBuilder implementation.
type BaseURLs struct {
	ReleaseFn  func(name string) string
	SourceFn   func(name, branch string) string
	HomepageFn func(name string) string
}

func (b *BaseURLs) Release(name string) string {
	if b.ReleaseFn != nil {
		return b.ReleaseFn(name)
	}
	return ""
}

func (b *BaseURLs) Source(name, branch string) string {
	if b.SourceFn != nil {
		return b.SourceFn(name, branch)
	}
	return ""
}

func (b *BaseURLs) Homepage(name string) string {
	if b.HomepageFn != nil {
		return b.HomepageFn(name)
	}
	return ""
}

// DefaultBranches are the source branches tried when none are configured.
var DefaultBranches = []string{"main", "master"}

// ArtifactFile is the file name a package is published under.
func ArtifactFile(name string) string {
	return name + ".pkg"
}

// TrimBase removes trailing slashes from an endpoint.
func TrimBase(endpoint string) string {
	return strings.TrimRight(endpoint, "/")
}

// Candidates returns the ordered, de-duplicated list of URLs to try for a
// package: the release URL first, then one source URL per branch.
func Candidates(urls URLBuilder, name string, branches []string) []string {
	if len(branches) == 0 {
		branches = DefaultBranches
	}
	seen := make(map[string]bool)
	var result []string
	add := func(u string) {
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		result = append(result, u)
	}
	add(urls.Release(name))
	for _, b := range branches {
		add(urls.Source(name, b))
	}
	return result
}

// BuildURLs returns a map of all non-empty URLs for a package.
// Keys are "release", "homepage" and "source:<branch>".
func BuildURLs(urls URLBuilder, name string, branches []string) map[string]string {
	if len(branches) == 0 {
		branches = DefaultBranches
	}
	result := make(map[string]string)
	if v := urls.Release(name); v != "" {
		result["release"] = v
	}
	if v := urls.Homepage(name); v != "" {
		result["homepage"] = v
	}
	for _, b := range branches {
		if v := urls.Source(name, b); v != "" {
			result["source:"+b] = v
		}
	}
	return result
}
