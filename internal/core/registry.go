package core

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// FallbackLayout is used for endpoints whose host matches no registered layout.
const FallbackLayout = "static"

// Factory creates a URL builder for a provider endpoint.
type Factory func(endpoint string) URLBuilder

var (
	factories = make(map[string]Factory)
	hosts     = make(map[string]string) // host -> layout
	mu        sync.RWMutex
)

// Register adds an endpoint layout to the global registry.
// hostNames are the hosts the layout is detected for (e.g. "github.com").
func Register(layout string, hostNames []string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[layout] = factory
	for _, h := range hostNames {
		hosts[strings.ToLower(h)] = layout
	}
}

// New creates a URL builder for endpoint using the named layout.
// If layout is empty, it is detected from the endpoint host.
func New(layout, endpoint string) (URLBuilder, error) {
	if layout == "" {
		layout = DetectLayout(endpoint)
	}

	mu.RLock()
	factory, ok := factories[layout]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown endpoint layout: %s", layout)
	}
	if endpoint == "" {
		return nil, fmt.Errorf("empty endpoint for layout %s", layout)
	}

	return factory(TrimBase(endpoint)), nil
}

// ForProvider creates the URL builder for a provider record.
func ForProvider(rec ProviderRecord) (URLBuilder, error) {
	return New(rec.Layout, rec.Endpoint)
}

// DetectLayout returns the layout registered for the endpoint's host, its
// parent domains, or FallbackLayout.
func DetectLayout(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return FallbackLayout
	}
	host := strings.ToLower(u.Hostname())

	mu.RLock()
	defer mu.RUnlock()
	for host != "" {
		if layout, ok := hosts[host]; ok {
			return layout
		}
		i := strings.IndexByte(host, '.')
		if i < 0 {
			break
		}
		host = host[i+1:]
	}
	return FallbackLayout
}

// SupportedLayouts returns all registered layout names, sorted.
func SupportedLayouts() []string {
	mu.RLock()
	defer mu.RUnlock()

	layouts := make([]string, 0, len(factories))
	for l := range factories {
		layouts = append(layouts, l)
	}
	sort.Strings(layouts)
	return layouts
}
