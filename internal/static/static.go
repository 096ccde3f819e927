// Package static provides the fallback endpoint layout for providers that
// serve artifacts from a plain HTTP directory.
package static

import (
	"fmt"

	"github.com/Tryboy869/pkg-system/internal/core"
)

func init() {
	core.Register(core.FallbackLayout, nil, func(endpoint string) core.URLBuilder {
		return New(endpoint)
	})
}

// URLs builds URLs for <endpoint>/<name>/<name>.pkg, falling back to a
// flat <endpoint>/<name>.pkg listing. Branches do not apply.
type URLs struct {
	baseURL string
}

func New(endpoint string) *URLs {
	return &URLs{baseURL: core.TrimBase(endpoint)}
}

func (u *URLs) Release(name string) string {
	return fmt.Sprintf("%s/%s/%s", u.baseURL, name, core.ArtifactFile(name))
}

func (u *URLs) Source(name, _ string) string {
	return fmt.Sprintf("%s/%s", u.baseURL, core.ArtifactFile(name))
}

func (u *URLs) Homepage(name string) string {
	return fmt.Sprintf("%s/%s/", u.baseURL, name)
}
