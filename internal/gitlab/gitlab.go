// Package gitlab provides the endpoint layout for providers hosted on GitLab.
package gitlab

import (
	"fmt"

	"github.com/Tryboy869/pkg-system/internal/core"
)

const layout = "gitlab"

func init() {
	core.Register(layout, []string{"gitlab.com"}, func(endpoint string) core.URLBuilder {
		return New(endpoint)
	})
}

// URLs builds GitLab release permalink and raw-file URLs.
type URLs struct {
	baseURL string
}

func New(endpoint string) *URLs {
	return &URLs{baseURL: core.TrimBase(endpoint)}
}

func (u *URLs) Release(name string) string {
	return fmt.Sprintf("%s/%s/-/releases/permalink/latest/downloads/%s", u.baseURL, name, core.ArtifactFile(name))
}

func (u *URLs) Source(name, branch string) string {
	return fmt.Sprintf("%s/%s/-/raw/%s/%s", u.baseURL, name, branch, core.ArtifactFile(name))
}

func (u *URLs) Homepage(name string) string {
	return fmt.Sprintf("%s/%s", u.baseURL, name)
}
