// Package github provides the endpoint layout for providers hosted on GitHub.
//
// A provider endpoint is an account URL such as https://github.com/acme;
// each package lives in a repository named after it.
package github

import (
	"fmt"

	"github.com/Tryboy869/pkg-system/internal/core"
)

const layout = "github"

func init() {
	core.Register(layout, []string{"github.com"}, func(endpoint string) core.URLBuilder {
		return New(endpoint)
	})
}

// URLs builds GitHub release and raw-file URLs.
type URLs struct {
	baseURL string
}

func New(endpoint string) *URLs {
	return &URLs{baseURL: core.TrimBase(endpoint)}
}

func (u *URLs) Release(name string) string {
	return fmt.Sprintf("%s/%s/releases/latest/download/%s", u.baseURL, name, core.ArtifactFile(name))
}

func (u *URLs) Source(name, branch string) string {
	return fmt.Sprintf("%s/%s/raw/%s/%s", u.baseURL, name, branch, core.ArtifactFile(name))
}

func (u *URLs) Homepage(name string) string {
	return fmt.Sprintf("%s/%s", u.baseURL, name)
}
