// Package bitbucket provides the endpoint layout for providers hosted on Bitbucket.
package bitbucket

import (
	"fmt"

	"github.com/Tryboy869/pkg-system/internal/core"
)

const layout = "bitbucket"

func init() {
	core.Register(layout, []string{"bitbucket.org"}, func(endpoint string) core.URLBuilder {
		return New(endpoint)
	})
}

// URLs builds Bitbucket download and raw-file URLs.
type URLs struct {
	baseURL string
}

func New(endpoint string) *URLs {
	return &URLs{baseURL: core.TrimBase(endpoint)}
}

// Release points at the repository's Downloads area, which has no notion
// of "latest"; providers upload the current artifact under a fixed name.
func (u *URLs) Release(name string) string {
	return fmt.Sprintf("%s/%s/downloads/%s", u.baseURL, name, core.ArtifactFile(name))
}

func (u *URLs) Source(name, branch string) string {
	return fmt.Sprintf("%s/%s/raw/%s/%s", u.baseURL, name, branch, core.ArtifactFile(name))
}

func (u *URLs) Homepage(name string) string {
	return fmt.Sprintf("%s/%s", u.baseURL, name)
}
