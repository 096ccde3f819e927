package core

import (
	"github.com/Tryboy869/pkg-system/client"
)

// Type aliases so layout implementations only import core.
type (
	URLBuilder = client.URLBuilder
	BaseURLs   = client.BaseURLs
)

// Function aliases for layout implementations.
var (
	ArtifactFile = client.ArtifactFile
	TrimBase     = client.TrimBase
	Candidates   = client.Candidates
	BuildURLs    = client.BuildURLs
)
