// Package synth builds unsigned placeholder artifacts for packages no
// endpoint could serve. Placeholders are only used when strict mode is off.
package synth

import (
	"fmt"
	"time"

	"github.com/Tryboy869/pkg-system/internal/artifact"
	"github.com/Tryboy869/pkg-system/internal/core"
)

// Version is the version recorded in every placeholder manifest.
const Version = "0.0.0-placeholder"

// Synthesizer creates placeholder artifacts.
type Synthesizer struct {
	now func() time.Time
}

// New creates a Synthesizer.
func New() *Synthesizer {
	return &Synthesizer{now: time.Now}
}

// Synthesize returns an unsigned artifact archive whose manifest is marked
// synthesized. Known example package names get a themed entry point; every
// other name gets the generic one.
func (s *Synthesizer) Synthesize(provider, name string) ([]byte, error) {
	if err := core.ValidateName("provider", provider); err != nil {
		return nil, err
	}
	if err := core.ValidateName("package", name); err != nil {
		return nil, err
	}

	kind := Kind(name)
	raw, err := artifact.Build(artifact.Spec{
		Name:        name,
		Provider:    provider,
		Version:     Version,
		Source:      []byte(Source(kind)),
		Description: fmt.Sprintf("Locally generated %s placeholder, not published by %s", kind, provider),
		Author:      "pkg-system",
		License:     "MIT",
		Synthesized: true,
		CreatedAt:   s.now(),
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("synthesize %s/%s: %w", provider, name, err)
	}
	return raw, nil
}
