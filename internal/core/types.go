// Package core provides shared types, error kinds and the endpoint layout registry.
package core

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// TrustLevel is an informational ranking attached to a provider.
type TrustLevel string

const (
	TrustLow    TrustLevel = "LOW"
	TrustMedium TrustLevel = "MEDIUM"
	TrustHigh   TrustLevel = "HIGH"
)

// Rank orders trust levels; unknown levels rank below LOW.
func (l TrustLevel) Rank() int {
	switch l {
	case TrustLow:
		return 1
	case TrustMedium:
		return 2
	case TrustHigh:
		return 3
	default:
		return 0
	}
}

// ParseTrustLevel accepts a level name in any case. Empty input yields MEDIUM.
func ParseTrustLevel(s string) (TrustLevel, error) {
	if strings.TrimSpace(s) == "" {
		return TrustMedium, nil
	}
	l := TrustLevel(strings.ToUpper(strings.TrimSpace(s)))
	if l.Rank() == 0 {
		return "", fmt.Errorf("unknown trust level %q", s)
	}
	return l, nil
}

// ProviderRecord is the identity of a source the system may fetch from.
type ProviderRecord struct {
	Name       string
	Endpoint   string     // base location for fetch attempts
	PublicKey  string     // "ed25519:<base64>" or an armored OpenPGP public key
	TrustLevel TrustLevel // informational
	Verified   bool       // the resolution gate
	Layout     string     // endpoint layout override, empty means detect from host
	AddedAt    time.Time
}

// Origin records where an artifact's bytes came from.
type Origin string

const (
	OriginNetwork     Origin = "network"
	OriginCache       Origin = "cache"
	OriginSynthesized Origin = "synthesized"
)

// Provenance describes how an artifact was obtained.
type Provenance struct {
	Origin    Origin
	URL       string // empty unless fetched over the network
	FetchedAt time.Time
}

// Signature is a detached signature over a manifest's signable digest.
type Signature struct {
	Alg          string `json:"alg"`
	KeyID        string `json:"key_id"`
	Sig          string `json:"sig"`
	SignedDigest string `json:"signed_digest,omitempty"`
}

// Manifest is the metadata record embedded in every artifact archive.
type Manifest struct {
	Name          string     `json:"name"`
	Provider      string     `json:"provider"`
	Version       string     `json:"version"`
	EntryPoint    string     `json:"entry_point"`
	Digest        string     `json:"digest"` // sha256:<hex> over the entry point source
	Signature     *Signature `json:"signature,omitempty"`
	Description   string     `json:"description,omitempty"`
	Author        string     `json:"author,omitempty"`
	License       string     `json:"license,omitempty"`
	CreatedAt     string     `json:"created_at,omitempty"`
	FormatVersion string     `json:"format_version,omitempty"`
	Synthesized   bool       `json:"synthesized,omitempty"`
}

// PackageArtifact is a validated artifact ready for materialization.
type PackageArtifact struct {
	Provider   string
	Name       string
	Version    string
	EntryPoint string
	Source     []byte
	Digest     string
	Manifest   Manifest
	Provenance Provenance
}

// Synthesized reports whether the artifact is a locally generated placeholder.
func (a *PackageArtifact) Synthesized() bool {
	return a.Provenance.Origin == OriginSynthesized || a.Manifest.Synthesized
}

// Ref names one package of one provider.
type Ref struct {
	Provider string
	Name     string
}

func (r Ref) String() string {
	return r.Provider + "/" + r.Name
}

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateName checks that a provider or package name is safe to use as a
// path and URL segment.
func ValidateName(kind, name string) error {
	if !namePattern.MatchString(name) || strings.Contains(name, "..") {
		return &InvalidNameError{Kind: kind, Name: name}
	}
	return nil
}
