// Package validate decides whether raw artifact bytes may be trusted.
package validate

import (
	"errors"
	"fmt"

	"github.com/git-pkgs/spdx"

	"github.com/Tryboy869/pkg-system/internal/artifact"
	"github.com/Tryboy869/pkg-system/internal/core"
	"github.com/Tryboy869/pkg-system/internal/signing"
)

// KeyLookup returns the registry record holding a provider's public key.
type KeyLookup func(provider string) (core.ProviderRecord, bool)

// Validator checks artifact structure and authenticity.
type Validator struct {
	keys             KeyLookup
	maxEntryBytes    int64
	allowSynthesized bool
}

// Option configures a Validator.
type Option func(*Validator)

// WithMaxEntryBytes bounds the decompressed size of each archive entry.
func WithMaxEntryBytes(n int64) Option {
	return func(v *Validator) {
		v.maxEntryBytes = n
	}
}

// AllowSynthesized accepts unsigned placeholder artifacts that were not
// obtained from the network.
func AllowSynthesized(allow bool) Option {
	return func(v *Validator) {
		v.allowSynthesized = allow
	}
}

// New creates a Validator that looks provider keys up with keys.
func New(keys KeyLookup, opts ...Option) *Validator {
	v := &Validator{
		keys:          keys,
		maxEntryBytes: artifact.DefaultMaxEntryBytes,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate opens raw and runs the checks in order: structure, identity,
// digest, signature, license. The first failure is returned as a
// *core.IntegrityError.
func (v *Validator) Validate(raw []byte, provider, name string, prov core.Provenance) (*core.PackageArtifact, error) {
	fail := func(reason core.IntegrityReason, detail string, err error) error {
		return &core.IntegrityError{Provider: provider, Name: name, Reason: reason, Detail: detail, Err: err}
	}

	a, err := artifact.Open(raw, v.maxEntryBytes)
	if err != nil {
		return nil, fail(core.ReasonStructure, "", err)
	}
	m := a.Manifest

	if m.Provider != provider {
		return nil, fail(core.ReasonProviderMismatch, fmt.Sprintf("manifest provider %q", m.Provider), nil)
	}
	if m.Name != name {
		return nil, fail(core.ReasonNameMismatch, fmt.Sprintf("manifest name %q", m.Name), nil)
	}

	source, ok := a.Entry(m.EntryPoint)
	if !ok {
		return nil, fail(core.ReasonStructure, fmt.Sprintf("entry point %q missing", m.EntryPoint), nil)
	}
	if got := artifact.Digest(source); got != m.Digest {
		return nil, fail(core.ReasonDigestMismatch, fmt.Sprintf("declared %s, computed %s", m.Digest, got), nil)
	}

	if m.Synthesized {
		if !v.allowSynthesized || prov.Origin == core.OriginNetwork {
			return nil, fail(core.ReasonUnsignedSynthesized, "placeholder artifacts are not accepted here", nil)
		}
	} else if err := v.verifySignature(provider, &m, a.ManifestJSON); err != nil {
		return nil, fail(core.ReasonSignature, "", err)
	}

	if m.License != "" {
		expr, err := spdx.ParseStrict(m.License)
		if err != nil {
			return nil, fail(core.ReasonLicense, fmt.Sprintf("license %q", m.License), err)
		}
		// Canonical form, e.g. "mit or apache-2.0" becomes "MIT OR Apache-2.0".
		m.License = expr.String()
	}

	return &core.PackageArtifact{
		Provider:   provider,
		Name:       name,
		Version:    m.Version,
		EntryPoint: m.EntryPoint,
		Source:     source,
		Digest:     m.Digest,
		Manifest:   m,
		Provenance: prov,
	}, nil
}

func (v *Validator) verifySignature(provider string, m *core.Manifest, manifestJSON []byte) error {
	if v.keys == nil {
		return errors.New("no provider key lookup configured")
	}
	rec, ok := v.keys(provider)
	if !ok {
		return fmt.Errorf("provider %s is not registered", provider)
	}
	return signing.VerifyManifest(rec.PublicKey, m.Signature, manifestJSON)
}
