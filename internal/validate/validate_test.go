package validate

import (
	"archive/zip"
	"bytes"
	"errors"
	"testing"

	"github.com/Tryboy869/pkg-system/internal/artifact"
	"github.com/Tryboy869/pkg-system/internal/core"
	"github.com/Tryboy869/pkg-system/internal/signing"
)

type fixture struct {
	kp     signing.KeyPair
	lookup KeyLookup
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	kp, err := signing.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}
	rec := core.ProviderRecord{Name: "acme", Verified: true, PublicKey: signing.EncodePublicKey(kp.Public)}
	return fixture{
		kp: kp,
		lookup: func(p string) (core.ProviderRecord, bool) {
			if p == "acme" {
				return rec, true
			}
			return core.ProviderRecord{}, false
		},
	}
}

func (f fixture) build(t *testing.T, spec artifact.Spec, signed bool) []byte {
	t.Helper()
	if spec.Name == "" {
		spec.Name = "tools"
	}
	if spec.Provider == "" {
		spec.Provider = "acme"
	}
	if spec.Version == "" {
		spec.Version = "1.0.0"
	}
	if spec.Source == nil {
		spec.Source = []byte("greet() { echo hi; }\n")
	}
	var signer signing.Signer
	if signed {
		signer = signing.Ed25519Signer{Key: f.kp.Private}
	}
	raw, err := artifact.Build(spec, signer)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return raw
}

var network = core.Provenance{Origin: core.OriginNetwork, URL: "https://example.test/acme/tools.pkg"}

func TestValidateAccepts(t *testing.T) {
	f := newFixture(t)
	raw := f.build(t, artifact.Spec{License: "MIT OR Apache-2.0"}, true)

	a, err := New(f.lookup).Validate(raw, "acme", "tools", network)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if a.Version != "1.0.0" {
		t.Errorf("Version = %q, want %q", a.Version, "1.0.0")
	}
	if a.EntryPoint != "tools.sh" {
		t.Errorf("EntryPoint = %q, want %q", a.EntryPoint, "tools.sh")
	}
	if a.Provenance != network {
		t.Errorf("Provenance = %+v, want %+v", a.Provenance, network)
	}
	if a.Synthesized() {
		t.Error("Synthesized() = true, want false")
	}
}

func TestValidateNormalizesLicense(t *testing.T) {
	f := newFixture(t)
	raw := f.build(t, artifact.Spec{License: "mit or apache-2.0"}, true)

	a, err := New(f.lookup).Validate(raw, "acme", "tools", network)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if a.Manifest.License != "MIT OR Apache-2.0" {
		t.Errorf("License = %q, want %q", a.Manifest.License, "MIT OR Apache-2.0")
	}
}

func TestValidateRejects(t *testing.T) {
	f := newFixture(t)
	other, err := signing.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	tampered := artifact.Digest([]byte("greet() { echo hi; }\n"))
	tampered = tampered[:len(tampered)-1] + flip(tampered[len(tampered)-1])

	tests := []struct {
		name     string
		raw      []byte
		provider string
		reason   core.IntegrityReason
		security bool
	}{
		{"not an archive", []byte("nope"), "acme", core.ReasonStructure, false},
		{"provider mismatch", f.build(t, artifact.Spec{Provider: "mallory"}, true), "acme", core.ReasonProviderMismatch, true},
		{"name mismatch", f.build(t, artifact.Spec{Name: "other"}, true), "acme", core.ReasonNameMismatch, true},
		{"digest altered", f.build(t, artifact.Spec{Digest: tampered}, true), "acme", core.ReasonDigestMismatch, true},
		{"unsigned", f.build(t, artifact.Spec{}, false), "acme", core.ReasonSignature, true},
		{"wrong key", func() []byte {
			raw, err := artifact.Build(artifact.Spec{Name: "tools", Provider: "acme", Version: "1", Source: []byte("x=1\n")}, signing.Ed25519Signer{Key: other.Private})
			if err != nil {
				t.Fatal(err)
			}
			return raw
		}(), "acme", core.ReasonSignature, true},
		{"bad license", f.build(t, artifact.Spec{License: "NOT-A-LICENSE"}, true), "acme", core.ReasonLicense, false},
		{"informal license", f.build(t, artifact.Spec{License: "Apache 2"}, true), "acme", core.ReasonLicense, false},
		{"unbalanced license", f.build(t, artifact.Spec{License: "(MIT OR Apache-2.0"}, true), "acme", core.ReasonLicense, false},
		{"synthesized from network", f.build(t, artifact.Spec{Synthesized: true}, false), "acme", core.ReasonUnsignedSynthesized, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(f.lookup).Validate(tt.raw, tt.provider, "tools", network)
			if !errors.Is(err, core.ErrIntegrity) {
				t.Fatalf("err = %v, want ErrIntegrity", err)
			}
			var ie *core.IntegrityError
			if !errors.As(err, &ie) {
				t.Fatalf("err = %T, want *core.IntegrityError", err)
			}
			if ie.Reason != tt.reason {
				t.Errorf("Reason = %q, want %q (%v)", ie.Reason, tt.reason, err)
			}
			if ie.Security() != tt.security {
				t.Errorf("Security() = %v, want %v", ie.Security(), tt.security)
			}
		})
	}
}

func TestValidateEntryPointMissing(t *testing.T) {
	f := newFixture(t)
	manifest := `{"name":"tools","provider":"acme","version":"1","entry_point":"tools.sh","digest":"` + artifact.Digest(nil) + `"}`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(artifact.ManifestFile)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte(manifest)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	_, err = New(f.lookup).Validate(buf.Bytes(), "acme", "tools", network)
	var ie *core.IntegrityError
	if !errors.As(err, &ie) || ie.Reason != core.ReasonStructure {
		t.Errorf("err = %v, want structure failure", err)
	}
}

func TestValidateSynthesized(t *testing.T) {
	f := newFixture(t)
	raw := f.build(t, artifact.Spec{Synthesized: true}, false)
	synth := core.Provenance{Origin: core.OriginSynthesized}
	cached := core.Provenance{Origin: core.OriginCache}

	if _, err := New(f.lookup).Validate(raw, "acme", "tools", synth); err == nil {
		t.Error("synthesized artifact accepted without AllowSynthesized")
	}

	v := New(f.lookup, AllowSynthesized(true))
	a, err := v.Validate(raw, "acme", "tools", synth)
	if err != nil {
		t.Fatalf("Validate(synthesized) failed: %v", err)
	}
	if !a.Synthesized() {
		t.Error("Synthesized() = false, want true")
	}
	if _, err := v.Validate(raw, "acme", "tools", cached); err != nil {
		t.Errorf("Validate(cached synthesized) failed: %v", err)
	}
	if _, err := v.Validate(raw, "acme", "tools", network); err == nil {
		t.Error("synthesized artifact accepted from network")
	}
}

func TestValidateUnknownProviderKey(t *testing.T) {
	f := newFixture(t)
	raw := f.build(t, artifact.Spec{Provider: "ghost"}, true)
	_, err := New(f.lookup).Validate(raw, "ghost", "tools", network)
	var ie *core.IntegrityError
	if !errors.As(err, &ie) || ie.Reason != core.ReasonSignature {
		t.Errorf("err = %v, want signature failure", err)
	}
}

func flip(c byte) string {
	if c == '0' {
		return "1"
	}
	return "0"
}
