package signing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Tryboy869/pkg-system/internal/core"
)

// Verifier checks manifest signatures for one provider key.
type Verifier interface {
	Alg() string
	KeyID() string
	Verify(sig core.Signature, canonical []byte, digestHex string) error
}

// Signer produces a manifest signature.
type Signer interface {
	Sign(canonical []byte, digestHex string) (core.Signature, error)
}

// ErrNoPublicKey is returned for providers registered without key material.
var ErrNoPublicKey = errors.New("provider has no public key")

// ParsePublicKey accepts "ed25519:<base64>", a bare base64 ed25519 key, or
// an armored OpenPGP public key block.
func ParsePublicKey(s string) (Verifier, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return nil, ErrNoPublicKey
	case strings.HasPrefix(s, armoredKeyHeader):
		return parseOpenPGP(s)
	default:
		pub, err := parseEd25519(s)
		if err != nil {
			return nil, fmt.Errorf("unsupported public key: %w", err)
		}
		return ed25519Verifier{pub: pub}, nil
	}
}

// VerifyManifest checks sig over manifestJSON with the provider key.
func VerifyManifest(publicKey string, sig *core.Signature, manifestJSON []byte) error {
	if sig == nil {
		return errors.New("manifest is not signed")
	}
	v, err := ParsePublicKey(publicKey)
	if err != nil {
		return err
	}
	if sig.Alg != v.Alg() {
		return fmt.Errorf("signature alg %q does not match provider key type %q", sig.Alg, v.Alg())
	}
	canonical, digest, err := SignablePayload(manifestJSON)
	if err != nil {
		return err
	}
	if sig.SignedDigest != "" && sig.SignedDigest != digest {
		return fmt.Errorf("signed_digest mismatch: expected %s, got %s", digest, sig.SignedDigest)
	}
	return v.Verify(*sig, canonical, digest)
}

// SignManifest signs manifestJSON, ignoring any signature it already carries.
func SignManifest(s Signer, manifestJSON []byte) (core.Signature, error) {
	canonical, digest, err := SignablePayload(manifestJSON)
	if err != nil {
		return core.Signature{}, err
	}
	return s.Sign(canonical, digest)
}
