package signing

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"

	"github.com/Tryboy869/pkg-system/internal/core"
)

// AlgOpenPGP is an armored detached OpenPGP signature over the canonical manifest.
const AlgOpenPGP = "openpgp"

const armoredKeyHeader = "-----BEGIN PGP PUBLIC KEY BLOCK-----"

// maxSignatureBytes bounds armored signatures; real ones are well under 1 KiB.
const maxSignatureBytes = 16 * 1024

type openpgpVerifier struct {
	keyring openpgp.EntityList
}

func parseOpenPGP(s string) (openpgpVerifier, error) {
	keyring, err := openpgp.ReadArmoredKeyRing(strings.NewReader(s))
	if err != nil {
		return openpgpVerifier{}, fmt.Errorf("read armored key ring: %w", err)
	}
	if len(keyring) == 0 {
		return openpgpVerifier{}, fmt.Errorf("no keys found in armored key ring")
	}
	return openpgpVerifier{keyring: keyring}, nil
}

func (v openpgpVerifier) Alg() string { return AlgOpenPGP }

// KeyID is the primary key fingerprint of the first entity.
func (v openpgpVerifier) KeyID() string {
	return Fingerprint(v.keyring[0])
}

func (v openpgpVerifier) Verify(sig core.Signature, canonical []byte, digestHex string) error {
	if sig.SignedDigest != "" && sig.SignedDigest != digestHex {
		return fmt.Errorf("signed_digest mismatch")
	}
	if len(sig.Sig) > maxSignatureBytes {
		return fmt.Errorf("signature too large: %d bytes", len(sig.Sig))
	}
	signer, err := openpgp.CheckArmoredDetachedSignature(v.keyring, bytes.NewReader(canonical), strings.NewReader(sig.Sig), nil)
	if err != nil {
		return fmt.Errorf("openpgp signature verification failed: %w", err)
	}
	if sig.KeyID != "" && signer != nil && !strings.EqualFold(sig.KeyID, Fingerprint(signer)) {
		return fmt.Errorf("signature key_id %s does not match signer %s", sig.KeyID, Fingerprint(signer))
	}
	return nil
}

// Fingerprint renders an entity's primary key fingerprint as upper-case hex.
func Fingerprint(e *openpgp.Entity) string {
	return fmt.Sprintf("%X", e.PrimaryKey.Fingerprint)
}

// OpenPGPSigner signs the canonical manifest with an OpenPGP entity.
type OpenPGPSigner struct {
	Entity *openpgp.Entity
}

func (s OpenPGPSigner) Sign(canonical []byte, digestHex string) (core.Signature, error) {
	var buf bytes.Buffer
	if err := openpgp.ArmoredDetachSign(&buf, s.Entity, bytes.NewReader(canonical), nil); err != nil {
		return core.Signature{}, fmt.Errorf("openpgp sign: %w", err)
	}
	return core.Signature{
		Alg:          AlgOpenPGP,
		KeyID:        Fingerprint(s.Entity),
		Sig:          buf.String(),
		SignedDigest: digestHex,
	}, nil
}
