package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/Tryboy869/pkg-system/internal/core"
)

// AlgEd25519 signs the signable digest with an ed25519 key.
const AlgEd25519 = "ed25519"

const ed25519Prefix = "ed25519:"

// KeyPair is an ed25519 signing key and its public half.
type KeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateKeyPair creates a fresh ed25519 key pair.
func GenerateKeyPair() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("generate ed25519 key: %w", err)
	}
	return KeyPair{Public: pub, Private: priv}, nil
}

// KeyID is the sha256 hex digest of the raw public key.
func KeyID(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:])
}

// EncodePublicKey renders pub in the provider registry format "ed25519:<base64>".
func EncodePublicKey(pub ed25519.PublicKey) string {
	return ed25519Prefix + base64.StdEncoding.EncodeToString(pub)
}

func parseEd25519(s string) (ed25519.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(strings.TrimPrefix(s, ed25519Prefix)))
	if err != nil {
		return nil, fmt.Errorf("decode ed25519 public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid ed25519 public key length: %d", len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

// SignDigestHex signs the decoded bytes of a sha256 hex digest.
func SignDigestHex(priv ed25519.PrivateKey, digestHex string) (core.Signature, error) {
	digest, err := decodeDigest(digestHex)
	if err != nil {
		return core.Signature{}, err
	}
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return core.Signature{}, errors.New("invalid ed25519 private key")
	}
	return core.Signature{
		Alg:          AlgEd25519,
		KeyID:        KeyID(pub),
		Sig:          base64.StdEncoding.EncodeToString(ed25519.Sign(priv, digest)),
		SignedDigest: digestHex,
	}, nil
}

// VerifyDigestHex checks an ed25519 signature over its signed_digest.
func VerifyDigestHex(pub ed25519.PublicKey, sig core.Signature) error {
	if sig.SignedDigest == "" {
		return errors.New("missing signed_digest")
	}
	digest, err := decodeDigest(sig.SignedDigest)
	if err != nil {
		return err
	}
	rawSig, err := base64.StdEncoding.DecodeString(sig.Sig)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	if !ed25519.Verify(pub, digest, rawSig) {
		return errors.New("ed25519 signature does not verify")
	}
	return nil
}

func decodeDigest(digestHex string) ([]byte, error) {
	digest, err := hex.DecodeString(digestHex)
	if err != nil {
		return nil, fmt.Errorf("decode digest: %w", err)
	}
	if len(digest) != sha256.Size {
		return nil, fmt.Errorf("invalid digest length: %d", len(digest))
	}
	return digest, nil
}

type ed25519Verifier struct {
	pub ed25519.PublicKey
}

func (v ed25519Verifier) Alg() string   { return AlgEd25519 }
func (v ed25519Verifier) KeyID() string { return KeyID(v.pub) }

func (v ed25519Verifier) Verify(sig core.Signature, _ []byte, digestHex string) error {
	if sig.KeyID != "" && sig.KeyID != v.KeyID() {
		return fmt.Errorf("signature key_id %s does not match provider key %s", sig.KeyID, v.KeyID())
	}
	return VerifyDigestHex(v.pub, sig)
}

// Ed25519Signer signs manifests with an ed25519 private key.
type Ed25519Signer struct {
	Key ed25519.PrivateKey
}

func (s Ed25519Signer) Sign(_ []byte, digestHex string) (core.Signature, error) {
	return SignDigestHex(s.Key, digestHex)
}
