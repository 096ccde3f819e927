// Package signing canonicalizes manifests and signs or verifies them with
// provider keys.
package signing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// SignablePayload returns the RFC 8785 canonical form of a manifest with its
// "signature" member removed, and the sha256 hex digest of that form.
func SignablePayload(manifestJSON []byte) ([]byte, string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(manifestJSON, &fields); err != nil {
		return nil, "", fmt.Errorf("parse manifest: %w", err)
	}
	if fields == nil {
		return nil, "", fmt.Errorf("parse manifest: not an object")
	}
	delete(fields, "signature")

	stripped, err := json.Marshal(fields)
	if err != nil {
		return nil, "", fmt.Errorf("encode manifest: %w", err)
	}
	canonical, err := jcs.Transform(stripped)
	if err != nil {
		return nil, "", fmt.Errorf("canonicalize manifest: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return canonical, hex.EncodeToString(sum[:]), nil
}
