// Package artifact reads and writes the archive format packages are
// distributed in: a zip holding manifest.json and the package sources.
package artifact

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/kaptinlin/jsonschema"
)

const (
	// ManifestFile is the archive entry holding the manifest.
	ManifestFile = "manifest.json"

	// FormatVersion is written into manifests produced by Build.
	FormatVersion = "1.0"

	digestPrefix = "sha256:"
)

//go:embed manifest.schema.json
var manifestSchema []byte

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	schema, err := compiler.Compile(manifestSchema)
	if err != nil {
		return nil, fmt.Errorf("compile manifest schema: %w", err)
	}
	return schema, nil
})

// ValidateManifest checks manifest JSON against the manifest schema.
func ValidateManifest(data []byte) error {
	if !json.Valid(data) {
		return errors.New("manifest schema validation failed: not valid JSON")
	}
	schema, err := compileSchema()
	if err != nil {
		return err
	}
	result := schema.ValidateJSON(data)
	if result.IsValid() {
		return nil
	}
	return fmt.Errorf("manifest schema validation failed: %v", result.Errors)
}

// Digest returns the manifest digest string for source bytes.
func Digest(source []byte) string {
	sum := sha256.Sum256(source)
	return digestPrefix + hex.EncodeToString(sum[:])
}
