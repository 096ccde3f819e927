package artifact

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/Tryboy869/pkg-system/internal/core"
	"github.com/Tryboy869/pkg-system/internal/signing"
)

// Spec describes an artifact to build.
type Spec struct {
	Name        string
	Provider    string
	Version     string
	EntryPoint  string // defaults to <name>.sh
	Source      []byte
	Digest      string // computed from Source when empty
	Description string
	Author      string
	License     string
	Synthesized bool
	CreatedAt   time.Time
	Extra       map[string][]byte // additional entries
}

// EntryPointFor is the conventional entry point name for a package.
func EntryPointFor(name string) string {
	return name + ".sh"
}

// Build writes an artifact archive. A nil signer produces an unsigned manifest.
func Build(spec Spec, signer signing.Signer) ([]byte, error) {
	if spec.EntryPoint == "" {
		spec.EntryPoint = EntryPointFor(spec.Name)
	}
	if spec.Digest == "" {
		spec.Digest = Digest(spec.Source)
	}
	if spec.CreatedAt.IsZero() {
		spec.CreatedAt = time.Now()
	}
	created := spec.CreatedAt.UTC().Truncate(time.Second)

	m := core.Manifest{
		Name:          spec.Name,
		Provider:      spec.Provider,
		Version:       spec.Version,
		EntryPoint:    spec.EntryPoint,
		Digest:        spec.Digest,
		Description:   spec.Description,
		Author:        spec.Author,
		License:       spec.License,
		CreatedAt:     created.Format(time.RFC3339),
		FormatVersion: FormatVersion,
		Synthesized:   spec.Synthesized,
	}

	if signer != nil {
		unsigned, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("encode manifest: %w", err)
		}
		sig, err := signing.SignManifest(signer, unsigned)
		if err != nil {
			return nil, err
		}
		m.Signature = &sig
	}

	manifestJSON, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}

	entries := map[string][]byte{
		ManifestFile:    manifestJSON,
		spec.EntryPoint: spec.Source,
	}
	for name, data := range spec.Extra {
		if _, taken := entries[name]; taken {
			return nil, fmt.Errorf("extra entry %q collides with a reserved entry", name)
		}
		entries[name] = data
	}

	names := make([]string, 0, len(entries))
	for n := range entries {
		names = append(names, n)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: created,
		})
		if err != nil {
			return nil, fmt.Errorf("add %s: %w", name, err)
		}
		if _, err := w.Write(entries[name]); err != nil {
			return nil, fmt.Errorf("write %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finish archive: %w", err)
	}
	return buf.Bytes(), nil
}
