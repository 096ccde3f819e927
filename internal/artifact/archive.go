package artifact

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/Tryboy869/pkg-system/internal/core"
)

const (
	// DefaultMaxEntryBytes bounds the decompressed size of a single entry.
	DefaultMaxEntryBytes = 4 << 20

	maxEntries = 256
)

// ErrNoManifest is returned for archives without a manifest entry.
var ErrNoManifest = errors.New("archive has no " + ManifestFile)

// Archive is an opened artifact.
type Archive struct {
	Manifest     core.Manifest
	ManifestJSON []byte
	files        map[string][]byte
}

// Entry returns the content of a named entry.
func (a *Archive) Entry(name string) ([]byte, bool) {
	b, ok := a.files[name]
	return b, ok
}

// Names returns the entry names in the archive.
func (a *Archive) Names() []string {
	names := make([]string, 0, len(a.files))
	for n := range a.files {
		names = append(names, n)
	}
	return names
}

// Open parses raw archive bytes and decodes the manifest. It checks only
// structure: entry names, sizes and manifest schema.
func Open(raw []byte, maxEntryBytes int64) (*Archive, error) {
	if maxEntryBytes <= 0 {
		maxEntryBytes = DefaultMaxEntryBytes
	}
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if errors.Is(err, zip.ErrInsecurePath) {
		return nil, fmt.Errorf("invalid archive entry name: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if len(zr.File) > maxEntries {
		return nil, fmt.Errorf("archive has %d entries, limit is %d", len(zr.File), maxEntries)
	}

	files := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if err := checkEntryName(f.Name); err != nil {
			return nil, err
		}
		if _, dup := files[f.Name]; dup {
			return nil, fmt.Errorf("duplicate archive entry %q", f.Name)
		}
		if f.UncompressedSize64 > uint64(maxEntryBytes) {
			return nil, fmt.Errorf("entry %q is %d bytes, limit is %d", f.Name, f.UncompressedSize64, maxEntryBytes)
		}
		data, err := readEntry(f, maxEntryBytes)
		if err != nil {
			return nil, err
		}
		files[f.Name] = data
	}

	manifestJSON, ok := files[ManifestFile]
	if !ok {
		return nil, ErrNoManifest
	}
	if err := ValidateManifest(manifestJSON); err != nil {
		return nil, err
	}
	var m core.Manifest
	if err := json.Unmarshal(manifestJSON, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}

	return &Archive{Manifest: m, ManifestJSON: manifestJSON, files: files}, nil
}

func checkEntryName(name string) error {
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, `\`) {
		return fmt.Errorf("invalid archive entry name %q", name)
	}
	if clean := path.Clean(name); clean != name || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("invalid archive entry name %q", name)
	}
	return nil
}

func readEntry(f *zip.File, limit int64) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open entry %q: %w", f.Name, err)
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read entry %q: %w", f.Name, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("entry %q exceeds %d bytes", f.Name, limit)
	}
	return data, nil
}
