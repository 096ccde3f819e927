// Package fsx holds filesystem helpers shared by the cache and the trust registry.
package fsx

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"
)

// WriteFileAtomic writes content to path through a temporary file in the same
// directory followed by a rename, so readers see either the old file or the
// complete new one. Missing parent directories are created.
func WriteFileAtomic(path string, content []byte, mode os.FileMode) error {
	parent := filepath.Dir(path)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}

	tmp, err := os.CreateTemp(parent, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := rename(tmpPath, path); err != nil {
		return err
	}
	committed = true

	syncDir(parent)
	return nil
}

// SwapDir atomically replaces dir with a fresh empty directory and returns
// the path the old contents were moved to. The caller removes that path.
// If dir does not exist it is created and the returned path is empty.
func SwapDir(dir string, mode os.FileMode) (string, error) {
	aside := dir + ".old-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	if err := os.Rename(dir, aside); err != nil {
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("move %s aside: %w", dir, err)
		}
		aside = ""
	}
	if err := os.MkdirAll(dir, mode); err != nil {
		return aside, fmt.Errorf("recreate %s: %w", dir, err)
	}
	syncDir(filepath.Dir(dir))
	return aside, nil
}

func rename(from, to string) error {
	err := os.Rename(from, to)
	if err == nil {
		return nil
	}
	if runtime.GOOS != "windows" {
		return fmt.Errorf("rename temp file: %w", err)
	}
	if removeErr := os.Remove(to); removeErr != nil && !os.IsNotExist(removeErr) {
		return fmt.Errorf("remove destination before rename: %w", removeErr)
	}
	if err := os.Rename(from, to); err != nil {
		return fmt.Errorf("rename temp file after remove: %w", err)
	}
	return nil
}

func syncDir(dir string) {
	// #nosec G304 -- dir is derived from a caller-provided destination path.
	if h, err := os.Open(dir); err == nil {
		_ = h.Sync()
		_ = h.Close()
	}
}
