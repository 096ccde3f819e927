// Package cache stores raw artifact bytes on disk keyed by provider and package name.
package cache

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/Tryboy869/pkg-system/internal/core"
	"github.com/Tryboy869/pkg-system/internal/fsx"
)

const fileExt = ".pkg"

// Entry is one cached artifact. Data is nil for entries returned by List.
type Entry struct {
	Provider string
	Name     string
	Data     []byte
	Size     int64
	StoredAt time.Time
	Path     string
}

// Cache is a directory of <provider>/<name>.pkg files.
//
// Reads and writes hold a shared lock; Clear holds the exclusive lock only
// while swapping the directory, so it never interleaves with a write and
// readers never see a half-removed tree.
type Cache struct {
	dir    string
	mu     sync.RWMutex
	logger *log.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Cache) {
		c.logger = l
	}
}

// New opens (creating if needed) a cache rooted at dir.
func New(dir string, opts ...Option) (*Cache, error) {
	if dir == "" {
		return nil, errors.New("cache directory not set")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	c := &Cache{
		dir:    filepath.Clean(dir),
		logger: log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Dir returns the cache root.
func (c *Cache) Dir() string {
	return c.dir
}

func (c *Cache) path(provider, name string) (string, error) {
	if err := core.ValidateName("provider", provider); err != nil {
		return "", err
	}
	if err := core.ValidateName("package", name); err != nil {
		return "", err
	}
	return filepath.Join(c.dir, provider, name+fileExt), nil
}

// Get returns the cached artifact, or false if there is none.
func (c *Cache) Get(provider, name string) (*Entry, bool, error) {
	p, err := c.path(provider, name)
	if err != nil {
		return nil, false, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	fi, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("stat cache entry: %w", err)
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cache entry: %w", err)
	}

	return &Entry{
		Provider: provider,
		Name:     name,
		Data:     data,
		Size:     int64(len(data)),
		StoredAt: fi.ModTime(),
		Path:     p,
	}, true, nil
}

// Put stores data for (provider, name), replacing any previous edition.
func (c *Cache) Put(provider, name string, data []byte) error {
	p, err := c.path(provider, name)
	if err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := fsx.WriteFileAtomic(p, data, 0o644); err != nil {
		return fmt.Errorf("writing cache entry %s/%s: %w", provider, name, err)
	}
	c.logger.Debug("cached artifact", "provider", provider, "name", name, "bytes", len(data))
	return nil
}

// Delete removes one entry. Deleting a missing entry is not an error.
func (c *Cache) Delete(provider, name string) error {
	p, err := c.path(provider, name)
	if err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing cache entry: %w", err)
	}
	return nil
}

// Clear removes every entry.
func (c *Cache) Clear() error {
	c.mu.Lock()
	aside, err := fsx.SwapDir(c.dir, 0o755)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}

	if aside != "" {
		if err := os.RemoveAll(aside); err != nil {
			c.logger.Warn("failed to remove old cache contents", "path", aside, "error", err)
		}
	}
	c.logger.Info("cache cleared", "dir", c.dir)
	return nil
}

// List returns metadata for every cached artifact, sorted by provider and name.
func (c *Cache) List() ([]Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	providers, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("listing cache: %w", err)
	}

	var entries []Entry
	for _, pd := range providers {
		if !pd.IsDir() || core.ValidateName("provider", pd.Name()) != nil {
			continue
		}
		files, err := os.ReadDir(filepath.Join(c.dir, pd.Name()))
		if err != nil {
			return nil, fmt.Errorf("listing cache: %w", err)
		}
		for _, f := range files {
			name, ok := strings.CutSuffix(f.Name(), fileExt)
			if !ok || f.IsDir() || core.ValidateName("package", name) != nil {
				continue
			}
			fi, err := f.Info()
			if err != nil {
				continue
			}
			entries = append(entries, Entry{
				Provider: pd.Name(),
				Name:     name,
				Size:     fi.Size(),
				StoredAt: fi.ModTime(),
				Path:     filepath.Join(c.dir, pd.Name(), f.Name()),
			})
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Provider != entries[j].Provider {
			return entries[i].Provider < entries[j].Provider
		}
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}
