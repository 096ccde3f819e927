package cache

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Tryboy869/pkg-system/internal/core"
)

func newCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

func TestGetMiss(t *testing.T) {
	c := newCache(t)
	e, ok, err := c.Get("acme", "tools")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok || e != nil {
		t.Errorf("Get = %v, %v, want miss", e, ok)
	}
}

func TestPutGet(t *testing.T) {
	c := newCache(t)
	if err := c.Put("acme", "tools", []byte("v1")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := c.Put("acme", "tools", []byte("v2")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	e, ok, err := c.Get("acme", "tools")
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v", ok, err)
	}
	if string(e.Data) != "v2" {
		t.Errorf("Data = %q, want %q", e.Data, "v2")
	}
	if e.StoredAt.IsZero() {
		t.Error("StoredAt is zero")
	}
	if e.Path != filepath.Join(c.Dir(), "acme", "tools.pkg") {
		t.Errorf("Path = %q", e.Path)
	}
}

func TestInvalidNames(t *testing.T) {
	c := newCache(t)
	if err := c.Put("acme", "../escape", []byte("x")); !errors.Is(err, core.ErrInvalidName) {
		t.Errorf("Put = %v, want ErrInvalidName", err)
	}
	if _, _, err := c.Get("..", "tools"); !errors.Is(err, core.ErrInvalidName) {
		t.Errorf("Get = %v, want ErrInvalidName", err)
	}
}

func TestDelete(t *testing.T) {
	c := newCache(t)
	_ = c.Put("acme", "tools", []byte("x"))
	if err := c.Delete("acme", "tools"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := c.Delete("acme", "tools"); err != nil {
		t.Fatalf("Delete of missing entry failed: %v", err)
	}
	if _, ok, _ := c.Get("acme", "tools"); ok {
		t.Error("entry still present after Delete")
	}
}

func TestClearAndList(t *testing.T) {
	c := newCache(t)
	_ = c.Put("demo", "b", []byte("bb"))
	_ = c.Put("acme", "a", []byte("a"))

	entries, err := c.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(List) = %d, want 2", len(entries))
	}
	if entries[0].Provider != "acme" || entries[1].Name != "b" || entries[1].Size != 2 {
		t.Errorf("List = %+v", entries)
	}

	if err := c.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	entries, err = c.List()
	if err != nil {
		t.Fatalf("List after Clear failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("len(List) after Clear = %d, want 0", len(entries))
	}
	if err := c.Put("acme", "a", []byte("again")); err != nil {
		t.Errorf("Put after Clear failed: %v", err)
	}
}

func TestConcurrentPutGetClear(t *testing.T) {
	c := newCache(t)
	full := bytes.Repeat([]byte("x"), 64*1024)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(3)
		go func(i int) {
			defer wg.Done()
			if err := c.Put("acme", fmt.Sprintf("p%d", i%2), full); err != nil {
				t.Errorf("Put failed: %v", err)
			}
		}(i)
		go func(i int) {
			defer wg.Done()
			e, ok, err := c.Get("acme", fmt.Sprintf("p%d", i%2))
			if err != nil {
				t.Errorf("Get failed: %v", err)
				return
			}
			if ok && !bytes.Equal(e.Data, full) {
				t.Errorf("Get observed partial content (%d bytes)", len(e.Data))
			}
		}(i)
		go func() {
			defer wg.Done()
			if err := c.Clear(); err != nil {
				t.Errorf("Clear failed: %v", err)
			}
		}()
	}
	wg.Wait()
}
