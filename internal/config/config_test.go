package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, path, err := Load(context.Background(), LoadOptions{ConfigDirPath: dir})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if path != "" {
		t.Errorf("path = %q, want empty", path)
	}
	if cfg.ConfigDir != dir {
		t.Errorf("ConfigDir = %q, want %q", cfg.ConfigDir, dir)
	}
	if !cfg.Strict {
		t.Error("Strict = false, want true")
	}
	if cfg.FetchTimeout != 10*time.Second {
		t.Errorf("FetchTimeout = %v, want 10s", cfg.FetchTimeout)
	}
	if cfg.MaxArtifactBytes != 10<<20 {
		t.Errorf("MaxArtifactBytes = %d, want %d", cfg.MaxArtifactBytes, 10<<20)
	}
	if len(cfg.Branches) != 2 || cfg.Branches[0] != "main" {
		t.Errorf("Branches = %v, want [main master]", cfg.Branches)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	data := `strict: false
fetch_timeout: 3s
branches: [trunk]
concurrency: 2
log_level: debug
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, path, err := Load(context.Background(), LoadOptions{ConfigDirPath: dir})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if path != filepath.Join(dir, "config.yaml") {
		t.Errorf("path = %q, want config.yaml in %s", path, dir)
	}
	if cfg.Strict {
		t.Error("Strict = true, want false")
	}
	if cfg.FetchTimeout != 3*time.Second {
		t.Errorf("FetchTimeout = %v, want 3s", cfg.FetchTimeout)
	}
	if len(cfg.Branches) != 1 || cfg.Branches[0] != "trunk" {
		t.Errorf("Branches = %v, want [trunk]", cfg.Branches)
	}
	if cfg.Concurrency != 2 {
		t.Errorf("Concurrency = %d, want 2", cfg.Concurrency)
	}
	if cfg.Level().String() != "debug" {
		t.Errorf("Level = %v, want debug", cfg.Level())
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PKGSYS_STRICT", "false")
	t.Setenv("PKGSYS_MAX_RETRIES", "5")

	cfg, _, err := Load(context.Background(), LoadOptions{ConfigDirPath: t.TempDir()})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Strict {
		t.Error("Strict = true, want false from env")
	}
	if cfg.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", cfg.MaxRetries)
	}
}

func TestLoadExplicitFileMissing(t *testing.T) {
	_, _, err := Load(context.Background(), LoadOptions{ConfigFilePath: filepath.Join(t.TempDir(), "nope.yaml")})
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := Load(ctx, LoadOptions{}); err == nil {
		t.Fatal("expected error for canceled context")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"fetch timeout", func(c *Config) { c.FetchTimeout = 0 }, "fetch_timeout"},
		{"retries", func(c *Config) { c.MaxRetries = -1 }, "max_retries"},
		{"size", func(c *Config) { c.MaxArtifactBytes = 0 }, "max_artifact_bytes"},
		{"concurrency", func(c *Config) { c.Concurrency = 0 }, "concurrency"},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"cache dir", func(c *Config) { c.CacheDir = "" }, "cache_dir"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.want)
			}
		})
	}

	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v, want nil", err)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := expandHome("~/.pkg_cache"); got != filepath.Join(home, ".pkg_cache") {
		t.Errorf("expandHome = %q", got)
	}
	if got := expandHome("/abs"); got != "/abs" {
		t.Errorf("expandHome(/abs) = %q", got)
	}
}
