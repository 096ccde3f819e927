// Package config loads pkg-system settings from defaults, an optional
// config.yaml and PKGSYS_* environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the config file name without extension.
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "yaml"
	// EnvPrefix prefixes environment overrides, e.g. PKGSYS_STRICT=false.
	EnvPrefix = "PKGSYS"
)

// Config holds every setting of a System.
type Config struct {
	ConfigDir          string        `mapstructure:"config_dir"`
	CacheDir           string        `mapstructure:"cache_dir"`
	Strict             bool          `mapstructure:"strict"`
	FetchTimeout       time.Duration `mapstructure:"fetch_timeout"`
	ResolveTimeout     time.Duration `mapstructure:"resolve_timeout"`
	MaterializeTimeout time.Duration `mapstructure:"materialize_timeout"`
	MaxRetries         int           `mapstructure:"max_retries"`
	RetryBaseDelay     time.Duration `mapstructure:"retry_base_delay"`
	MaxArtifactBytes   int64         `mapstructure:"max_artifact_bytes"`
	UserAgent          string        `mapstructure:"user_agent"`
	Token              string        `mapstructure:"token"`
	Branches           []string      `mapstructure:"branches"`
	Concurrency        int           `mapstructure:"concurrency"`
	LogLevel           string        `mapstructure:"log_level"`
}

// LoadOptions selects where configuration is read from.
type LoadOptions struct {
	// ConfigFilePath is used exclusively when set and must exist.
	ConfigFilePath string
	// ConfigDirPath overrides the directory searched for config.yaml.
	ConfigDirPath string
}

// DefaultConfig returns the built-in settings rooted at the user's home directory.
func DefaultConfig() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		ConfigDir:          filepath.Join(home, ".pkg_config"),
		CacheDir:           filepath.Join(home, ".pkg_cache"),
		Strict:             true,
		FetchTimeout:       10 * time.Second,
		ResolveTimeout:     2 * time.Minute,
		MaterializeTimeout: 5 * time.Second,
		MaxRetries:         2,
		RetryBaseDelay:     250 * time.Millisecond,
		MaxArtifactBytes:   10 << 20,
		UserAgent:          "pkg-system/1.0",
		Branches:           []string{"main", "master"},
		Concurrency:        8,
		LogLevel:           "info",
	}
}

// Load reads configuration. It returns the config, the path of the file
// that was read (empty when none was found) and any error.
func Load(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("config_dir", defaults.ConfigDir)
	v.SetDefault("cache_dir", defaults.CacheDir)
	v.SetDefault("strict", defaults.Strict)
	v.SetDefault("fetch_timeout", defaults.FetchTimeout)
	v.SetDefault("resolve_timeout", defaults.ResolveTimeout)
	v.SetDefault("materialize_timeout", defaults.MaterializeTimeout)
	v.SetDefault("max_retries", defaults.MaxRetries)
	v.SetDefault("retry_base_delay", defaults.RetryBaseDelay)
	v.SetDefault("max_artifact_bytes", defaults.MaxArtifactBytes)
	v.SetDefault("user_agent", defaults.UserAgent)
	v.SetDefault("token", "")
	v.SetDefault("branches", defaults.Branches)
	v.SetDefault("concurrency", defaults.Concurrency)
	v.SetDefault("log_level", defaults.LogLevel)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	resolvedPath := ""
	switch {
	case opts.ConfigFilePath != "":
		if !fileExists(opts.ConfigFilePath) {
			return nil, "", fmt.Errorf("config file not found: %s", opts.ConfigFilePath)
		}
		resolvedPath = opts.ConfigFilePath
	default:
		dir := opts.ConfigDirPath
		if dir == "" {
			dir = v.GetString("config_dir")
		}
		if p := filepath.Join(dir, ConfigFileName+"."+ConfigFileExt); fileExists(p) {
			resolvedPath = p
		}
		if opts.ConfigDirPath != "" {
			v.SetDefault("config_dir", opts.ConfigDirPath)
		}
	}

	if resolvedPath != "" {
		v.SetConfigFile(resolvedPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, "", fmt.Errorf("reading %s: %w", resolvedPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.ConfigDir = expandHome(cfg.ConfigDir)
	cfg.CacheDir = expandHome(cfg.CacheDir)

	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return &cfg, resolvedPath, nil
}

// Validate rejects settings no System can run with.
func (c *Config) Validate() error {
	var errs []error
	if c.ConfigDir == "" {
		errs = append(errs, errors.New("config_dir must be set"))
	}
	if c.CacheDir == "" {
		errs = append(errs, errors.New("cache_dir must be set"))
	}
	for key, d := range map[string]time.Duration{
		"fetch_timeout":       c.FetchTimeout,
		"resolve_timeout":     c.ResolveTimeout,
		"materialize_timeout": c.MaterializeTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", key, d))
		}
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries))
	}
	if c.RetryBaseDelay < 0 {
		errs = append(errs, fmt.Errorf("retry_base_delay must not be negative, got %s", c.RetryBaseDelay))
	}
	if c.MaxArtifactBytes <= 0 {
		errs = append(errs, fmt.Errorf("max_artifact_bytes must be positive, got %d", c.MaxArtifactBytes))
	}
	if c.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("concurrency must be positive, got %d", c.Concurrency))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	return errors.Join(errs...)
}

// Level returns the configured log level, defaulting to info.
func (c *Config) Level() log.Level {
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
