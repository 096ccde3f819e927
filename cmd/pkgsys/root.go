package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	pkgsystem "github.com/Tryboy869/pkg-system"
	"github.com/Tryboy869/pkg-system/internal/config"
)

// app holds the global flags and the System built from them.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	output     string
	logLevel   string
	cacheDir   string
	strict     bool

	cfg    *config.Config
	logger *log.Logger
	sys    *pkgsystem.System
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{stdout: stdout, stderr: stderr}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "pkgsys",
		Short: "Resolve packages from trusted providers",
		Long: `pkgsys resolves provider/name references into sandboxed modules.

Packages are only fetched from providers registered as verified, and every
artifact is checked against its manifest digest and the provider's signing
key before it is cached or executed.

Examples:
  pkgsys providers list
  pkgsys providers add acme https://github.com/acme --key @acme.pub
  pkgsys resolve acme/tools
  pkgsys call acme/tools greet world
  pkgsys cache clear`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default is ~/.pkg_config/config.yaml)")
	flags.StringVarP(&a.output, "output", "o", "yaml", "output format: yaml or json")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&a.cacheDir, "cache-dir", "", "artifact cache directory")
	flags.BoolVar(&a.strict, "strict", true, "fail instead of synthesizing placeholders when no endpoint serves a package")

	root.AddCommand(newResolveCmd(a))
	root.AddCommand(newCallCmd(a))
	root.AddCommand(newURLsCmd(a))
	root.AddCommand(newProvidersCmd(a))
	root.AddCommand(newCacheCmd(a))
	root.AddCommand(newMetricsCmd(a))
	root.AddCommand(newLayoutsCmd(a))
	return root
}

// setup loads configuration, applies flag overrides and enables the System.
func (a *app) setup(cmd *cobra.Command) error {
	if a.output != "yaml" && a.output != "json" {
		return fmt.Errorf("unsupported output format %q", a.output)
	}

	cfg, path, err := config.Load(cmd.Context(), config.LoadOptions{ConfigFilePath: a.configPath})
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("strict") {
		cfg.Strict = a.strict
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = a.logLevel
	}
	if flags.Changed("cache-dir") {
		cfg.CacheDir = a.cacheDir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	a.logger = log.NewWithOptions(a.stderr, log.Options{
		Prefix: "pkgsys",
		Level:  cfg.Level(),
	})
	if path != "" {
		a.logger.Debug("config loaded", "path", path)
	}

	sys, err := pkgsystem.New(*cfg, pkgsystem.WithLogger(a.logger))
	if err != nil {
		return err
	}
	if err := sys.Enable(cmd.Context()); err != nil {
		return err
	}
	a.sys = sys
	return nil
}

// readKey returns s, or the contents of the file named by s when it starts with "@".
func readKey(s string) (string, error) {
	if len(s) > 1 && s[0] == '@' {
		data, err := os.ReadFile(s[1:])
		if err != nil {
			return "", fmt.Errorf("reading key: %w", err)
		}
		return string(data), nil
	}
	return s, nil
}
