package main

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	pkgsystem "github.com/Tryboy869/pkg-system"
)

func newProvidersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "Manage the provider trust registry",
	}
	cmd.AddCommand(newProvidersListCmd(a), newProvidersAddCmd(a), newProvidersRevokeCmd(a))
	return cmd
}

func newProvidersListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered providers",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			recs := a.sys.Providers()
			views := make([]providerView, 0, len(recs))
			for _, r := range recs {
				views = append(views, newProviderView(r))
			}
			return a.render(views)
		},
	}
}

func newProvidersAddCmd(a *app) *cobra.Command {
	var key, trust, layout string
	cmd := &cobra.Command{
		Use:   "add <name> <endpoint>",
		Short: "Register a verified provider",
		Long: `Register a provider and mark it verified. The signing key is either
"ed25519:<base64>" or an armored OpenPGP public key; prefix a path with @
to read the key from a file.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if key == "" {
				return errors.New("--key is required")
			}
			k, err := readKey(key)
			if err != nil {
				return err
			}
			var opts []pkgsystem.ProviderOption
			if layout != "" {
				opts = append(opts, pkgsystem.WithLayout(layout))
			}
			rec, err := a.sys.AddProvider(cmd.Context(), args[0], args[1], k, pkgsystem.TrustLevel(strings.ToUpper(trust)), opts...)
			if err != nil {
				return err
			}
			return a.render(newProviderView(rec))
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "provider signing key, or @file")
	cmd.Flags().StringVar(&trust, "trust", "MEDIUM", "trust level: LOW, MEDIUM or HIGH")
	cmd.Flags().StringVar(&layout, "layout", "", "endpoint layout (default detected from host)")
	return cmd
}

func newProvidersRevokeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <name>",
		Short: "Mark a provider unverified",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if err := a.sys.RevokeProvider(args[0]); err != nil {
				return err
			}
			a.logger.Info("provider revoked", "provider", args[0])
			return nil
		},
	}
}
