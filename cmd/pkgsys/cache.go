package main

import (
	"github.com/spf13/cobra"
)

func newCacheCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the artifact cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List cached artifacts",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			entries, err := a.sys.CacheEntries()
			if err != nil {
				return err
			}
			return a.render(newCacheViews(entries))
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached artifact",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return a.sys.ClearCache()
		},
	})
	return cmd
}
