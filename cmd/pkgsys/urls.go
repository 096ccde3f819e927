package main

import (
	"github.com/spf13/cobra"

	pkgsystem "github.com/Tryboy869/pkg-system"
)

func newURLsCmd(a *app) *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "urls <ref>",
		Short: "Show the endpoint URLs of a package",
		Long: `Show the release, homepage and source URLs derived from the
provider's endpoint layout. With --check, every candidate URL is probed
with a HEAD request in resolution order; nothing is downloaded.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := pkgsystem.ParseRef(args[0])
			if err != nil {
				return withExitCode(err)
			}
			if check {
				probes, err := a.sys.ProbeCandidates(cmd.Context(), r.Provider, r.Name)
				if err != nil {
					return withExitCode(err)
				}
				return a.render(probes)
			}
			urls, err := a.sys.URLs(r.Provider, r.Name)
			if err != nil {
				return withExitCode(err)
			}
			return a.render(urls)
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "probe every candidate URL with a HEAD request")
	return cmd
}

func newLayoutsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "layouts",
		Short: "List supported endpoint layouts",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return a.render(pkgsystem.SupportedLayouts())
		},
	}
}
