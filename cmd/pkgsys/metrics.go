package main

import (
	"github.com/spf13/cobra"
)

func newMetricsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics [ref...]",
		Short: "Print resolution metrics",
		Long: `Print the metrics snapshot. References given as arguments are
resolved first so their outcome is reflected in the counters; resolution
failures are logged and do not change the exit code.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				refs, err := parseRefs(args)
				if err != nil {
					return err
				}
				for r, res := range a.sys.ResolveAll(cmd.Context(), refs) {
					if res.Err != nil {
						a.logger.Debug("resolve failed", "ref", r.String(), "err", res.Err)
					}
				}
			}
			out := struct {
				Metrics  any               `json:"metrics" yaml:"metrics"`
				Breakers map[string]string `json:"breakers,omitempty" yaml:"breakers,omitempty"`
			}{a.sys.Metrics(), a.sys.BreakerStates()}
			return a.render(out)
		},
	}
}
