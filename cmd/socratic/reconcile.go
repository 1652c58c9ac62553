package main

import (
	"fmt"

	"github.com/metalagman/socratic/internal/reconcile"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func reconcileCmd(opts *rootOptions) *cobra.Command {
	var parallelism int
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Recompute every stored maturity score",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, closeFn, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer closeFn()

			report, err := reconcile.Run(cmd.Context(), a.Store, a.Pipeline, parallelism)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return printJSON(out, report)
			}
			for _, c := range report.Changed {
				fmt.Fprintf(out, "%s\t%s\t%d%% -> %d%%\n", c.ProjectID, c.Name, c.Before, c.After)
			}
			log.Info().Msgf("%d projects checked, %d corrected", report.Checked, len(report.Changed))
			return nil
		},
	}
	cmd.Flags().IntVar(&parallelism, "parallelism", reconcile.DefaultParallelism, "projects rescored at once")
	return cmd
}
