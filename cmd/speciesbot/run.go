package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newRunCmd(open opener) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run [--dry-run]",
		Short: "Select, enrich and post one species.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := open(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			pipeline, err := a.pipeline(dryRun)
			if err != nil {
				return err
			}

			result, err := pipeline.Run(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if result.Post == nil {
				fmt.Fprintln(out, result.Caption)
				return nil
			}
			fmt.Fprintf(out, "posted #%d %s\n%s\n", result.Selection.Sequence, result.Species.ScientificName(), result.Post.URI)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "write the scratch files but do not post (the species is still consumed)")
	return cmd
}
