package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackmichael/species-poster/internal/sqlite"
)

func newSeedCmd(open opener) *cobra.Command {
	var (
		legacy                    bool
		possible, sampled, number string
	)

	cmd := &cobra.Command{
		Use:   "seed [--legacy] [--possible F] [--sampled F] [--number F]",
		Short: "Add catalog rows to the selection universe, or import the legacy state files.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			// the legacy possible list is the universe, so the catalog must not be seeded first
			a, err := open(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if legacy {
				possible = orDefault(possible, a.cfg.State.PossibleFile)
				sampled = orDefault(sampled, a.cfg.State.SampledFile)
				number = orDefault(number, a.cfg.State.NumberFile)
			}

			out := cmd.OutOrStdout()
			if possible == "" && sampled == "" && number == "" {
				added, err := a.repo.Seed(ctx, a.catalog.Indices())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "added %d of %d catalog rows\n", added, a.catalog.Len())
				return nil
			}

			before, err := a.repo.Stats(ctx)
			if err != nil {
				return err
			}
			if before.Universe > 0 {
				a.logger.Warn("selection universe already seeded, legacy rows are added to it",
					"universe", before.Universe)
			}

			state, err := sqlite.ReadLegacyFiles(possible, sampled, number)
			if err != nil {
				return err
			}
			if err := a.repo.ImportLegacy(ctx, state); err != nil {
				return err
			}
			stats, err := a.repo.Stats(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "imported %d possible and %d sampled species; sequence is %d\n",
				len(state.Possible), len(state.Sampled), stats.Sequence)
			return nil
		},
	}

	f := cmd.Flags()
	f.BoolVar(&legacy, "legacy", false, "import the legacy files named in state.possibleFile, state.sampledFile and state.numberFile")
	f.StringVar(&possible, "possible", "", "legacy file listing the selectable row indices")
	f.StringVar(&sampled, "sampled", "", "legacy file listing the already posted row indices")
	f.StringVar(&number, "number", "", "legacy file holding the post counter")
	return cmd
}

func orDefault(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
