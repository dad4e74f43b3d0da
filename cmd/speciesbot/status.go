package main

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newStatusCmd(open opener) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show selection progress and recent posts.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := open(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.repo.Stats(ctx)
			if err != nil {
				return err
			}
			posts, err := a.repo.RecentPosts(ctx, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			summary := table.NewWriter()
			summary.SetStyle(table.StyleRounded)
			summary.SetOutputMirror(out)
			summary.AppendRows([]table.Row{
				{"Sequence", stats.Sequence},
				{"Universe", humanize.Comma(int64(stats.Universe))},
				{"Selected", humanize.Comma(int64(stats.Selected))},
				{"Remaining", humanize.Comma(int64(stats.Remaining))},
			})
			summary.Render()

			if len(posts) == 0 {
				return nil
			}

			recent := table.NewWriter()
			recent.SetStyle(table.StyleRounded)
			recent.SetOutputMirror(out)
			recent.AppendHeader(table.Row{"#", "Row", "Posted", "URI"})
			for _, p := range posts {
				recent.AppendRow(table.Row{p.Sequence, p.Index, p.PostedAt.Local().Format(time.DateTime), p.URI})
			}
			recent.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of recent posts to show")
	return cmd
}
