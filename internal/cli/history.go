package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"upstox-options/internal/logging"
	"upstox-options/internal/models"
	"upstox-options/internal/store"
)

func saveQuotes(ctx context.Context, app *App, output *Output, instrument string, expiry time.Time, quotes []models.OptionQuote) error {
	s, err := app.snapshotStore()
	if err != nil {
		output.Error("Failed to open store: %v", err)
		return err
	}
	run, err := s.SaveQuotes(ctx, instrument, expiry, quotes)
	if err != nil {
		output.Error("Failed to save snapshot: %v", err)
		return err
	}
	logger := logging.WithRunID(logging.FromContext(ctx), run.ID)
	logger.Info().Int("rows", run.RowCount).Msg("Chain snapshot saved")
	output.Info("Saved snapshot %s", run.ID)
	return nil
}

func saveMarginRows(ctx context.Context, app *App, output *Output, instrument string, expiry time.Time, lotSize int, rows []models.MarginRow) error {
	s, err := app.snapshotStore()
	if err != nil {
		output.Error("Failed to open store: %v", err)
		return err
	}
	run, err := s.SaveMarginRows(ctx, instrument, expiry, lotSize, rows)
	if err != nil {
		output.Error("Failed to save snapshot: %v", err)
		return err
	}
	logger := logging.WithRunID(logging.FromContext(ctx), run.ID)
	logger.Info().Int("rows", run.RowCount).Msg("Margin snapshot saved")
	output.Info("Saved snapshot %s", run.ID)
	return nil
}

func newHistoryCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Saved snapshots",
		Long:  "List and show snapshots saved with --save.",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List saved snapshots, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			instrument, _ := cmd.Flags().GetString("instrument")
			kind, _ := cmd.Flags().GetString("kind")
			limit, _ := cmd.Flags().GetInt("limit")

			s, err := app.snapshotStore()
			if err != nil {
				output.Error("Failed to open store: %v", err)
				return err
			}
			runs, err := s.ListRuns(cmd.Context(), store.RunFilter{
				Instrument: instrument,
				Kind:       store.RunKind(kind),
				Limit:      limit,
			})
			if err != nil {
				return err
			}

			if output.IsJSON() {
				if runs == nil {
					runs = []store.Run{}
				}
				return output.JSON(runs)
			}
			if len(runs) == 0 {
				output.Dim("No snapshots saved yet")
				return nil
			}
			for _, r := range runs {
				output.Printf("%s  %-6s  %-12s  %s  %4d rows  %s\n",
					r.ID, r.Kind, r.Instrument, r.Expiry, r.RowCount, FormatDateTime(r.CreatedAt))
			}
			return nil
		},
	}
	list.Flags().String("instrument", "", "only this instrument")
	list.Flags().String("kind", "", "chain or margin")
	list.Flags().Int("limit", 20, "maximum number of snapshots")

	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the rows of a saved snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			s, err := app.snapshotStore()
			if err != nil {
				output.Error("Failed to open store: %v", err)
				return err
			}
			run, err := s.GetRun(ctx, args[0])
			if err != nil {
				output.Error("%v", err)
				return err
			}

			if run.Kind == store.RunKindChain {
				quotes, err := s.GetQuotes(ctx, run.ID)
				if err != nil {
					return err
				}
				return renderQuotes(cmd, output, quotes)
			}

			rows, err := s.GetMarginRows(ctx, run.ID)
			if err != nil {
				return err
			}
			return renderMarginRows(cmd, output, rows)
		},
	}
	show.Flags().String("csv", "", "write rows as CSV to this file ('-' for stdout)")

	cmd.AddCommand(list, show)
	return cmd
}

