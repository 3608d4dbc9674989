package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"upstox-options/internal/chain"
	apperrors "upstox-options/internal/errors"
	"upstox-options/internal/export"
	"upstox-options/internal/logging"
	"upstox-options/internal/margin"
	"upstox-options/internal/models"
	"upstox-options/internal/security"
)

// addOptionsCommands adds the option-chain and margin commands.
func addOptionsCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newChainCmd(app))
	rootCmd.AddCommand(newMarginCmd(app))
}

func newChainCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chain <instrument>",
		Short: "Show put bids and call asks for every strike",
		Long: `Fetch the option chain for an index and list one row per strike and side:
PE rows carry the put bid price, CE rows the call ask price. Sides with no
quote are left out. Rows are sorted by strike, CE before PE.`,
		Example: `  upstox-options chain "Nifty 50" --expiry 2024-03-28
  upstox-options chain "Nifty Bank" --expiry 2024-03-27 --side PE --csv puts.csv
  upstox-options chain "Nifty 50" --expiry 2024-03-28 --json --save`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			instrument := strings.TrimSpace(args[0])
			if err := security.ValidateInstrument(instrument); err != nil {
				output.Error("%v", err)
				return err
			}

			expiry, side, err := parseChainFlags(cmd)
			if err != nil {
				output.Error("%v", err)
				return err
			}
			if err := requireToken(app); err != nil {
				output.Error("%v", err)
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			logger := logging.WithOperation(logging.FromContext(ctx), "chain")

			quotes := chain.NewService(app.Broker, logger).Quotes(ctx, instrument, expiry, side)
			if len(quotes) == 0 {
				output.Warning("No option chain data found for %s (%s)", instrument, expiry.Format(models.ExpiryLayout))
			}

			if save, _ := cmd.Flags().GetBool("save"); save {
				if err := saveQuotes(ctx, app, output, instrument, expiry, quotes); err != nil {
					return err
				}
			}

			return renderQuotes(cmd, output, quotes)
		},
	}

	addChainFlags(cmd)
	return cmd
}

func newMarginCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "margin <instrument>",
		Short: "Add margin required and premium earned to each chain row",
		Long: `Fetch the option chain (or read rows from --from-csv) and, for each row,
look up the margin required to SELL one contract and compute
premium_earned = bid/ask * lot size. A failed margin lookup leaves
margin_required at 0 and the remaining rows are still processed.`,
		Example: `  upstox-options margin "Nifty 50" --expiry 2024-03-28 --side PE
  upstox-options margin NIFTY --from-csv puts.csv --lot-size 25 --csv margins.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			instrument := strings.TrimSpace(args[0])
			fromCSV, _ := cmd.Flags().GetString("from-csv")
			if err := security.ValidateInstrument(instrument); err != nil {
				output.Error("%v", err)
				return err
			}

			if err := requireToken(app); err != nil {
				output.Error("%v", err)
				return err
			}

			ctx := cmd.Context()
			logger := logging.WithOperation(logging.FromContext(ctx), "margin")
			var quotes []models.OptionQuote
			var expiry time.Time

			if fromCSV != "" {
				side, err := parseSideFlag(cmd)
				if err != nil {
					output.Error("%v", err)
					return err
				}
				quotes, err = readQuotesFile(fromCSV)
				if err != nil {
					output.Error("%v", err)
					return err
				}
				quotes = chain.FilterSide(quotes, side)
				if s, _ := cmd.Flags().GetString("expiry"); s != "" {
					if expiry, err = models.ParseExpiry(s); err != nil {
						return err
					}
				}
			} else {
				var side models.OptionSide
				var err error
				expiry, side, err = parseChainFlags(cmd)
				if err != nil {
					output.Error("%v", err)
					return err
				}
				fetchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
				quotes = chain.NewService(app.Broker, logger).Quotes(fetchCtx, instrument, expiry, side)
				cancel()
			}

			if len(quotes) == 0 {
				output.Warning("No option chain data found for %s", instrument)
			}

			lotSize, _ := cmd.Flags().GetInt("lot-size")
			if lotSize <= 0 {
				lotSize = app.Config.Options.LotSize
			}
			agg := margin.NewAggregator(app.Broker,
				margin.WithLotSize(lotSize),
				margin.WithOptionPrefix(app.Config.Options.OptionPrefix),
				margin.WithTimeout(app.Config.Options.MarginTimeout),
				margin.WithLogger(logging.WithInstrument(logger, instrument)),
			)
			rows := agg.Aggregate(ctx, quotes)

			if save, _ := cmd.Flags().GetBool("save"); save {
				if err := saveMarginRows(ctx, app, output, instrument, expiry, agg.LotSize(), rows); err != nil {
					return err
				}
			}

			return renderMarginRows(cmd, output, rows)
		},
	}

	addChainFlags(cmd)
	cmd.Flags().Int("lot-size", 0, "contract multiplier for premium_earned (default from config, 50)")
	cmd.Flags().String("from-csv", "", "read rows from a CSV written by 'chain --csv' instead of fetching")
	return cmd
}

func addChainFlags(cmd *cobra.Command) {
	cmd.Flags().String("expiry", "", "expiry date (YYYY-MM-DD)")
	cmd.Flags().String("side", "", "only PE or CE rows (default both)")
	cmd.Flags().String("csv", "", "write rows as CSV to this file ('-' for stdout)")
	cmd.Flags().Bool("save", false, "save the rows as a snapshot in the local store")
}

func parseChainFlags(cmd *cobra.Command) (time.Time, models.OptionSide, error) {
	expiryStr, _ := cmd.Flags().GetString("expiry")
	if expiryStr == "" {
		return time.Time{}, "", apperrors.NewValidationError("expiry", expiryStr, "--expiry is required (YYYY-MM-DD)")
	}
	expiry, err := models.ParseExpiry(expiryStr)
	if err != nil {
		return time.Time{}, "", err
	}

	side, err := parseSideFlag(cmd)
	if err != nil {
		return time.Time{}, "", err
	}
	return expiry, side, nil
}

// parseSideFlag reads --side. An empty side means both.
func parseSideFlag(cmd *cobra.Command) (models.OptionSide, error) {
	sideStr, _ := cmd.Flags().GetString("side")
	if sideStr == "" || strings.EqualFold(sideStr, "both") {
		return "", nil
	}
	return models.ParseOptionSide(sideStr)
}

func requireToken(app *App) error {
	if !app.Config.HasTokenSource() {
		return apperrors.Wrap(apperrors.ErrNotAuthenticated,
			"no access token configured (set API_ACCESS_TOKEN or upstox.access_token in credentials.toml)")
	}
	return nil
}

func readQuotesFile(path string) ([]models.OptionQuote, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return export.ReadQuotesCSV(f)
}

// csvTarget returns the writer named by --csv, or nil when the flag is unset.
func csvTarget(cmd *cobra.Command) (io.Writer, func() error, error) {
	path, _ := cmd.Flags().GetString("csv")
	switch path {
	case "":
		return nil, nil, nil
	case "-":
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating %s: %w", path, err)
	}
	return f, f.Close, nil
}

func renderQuotes(cmd *cobra.Command, output *Output, quotes []models.OptionQuote) error {
	w, closeFn, err := csvTarget(cmd)
	if err != nil {
		return err
	}
	if w != nil {
		if err := export.WriteQuotesCSV(w, quotes); err != nil {
			closeFn()
			return err
		}
		if err := closeFn(); err != nil {
			return err
		}
		if path, _ := cmd.Flags().GetString("csv"); path == "-" {
			return nil
		}
	}

	if output.IsJSON() {
		return output.JSON(quotes)
	}
	export.WriteQuotesTable(output.Writer(), quotes)
	return nil
}

func renderMarginRows(cmd *cobra.Command, output *Output, rows []models.MarginRow) error {
	w, closeFn, err := csvTarget(cmd)
	if err != nil {
		return err
	}
	if w != nil {
		if err := export.WriteMarginCSV(w, rows); err != nil {
			closeFn()
			return err
		}
		if err := closeFn(); err != nil {
			return err
		}
		if path, _ := cmd.Flags().GetString("csv"); path == "-" {
			return nil
		}
	}

	if output.IsJSON() {
		return output.JSON(rows)
	}

	export.WriteMarginTable(output.Writer(), rows)

	var premium float64
	failed := 0
	for _, r := range rows {
		premium += r.PremiumEarned
		if !r.MarginAvailable {
			failed++
		}
	}
	output.Println()
	output.Printf("  Rows: %d  Total premium: %s\n", len(rows), FormatIndianCurrency(premium))
	if failed > 0 {
		output.Warning("  %d margin lookup(s) failed; margin_required shown as '-' (0 in CSV/JSON)", failed)
	}
	return nil
}
