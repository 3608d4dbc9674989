// Package margin enriches option quotes with margin requirements and the
// premium collected for selling one lot.
package margin

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"upstox-options/internal/broker"
	"upstox-options/internal/models"
)

// DefaultLotSize is the contract multiplier used when none is configured.
const DefaultLotSize = 50

// transactionType is the side every lookup is priced for.
const transactionType = models.TransactionSell

// LookupFunc adapts a function to broker.MarginSource.
type LookupFunc func(ctx context.Context, instrumentKey string, txType models.TransactionType) (float64, error)

// MarginRequired calls f.
func (f LookupFunc) MarginRequired(ctx context.Context, instrumentKey string, txType models.TransactionType) (float64, error) {
	return f(ctx, instrumentKey, txType)
}

// Aggregator computes margin_required and premium_earned for each quote.
type Aggregator struct {
	lookup       broker.MarginSource
	lotSize      int
	optionPrefix string
	timeout      time.Duration
	logger       zerolog.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLotSize sets the lot size. Non-positive values are ignored.
func WithLotSize(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.lotSize = n
		}
	}
}

// WithOptionPrefix sets the exchange prefix of the instrument key.
func WithOptionPrefix(prefix string) Option {
	return func(a *Aggregator) {
		if prefix != "" {
			a.optionPrefix = prefix
		}
	}
}

// WithTimeout bounds each lookup. Zero means no bound beyond ctx.
func WithTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		a.timeout = d
	}
}

// WithLogger sets the logger for lookup failures.
func WithLogger(logger zerolog.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// NewAggregator creates an Aggregator backed by lookup.
func NewAggregator(lookup broker.MarginSource, opts ...Option) *Aggregator {
	a := &Aggregator{
		lookup:       lookup,
		lotSize:      DefaultLotSize,
		optionPrefix: models.DefaultOptionPrefix,
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// LotSize returns the configured lot size.
func (a *Aggregator) LotSize() int {
	return a.lotSize
}

// Aggregate looks up the margin for each quote in turn and returns one row per
// quote in input order. A failed lookup sets MarginRequired to zero and does
// not stop the batch; lookups are never retried.
func (a *Aggregator) Aggregate(ctx context.Context, quotes []models.OptionQuote) []models.MarginRow {
	rows := make([]models.MarginRow, 0, len(quotes))
	failed := 0

	for _, q := range quotes {
		row := models.MarginRow{
			OptionQuote:   q,
			PremiumEarned: q.Price * float64(a.lotSize),
		}

		key := models.OptionKey(a.optionPrefix, q.InstrumentName, q.StrikePrice, q.Side)
		margin, err := a.lookupOne(ctx, key)
		if err != nil {
			failed++
			a.logger.Warn().Err(err).Str("instrument_key", key).Msg("Error fetching margin")
		} else {
			row.MarginRequired = margin
			row.MarginAvailable = true
		}

		rows = append(rows, row)
	}

	if failed > 0 {
		a.logger.Warn().Int("failed", failed).Int("rows", len(rows)).Msg("Some margin lookups failed, margin_required set to 0")
	}

	return rows
}

func (a *Aggregator) lookupOne(ctx context.Context, key string) (float64, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	return a.lookup.MarginRequired(ctx, key, transactionType)
}
