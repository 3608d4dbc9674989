package store

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "upstox-options/internal/errors"
	"upstox-options/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "snapshots.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var expiry = time.Date(2024, 3, 28, 0, 0, 0, 0, time.UTC)

func TestSaveAndGetQuotes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	quotes := []models.OptionQuote{
		{InstrumentName: "NIFTY", StrikePrice: 22000, Side: models.SideCall, Price: 121},
		{InstrumentName: "NIFTY", StrikePrice: 22000, Side: models.SidePut, Price: 79.5},
	}
	run, err := s.SaveQuotes(ctx, "NIFTY", expiry, quotes)
	require.NoError(t, err)
	assert.Equal(t, RunKindChain, run.Kind)
	assert.Equal(t, "2024-03-28", run.Expiry)
	assert.Equal(t, 2, run.RowCount)

	got, err := s.GetQuotes(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, quotes, got)

	stored, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, stored.ID)
	assert.Equal(t, "NIFTY", stored.Instrument)
}

func TestSaveAndGetMarginRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rows := []models.MarginRow{
		{OptionQuote: models.OptionQuote{InstrumentName: "NIFTY", StrikePrice: 100, Side: models.SidePut, Price: 5}, MarginRequired: 1200, PremiumEarned: 250, MarginAvailable: true},
		{OptionQuote: models.OptionQuote{InstrumentName: "NIFTY", StrikePrice: 100, Side: models.SideCall, Price: 7}, MarginRequired: 0, PremiumEarned: 350, MarginAvailable: false},
	}
	run, err := s.SaveMarginRows(ctx, "NIFTY", expiry, 50, rows)
	require.NoError(t, err)
	assert.Equal(t, RunKindMargin, run.Kind)
	assert.Equal(t, 50, run.LotSize)

	got, err := s.GetMarginRows(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}

func TestListRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	_, err := s.SaveQuotes(ctx, "NIFTY", expiry, nil)
	require.NoError(t, err)
	_, err = s.SaveQuotes(ctx, "BANKNIFTY", expiry, nil)
	require.NoError(t, err)
	last, err := s.SaveMarginRows(ctx, "NIFTY", expiry, 50, nil)
	require.NoError(t, err)

	runs, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, last.ID, runs[0].ID)

	runs, err = s.ListRuns(ctx, RunFilter{Instrument: "NIFTY"})
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	runs, err = s.ListRuns(ctx, RunFilter{Kind: RunKindChain, Limit: 1})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "BANKNIFTY", runs[0].Instrument)
}

func TestGetUnknownRun(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetQuotes(context.Background(), "does-not-exist")
	assert.True(t, apperrors.Is(err, apperrors.ErrDataNotFound))
}

// Property: saving margin rows and reading them back preserves every field
// and the original order.
func TestProperty_MarginRowRoundTrip(t *testing.T) {
	s := newTestStore(t)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	quoteGen := gen.Struct(reflect.TypeOf(models.OptionQuote{}), map[string]gopter.Gen{
		"InstrumentName": gen.OneConstOf("NIFTY", "BANKNIFTY"),
		"StrikePrice":    gen.Float64Range(1000, 60000),
		"Side":           gen.OneConstOf(models.SideCall, models.SidePut),
		"Price":          gen.Float64Range(0, 2000),
	})

	properties.Property("margin rows round-trip", prop.ForAll(
		func(quotes []models.OptionQuote, margin float64, lotSize int) bool {
			rows := make([]models.MarginRow, len(quotes))
			for i, q := range quotes {
				rows[i] = models.MarginRow{
					OptionQuote:     q,
					MarginRequired:  margin,
					PremiumEarned:   q.Price * float64(lotSize),
					MarginAvailable: i%2 == 0,
				}
			}

			ctx := context.Background()
			run, err := s.SaveMarginRows(ctx, "NIFTY", expiry, lotSize, rows)
			if err != nil {
				return false
			}
			got, err := s.GetMarginRows(ctx, run.ID)
			if err != nil || len(got) != len(rows) {
				return false
			}
			for i := range rows {
				if got[i] != rows[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(quoteGen),
		gen.Float64Range(0, 500000),
		gen.IntRange(1, 1800),
	))

	properties.TestingRun(t)
}
