package broker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upstox-options/internal/config"
	apperrors "upstox-options/internal/errors"
	"upstox-options/internal/models"
)

const chainBody = `{
  "status": "success",
  "data": [
    {
      "expiry": "2024-03-28",
      "strike_price": 22000,
      "underlying_key": "NSE_INDEX|Nifty 50",
      "call_options": {"instrument_key": "NSE_FO|1", "market_data": {"ltp": 120.5, "bid_price": 120, "ask_price": 121}},
      "put_options": {"instrument_key": "NSE_FO|2", "market_data": {"ltp": 80, "bid_price": 79.5, "ask_price": null}}
    },
    {
      "strike_price": 22100,
      "call_options": {"market_data": {}}
    }
  ]
}`

func newTestBroker(t *testing.T, handler http.HandlerFunc, token string) *UpstoxBroker {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewUpstoxBroker(UpstoxConfig{
		BaseURL: srv.URL,
		Timeout: 5 * time.Second,
		Tokens:  config.StaticToken(token),
		Logger:  zerolog.Nop(),
	})
}

func TestGetOptionChain(t *testing.T) {
	b := newTestBroker(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, optionChainPath, r.URL.Path)
		assert.Equal(t, "NSE_INDEX|NIFTY", r.URL.Query().Get("instrument_key"))
		assert.Equal(t, "2024-03-28", r.URL.Query().Get("expiry_date"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Write([]byte(chainBody))
	}, "tok")

	expiry := time.Date(2024, 3, 28, 0, 0, 0, 0, time.UTC)
	entries, err := b.GetOptionChain(context.Background(), "NIFTY", expiry)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	require.NotNil(t, entries[0].StrikePrice)
	assert.Equal(t, 22000.0, *entries[0].StrikePrice)

	bid, ok := entries[0].PutBid()
	assert.True(t, ok)
	assert.Equal(t, 79.5, bid)
	ask, ok := entries[0].CallAsk()
	assert.True(t, ok)
	assert.Equal(t, 121.0, ask)

	_, ok = entries[1].PutBid()
	assert.False(t, ok)
	_, ok = entries[1].CallAsk()
	assert.False(t, ok)
}

func TestGetOptionChainMissingData(t *testing.T) {
	b := newTestBroker(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success"}`))
	}, "tok")

	entries, err := b.GetOptionChain(context.Background(), "NIFTY", time.Now())
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestGetOptionChainUnauthorized(t *testing.T) {
	b := newTestBroker(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"status":"error","errors":[{"errorCode":"UDAPI100050","message":"Invalid token used to access API"}]}`))
	}, "tok")

	_, err := b.GetOptionChain(context.Background(), "NIFTY", time.Now())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotAuthenticated))

	var be *apperrors.BrokerError
	require.True(t, apperrors.As(err, &be))
	assert.Equal(t, http.StatusUnauthorized, be.StatusCode)
	assert.Equal(t, "UDAPI100050", be.Code)
	assert.Equal(t, "Invalid token used to access API", be.Message)
}

func TestMissingTokenSkipsRequest(t *testing.T) {
	called := false
	b := newTestBroker(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	}, "")

	_, err := b.MarginRequired(context.Background(), "NSE_OPTION|NIFTY|22000|PE", models.TransactionSell)
	assert.ErrorIs(t, err, apperrors.ErrNotAuthenticated)
	assert.False(t, called)
}

func TestMarginRequired(t *testing.T) {
	b := newTestBroker(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, marginPath, r.URL.Path)
		assert.Equal(t, "NSE_OPTION|NIFTY|22000|PE", r.URL.Query().Get("instrument_key"))
		assert.Equal(t, "SELL", r.URL.Query().Get("transaction_type"))
		w.Write([]byte(`{"status":"success","margin":{"required":1200.5}}`))
	}, "tok")

	m, err := b.MarginRequired(context.Background(), "NSE_OPTION|NIFTY|22000|PE", models.TransactionSell)
	require.NoError(t, err)
	assert.Equal(t, 1200.5, m)
}

func TestMarginRequiredMissingFieldIsZero(t *testing.T) {
	b := newTestBroker(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success"}`))
	}, "tok")

	m, err := b.MarginRequired(context.Background(), "NSE_OPTION|NIFTY|22000|PE", models.TransactionSell)
	require.NoError(t, err)
	assert.Zero(t, m)
}

func TestMarginRequiredServerErrorAndBadJSON(t *testing.T) {
	b := newTestBroker(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, "tok")
	_, err := b.MarginRequired(context.Background(), "k", models.TransactionSell)
	var be *apperrors.BrokerError
	require.True(t, apperrors.As(err, &be))
	assert.Equal(t, http.StatusInternalServerError, be.StatusCode)

	b = newTestBroker(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}, "tok")
	_, err = b.MarginRequired(context.Background(), "k", models.TransactionSell)
	var de *apperrors.DataError
	assert.True(t, apperrors.As(err, &de))
}

func TestRateLimited(t *testing.T) {
	b := newTestBroker(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}, "tok")
	_, err := b.MarginRequired(context.Background(), "k", models.TransactionSell)
	assert.ErrorIs(t, err, apperrors.ErrRateLimited)
}

func TestTimeout(t *testing.T) {
	b := newTestBroker(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}, "tok")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := b.MarginRequired(ctx, "k", models.TransactionSell)
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
}
