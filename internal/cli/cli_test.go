package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upstox-options/internal/config"
	apperrors "upstox-options/internal/errors"
	"upstox-options/internal/store"
)

const testChain = `{"status":"success","data":[
  {"strike_price":100,"put_options":{"market_data":{"bid_price":5}},"call_options":{"market_data":{"ask_price":7}}},
  {"strike_price":90,"put_options":{"market_data":{"bid_price":2}},"call_options":{"market_data":{"ask_price":null}}}
]}`

func newUpstoxServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/option/chain":
			w.Write([]byte(testChain))
		case "/v2/margin/requirement":
			if r.URL.Query().Get("instrument_key") == "NSE_OPTION|NIFTY|100|CE" {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Write([]byte(`{"status":"success","margin":{"required":1200}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	cfg := config.Default()
	cfg.Upstox.BaseURL = baseURL
	cfg.Credentials.Upstox.AccessToken = "tok"
	cfg.Store.Path = filepath.Join(t.TempDir(), "snapshots.db")
	return cfg
}

func run(t *testing.T, cfg *config.Config, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCmd(cfg, zerolog.Nop())
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestChainCSV(t *testing.T) {
	srv := newUpstoxServer(t)
	out, _, err := run(t, testConfig(t, srv.URL), "chain", "NIFTY", "--expiry", "2024-03-28", "--csv", "-")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, []string{
		"instrument_name,strike_price,side,bid/ask",
		"NIFTY,90,PE,2",
		"NIFTY,100,CE,7",
		"NIFTY,100,PE,5",
	}, lines)
}

func TestChainSideFilterJSON(t *testing.T) {
	srv := newUpstoxServer(t)
	out, _, err := run(t, testConfig(t, srv.URL), "chain", "NIFTY", "--expiry", "2024-03-28", "--side", "ce", "--json")
	require.NoError(t, err)

	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "CE", rows[0]["side"])
	assert.Equal(t, 7.0, rows[0]["bid/ask"])
}

func TestMarginCSVWithFailedLookup(t *testing.T) {
	srv := newUpstoxServer(t)
	out, stderr, err := run(t, testConfig(t, srv.URL), "margin", "NIFTY", "--expiry", "2024-03-28", "--csv", "-")
	require.NoError(t, err)
	assert.Empty(t, stderr)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, []string{
		"instrument_name,strike_price,side,bid/ask,margin_required,premium_earned",
		"NIFTY,90,PE,2,1200,100",
		"NIFTY,100,CE,7,0,350",
		"NIFTY,100,PE,5,1200,250",
	}, lines)
}

func TestMarginTableSummary(t *testing.T) {
	srv := newUpstoxServer(t)
	out, stderr, err := run(t, testConfig(t, srv.URL), "margin", "NIFTY", "--expiry", "2024-03-28", "--lot-size", "25")
	require.NoError(t, err)
	assert.Contains(t, out, "premium_earned")
	assert.Contains(t, out, "Rows: 3")
	assert.Contains(t, stderr, "1 margin lookup(s) failed")
}

func TestMarginSaveAndHistory(t *testing.T) {
	srv := newUpstoxServer(t)
	cfg := testConfig(t, srv.URL)

	_, _, err := run(t, cfg, "margin", "NIFTY", "--expiry", "2024-03-28", "--side", "PE", "--save", "--json")
	require.NoError(t, err)

	out, _, err := run(t, cfg, "history", "list", "--json")
	require.NoError(t, err)
	var runs []store.Run
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, store.RunKindMargin, runs[0].Kind)
	assert.Equal(t, 2, runs[0].RowCount)
	assert.Equal(t, 50, runs[0].LotSize)

	out, _, err = run(t, cfg, "history", "show", runs[0].ID, "--csv", "-")
	require.NoError(t, err)
	assert.Equal(t,
		"instrument_name,strike_price,side,bid/ask,margin_required,premium_earned\nNIFTY,90,PE,2,1200,100\nNIFTY,100,PE,5,1200,250\n",
		out)
}

func TestChainRequiresExpiry(t *testing.T) {
	srv := newUpstoxServer(t)
	_, stderr, err := run(t, testConfig(t, srv.URL), "chain", "NIFTY")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrConfigInvalid))
	assert.Contains(t, stderr, "--expiry is required")
}

func TestChainRequiresToken(t *testing.T) {
	srv := newUpstoxServer(t)
	cfg := testConfig(t, srv.URL)
	cfg.Credentials.Upstox.AccessToken = ""
	_, _, err := run(t, cfg, "chain", "NIFTY", "--expiry", "2024-03-28")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotAuthenticated))
}

func TestChainFetchFailureIsEmptyTable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	out, stderr, err := run(t, testConfig(t, srv.URL), "chain", "NIFTY", "--expiry", "2024-03-28", "--csv", "-")
	require.NoError(t, err)
	assert.Equal(t, "instrument_name,strike_price,side,bid/ask\n", out)
	assert.Contains(t, stderr, "No option chain data found")
}

func TestVersionJSON(t *testing.T) {
	out, _, err := run(t, config.Default(), "version", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, Version)
}

func TestMarginFromCSVAppliesSide(t *testing.T) {
	srv := newUpstoxServer(t)
	path := filepath.Join(t.TempDir(), "quotes.csv")
	require.NoError(t, os.WriteFile(path, []byte(
		"instrument_name,strike_price,side,bid/ask\nNIFTY,90,PE,2\nNIFTY,100,CE,7\nNIFTY,100,PE,5\n"), 0644))

	out, _, err := run(t, testConfig(t, srv.URL), "margin", "NIFTY", "--from-csv", path, "--side", "pe", "--csv", "-")
	require.NoError(t, err)
	assert.Equal(t,
		"instrument_name,strike_price,side,bid/ask,margin_required,premium_earned\nNIFTY,90,PE,2,1200,100\nNIFTY,100,PE,5,1200,250\n",
		out)

	_, _, err = run(t, testConfig(t, srv.URL), "margin", "NIFTY", "--from-csv", path, "--side", "XX")
	assert.Error(t, err)
}

func TestSaveKeepsStdoutClean(t *testing.T) {
	srv := newUpstoxServer(t)
	out, stderr, err := run(t, testConfig(t, srv.URL), "chain", "NIFTY", "--expiry", "2024-03-28", "--save", "--json")
	require.NoError(t, err)

	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	assert.Len(t, rows, 3)
	assert.Contains(t, stderr, "Saved snapshot")
}

type closingTokens struct {
	closed bool
}

func (c *closingTokens) Token(ctx context.Context) (string, error) { return "tok", nil }

func (c *closingTokens) Close() error {
	c.closed = true
	return nil
}

func TestAppCloseReleasesTokenSource(t *testing.T) {
	tokens := &closingTokens{}
	app := &App{Config: config.Default(), tokens: tokens}

	require.NoError(t, app.Close())
	assert.True(t, tokens.closed)
	assert.Nil(t, app.tokens)

	// StaticToken holds nothing to close.
	app.tokens = config.StaticToken("tok")
	assert.NoError(t, app.Close())
}

func TestInitBrokerKeepsTokenSource(t *testing.T) {
	cfg := config.Default()
	cfg.Credentials.Upstox.AccessToken = ""
	cfg.Credentials.Upstox.RedisURL = "redis://localhost:6379/0"
	app := &App{Config: cfg, Logger: zerolog.Nop()}

	require.NoError(t, app.initBroker())
	_, ok := app.tokens.(*config.RedisToken)
	assert.True(t, ok)
	require.NoError(t, app.Close())
}
