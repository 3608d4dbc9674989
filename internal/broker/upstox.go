package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"upstox-options/internal/config"
	apperrors "upstox-options/internal/errors"
	"upstox-options/internal/logging"
	"upstox-options/internal/models"
	"upstox-options/internal/security"
)

const (
	optionChainPath = "/v2/option/chain"
	marginPath      = "/v2/margin/requirement"
)

// UpstoxBroker implements Broker against the Upstox v2 REST API.
type UpstoxBroker struct {
	httpClient  *http.Client
	baseURL     string
	indexPrefix string
	tokens      config.TokenSource
	logger      zerolog.Logger
}

// UpstoxConfig holds configuration for the Upstox broker.
type UpstoxConfig struct {
	BaseURL     string
	Timeout     time.Duration
	IndexPrefix string
	Tokens      config.TokenSource
	HTTPClient  *http.Client
	Logger      zerolog.Logger
}

// NewUpstoxBroker creates a new Upstox broker instance.
func NewUpstoxBroker(cfg UpstoxConfig) *UpstoxBroker {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = config.DefaultBaseURL
	}
	prefix := cfg.IndexPrefix
	if prefix == "" {
		prefix = models.DefaultIndexPrefix
	}
	tokens := cfg.Tokens
	if tokens == nil {
		tokens = config.StaticToken("")
	}

	return &UpstoxBroker{
		httpClient:  client,
		baseURL:     baseURL,
		indexPrefix: prefix,
		tokens:      tokens,
		logger:      cfg.Logger,
	}
}

// GetOptionChain fetches the option chain for an index and expiry.
// A response without a data array yields an empty slice.
func (u *UpstoxBroker) GetOptionChain(ctx context.Context, instrument string, expiry time.Time) ([]models.RawEntry, error) {
	params := url.Values{}
	params.Set("instrument_key", models.IndexKey(u.indexPrefix, instrument))
	params.Set("expiry_date", expiry.Format(models.ExpiryLayout))

	var resp models.OptionChainResponse
	if err := u.get(ctx, optionChainPath, params, &resp); err != nil {
		return nil, apperrors.Wrapf(err, "fetching option chain for %s", instrument)
	}
	if resp.Data == nil {
		return []models.RawEntry{}, nil
	}
	return resp.Data, nil
}

// MarginRequired returns margin.required for a contract. A response without
// that field yields zero.
func (u *UpstoxBroker) MarginRequired(ctx context.Context, instrumentKey string, txType models.TransactionType) (float64, error) {
	params := url.Values{}
	params.Set("instrument_key", instrumentKey)
	params.Set("transaction_type", string(txType))

	var resp models.MarginResponse
	if err := u.get(ctx, marginPath, params, &resp); err != nil {
		return 0, apperrors.Wrapf(err, "fetching margin for %s", instrumentKey)
	}
	return resp.RequiredMargin(), nil
}

func (u *UpstoxBroker) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	token, err := u.tokens.Token(ctx)
	if err != nil {
		return err
	}

	endpoint := u.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	res, err := u.httpClient.Do(req)
	if err != nil {
		err = classifyTransportError(ctx, err)
		logging.LogAPICall(u.logger, http.MethodGet, path, 0, time.Since(start), err)
		return err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		err = fmt.Errorf("%w: reading response: %v", apperrors.ErrConnectionFailed, err)
		logging.LogAPICall(u.logger, http.MethodGet, path, res.StatusCode, time.Since(start), err)
		return err
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		err = newStatusError(res.StatusCode, body)
		logging.LogAPICall(u.logger, http.MethodGet, path, res.StatusCode, time.Since(start), err)
		return err
	}
	logging.LogAPICall(u.logger, http.MethodGet, path, res.StatusCode, time.Since(start), nil)

	if err := json.Unmarshal(body, out); err != nil {
		return apperrors.NewDataError(path, params.Get("instrument_key"), "decoding response", err)
	}
	return nil
}

func classifyTransportError(ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%w: %v", apperrors.ErrTimeout, err)
	}
	if uerr, ok := err.(*url.Error); ok && uerr.Timeout() {
		return fmt.Errorf("%w: %v", apperrors.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", apperrors.ErrConnectionFailed, err)
}

// newStatusError maps a non-2xx response to a BrokerError, keeping the first
// Upstox error code and message when the body carries one.
func newStatusError(status int, body []byte) error {
	code, message := "", http.StatusText(status)

	var errResp models.ErrorResponse
	if json.Unmarshal(body, &errResp) == nil && len(errResp.Errors) > 0 {
		code = errResp.Errors[0].ErrorCode
		message = security.MaskSensitive(errResp.Errors[0].Message)
	}

	var cause error
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		cause = apperrors.ErrNotAuthenticated
	case http.StatusTooManyRequests:
		cause = apperrors.ErrRateLimited
	}
	return apperrors.NewBrokerError(status, code, message, cause)
}
