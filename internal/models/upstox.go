package models

// Upstox v2 wire types. Every nested level is a pointer so that an absent
// key and an explicit null both decode to nil.

// OptionChainResponse is the envelope returned by /v2/option/chain.
type OptionChainResponse struct {
	Status string     `json:"status"`
	Data   []RawEntry `json:"data"`
}

// RawEntry is a single strike row of the option chain.
type RawEntry struct {
	Expiry              string          `json:"expiry"`
	Pcr                 *float64        `json:"pcr"`
	StrikePrice         *float64        `json:"strike_price"`
	UnderlyingKey       string          `json:"underlying_key"`
	UnderlyingSpotPrice *float64        `json:"underlying_spot_price"`
	CallOptions         *OptionContract `json:"call_options"`
	PutOptions          *OptionContract `json:"put_options"`
}

// OptionContract holds market data for one side of a strike.
type OptionContract struct {
	InstrumentKey string        `json:"instrument_key"`
	MarketData    *MarketData   `json:"market_data"`
	OptionGreeks  *OptionGreeks `json:"option_greeks"`
}

// MarketData is the quote block of an option contract.
type MarketData struct {
	Ltp        *float64 `json:"ltp"`
	ClosePrice *float64 `json:"close_price"`
	Volume     *float64 `json:"volume"`
	Oi         *float64 `json:"oi"`
	BidPrice   *float64 `json:"bid_price"`
	BidQty     *float64 `json:"bid_qty"`
	AskPrice   *float64 `json:"ask_price"`
	AskQty     *float64 `json:"ask_qty"`
	PrevOi     *float64 `json:"prev_oi"`
}

// OptionGreeks represents option Greeks.
type OptionGreeks struct {
	Vega  *float64 `json:"vega"`
	Theta *float64 `json:"theta"`
	Gamma *float64 `json:"gamma"`
	Delta *float64 `json:"delta"`
	Iv    *float64 `json:"iv"`
}

// PutBid returns the put bid price, or false if any level is missing.
func (e RawEntry) PutBid() (float64, bool) {
	if e.PutOptions == nil || e.PutOptions.MarketData == nil || e.PutOptions.MarketData.BidPrice == nil {
		return 0, false
	}
	return *e.PutOptions.MarketData.BidPrice, true
}

// CallAsk returns the call ask price, or false if any level is missing.
func (e RawEntry) CallAsk() (float64, bool) {
	if e.CallOptions == nil || e.CallOptions.MarketData == nil || e.CallOptions.MarketData.AskPrice == nil {
		return 0, false
	}
	return *e.CallOptions.MarketData.AskPrice, true
}

// MarginResponse is the body returned by the margin requirement endpoint.
type MarginResponse struct {
	Status string       `json:"status"`
	Margin *MarginBlock `json:"margin"`
}

// MarginBlock holds the required margin figure.
type MarginBlock struct {
	Required *float64 `json:"required"`
}

// RequiredMargin returns margin.required, defaulting to zero when absent.
func (r MarginResponse) RequiredMargin() float64 {
	if r.Margin == nil || r.Margin.Required == nil {
		return 0
	}
	return *r.Margin.Required
}

// ErrorResponse is the body Upstox returns on failures.
type ErrorResponse struct {
	Status string     `json:"status"`
	Errors []APIError `json:"errors"`
}

// APIError is a single error entry in an ErrorResponse.
type APIError struct {
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}
