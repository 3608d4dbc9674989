package models

// OptionQuote is one (strike, side) price taken from an option chain.
// Price is the put bid for PE and the call ask for CE.
type OptionQuote struct {
	InstrumentName string     `json:"instrument_name" csv:"instrument_name"`
	StrikePrice    float64    `json:"strike_price" csv:"strike_price"`
	Side           OptionSide `json:"side" csv:"side"`
	Price          float64    `json:"bid/ask" csv:"bid/ask"`
}

// MarginRow is an OptionQuote enriched with the margin needed to sell it and
// the premium collected for one lot.
type MarginRow struct {
	OptionQuote
	MarginRequired float64 `json:"margin_required" csv:"margin_required"`
	PremiumEarned  float64 `json:"premium_earned" csv:"premium_earned"`

	// MarginAvailable is false when the margin lookup failed and
	// MarginRequired holds the substituted zero.
	MarginAvailable bool `json:"-" csv:"-"`
}

// QuoteColumns are the table headers for option quotes.
var QuoteColumns = []string{"instrument_name", "strike_price", "side", "bid/ask"}

// MarginColumns are the table headers for margin rows.
var MarginColumns = append(append([]string{}, QuoteColumns...), "margin_required", "premium_earned")
