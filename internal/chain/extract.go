// Package chain turns raw option-chain rows into sorted option quotes.
package chain

import (
	"sort"

	"github.com/rs/zerolog"

	"upstox-options/internal/models"
)

// Extractor converts raw option-chain entries into OptionQuotes.
type Extractor struct {
	logger zerolog.Logger
}

// NewExtractor creates an Extractor that reports skipped fields to logger.
func NewExtractor(logger zerolog.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// Extract is Extractor.Extract without logging.
func Extract(entries []models.RawEntry, instrument string) []models.OptionQuote {
	return NewExtractor(zerolog.Nop()).Extract(entries, instrument)
}

// Extract emits a PE quote from put_options.market_data.bid_price and a CE
// quote from call_options.market_data.ask_price for every entry. A side whose
// path is missing or null is skipped without affecting the other side or the
// remaining entries. The result is sorted by (strike, side) and never nil.
func (e *Extractor) Extract(entries []models.RawEntry, instrument string) []models.OptionQuote {
	quotes := make([]models.OptionQuote, 0, 2*len(entries))
	if len(entries) == 0 {
		e.logger.Warn().Str("instrument", instrument).Msg("No option chain data found")
		return quotes
	}

	skipped := 0
	for i, entry := range entries {
		if entry.StrikePrice == nil {
			e.logger.Debug().Int("index", i).Msg("Entry has no strike_price, skipping")
			skipped += 2
			continue
		}
		strike := *entry.StrikePrice

		if bid, ok := entry.PutBid(); ok {
			quotes = append(quotes, models.OptionQuote{
				InstrumentName: instrument,
				StrikePrice:    strike,
				Side:           models.SidePut,
				Price:          bid,
			})
		} else {
			skipped++
			e.logger.Debug().Float64("strike", strike).Msg("put_options.market_data.bid_price missing")
		}

		if ask, ok := entry.CallAsk(); ok {
			quotes = append(quotes, models.OptionQuote{
				InstrumentName: instrument,
				StrikePrice:    strike,
				Side:           models.SideCall,
				Price:          ask,
			})
		} else {
			skipped++
			e.logger.Debug().Float64("strike", strike).Msg("call_options.market_data.ask_price missing")
		}
	}

	SortQuotes(quotes)

	e.logger.Debug().
		Str("instrument", instrument).
		Int("entries", len(entries)).
		Int("quotes", len(quotes)).
		Int("skipped", skipped).
		Msg("Option chain extracted")

	return quotes
}

// SortQuotes orders quotes by strike, then side ("CE" before "PE").
// Equal rows keep their relative order.
func SortQuotes(quotes []models.OptionQuote) {
	sort.SliceStable(quotes, func(i, j int) bool {
		if quotes[i].StrikePrice != quotes[j].StrikePrice {
			return quotes[i].StrikePrice < quotes[j].StrikePrice
		}
		return quotes[i].Side < quotes[j].Side
	})
}

// FilterSide keeps only quotes for side. An empty side keeps everything.
func FilterSide(quotes []models.OptionQuote, side models.OptionSide) []models.OptionQuote {
	if side == "" {
		return quotes
	}
	out := make([]models.OptionQuote, 0, len(quotes))
	for _, q := range quotes {
		if q.Side == side {
			out = append(out, q)
		}
	}
	return out
}
