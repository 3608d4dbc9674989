package chain

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"upstox-options/internal/broker"
	"upstox-options/internal/logging"
	"upstox-options/internal/models"
)

// Service fetches an option chain and extracts quotes from it.
type Service struct {
	source    broker.ChainSource
	extractor *Extractor
	logger    zerolog.Logger
}

// NewService creates a chain Service.
func NewService(source broker.ChainSource, logger zerolog.Logger) *Service {
	return &Service{
		source:    source,
		extractor: NewExtractor(logger),
		logger:    logger,
	}
}

// Quotes returns the sorted quotes for instrument and expiry, optionally
// restricted to one side. A failed fetch is logged and yields no quotes.
func (s *Service) Quotes(ctx context.Context, instrument string, expiry time.Time, side models.OptionSide) []models.OptionQuote {
	log := logging.WithInstrument(s.logger, instrument)

	entries, err := s.source.GetOptionChain(ctx, instrument, expiry)
	if err != nil {
		log.Warn().Err(err).Str("expiry", expiry.Format(models.ExpiryLayout)).Msg("Error fetching option chain")
		return []models.OptionQuote{}
	}

	return FilterSide(s.extractor.Extract(entries, instrument), side)
}
