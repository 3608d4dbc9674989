// Package broker provides broker integration interfaces and implementations.
package broker

import (
	"context"
	"time"

	"upstox-options/internal/models"
)

// ChainSource fetches raw option-chain rows for an underlying and expiry.
type ChainSource interface {
	GetOptionChain(ctx context.Context, instrument string, expiry time.Time) ([]models.RawEntry, error)
}

// MarginSource returns the margin required for one contract.
type MarginSource interface {
	MarginRequired(ctx context.Context, instrumentKey string, txType models.TransactionType) (float64, error)
}

// Broker is the subset of the Upstox API used by the option tools.
type Broker interface {
	ChainSource
	MarginSource
}
