// Package store provides snapshot persistence for option quotes and margin rows.
package store

import (
	"context"
	"time"

	"upstox-options/internal/models"
)

// RunKind says which table a snapshot run holds.
type RunKind string

const (
	RunKindChain  RunKind = "chain"
	RunKindMargin RunKind = "margin"
)

// Run describes one saved snapshot.
type Run struct {
	ID         string    `json:"id"`
	Kind       RunKind   `json:"kind"`
	Instrument string    `json:"instrument"`
	Expiry     string    `json:"expiry"`
	LotSize    int       `json:"lot_size,omitempty"`
	RowCount   int       `json:"row_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// RunFilter represents filters for listing runs.
type RunFilter struct {
	Instrument string
	Kind       RunKind
	Limit      int
}

// SnapshotStore defines the interface for snapshot persistence.
type SnapshotStore interface {
	SaveQuotes(ctx context.Context, instrument string, expiry time.Time, quotes []models.OptionQuote) (*Run, error)
	SaveMarginRows(ctx context.Context, instrument string, expiry time.Time, lotSize int, rows []models.MarginRow) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)
	GetRun(ctx context.Context, runID string) (*Run, error)
	GetQuotes(ctx context.Context, runID string) ([]models.OptionQuote, error)
	GetMarginRows(ctx context.Context, runID string) ([]models.MarginRow, error)
	Close() error
}
