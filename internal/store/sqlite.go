package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	apperrors "upstox-options/internal/errors"
	"upstox-options/internal/models"
)

// SQLiteStore implements SnapshotStore using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore creates a new SQLite-based snapshot store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{
		db:  db,
		now: time.Now,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- One row per saved snapshot
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		instrument TEXT NOT NULL,
		expiry TEXT NOT NULL,
		lot_size INTEGER,
		row_count INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	);

	-- Quote rows; margin columns are NULL for chain runs
	CREATE TABLE IF NOT EXISTS run_rows (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		instrument_name TEXT NOT NULL,
		strike_price REAL NOT NULL,
		side TEXT NOT NULL,
		price REAL NOT NULL,
		margin_required REAL,
		premium_earned REAL,
		margin_available INTEGER,
		PRIMARY KEY (run_id, seq),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_runs_instrument ON runs(instrument, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveQuotes saves an option-chain snapshot.
func (s *SQLiteStore) SaveQuotes(ctx context.Context, instrument string, expiry time.Time, quotes []models.OptionQuote) (*Run, error) {
	run := s.newRun(RunKindChain, instrument, expiry, 0, len(quotes))

	err := s.withTx(ctx, run, func(stmt *sql.Stmt) error {
		for i, q := range quotes {
			if _, err := stmt.ExecContext(ctx, run.ID, i, q.InstrumentName, q.StrikePrice, string(q.Side), q.Price, nil, nil, nil); err != nil {
				return fmt.Errorf("failed to insert quote: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// SaveMarginRows saves a margin/premium snapshot.
func (s *SQLiteStore) SaveMarginRows(ctx context.Context, instrument string, expiry time.Time, lotSize int, rows []models.MarginRow) (*Run, error) {
	run := s.newRun(RunKindMargin, instrument, expiry, lotSize, len(rows))

	err := s.withTx(ctx, run, func(stmt *sql.Stmt) error {
		for i, r := range rows {
			if _, err := stmt.ExecContext(ctx, run.ID, i, r.InstrumentName, r.StrikePrice, string(r.Side), r.Price,
				r.MarginRequired, r.PremiumEarned, r.MarginAvailable); err != nil {
				return fmt.Errorf("failed to insert margin row: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (s *SQLiteStore) newRun(kind RunKind, instrument string, expiry time.Time, lotSize, count int) *Run {
	return &Run{
		ID:         uuid.NewString(),
		Kind:       kind,
		Instrument: instrument,
		Expiry:     expiry.Format(models.ExpiryLayout),
		LotSize:    lotSize,
		RowCount:   count,
		CreatedAt:  s.now().UTC(),
	}
}

func (s *SQLiteStore) withTx(ctx context.Context, run *Run, insertRows func(stmt *sql.Stmt) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", apperrors.ErrDatabaseError, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, kind, instrument, expiry, lot_size, row_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, string(run.Kind), run.Instrument, run.Expiry, run.LotSize, run.RowCount, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: failed to insert run: %v", apperrors.ErrDatabaseError, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_rows (run_id, seq, instrument_name, strike_price, side, price, margin_required, premium_earned, margin_available)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("%w: failed to prepare statement: %v", apperrors.ErrDatabaseError, err)
	}
	defer stmt.Close()

	if err := insertRows(stmt); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrDatabaseError, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit transaction: %v", apperrors.ErrDatabaseError, err)
	}
	return nil
}

// ListRuns lists saved runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT id, kind, instrument, expiry, COALESCE(lot_size, 0), row_count, created_at FROM runs WHERE 1=1`
	var args []interface{}

	if filter.Instrument != "" {
		query += ` AND instrument = ?`
		args = append(args, filter.Instrument)
	}
	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(filter.Kind))
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// GetRun returns a single run, or ErrDataNotFound.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, instrument, expiry, COALESCE(lot_size, 0), row_count, created_at
		FROM runs WHERE id = ?
	`, runID)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.Wrapf(apperrors.ErrDataNotFound, "run %s", runID)
	}
	return r, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(sc scanner) (*Run, error) {
	var r Run
	var kind string
	if err := sc.Scan(&r.ID, &kind, &r.Instrument, &r.Expiry, &r.LotSize, &r.RowCount, &r.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	r.Kind = RunKind(kind)
	return &r, nil
}

// GetQuotes returns the quotes of a run in saved order.
func (s *SQLiteStore) GetQuotes(ctx context.Context, runID string) ([]models.OptionQuote, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT instrument_name, strike_price, side, price
		FROM run_rows WHERE run_id = ? ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query quotes: %w", err)
	}
	defer rows.Close()

	quotes := []models.OptionQuote{}
	for rows.Next() {
		var q models.OptionQuote
		var side string
		if err := rows.Scan(&q.InstrumentName, &q.StrikePrice, &side, &q.Price); err != nil {
			return nil, fmt.Errorf("failed to scan quote: %w", err)
		}
		q.Side = models.OptionSide(side)
		quotes = append(quotes, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating quotes: %w", err)
	}
	return quotes, nil
}

// GetMarginRows returns the margin rows of a run in saved order. Chain runs
// come back with zero margin and premium and MarginAvailable false.
func (s *SQLiteStore) GetMarginRows(ctx context.Context, runID string) ([]models.MarginRow, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT instrument_name, strike_price, side, price,
			COALESCE(margin_required, 0), COALESCE(premium_earned, 0), COALESCE(margin_available, 0)
		FROM run_rows WHERE run_id = ? ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query margin rows: %w", err)
	}
	defer rows.Close()

	result := []models.MarginRow{}
	for rows.Next() {
		var r models.MarginRow
		var side string
		if err := rows.Scan(&r.InstrumentName, &r.StrikePrice, &side, &r.Price,
			&r.MarginRequired, &r.PremiumEarned, &r.MarginAvailable); err != nil {
			return nil, fmt.Errorf("failed to scan margin row: %w", err)
		}
		r.Side = models.OptionSide(side)
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating margin rows: %w", err)
	}
	return result, nil
}
