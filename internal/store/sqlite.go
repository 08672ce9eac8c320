package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"goquant/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ BarStore = (*SQLiteStore)(nil)

// SQLiteStore implements BarStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const barSchema = `
CREATE TABLE IF NOT EXISTS bars (
	symbol    TEXT    NOT NULL,
	timeframe TEXT    NOT NULL,
	ts        INTEGER NOT NULL, -- Unix ms
	open      REAL    NOT NULL,
	high      REAL    NOT NULL,
	low       REAL    NOT NULL,
	close     REAL    NOT NULL,
	volume    REAL    NOT NULL,
	PRIMARY KEY (symbol, timeframe, ts)
);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, ensures the
// bars table exists, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(barSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create bars table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// WriteBars inserts bars in one transaction, replacing on conflict so reruns
// of the same load are idempotent.
func (s *SQLiteStore) WriteBars(ctx context.Context, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars (symbol, timeframe, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx,
			b.Symbol, b.Timeframe, b.Timestamp.UnixMilli(),
			b.Open, b.High, b.Low, b.Close, b.Volume,
		); err != nil {
			return fmt.Errorf("insert bar %s@%s: %w", b.Symbol, b.Timestamp, err)
		}
	}
	return tx.Commit()
}

// ReadBars returns bars for the symbol and timeframe within [start, end],
// ascending by timestamp.
func (s *SQLiteStore) ReadBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]domain.Bar, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, timeframe, ts, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND timeframe = ? AND ts BETWEEN ? AND ?
		ORDER BY ts ASC`,
		symbol, timeframe, start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bars []domain.Bar
	for rows.Next() {
		var b domain.Bar
		var ts int64
		if err := rows.Scan(&b.Symbol, &b.Timeframe, &ts, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, err
		}
		b.Timestamp = time.UnixMilli(ts).UTC()
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// ListSymbols returns all distinct symbols stored for the timeframe.
func (s *SQLiteStore) ListSymbols(ctx context.Context, timeframe string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT symbol FROM bars WHERE timeframe = ? ORDER BY symbol`, timeframe)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		symbols = append(symbols, s)
	}
	return symbols, rows.Err()
}
