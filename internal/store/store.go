// Package store provides persistence for OHLCV bar history: a BarStore
// interface with SQLite and Parquet implementations plus a CSV loader.
// The engine itself never touches storage; it consumes bar slices.
package store

import (
	"context"
	"time"

	"goquant/internal/domain"
)

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars to storage.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol and timeframe within
	// [start, end], ascending by timestamp.
	ReadBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available for the timeframe.
	ListSymbols(ctx context.Context, timeframe string) ([]string, error)
}
