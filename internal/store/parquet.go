package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"goquant/internal/domain"
)

// Compile-time interface check.
var _ BarStore = (*ParquetStore)(nil)

// ParquetStore implements BarStore using Parquet files on disk, one file per
// symbol and timeframe:
//
//	<DataDir>/<timeframe>/<SYMBOL>.parquet
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// BarRecord is the Parquet schema for bar data.
type BarRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timeframe string  `parquet:"timeframe"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
}

// WriteBars writes bars grouped by symbol and timeframe, merging with any
// records already on disk and deduplicating by timestamp.
func (s *ParquetStore) WriteBars(_ context.Context, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	type key struct {
		symbol    string
		timeframe string
	}
	groups := make(map[key][]BarRecord)
	for _, b := range bars {
		k := key{symbol: b.Symbol, timeframe: b.Timeframe}
		groups[k] = append(groups[k], BarRecord{
			Symbol:    b.Symbol,
			Timeframe: b.Timeframe,
			Timestamp: b.Timestamp.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}

	for k, records := range groups {
		path := s.barPath(k.symbol, k.timeframe)

		// Read existing records to merge.
		existing, _ := readParquetFile[BarRecord](path)
		merged := mergeBarRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s/%s: %w", k.symbol, k.timeframe, err)
		}
	}
	return nil
}

// ReadBars reads bars for the given symbol and timeframe within [start, end].
func (s *ParquetStore) ReadBars(_ context.Context, symbol, timeframe string, start, end time.Time) ([]domain.Bar, error) {
	path := s.barPath(symbol, timeframe)
	records, err := readParquetFile[BarRecord](path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var bars []domain.Bar
	for _, r := range records {
		ts := time.UnixMilli(r.Timestamp).UTC()
		if (ts.Equal(start) || ts.After(start)) && (ts.Equal(end) || ts.Before(end)) {
			bars = append(bars, domain.Bar{
				Symbol:    r.Symbol,
				Timeframe: r.Timeframe,
				Timestamp: ts,
				Open:      r.Open,
				High:      r.High,
				Low:       r.Low,
				Close:     r.Close,
				Volume:    r.Volume,
			})
		}
	}
	return bars, nil
}

// ListSymbols lists all symbols that have bar data for the given timeframe.
func (s *ParquetStore) ListSymbols(_ context.Context, timeframe string) ([]string, error) {
	dir := filepath.Join(s.DataDir, timeframe)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() && strings.HasSuffix(name, ".parquet") {
			symbols = append(symbols, strings.TrimSuffix(name, ".parquet"))
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// barPath returns the filesystem path for a bar Parquet file.
func (s *ParquetStore) barPath(symbol, timeframe string) string {
	return filepath.Join(s.DataDir, timeframe, strings.ToUpper(symbol)+".parquet")
}

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeBarRecords deduplicates bar records by timestamp, preferring new
// records over existing ones. Results are sorted ascending.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	seen := make(map[int64]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Timestamp] = r
	}
	for _, r := range incoming {
		seen[r.Timestamp] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
