package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"goquant/internal/domain"
)

// LoadCSV reads OHLCV bars for one symbol from a CSV file with a header row:
//
//	timestamp,open,high,low,close,volume
//
// Timestamps are RFC 3339 or "2006-01-02". Rows must be ascending by time.
func LoadCSV(path, symbol, timeframe string) ([]domain.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 6

	// Header row.
	if _, err := r.Read(); err != nil {
		return nil, fmt.Errorf("read csv header %s: %w", path, err)
	}

	var bars []domain.Bar
	for line := 2; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}

		ts, err := parseTimestamp(rec[0])
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}

		vals := make([]float64, 5)
		for i := 0; i < 5; i++ {
			v, err := strconv.ParseFloat(rec[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: column %d: %w", path, line, i+2, err)
			}
			vals[i] = v
		}

		bars = append(bars, domain.Bar{
			Symbol:    symbol,
			Timeframe: timeframe,
			Timestamp: ts,
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    vals[4],
		})
	}
	return bars, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	// Unix seconds as a last resort.
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
