package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeCSV(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bars.csv")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func TestLoadCSV(t *testing.T) {
	path := writeCSV(t, `timestamp,open,high,low,close,volume
2024-01-02,50,52,49,51,10000
2024-01-03T00:00:00Z,51,53,50.5,52.5,12000
1704326400,52.5,54,52,53,9000
`)

	bars, err := LoadCSV(path, "AAPL", "1d")
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	if len(bars) != 3 {
		t.Fatalf("got %d bars, want 3", len(bars))
	}

	first := bars[0]
	if first.Symbol != "AAPL" || first.Timeframe != "1d" {
		t.Errorf("identity = %s/%s, want AAPL/1d", first.Symbol, first.Timeframe)
	}
	want := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	if !first.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %s, want %s", first.Timestamp, want)
	}
	if first.Open != 50 || first.High != 52 || first.Low != 49 || first.Close != 51 || first.Volume != 10000 {
		t.Errorf("OHLCV = %+v", first)
	}

	// All three timestamp formats parse and stay ascending.
	for i := 1; i < len(bars); i++ {
		if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
			t.Errorf("bar %d timestamp %s not after %s", i, bars[i].Timestamp, bars[i-1].Timestamp)
		}
	}
}

func TestLoadCSVErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"bad timestamp", "timestamp,open,high,low,close,volume\nyesterday,1,1,1,1,1\n"},
		{"bad price", "timestamp,open,high,low,close,volume\n2024-01-02,abc,1,1,1,1\n"},
		{"short row", "timestamp,open,high,low,close,volume\n2024-01-02,1,1\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadCSV(writeCSV(t, tc.body), "AAPL", "1d"); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadCSVMissingFile(t *testing.T) {
	if _, err := LoadCSV(filepath.Join(t.TempDir(), "absent.csv"), "AAPL", "1d"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadCSVHeaderOnly(t *testing.T) {
	bars, err := LoadCSV(writeCSV(t, "timestamp,open,high,low,close,volume\n"), "AAPL", "1d")
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	if len(bars) != 0 {
		t.Errorf("got %d bars from header-only file, want 0", len(bars))
	}
}
