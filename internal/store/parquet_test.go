package store

import (
	"context"
	"testing"
	"time"
)

func TestParquetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewParquetStore(t.TempDir())

	written := dailyBars("AAPL", 5, 50)
	if err := s.WriteBars(ctx, written); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	got, err := s.ReadBars(ctx, "AAPL", "1d",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != len(written) {
		t.Fatalf("got %d bars, want %d", len(got), len(written))
	}
	for i, b := range got {
		w := written[i]
		if !b.Timestamp.Equal(w.Timestamp) || b.Open != w.Open || b.Close != w.Close {
			t.Errorf("bar %d = %+v, want %+v", i, b, w)
		}
	}
}

func TestParquetMergeDeduplicates(t *testing.T) {
	ctx := context.Background()
	s := NewParquetStore(t.TempDir())

	first := dailyBars("AAPL", 3, 50)
	if err := s.WriteBars(ctx, first); err != nil {
		t.Fatalf("first WriteBars: %v", err)
	}

	// Overlapping batch: last bar revised plus two new days appended.
	second := dailyBars("AAPL", 5, 50)[2:]
	second[0].Close = 99
	if err := s.WriteBars(ctx, second); err != nil {
		t.Fatalf("second WriteBars: %v", err)
	}

	got, err := s.ReadBars(ctx, "AAPL", "1d",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("got %d bars after merge, want 5", len(got))
	}
	// Incoming records win on timestamp collisions.
	if got[2].Close != 99 {
		t.Errorf("revised close = %g, want 99", got[2].Close)
	}
	for i := 1; i < len(got); i++ {
		if !got[i].Timestamp.After(got[i-1].Timestamp) {
			t.Errorf("bar %d out of order: %s after %s", i, got[i].Timestamp, got[i-1].Timestamp)
		}
	}
}

func TestParquetMissingSymbolReadsEmpty(t *testing.T) {
	s := NewParquetStore(t.TempDir())
	got, err := s.ReadBars(context.Background(), "TSLA", "1d",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d bars for missing symbol, want 0", len(got))
	}
}

func TestParquetListSymbols(t *testing.T) {
	ctx := context.Background()
	s := NewParquetStore(t.TempDir())

	if err := s.WriteBars(ctx, dailyBars("msft", 2, 300)); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}
	if err := s.WriteBars(ctx, dailyBars("AAPL", 2, 50)); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	syms, err := s.ListSymbols(ctx, "1d")
	if err != nil {
		t.Fatalf("ListSymbols: %v", err)
	}
	// Filenames are uppercased, so listing is case-normalized.
	if len(syms) != 2 || syms[0] != "AAPL" || syms[1] != "MSFT" {
		t.Errorf("ListSymbols = %v, want [AAPL MSFT]", syms)
	}

	none, err := s.ListSymbols(ctx, "1h")
	if err != nil {
		t.Fatalf("ListSymbols: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("ListSymbols(1h) = %v, want none", none)
	}
}
