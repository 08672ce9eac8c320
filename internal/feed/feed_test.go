package feed

import (
	"testing"
	"time"

	"goquant/internal/domain"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func bar(sym string, d int, close float64) domain.Bar {
	return domain.Bar{
		Symbol: sym, Timeframe: "1d", Timestamp: day(d),
		Open: close, High: close, Low: close, Close: close, Volume: 1000,
	}
}

func TestMergeOrderAndTieGrouping(t *testing.T) {
	f, err := New(map[string][]domain.Bar{
		"AAPL": {bar("AAPL", 1, 10), bar("AAPL", 2, 11), bar("AAPL", 4, 12)},
		"MSFT": {bar("MSFT", 2, 20), bar("MSFT", 3, 21), bar("MSFT", 4, 22)},
	})
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	want := []struct {
		day  int
		syms []string
	}{
		{1, []string{"AAPL"}},
		{2, []string{"AAPL", "MSFT"}},
		{3, []string{"MSFT"}},
		{4, []string{"AAPL", "MSFT"}},
	}

	for i, w := range want {
		ev, ok := f.Next()
		if !ok {
			t.Fatalf("event %d: feed exhausted early", i)
		}
		if !ev.Time.Equal(day(w.day)) {
			t.Errorf("event %d: time = %s, want day %d", i, ev.Time, w.day)
		}
		if len(ev.Bars) != len(w.syms) {
			t.Errorf("event %d: got %d bars, want %d", i, len(ev.Bars), len(w.syms))
		}
		for _, sym := range w.syms {
			if _, ok := ev.Bars[sym]; !ok {
				t.Errorf("event %d: missing bar for %s", i, sym)
			}
		}
	}

	if _, ok := f.Next(); ok {
		t.Error("expected feed to be exhausted")
	}
}

func TestResetReplaysIdentically(t *testing.T) {
	f, err := New(map[string][]domain.Bar{
		"AAPL": {bar("AAPL", 1, 10), bar("AAPL", 2, 11)},
	})
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	var first []time.Time
	for {
		ev, ok := f.Next()
		if !ok {
			break
		}
		first = append(first, ev.Time)
	}

	f.Reset()

	var second []time.Time
	for {
		ev, ok := f.Next()
		if !ok {
			break
		}
		second = append(second, ev.Time)
	}

	if len(first) != len(second) {
		t.Fatalf("replay lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if !first[i].Equal(second[i]) {
			t.Errorf("event %d: %s vs %s after reset", i, first[i], second[i])
		}
	}
}

func TestRejectsUnsortedSeries(t *testing.T) {
	_, err := New(map[string][]domain.Bar{
		"AAPL": {bar("AAPL", 2, 10), bar("AAPL", 1, 11)},
	})
	if err == nil {
		t.Fatal("expected error for descending timestamps")
	}
}

func TestRejectsDuplicateTimestamps(t *testing.T) {
	_, err := New(map[string][]domain.Bar{
		"AAPL": {bar("AAPL", 1, 10), bar("AAPL", 1, 11)},
	})
	if err == nil {
		t.Fatal("expected error for duplicate timestamps")
	}
}

func TestEmptyFeed(t *testing.T) {
	f, err := New(map[string][]domain.Bar{})
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	if _, ok := f.Next(); ok {
		t.Error("empty feed should yield no events")
	}
}
