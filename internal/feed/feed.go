// Package feed merges per-symbol bar series into a single time-ordered
// event sequence for replay.
package feed

import (
	"fmt"
	"sort"

	"goquant/internal/domain"
)

// TimeSeriesFeed is a lazy, restartable cursor over N per-symbol bar series.
// Bars sharing a timestamp across symbols are grouped into one Event; a
// symbol with no bar at a timestamp is absent from that Event's payload.
//
// A feed is safe for concurrent construction-then-read-only sharing of its
// input series, but a single feed instance must not be iterated by more than
// one goroutine; independent runs each create their own feed over the shared
// series.
type TimeSeriesFeed struct {
	symbols []string
	series  map[string][]domain.Bar
	cursor  map[string]int
}

// New validates that every series is strictly ascending by timestamp with no
// duplicates and returns a feed positioned before the first event.
func New(series map[string][]domain.Bar) (*TimeSeriesFeed, error) {
	symbols := make([]string, 0, len(series))
	for sym, bars := range series {
		for i := 1; i < len(bars); i++ {
			if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
				return nil, fmt.Errorf("feed: %s: bar %d timestamp %s not after %s",
					sym, i, bars[i].Timestamp, bars[i-1].Timestamp)
			}
		}
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	f := &TimeSeriesFeed{
		symbols: symbols,
		series:  series,
		cursor:  make(map[string]int, len(series)),
	}
	return f, nil
}

// Symbols returns the subscribed symbols in sorted order.
func (f *TimeSeriesFeed) Symbols() []string {
	out := make([]string, len(f.symbols))
	copy(out, f.symbols)
	return out
}

// Len reports the total bar count across all series.
func (f *TimeSeriesFeed) Len() int {
	n := 0
	for _, bars := range f.series {
		n += len(bars)
	}
	return n
}

// Next advances to the earliest unconsumed timestamp and returns the Event
// grouping every symbol's bar at that timestamp. The second return value is
// false once all series are exhausted.
func (f *TimeSeriesFeed) Next() (domain.Event, bool) {
	var ev domain.Event
	found := false

	// Earliest head timestamp across all series.
	for _, sym := range f.symbols {
		i := f.cursor[sym]
		if i >= len(f.series[sym]) {
			continue
		}
		ts := f.series[sym][i].Timestamp
		if !found || ts.Before(ev.Time) {
			ev.Time = ts
			found = true
		}
	}
	if !found {
		return domain.Event{}, false
	}

	ev.Bars = make(map[string]domain.Bar)
	for _, sym := range f.symbols {
		i := f.cursor[sym]
		if i < len(f.series[sym]) && f.series[sym][i].Timestamp.Equal(ev.Time) {
			ev.Bars[sym] = f.series[sym][i]
			f.cursor[sym] = i + 1
		}
	}
	return ev, true
}

// Reset rewinds the feed to before the first event so the same series can be
// replayed again.
func (f *TimeSeriesFeed) Reset() {
	for sym := range f.cursor {
		delete(f.cursor, sym)
	}
}
