package util

import (
	"sort"
	"time"
)

// TradingDaysPerYear is the conventional equity trading-day count used to
// annualize daily return series.
const TradingDaysPerYear = 252

// PeriodsPerYear infers the annualization factor for a return series sampled
// at the given bar interval. Daily and coarser intervals use trading-day
// conventions; intraday intervals assume continuous markets.
func PeriodsPerYear(interval time.Duration) float64 {
	switch {
	case interval <= 0:
		return TradingDaysPerYear
	case interval >= 28*24*time.Hour:
		return 12 // monthly
	case interval >= 7*24*time.Hour:
		return 52 // weekly
	case interval >= 23*time.Hour:
		return TradingDaysPerYear
	default:
		return float64(365*24*time.Hour) / float64(interval)
	}
}

// MedianInterval returns the median spacing between consecutive timestamps.
// Returns zero when fewer than two timestamps are supplied.
func MedianInterval(ts []time.Time) time.Duration {
	if len(ts) < 2 {
		return 0
	}
	gaps := make([]time.Duration, 0, len(ts)-1)
	for i := 1; i < len(ts); i++ {
		gaps = append(gaps, ts[i].Sub(ts[i-1]))
	}
	sort.Slice(gaps, func(i, j int) bool { return gaps[i] < gaps[j] })
	return gaps[len(gaps)/2]
}
