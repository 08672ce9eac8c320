// Package analytics reduces a run's equity curve and trade log to summary
// performance metrics.
package analytics

import (
	"math"
	"time"

	"goquant/internal/domain"
	"goquant/internal/util"
)

// Metric keys produced by Analyze.
const (
	MetricTotalReturn  = "total_return"
	MetricAnnualReturn = "annual_return"
	MetricSharpe       = "sharpe_ratio"
	MetricSortino      = "sortino_ratio"
	MetricMaxDrawdown  = "max_drawdown"
	MetricWinRate      = "win_rate"
	MetricProfitFactor = "profit_factor"
	MetricTotalTrades  = "total_trades"
)

var metricNames = map[string]bool{
	MetricTotalReturn:  true,
	MetricAnnualReturn: true,
	MetricSharpe:       true,
	MetricSortino:      true,
	MetricMaxDrawdown:  true,
	MetricWinRate:      true,
	MetricProfitFactor: true,
	MetricTotalTrades:  true,
}

// Known reports whether name is a metric Analyze produces. Used to fail
// fast on unknown optimization objectives.
func Known(name string) bool { return metricNames[name] }

// Names returns all metric keys.
func Names() []string {
	return []string{
		MetricTotalReturn, MetricAnnualReturn, MetricSharpe, MetricSortino,
		MetricMaxDrawdown, MetricWinRate, MetricProfitFactor, MetricTotalTrades,
	}
}

// Analyze computes the full metric set from a run's equity curve and trade
// log. Degenerate runs (no snapshots, no trades, zero return variance) yield
// 0 for the affected ratio metrics rather than a division fault.
func Analyze(initialCapital float64, snapshots []domain.PortfolioSnapshot, trades []domain.Trade, riskFreeRate float64) map[string]float64 {
	m := map[string]float64{
		MetricTotalReturn:  0,
		MetricAnnualReturn: 0,
		MetricSharpe:       0,
		MetricSortino:      0,
		MetricMaxDrawdown:  0,
		MetricWinRate:      0,
		MetricProfitFactor: 0,
		MetricTotalTrades:  float64(len(trades)),
	}
	if len(snapshots) == 0 || initialCapital <= 0 {
		return m
	}

	final := snapshots[len(snapshots)-1].Equity
	m[MetricTotalReturn] = final/initialCapital - 1

	returns := periodReturns(initialCapital, snapshots)
	periods := util.PeriodsPerYear(snapshotInterval(snapshots))

	if n := float64(len(returns)); n > 0 {
		annualized := math.Pow(final/initialCapital, periods/n) - 1
		if !math.IsNaN(annualized) && !math.IsInf(annualized, 0) {
			m[MetricAnnualReturn] = annualized
		}
	}

	rfPerPeriod := riskFreeRate / periods
	m[MetricSharpe] = sharpe(returns, rfPerPeriod, periods)
	m[MetricSortino] = sortino(returns, rfPerPeriod, periods)
	m[MetricMaxDrawdown] = maxDrawdown(initialCapital, snapshots)

	wins, grossProfit, grossLoss := 0, 0.0, 0.0
	for _, t := range trades {
		if t.PnL > 0 {
			wins++
			grossProfit += t.PnL
		} else {
			grossLoss += -t.PnL
		}
	}
	if len(trades) > 0 {
		m[MetricWinRate] = float64(wins) / float64(len(trades))
	}
	// A run with no losing trades has no meaningful profit factor; 0 is the
	// defined sentinel for all degenerate cases.
	if grossLoss > 0 {
		m[MetricProfitFactor] = grossProfit / grossLoss
	}

	return m
}

// periodReturns computes per-snapshot simple returns, anchored at the
// initial capital.
func periodReturns(initialCapital float64, snapshots []domain.PortfolioSnapshot) []float64 {
	returns := make([]float64, 0, len(snapshots))
	prev := initialCapital
	for _, s := range snapshots {
		if prev > 0 {
			returns = append(returns, s.Equity/prev-1)
		}
		prev = s.Equity
	}
	return returns
}

// snapshotInterval infers the bar interval from the median snapshot spacing.
func snapshotInterval(snapshots []domain.PortfolioSnapshot) time.Duration {
	ts := make([]time.Time, len(snapshots))
	for i, s := range snapshots {
		ts[i] = s.Time
	}
	return util.MedianInterval(ts)
}

// sharpe annualizes mean excess return over the sample standard deviation.
// Zero variance yields 0.
func sharpe(returns []float64, rfPerPeriod, periodsPerYear float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean, std := meanStd(returns)
	if std == 0 {
		return 0
	}
	return (mean - rfPerPeriod) / std * math.Sqrt(periodsPerYear)
}

// sortino annualizes mean excess return over downside deviation. A series
// with no returns below the per-period risk-free rate yields 0.
func sortino(returns []float64, rfPerPeriod, periodsPerYear float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean, _ := meanStd(returns)
	sumSq := 0.0
	for _, r := range returns {
		if d := r - rfPerPeriod; d < 0 {
			sumSq += d * d
		}
	}
	downside := math.Sqrt(sumSq / float64(len(returns)))
	if downside == 0 {
		return 0
	}
	return (mean - rfPerPeriod) / downside * math.Sqrt(periodsPerYear)
}

// maxDrawdown returns the largest peak-to-trough equity decline as a
// non-negative fraction of the peak. A non-decreasing curve yields 0.
func maxDrawdown(initialCapital float64, snapshots []domain.PortfolioSnapshot) float64 {
	peak := initialCapital
	maxDD := 0.0
	for _, s := range snapshots {
		if s.Equity > peak {
			peak = s.Equity
		}
		if peak > 0 {
			if dd := (peak - s.Equity) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// meanStd returns the mean and sample standard deviation.
func meanStd(xs []float64) (mean, std float64) {
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	variance := 0.0
	for _, x := range xs {
		d := x - mean
		variance += d * d
	}
	variance /= float64(len(xs) - 1)
	return mean, math.Sqrt(variance)
}
