// Package builtins provides built-in strategy implementations that ship with
// the goquant engine.
package builtins

import (
	"fmt"

	"goquant/internal/domain"
	"goquant/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*SMACross)(nil)

// SMACross implements a simple moving average crossover strategy. It buys
// when the fast-period SMA crosses above the slow-period SMA and sells when
// it crosses below.
//
// Parameters: fast_period (default 10), slow_period (default 30),
// trade_size (default 100).
type SMACross struct {
	symbol     string
	fastPeriod int
	slowPeriod int
	tradeSize  float64
}

// NewSMACross creates an SMACross trading the given symbol. Periods and size
// come from the run's parameter set in Initialize.
func NewSMACross(symbol string) *SMACross {
	return &SMACross{symbol: symbol}
}

// Name returns "sma-cross".
func (s *SMACross) Name() string {
	return "sma-cross"
}

// Initialize reads the crossover periods and trade size from params and
// subscribes to the configured symbol.
func (s *SMACross) Initialize(params domain.ParameterSet) (strategy.Setup, error) {
	s.fastPeriod = int(params.Get("fast_period", 10))
	s.slowPeriod = int(params.Get("slow_period", 30))
	s.tradeSize = params.Get("trade_size", 100)

	if s.fastPeriod <= 0 || s.slowPeriod <= 0 {
		return strategy.Setup{}, fmt.Errorf("sma-cross: periods must be positive (fast=%d slow=%d)", s.fastPeriod, s.slowPeriod)
	}
	if s.fastPeriod >= s.slowPeriod {
		return strategy.Setup{}, fmt.Errorf("sma-cross: fast_period %d must be below slow_period %d", s.fastPeriod, s.slowPeriod)
	}

	return strategy.Setup{
		Symbols: []string{s.symbol},
		// One extra bar so a previous-vs-current crossover comparison is
		// possible on the first dispatched event.
		MinLookback: s.slowPeriod + 1,
	}, nil
}

// OnBar detects fast/slow SMA crossovers on the close series and trades
// tradeSize units at market.
func (s *SMACross) OnBar(ctx strategy.Context, history map[string][]domain.Bar) error {
	bars, ok := history[s.symbol]
	if !ok || len(bars) < s.slowPeriod+1 {
		return nil
	}

	fastPrev := sma(bars[:len(bars)-1], s.fastPeriod)
	fastCurr := sma(bars, s.fastPeriod)
	slowPrev := sma(bars[:len(bars)-1], s.slowPeriod)
	slowCurr := sma(bars, s.slowPeriod)

	qty := ctx.Position(s.symbol).Qty
	last := bars[len(bars)-1]

	switch {
	// Golden cross: fast moved above slow.
	case fastPrev <= slowPrev && fastCurr > slowCurr && qty <= 0:
		ctx.Log().Info("buy signal",
			"symbol", s.symbol, "time", last.Timestamp,
			"fast_ma", fastCurr, "slow_ma", slowCurr)
		if _, err := ctx.Buy(s.symbol, s.tradeSize); err != nil {
			return err
		}

	// Death cross: fast moved below slow.
	case fastPrev >= slowPrev && fastCurr < slowCurr && qty > 0:
		ctx.Log().Info("sell signal",
			"symbol", s.symbol, "time", last.Timestamp,
			"fast_ma", fastCurr, "slow_ma", slowCurr)
		if _, err := ctx.Sell(s.symbol, s.tradeSize); err != nil {
			return err
		}
	}
	return nil
}

// sma returns the mean of the last period closes.
func sma(bars []domain.Bar, period int) float64 {
	if period <= 0 || len(bars) < period {
		return 0
	}
	sum := 0.0
	for _, b := range bars[len(bars)-period:] {
		sum += b.Close
	}
	return sum / float64(period)
}
