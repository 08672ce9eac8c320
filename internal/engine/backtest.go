package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"goquant/internal/analytics"
	"goquant/internal/config"
	"goquant/internal/cost"
	"goquant/internal/domain"
	"goquant/internal/feed"
	"goquant/internal/strategy"
)

// RunSpec describes one backtest invocation.
type RunSpec struct {
	Strategy strategy.Strategy
	Params   domain.ParameterSet
	Feed     *feed.TimeSeriesFeed

	// Start and End bound the replay. Bars before Start still accumulate
	// as lookback history; bars after End are not processed. Zero values
	// leave the corresponding side unbounded.
	Start time.Time
	End   time.Time

	// CapitalOverride replaces the configured initial capital when positive.
	CapitalOverride float64
}

// BacktestResult is the immutable outcome of one completed run.
type BacktestResult struct {
	Params    domain.ParameterSet
	Snapshots []domain.PortfolioSnapshot
	Trades    []domain.Trade
	Fills     []domain.Fill
	Metrics   map[string]float64
}

// Backtester drives single runs to completion. One Backtester may be shared
// across goroutines: all per-run state lives in objects created inside Run.
type Backtester struct {
	cfg        *config.Config
	commission cost.Commission
	slippage   cost.Slippage
	log        *slog.Logger
}

// NewBacktester validates the configuration and resolves the cost models.
// Configuration errors fail here, before any run starts.
func NewBacktester(cfg *config.Config, log *slog.Logger) (*Backtester, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	comm, err := cost.CommissionFromConfig(cfg.Costs.Commission)
	if err != nil {
		return nil, err
	}
	slip, err := cost.SlippageFromConfig(cfg.Costs.Slippage)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Backtester{cfg: cfg, commission: comm, slippage: slip, log: log}, nil
}

// Run replays the feed through the strategy and returns the result. Strategy
// faults (errors or panics inside callbacks) terminate only this run and are
// reported as the returned error; they never corrupt engine state shared
// with other runs because there is none.
func (bt *Backtester) Run(ctx context.Context, spec RunSpec) (result *BacktestResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("strategy panic: %v", r)
			bt.log.Error("run aborted by strategy panic", "strategy", spec.Strategy.Name(), "panic", r)
		}
	}()

	setup, err := spec.Strategy.Initialize(spec.Params)
	if err != nil {
		return nil, fmt.Errorf("initialize %s: %w", spec.Strategy.Name(), err)
	}

	capital := bt.cfg.Engine.InitialCapital
	if spec.CapitalOverride > 0 {
		capital = spec.CapitalOverride
	}

	minLookback := bt.cfg.Engine.MinLookback
	if setup.MinLookback > minLookback {
		minLookback = setup.MinLookback
	}

	runLog := bt.log.With("strategy", spec.Strategy.Name())
	if len(spec.Params) > 0 {
		runLog = runLog.With("params", spec.Params.String())
	}

	orders := NewOrderManager(FillPolicy{
		SameBar:        bt.cfg.Fill.Latency == "same_bar",
		LimitFillRatio: bt.cfg.Fill.LimitFillRatio,
		StopNextBar:    bt.cfg.Fill.StopNextBar,
	}, bt.slippage, bt.commission, runLog)
	ledger := NewPositionLedger(capital)
	ectx := NewContext(orders, ledger, runLog)
	defer ectx.conclude()

	history := make(map[string][]domain.Bar, len(setup.Symbols))
	subscribed := make(map[string]bool, len(setup.Symbols))
	for _, sym := range setup.Symbols {
		subscribed[sym] = true
	}

	spec.Feed.Reset()
	for {
		// The run-scoped context carries the optimizer's per-run timeout.
		if cerr := ctx.Err(); cerr != nil {
			return nil, fmt.Errorf("run aborted: %w", cerr)
		}

		ev, ok := spec.Feed.Next()
		if !ok {
			break
		}
		if !spec.End.IsZero() && ev.Time.After(spec.End) {
			break
		}

		warmup := !spec.Start.IsZero() && ev.Time.Before(spec.Start)

		// 1. Resolve pending orders against the new bars, oldest orders
		// first. Fills always precede any cancellation issued later in
		// this tick.
		if !warmup {
			orders.ExpireDay(ev.Time)
			for _, sym := range spec.Feed.Symbols() {
				bar, ok := ev.Bars[sym]
				if !ok {
					continue
				}
				for _, f := range orders.ResolveBar(bar) {
					ledger.Apply(f)
				}
			}
		}

		// 2. Revalue positions at the bar closes.
		for _, bar := range ev.Bars {
			ledger.MarkToMarket(bar)
		}

		// 3. Accumulate history for subscribed symbols.
		dispatch := make(map[string][]domain.Bar, len(ev.Bars))
		for sym, bar := range ev.Bars {
			if !subscribed[sym] {
				continue
			}
			history[sym] = append(history[sym], bar)
			dispatch[sym] = history[sym]
		}

		// A subscribed symbol missing from this event is a skipped tick
		// for that symbol, not a fatal error.
		for _, sym := range setup.Symbols {
			if _, ok := ev.Bars[sym]; !ok {
				runLog.Debug("no bar for symbol at tick", "symbol", sym, "time", ev.Time)
			}
		}

		// 4. Dispatch once every subscribed symbol has its minimum history.
		if !warmup && len(dispatch) > 0 && lookbackMet(history, setup.Symbols, minLookback) {
			ectx.advance(ev.Time)
			if serr := spec.Strategy.OnBar(ectx, dispatch); serr != nil {
				return nil, fmt.Errorf("strategy %s on bar %s: %w", spec.Strategy.Name(), ev.Time, serr)
			}
			if bt.cfg.Fill.Latency == "same_bar" {
				for _, sym := range spec.Feed.Symbols() {
					if bar, ok := ev.Bars[sym]; ok {
						for _, f := range orders.ResolveSameBar(bar) {
							ledger.Apply(f)
						}
						ledger.MarkToMarket(bar)
					}
				}
			}
		}

		// 5. One snapshot per processed event.
		if !warmup {
			ledger.RecordSnapshot(ev.Time)
		}
	}

	metrics := analytics.Analyze(capital, ledger.Snapshots(), ledger.Trades(), bt.cfg.Engine.RiskFreeRate)

	runLog.Info("run complete",
		"events", len(ledger.Snapshots()),
		"trades", len(ledger.Trades()),
		"total_return", metrics["total_return"])

	return &BacktestResult{
		Params:    spec.Params,
		Snapshots: ledger.Snapshots(),
		Trades:    ledger.Trades(),
		Fills:     orders.Fills(),
		Metrics:   metrics,
	}, nil
}

// lookbackMet reports whether every subscribed symbol has accumulated the
// minimum history length.
func lookbackMet(history map[string][]domain.Bar, symbols []string, minLookback int) bool {
	if minLookback <= 0 {
		return true
	}
	for _, sym := range symbols {
		if len(history[sym]) < minLookback {
			return false
		}
	}
	return true
}
