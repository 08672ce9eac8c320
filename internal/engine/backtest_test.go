package engine

import (
	"context"
	"testing"
	"time"

	"goquant/internal/config"
	"goquant/internal/domain"
	"goquant/internal/feed"
	"goquant/internal/strategy"
)

// scriptedStrategy runs a fixed action per OnBar call index, for driving the
// orchestrator deterministically.
type scriptedStrategy struct {
	symbols []string
	actions map[int]func(ctx strategy.Context) error
	calls   int
}

func (s *scriptedStrategy) Name() string { return "scripted" }

func (s *scriptedStrategy) Initialize(_ domain.ParameterSet) (strategy.Setup, error) {
	return strategy.Setup{Symbols: s.symbols}, nil
}

func (s *scriptedStrategy) OnBar(ctx strategy.Context, _ map[string][]domain.Bar) error {
	s.calls++
	if action, ok := s.actions[s.calls]; ok {
		return action(ctx)
	}
	return nil
}

func flatBars(sym string, closes ...float64) []domain.Bar {
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{
			Symbol: sym, Timeframe: "1d",
			Timestamp: time.Date(2024, 1, i+1, 0, 0, 0, 0, time.UTC),
			Open:      c, High: c, Low: c, Close: c, Volume: 10000,
		}
	}
	return bars
}

func runScripted(t *testing.T, cfg *config.Config, bars []domain.Bar, actions map[int]func(strategy.Context) error) *BacktestResult {
	t.Helper()
	f, err := feed.New(map[string][]domain.Bar{"AAPL": bars})
	if err != nil {
		t.Fatalf("feed.New: %v", err)
	}
	bt, err := NewBacktester(cfg, testLog())
	if err != nil {
		t.Fatalf("NewBacktester: %v", err)
	}
	res, err := bt.Run(context.Background(), RunSpec{
		Strategy: &scriptedStrategy{symbols: []string{"AAPL"}, actions: actions},
		Feed:     f,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return res
}

func TestBuyThenSellScenario(t *testing.T) {
	// Buy 100 at a bar priced 50 (fills next bar, also 50), sell 100 at a
	// bar priced 55 (fills next bar, also 55).
	bars := flatBars("AAPL", 50, 50, 55, 55, 55)
	actions := map[int]func(strategy.Context) error{
		1: func(ctx strategy.Context) error { _, err := ctx.Buy("AAPL", 100); return err },
		3: func(ctx strategy.Context) error { _, err := ctx.Sell("AAPL", 100); return err },
	}
	res := runScripted(t, config.Default(), bars, actions)

	if len(res.Trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(res.Trades))
	}
	approx(t, "Trade.PnL", res.Trades[0].PnL, 500)
	approx(t, "Trade.EntryPrice", res.Trades[0].EntryPrice, 50)

	final := res.Snapshots[len(res.Snapshots)-1]
	approx(t, "final cash", final.Cash, 100500)
	approx(t, "final equity", final.Equity, 100500)
	approx(t, "total_return", res.Metrics["total_return"], 0.005)
}

func TestSnapshotPerEventAndOrdering(t *testing.T) {
	bars := flatBars("AAPL", 50, 51, 52, 53)
	res := runScripted(t, config.Default(), bars, nil)

	if len(res.Snapshots) != len(bars) {
		t.Fatalf("got %d snapshots, want %d (one per event)", len(res.Snapshots), len(bars))
	}
	for i := 1; i < len(res.Snapshots); i++ {
		if res.Snapshots[i].Time.Before(res.Snapshots[i-1].Time) {
			t.Errorf("snapshot %d out of order", i)
		}
	}
}

func TestOrderRejectionsAreNotFatal(t *testing.T) {
	bars := flatBars("AAPL", 50, 50, 50)
	actions := map[int]func(strategy.Context) error{
		1: func(ctx strategy.Context) error {
			if _, err := ctx.Buy("AAPL", -5); err == nil {
				t.Error("expected rejection for negative quantity")
			}
			if _, err := ctx.SubmitOrder(domain.OrderRequest{
				Symbol: "AAPL", Side: domain.SideBuy, Qty: 10, Type: domain.OrderTypeLimit,
			}); err == nil {
				t.Error("expected rejection for limit order without price")
			}
			return nil // run continues
		},
	}
	res := runScripted(t, config.Default(), bars, actions)
	if len(res.Snapshots) != 3 {
		t.Errorf("run did not continue after rejections: %d snapshots", len(res.Snapshots))
	}
}

func TestSubmissionAfterRunConcludes(t *testing.T) {
	bars := flatBars("AAPL", 50, 50)
	var leaked strategy.Context
	actions := map[int]func(strategy.Context) error{
		1: func(ctx strategy.Context) error { leaked = ctx; return nil },
	}
	runScripted(t, config.Default(), bars, actions)

	if _, err := leaked.Buy("AAPL", 10); err == nil {
		t.Error("expected rejection for submission after run end")
	}
}

func TestMinLookbackGatesDispatch(t *testing.T) {
	cfg := config.Default()
	cfg.Engine.MinLookback = 3

	bars := flatBars("AAPL", 50, 50, 50, 50, 50)
	f, _ := feed.New(map[string][]domain.Bar{"AAPL": bars})
	bt, _ := NewBacktester(cfg, testLog())

	s := &scriptedStrategy{symbols: []string{"AAPL"}}
	if _, err := bt.Run(context.Background(), RunSpec{Strategy: s, Feed: f}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// 5 bars, dispatch starts once 3 bars of history exist.
	if s.calls != 3 {
		t.Errorf("OnBar called %d times, want 3", s.calls)
	}
}

func TestStrategyPanicTerminatesOnlyTheRun(t *testing.T) {
	bars := flatBars("AAPL", 50, 50)
	f, _ := feed.New(map[string][]domain.Bar{"AAPL": bars})
	bt, _ := NewBacktester(config.Default(), testLog())

	actions := map[int]func(strategy.Context) error{
		1: func(strategy.Context) error { panic("boom") },
	}
	_, err := bt.Run(context.Background(), RunSpec{
		Strategy: &scriptedStrategy{symbols: []string{"AAPL"}, actions: actions},
		Feed:     f,
	})
	if err == nil {
		t.Fatal("expected error from panicking strategy")
	}
}

func TestCapitalOverride(t *testing.T) {
	bars := flatBars("AAPL", 50, 50)
	f, _ := feed.New(map[string][]domain.Bar{"AAPL": bars})
	bt, _ := NewBacktester(config.Default(), testLog())

	res, err := bt.Run(context.Background(), RunSpec{
		Strategy:        &scriptedStrategy{symbols: []string{"AAPL"}},
		Feed:            f,
		CapitalOverride: 50000,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	approx(t, "cash", res.Snapshots[0].Cash, 50000)
}

func TestEndTimeBoundsRun(t *testing.T) {
	bars := flatBars("AAPL", 50, 50, 50, 50, 50)
	f, _ := feed.New(map[string][]domain.Bar{"AAPL": bars})
	bt, _ := NewBacktester(config.Default(), testLog())

	res, err := bt.Run(context.Background(), RunSpec{
		Strategy: &scriptedStrategy{symbols: []string{"AAPL"}},
		Feed:     f,
		End:      time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Snapshots) != 3 {
		t.Errorf("got %d snapshots, want 3 (bounded by end time)", len(res.Snapshots))
	}
}

func TestCancelledRunContext(t *testing.T) {
	bars := flatBars("AAPL", 50, 50)
	f, _ := feed.New(map[string][]domain.Bar{"AAPL": bars})
	bt, _ := NewBacktester(config.Default(), testLog())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := bt.Run(ctx, RunSpec{
		Strategy: &scriptedStrategy{symbols: []string{"AAPL"}},
		Feed:     f,
	}); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestInvalidConfigFailsFast(t *testing.T) {
	cfg := config.Default()
	cfg.Engine.InitialCapital = -1
	if _, err := NewBacktester(cfg, testLog()); err == nil {
		t.Fatal("expected configuration error for negative capital")
	}
}
