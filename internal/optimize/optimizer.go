// Package optimize expands a strategy parameter grid, evaluates every
// combination with independent backtest runs in parallel, and ranks the
// results by a configured objective metric.
package optimize

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"goquant/internal/analytics"
	"goquant/internal/config"
	"goquant/internal/domain"
	"goquant/internal/engine"
	"goquant/internal/feed"
	"goquant/internal/strategy"
)

// Grid maps a parameter name to its candidate values. The search space is
// the Cartesian product of all value sets.
type Grid map[string][]float64

// Validate rejects empty grids and parameters with no candidates. Part of
// the fail-fast configuration checks.
func (g Grid) Validate() error {
	if len(g) == 0 {
		return fmt.Errorf("optimize: empty parameter grid")
	}
	for name, values := range g {
		if len(values) == 0 {
			return fmt.Errorf("optimize: parameter %q has no candidate values", name)
		}
	}
	return nil
}

// Enumerate expands the grid into parameter sets in a fixed, deterministic
// order: parameter names sorted ascending, the last name's values cycling
// fastest. Enumeration order is the ranking tie-breaker, so it must be
// stable across runs.
func (g Grid) Enumerate() []domain.ParameterSet {
	names := make([]string, 0, len(g))
	for name := range g {
		names = append(names, name)
	}
	sort.Strings(names)

	total := 1
	for _, name := range names {
		total *= len(g[name])
	}

	sets := make([]domain.ParameterSet, 0, total)
	idx := make([]int, len(names))
	for i := 0; i < total; i++ {
		ps := make(domain.ParameterSet, len(names))
		for j, name := range names {
			ps[name] = g[name][idx[j]]
		}
		sets = append(sets, ps)

		for j := len(names) - 1; j >= 0; j-- {
			idx[j]++
			if idx[j] < len(g[names[j]]) {
				break
			}
			idx[j] = 0
		}
	}
	return sets
}

// Spec describes one optimization request.
type Spec struct {
	// Factory builds a fresh strategy instance per parameter set so
	// concurrent runs share no state.
	Factory strategy.Factory
	Grid    Grid

	// Series is the read-only historical bar data shared by all runs; each
	// run iterates it through its own feed cursor.
	Series map[string][]domain.Bar

	Start time.Time
	End   time.Time

	// Objective names the metric to rank by and the direction.
	Objective string
	Minimize  bool
}

// Entry is one leaderboard row.
type Entry struct {
	// Index is the parameter set's enumeration position, the deterministic
	// ranking tie-breaker.
	Index  int                    `json:"index"`
	Params domain.ParameterSet    `json:"params"`
	Metric float64                `json:"metric"`
	Failed bool                   `json:"failed"`
	Error  string                 `json:"error,omitempty"`
	Result *engine.BacktestResult `json:"-"`
}

// OptimizationResult is the ranked outcome of a full grid search.
type OptimizationResult struct {
	Objective string  `json:"objective"`
	Minimize  bool    `json:"minimize"`
	Best      *Entry  `json:"best"`
	Entries   []Entry `json:"leaderboard"`
}

// Optimizer runs grid searches over a shared configuration.
type Optimizer struct {
	cfg *config.Config
	log *slog.Logger
}

// NewOptimizer creates an Optimizer. Configuration errors surface here.
func NewOptimizer(cfg *config.Config, log *slog.Logger) (*Optimizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Optimizer{cfg: cfg, log: log}, nil
}

// Run expands the grid, executes one isolated backtest per parameter set
// across a bounded worker pool, and returns the ranked leaderboard. Failed
// runs (strategy faults, per-run timeouts) become failed leaderboard entries
// and never abort sibling runs; cancelling ctx stops dispatching new runs
// while letting in-flight runs finish or abort on their own contexts.
func (o *Optimizer) Run(ctx context.Context, spec Spec) (*OptimizationResult, error) {
	if err := spec.Grid.Validate(); err != nil {
		return nil, err
	}
	if !analytics.Known(spec.Objective) {
		return nil, fmt.Errorf("optimize: unknown objective metric %q (known: %v)", spec.Objective, analytics.Names())
	}

	sets := spec.Grid.Enumerate()

	workers := o.cfg.Optimizer.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	o.log.Info("optimization started",
		"combinations", len(sets), "workers", workers,
		"objective", spec.Objective, "minimize", spec.Minimize)

	var (
		mu      sync.Mutex
		entries = make([]Entry, 0, len(sets))
	)

	var g errgroup.Group
	g.SetLimit(workers)

	for i, params := range sets {
		if ctx.Err() != nil {
			break // stop dispatching; in-flight runs continue
		}
		i, params := i, params
		g.Go(func() error {
			entry := o.runOne(ctx, spec, i, params)
			mu.Lock()
			entries = append(entries, entry)
			mu.Unlock()
			return nil
		})
	}
	// Workers never return errors; failures live in their entries.
	_ = g.Wait()

	rank(entries, spec.Minimize)

	result := &OptimizationResult{
		Objective: spec.Objective,
		Minimize:  spec.Minimize,
		Entries:   entries,
	}
	if len(entries) > 0 && !entries[0].Failed {
		result.Best = &entries[0]
	}

	if result.Best != nil {
		o.log.Info("optimization complete",
			"best_params", result.Best.Params.String(),
			"best_metric", result.Best.Metric)
	} else {
		o.log.Warn("optimization produced no successful runs")
	}
	return result, nil
}

// runOne executes a single isolated backtest and converts the outcome into
// a leaderboard entry.
func (o *Optimizer) runOne(ctx context.Context, spec Spec, index int, params domain.ParameterSet) Entry {
	entry := Entry{Index: index, Params: params}

	runCtx := ctx
	if o.cfg.Optimizer.RunTimeoutSec > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(o.cfg.Optimizer.RunTimeoutSec)*time.Second)
		defer cancel()
	}

	// Each run gets its own feed cursor over the shared read-only series
	// and its own strategy, order manager, and ledger.
	f, err := feed.New(spec.Series)
	if err != nil {
		entry.Failed = true
		entry.Error = err.Error()
		return entry
	}

	bt, err := engine.NewBacktester(o.cfg, o.log.With("run", index))
	if err != nil {
		entry.Failed = true
		entry.Error = err.Error()
		return entry
	}

	res, err := bt.Run(runCtx, engine.RunSpec{
		Strategy: spec.Factory(),
		Params:   params,
		Feed:     f,
		Start:    spec.Start,
		End:      spec.End,
	})
	if err != nil {
		entry.Failed = true
		entry.Error = err.Error()
		o.log.Warn("run failed", "run", index, "params", params.String(), "error", err)
		return entry
	}

	metric, ok := res.Metrics[spec.Objective]
	if !ok || math.IsNaN(metric) {
		entry.Failed = true
		entry.Error = fmt.Sprintf("metric %q not produced", spec.Objective)
		return entry
	}

	entry.Metric = metric
	entry.Result = res
	return entry
}

// rank orders entries by objective metric (direction-aware), breaking ties
// by enumeration index. Failed entries sort last, also by index.
func rank(entries []Entry, minimize bool) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Failed != b.Failed {
			return !a.Failed
		}
		if a.Failed {
			return a.Index < b.Index
		}
		if a.Metric != b.Metric {
			if minimize {
				return a.Metric < b.Metric
			}
			return a.Metric > b.Metric
		}
		return a.Index < b.Index
	})
}
