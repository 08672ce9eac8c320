// Command goquant replays built-in strategies over historical bar data,
// either as a single backtest or as a parameter-grid optimization.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"goquant/internal/config"
	"goquant/internal/domain"
	"goquant/internal/engine"
	"goquant/internal/feed"
	"goquant/internal/optimize"
	"goquant/internal/store"
	"goquant/internal/strategy"
	"goquant/internal/strategy/builtins"
	"goquant/internal/util"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "goquant: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real environment variables win either way.
	_ = godotenv.Load()

	var (
		configPath = flag.String("config", "", "YAML config file (defaults apply when empty)")
		mode       = flag.String("mode", "backtest", "backtest or optimize")
		stratName  = flag.String("strategy", "sma-cross", "registered strategy name")
		symbols    = flag.String("symbols", "", "comma-separated symbols")
		timeframe  = flag.String("timeframe", "1d", "bar timeframe")
		dataPath   = flag.String("data", "", "bar data: csv dir, .db sqlite file, or parquet dir")
		startStr   = flag.String("start", "", "replay start (YYYY-MM-DD), optional")
		endStr     = flag.String("end", "", "replay end (YYYY-MM-DD), optional")
		capital    = flag.Float64("capital", 0, "initial capital override")
		gridStr    = flag.String("grid", "", `parameter grid, e.g. "fast_period=5,10;slow_period=20,30"`)
		objective  = flag.String("objective", "sharpe_ratio", "optimization objective metric")
		minimize   = flag.Bool("minimize", false, "minimize the objective instead of maximizing")
		outPath    = flag.String("out", "", "write result JSON to file instead of stdout")
		showVer    = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVer {
		fmt.Printf("goquant %s\n", version)
		return nil
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	syms := splitList(*symbols)
	if len(syms) == 0 {
		return fmt.Errorf("-symbols is required")
	}
	if *dataPath == "" {
		return fmt.Errorf("-data is required")
	}

	start, end, err := parseRange(*startStr, *endStr)
	if err != nil {
		return err
	}

	series, err := loadSeries(*dataPath, syms, *timeframe)
	if err != nil {
		return err
	}

	// Built-in strategies trade one symbol; the first listed symbol is the
	// traded one, the rest are observable context.
	registry := strategy.NewRegistry()
	registry.Register("sma-cross", func() strategy.Strategy {
		return builtins.NewSMACross(syms[0])
	})

	factory, ok := registry.Get(*stratName)
	if !ok {
		return fmt.Errorf("unknown strategy %q (registered: %v)", *stratName, registry.List())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var payload any
	switch *mode {
	case "backtest":
		f, err := feed.New(series)
		if err != nil {
			return err
		}
		bt, err := engine.NewBacktester(cfg, logger)
		if err != nil {
			return err
		}
		res, err := bt.Run(ctx, engine.RunSpec{
			Strategy:        factory(),
			Feed:            f,
			Start:           start,
			End:             end,
			CapitalOverride: *capital,
		})
		if err != nil {
			return err
		}
		payload = backtestReport(res)

	case "optimize":
		grid, err := parseGrid(*gridStr)
		if err != nil {
			return err
		}
		opt, err := optimize.NewOptimizer(cfg, logger)
		if err != nil {
			return err
		}
		res, err := opt.Run(ctx, optimize.Spec{
			Factory:   factory,
			Grid:      grid,
			Series:    series,
			Start:     start,
			End:       end,
			Objective: *objective,
			Minimize:  *minimize,
		})
		if err != nil {
			return err
		}
		payload = res

	default:
		return fmt.Errorf("unknown mode %q (want backtest or optimize)", *mode)
	}

	return writeJSON(*outPath, payload)
}

// loadSeries reads per-symbol bar history from the path: a SQLite database
// (.db/.sqlite), a directory of <SYMBOL>.csv files, or a Parquet data dir.
func loadSeries(path string, symbols []string, timeframe string) (map[string][]domain.Bar, error) {
	wide := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	far := time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)

	series := make(map[string][]domain.Bar, len(symbols))

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".db", ".sqlite":
		st, err := store.NewSQLiteStore(path)
		if err != nil {
			return nil, err
		}
		defer st.Close()
		for _, sym := range symbols {
			bars, err := st.ReadBars(context.Background(), sym, timeframe, wide, far)
			if err != nil {
				return nil, err
			}
			series[sym] = bars
		}
	default:
		// Directory: CSV files take priority, parquet otherwise.
		for _, sym := range symbols {
			csvPath := filepath.Join(path, sym+".csv")
			if _, err := os.Stat(csvPath); err == nil {
				bars, err := store.LoadCSV(csvPath, sym, timeframe)
				if err != nil {
					return nil, err
				}
				series[sym] = bars
				continue
			}
			ps := store.NewParquetStore(path)
			bars, err := ps.ReadBars(context.Background(), sym, timeframe, wide, far)
			if err != nil {
				return nil, err
			}
			series[sym] = bars
		}
	}

	for _, sym := range symbols {
		if len(series[sym]) == 0 {
			return nil, fmt.Errorf("no bar data for %s under %s", sym, path)
		}
	}
	return series, nil
}

// backtestReport shapes a single-run result for JSON output.
func backtestReport(res *engine.BacktestResult) any {
	type point struct {
		Time   string  `json:"time"`
		Equity float64 `json:"equity"`
	}
	curve := make([]point, 0, len(res.Snapshots))
	for _, s := range res.Snapshots {
		curve = append(curve, point{Time: s.Time.Format(time.RFC3339), Equity: s.Equity})
	}
	return struct {
		Metrics     map[string]float64 `json:"metrics"`
		Trades      []domain.Trade     `json:"trades"`
		EquityCurve []point            `json:"equity_curve"`
	}{
		Metrics:     res.Metrics,
		Trades:      res.Trades,
		EquityCurve: curve,
	}
}

func writeJSON(path string, payload any) error {
	var out *os.File
	if path == "" {
		out = os.Stdout
	} else {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseRange(startStr, endStr string) (start, end time.Time, err error) {
	if startStr != "" {
		start, err = time.Parse("2006-01-02", startStr)
		if err != nil {
			return start, end, fmt.Errorf("parse -start: %w", err)
		}
	}
	if endStr != "" {
		end, err = time.Parse("2006-01-02", endStr)
		if err != nil {
			return start, end, fmt.Errorf("parse -end: %w", err)
		}
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return start, end, fmt.Errorf("-end %s is before -start %s", endStr, startStr)
	}
	return start, end, nil
}

// parseGrid parses "name=v1,v2;name2=v3,v4" into an optimization grid.
func parseGrid(s string) (optimize.Grid, error) {
	grid := optimize.Grid{}
	for _, clause := range strings.Split(s, ";") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		name, values, ok := strings.Cut(clause, "=")
		if !ok {
			return nil, fmt.Errorf("grid clause %q: want name=v1,v2", clause)
		}
		for _, vs := range strings.Split(values, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(vs), 64)
			if err != nil {
				return nil, fmt.Errorf("grid parameter %s: %w", name, err)
			}
			grid[name] = append(grid[name], v)
		}
	}
	return grid, nil
}
