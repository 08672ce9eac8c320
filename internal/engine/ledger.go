package engine

import (
	"math"
	"time"

	"goquant/internal/domain"
)

// PositionLedger tracks cash, per-symbol positions, realized and unrealized
// PnL, and the closed-trade log for one run. Positions are created lazily on
// first fill and never destroyed; zero quantity is a valid state.
type PositionLedger struct {
	cash      float64
	positions map[string]*domain.Position
	trades    []domain.Trade
	snapshots []domain.PortfolioSnapshot
}

// NewPositionLedger creates a ledger seeded with the initial cash balance.
func NewPositionLedger(initialCash float64) *PositionLedger {
	return &PositionLedger{
		cash:      initialCash,
		positions: make(map[string]*domain.Position),
	}
}

// Cash returns the current cash balance.
func (l *PositionLedger) Cash() float64 { return l.cash }

// Position returns a copy of the symbol's position, or a zero-quantity
// position if the symbol has never traded.
func (l *PositionLedger) Position(symbol string) domain.Position {
	if p, ok := l.positions[symbol]; ok {
		return *p
	}
	return domain.Position{Symbol: symbol}
}

// Positions returns copies of all live positions keyed by symbol.
func (l *PositionLedger) Positions() map[string]domain.Position {
	out := make(map[string]domain.Position, len(l.positions))
	for sym, p := range l.positions {
		out[sym] = *p
	}
	return out
}

// Trades returns the closed-trade log in execution order.
func (l *PositionLedger) Trades() []domain.Trade { return l.trades }

// Snapshots returns the equity curve recorded so far.
func (l *PositionLedger) Snapshots() []domain.PortfolioSnapshot { return l.snapshots }

// Apply books one fill: cash moves by the signed notional plus commission,
// and the position updates under weighted-average-price accounting. A fill
// in the position's direction (or into a flat book) re-averages the entry
// price; a fill against it realizes PnL on the closed portion, and any
// excess quantity opens a reversed position at the fill price.
func (l *PositionLedger) Apply(f domain.Fill) {
	p, ok := l.positions[f.Symbol]
	if !ok {
		p = &domain.Position{Symbol: f.Symbol}
		l.positions[f.Symbol] = p
	}

	l.cash -= f.Side.Sign()*f.Qty*f.Price + f.Commission

	signedQty := f.Side.Sign() * f.Qty

	switch {
	case p.Qty == 0 || sameSign(p.Qty, signedQty):
		// Same-direction add: quantity-weighted average entry price.
		total := math.Abs(p.Qty) + f.Qty
		p.AvgPrice = (p.AvgPrice*math.Abs(p.Qty) + f.Price*f.Qty) / total
		p.Qty += signedQty

	default:
		closed := math.Min(math.Abs(p.Qty), f.Qty)
		direction := sign(p.Qty)
		realized := (f.Price - p.AvgPrice) * closed * direction
		p.RealizedPnL += realized

		l.trades = append(l.trades, domain.Trade{
			Symbol:     f.Symbol,
			Qty:        closed,
			EntryPrice: p.AvgPrice,
			ExitPrice:  f.Price,
			PnL:        realized - f.Commission,
			EntrySide:  sideOf(direction),
			ExitTime:   f.Time,
		})

		p.Qty += signedQty
		if math.Abs(p.Qty) <= qtyEpsilon {
			p.Qty = 0
			p.AvgPrice = 0
		} else if sameSign(p.Qty, signedQty) {
			// Reversal: the remainder opens a new position at the fill price.
			p.AvgPrice = f.Price
		}
	}

	p.CostBasis = math.Abs(p.Qty) * p.AvgPrice
	p.LastPrice = f.Price
	p.UnrealizedPnL = (p.LastPrice - p.AvgPrice) * p.Qty
}

// MarkToMarket revalues the symbol's position at the bar close. Called on
// every bar, not only on fills.
func (l *PositionLedger) MarkToMarket(bar domain.Bar) {
	p, ok := l.positions[bar.Symbol]
	if !ok {
		return
	}
	p.LastPrice = bar.Close
	p.UnrealizedPnL = (p.LastPrice - p.AvgPrice) * p.Qty
}

// Equity returns cash plus the signed market value of all positions.
func (l *PositionLedger) Equity() float64 {
	eq := l.cash
	for _, p := range l.positions {
		eq += p.MarketValue()
	}
	return eq
}

// RecordSnapshot appends one point to the equity curve.
func (l *PositionLedger) RecordSnapshot(ts time.Time) {
	values := make(map[string]float64, len(l.positions))
	for sym, p := range l.positions {
		values[sym] = p.MarketValue()
	}
	l.snapshots = append(l.snapshots, domain.PortfolioSnapshot{
		Time:      ts,
		Cash:      l.cash,
		Equity:    l.Equity(),
		Positions: values,
	})
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func sign(x float64) float64 {
	if x < 0 {
		return -1
	}
	return 1
}

func sideOf(direction float64) domain.Side {
	if direction < 0 {
		return domain.SideSell
	}
	return domain.SideBuy
}
