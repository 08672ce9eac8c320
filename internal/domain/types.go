// Package domain defines the core value types shared across the backtesting
// engine: bars, events, orders, fills, positions, portfolio snapshots, and
// parameter sets.
package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

// Bar is one OHLCV observation of a symbol over a fixed timeframe. Bars are
// immutable once produced and strictly ascending by Timestamp within a
// symbol/timeframe stream.
type Bar struct {
	Symbol    string
	Timeframe string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Event groups the bars of all subscribed symbols that share one timestamp.
// A symbol with no bar at that timestamp is simply absent from Bars.
type Event struct {
	Time time.Time
	Bars map[string]Bar
}

// ---------------------------------------------------------------------------
// Orders and fills
// ---------------------------------------------------------------------------

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Sign returns +1 for buy, -1 for sell.
func (s Side) Sign() float64 {
	if s == SideSell {
		return -1
	}
	return 1
}

// OrderType enumerates the supported order types.
type OrderType string

const (
	OrderTypeMarket    OrderType = "market"
	OrderTypeLimit     OrderType = "limit"
	OrderTypeStop      OrderType = "stop"
	OrderTypeStopLimit OrderType = "stop_limit"
)

// OrderStatus is the lifecycle state of an order. Filled, Cancelled, and
// Rejected are terminal.
type OrderStatus string

const (
	OrderStatusSubmitted       OrderStatus = "submitted"
	OrderStatusAccepted        OrderStatus = "accepted"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusRejected        OrderStatus = "rejected"
)

// Terminal reports whether the status permits no further transitions.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected:
		return true
	}
	return false
}

// TimeInForce controls how long an unfilled order stays working.
type TimeInForce string

const (
	// TIFGTC keeps the order working until filled or cancelled. Default.
	TIFGTC TimeInForce = "gtc"
	// TIFDay expires the order when a bar from a later calendar day (UTC)
	// is processed.
	TIFDay TimeInForce = "day"
)

// OrderRequest is the closed set of fields a strategy may specify when
// submitting an order. Unset optional prices are zero; LimitPrice is required
// for limit and stop-limit orders, StopPrice for stop and stop-limit.
type OrderRequest struct {
	Symbol     string
	Side       Side
	Qty        float64
	Type       OrderType
	LimitPrice float64
	StopPrice  float64
	TIF        TimeInForce
}

// Order is the engine's record of a working or completed order. It is owned
// by the order manager for the lifetime of a run; external code refers to it
// only by ID.
type Order struct {
	ID           string
	Symbol       string
	Side         Side
	Qty          float64
	Type         OrderType
	LimitPrice   float64
	StopPrice    float64
	TIF          TimeInForce
	Status       OrderStatus
	FilledQty    float64
	AvgFillPrice float64
	SubmittedAt  time.Time
	UpdatedAt    time.Time
	// Triggered marks a stop or stop-limit order whose stop price has been
	// crossed, after which it behaves as a market or limit order.
	Triggered bool
}

// Remaining returns the unfilled quantity.
func (o *Order) Remaining() float64 {
	return o.Qty - o.FilledQty
}

// Fill records one (partial or full) execution of an order. Immutable.
type Fill struct {
	OrderID    string
	Symbol     string
	Side       Side
	Qty        float64
	Price      float64
	Commission float64
	Slippage   float64
	Time       time.Time
}

// ---------------------------------------------------------------------------
// Positions and portfolio
// ---------------------------------------------------------------------------

// Position is the per-symbol holding of a run. Qty is signed: positive long,
// negative short. Zero Qty is a valid state, not absence.
type Position struct {
	Symbol        string
	Qty           float64
	AvgPrice      float64
	CostBasis     float64
	RealizedPnL   float64
	UnrealizedPnL float64
	LastPrice     float64
}

// MarketValue returns the signed value of the position at LastPrice.
func (p Position) MarketValue() float64 {
	return p.Qty * p.LastPrice
}

// PortfolioSnapshot is one point on the equity curve, appended after every
// processed event and never mutated.
type PortfolioSnapshot struct {
	Time      time.Time
	Cash      float64
	Equity    float64
	Positions map[string]float64 // symbol -> market value
}

// Trade is a closed (or partially closed) round trip recorded by the ledger
// when a fill reduces an open position.
type Trade struct {
	Symbol     string
	Qty        float64 // closed quantity, always positive
	EntryPrice float64 // average price of the closed portion
	ExitPrice  float64
	PnL        float64 // realized, net of the exit fill's commission
	EntrySide  Side    // direction of the position that was reduced
	ExitTime   time.Time
}

// ---------------------------------------------------------------------------
// Parameters
// ---------------------------------------------------------------------------

// ParameterSet is one point in a strategy parameter grid. Treated as
// immutable after construction; Clone before mutating.
type ParameterSet map[string]float64

// Clone returns an independent copy.
func (p ParameterSet) Clone() ParameterSet {
	out := make(ParameterSet, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Get returns the named parameter, or def when absent.
func (p ParameterSet) Get(name string, def float64) float64 {
	if v, ok := p[name]; ok {
		return v
	}
	return def
}

// String renders the set in sorted-key order so logs and leaderboards are
// stable across runs.
func (p ParameterSet) String() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%g", k, p[k]))
	}
	return strings.Join(parts, " ")
}
