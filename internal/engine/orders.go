package engine

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"goquant/internal/cost"
	"goquant/internal/domain"
	"goquant/internal/strategy"
)

// qtyEpsilon absorbs float residue when deciding whether an order is fully
// filled.
const qtyEpsilon = 1e-9

// FillPolicy controls how the order manager resolves fills against bars.
type FillPolicy struct {
	// SameBar executes market orders at the close of the submission bar
	// instead of the next bar's open.
	SameBar bool
	// LimitFillRatio is the fraction of an order's remaining quantity a
	// limit order fills per qualifying bar, in (0, 1]. 1 fills fully.
	LimitFillRatio float64
	// StopNextBar defers a triggered stop's market fill to the next bar.
	StopNextBar bool
}

// OrderManager owns every order of a run: it validates transitions through
// the lifecycle state machine and simulates fills against incoming bars.
// It is not safe for concurrent use; each run constructs its own.
type OrderManager struct {
	policy     FillPolicy
	slippage   cost.Slippage
	commission cost.Commission
	log        *slog.Logger

	orders  map[string]*domain.Order
	working []string // order IDs in submission order, for deterministic fills
	fills   []domain.Fill
}

// NewOrderManager creates an empty order manager with the given fill policy
// and cost models.
func NewOrderManager(policy FillPolicy, slip cost.Slippage, comm cost.Commission, log *slog.Logger) *OrderManager {
	if policy.LimitFillRatio <= 0 || policy.LimitFillRatio > 1 {
		policy.LimitFillRatio = 1
	}
	if slip == nil {
		slip = cost.NoSlippage{}
	}
	if comm == nil {
		comm = cost.NoCommission{}
	}
	return &OrderManager{
		policy:     policy,
		slippage:   slip,
		commission: comm,
		log:        log,
		orders:     make(map[string]*domain.Order),
	}
}

// Submit records a validated request as a new Accepted order and returns it.
// Validation of the request happens in the Context before this call.
func (m *OrderManager) Submit(req domain.OrderRequest, now time.Time) *domain.Order {
	tif := req.TIF
	if tif == "" {
		tif = domain.TIFGTC
	}
	o := &domain.Order{
		ID:          uuid.NewString(),
		Symbol:      req.Symbol,
		Side:        req.Side,
		Qty:         req.Qty,
		Type:        req.Type,
		LimitPrice:  req.LimitPrice,
		StopPrice:   req.StopPrice,
		TIF:         tif,
		Status:      domain.OrderStatusSubmitted,
		SubmittedAt: now,
		UpdatedAt:   now,
	}
	// Acceptance is immediate in simulation; Submitted exists only as the
	// entry state of the machine.
	o.Status = domain.OrderStatusAccepted
	m.orders[o.ID] = o
	m.working = append(m.working, o.ID)
	return o
}

// Cancel requests cancellation. It succeeds only while the order is still
// working; fills already applied this tick win over the cancellation.
func (m *OrderManager) Cancel(id string) strategy.CancelResult {
	o, ok := m.orders[id]
	if !ok {
		return strategy.CancelNotFound
	}
	if o.Status.Terminal() {
		return strategy.CancelAlreadyTerminal
	}
	o.Status = domain.OrderStatusCancelled
	return strategy.CancelAccepted
}

// Get returns a copy of the order with the given ID.
func (m *OrderManager) Get(id string) (domain.Order, bool) {
	o, ok := m.orders[id]
	if !ok {
		return domain.Order{}, false
	}
	return *o, true
}

// Fills returns all fills generated so far, in execution order.
func (m *OrderManager) Fills() []domain.Fill {
	return m.fills
}

// OpenOrders returns copies of all non-terminal orders in submission order.
func (m *OrderManager) OpenOrders() []domain.Order {
	var out []domain.Order
	for _, id := range m.working {
		if o := m.orders[id]; !o.Status.Terminal() {
			out = append(out, *o)
		}
	}
	return out
}

// ExpireDay cancels working Day orders submitted on an earlier UTC calendar
// day than now. Called before fills are resolved for a new day's bar, since
// such orders lapsed at the previous session's end.
func (m *OrderManager) ExpireDay(now time.Time) {
	ny, nm, nd := now.UTC().Date()
	for _, id := range m.working {
		o := m.orders[id]
		if o.Status.Terminal() || o.TIF != domain.TIFDay {
			continue
		}
		oy, om, od := o.SubmittedAt.UTC().Date()
		if oy != ny || om != nm || od != nd {
			o.Status = domain.OrderStatusCancelled
			o.UpdatedAt = now
			m.log.Debug("day order expired", "order_id", o.ID, "symbol", o.Symbol)
		}
	}
}

// ResolveBar evaluates every working order for bar.Symbol against the bar
// and returns the fills produced, in submission order. Orders submitted at
// or after the bar's timestamp are skipped: they execute no earlier than the
// following bar (one-bar latency).
func (m *OrderManager) ResolveBar(bar domain.Bar) []domain.Fill {
	return m.resolve(bar, false)
}

// ResolveSameBar evaluates orders submitted at exactly the bar's timestamp,
// filling market orders at the bar close. Used only in same-bar latency mode,
// after strategy dispatch.
func (m *OrderManager) ResolveSameBar(bar domain.Bar) []domain.Fill {
	return m.resolve(bar, true)
}

func (m *OrderManager) resolve(bar domain.Bar, sameBar bool) []domain.Fill {
	var fills []domain.Fill
	for _, id := range m.working {
		o := m.orders[id]
		if o.Status.Terminal() || o.Symbol != bar.Symbol {
			continue
		}
		if sameBar {
			if !o.SubmittedAt.Equal(bar.Timestamp) {
				continue
			}
		} else if !o.SubmittedAt.Before(bar.Timestamp) {
			continue
		}

		if f, ok := m.tryFill(o, bar, sameBar); ok {
			fills = append(fills, f)
			m.fills = append(m.fills, f)
		}
	}
	m.compactWorking()
	return fills
}

// tryFill applies the per-type fill rules of one order against one bar.
func (m *OrderManager) tryFill(o *domain.Order, bar domain.Bar, sameBar bool) (domain.Fill, bool) {
	// Reference price for market-style executions.
	marketRef := bar.Open
	if sameBar {
		marketRef = bar.Close
	}

	switch o.Type {
	case domain.OrderTypeMarket:
		return m.fill(o, bar, o.Remaining(), marketRef), true

	case domain.OrderTypeLimit:
		if ref, ok := limitTouch(o.Side, o.LimitPrice, bar, marketRef); ok {
			return m.fill(o, bar, m.limitQty(o), ref), true
		}

	case domain.OrderTypeStop:
		if !o.Triggered {
			if !stopTouch(o.Side, o.StopPrice, bar) {
				return domain.Fill{}, false
			}
			o.Triggered = true
			if m.policy.StopNextBar {
				// Converted to a market order; fills at the next bar.
				return domain.Fill{}, false
			}
			// Fill on the trigger bar at the stop price, or the open when
			// the bar gapped through it.
			ref := worseOf(o.Side, marketRef, o.StopPrice)
			return m.fill(o, bar, o.Remaining(), ref), true
		}
		return m.fill(o, bar, o.Remaining(), marketRef), true

	case domain.OrderTypeStopLimit:
		if !o.Triggered {
			if !stopTouch(o.Side, o.StopPrice, bar) {
				return domain.Fill{}, false
			}
			o.Triggered = true
		}
		// Behaves as a limit order from the trigger bar onward.
		if ref, ok := limitTouch(o.Side, o.LimitPrice, bar, marketRef); ok {
			return m.fill(o, bar, m.limitQty(o), ref), true
		}
	}
	return domain.Fill{}, false
}

// limitQty applies the configured partial-fill ratio to the remaining
// quantity, rounding up to a full fill when the residue would be negligible.
func (m *OrderManager) limitQty(o *domain.Order) float64 {
	qty := o.Remaining() * m.policy.LimitFillRatio
	if o.Remaining()-qty < qtyEpsilon {
		qty = o.Remaining()
	}
	return qty
}

// fill creates the Fill, applies slippage and commission, and advances the
// order's state.
func (m *OrderManager) fill(o *domain.Order, bar domain.Bar, qty, refPrice float64) domain.Fill {
	price := m.slippage.Adjust(o.Side, qty, refPrice, bar.Volume)
	f := domain.Fill{
		OrderID:    o.ID,
		Symbol:     o.Symbol,
		Side:       o.Side,
		Qty:        qty,
		Price:      price,
		Commission: m.commission.Charge(qty, price),
		Slippage:   price - refPrice,
		Time:       bar.Timestamp,
	}

	o.AvgFillPrice = (o.AvgFillPrice*o.FilledQty + price*qty) / (o.FilledQty + qty)
	o.FilledQty += qty
	o.UpdatedAt = bar.Timestamp
	if o.Remaining() <= qtyEpsilon {
		o.FilledQty = o.Qty
		o.Status = domain.OrderStatusFilled
	} else {
		o.Status = domain.OrderStatusPartiallyFilled
	}

	m.log.Debug("fill",
		"order_id", o.ID, "symbol", o.Symbol, "side", o.Side,
		"qty", qty, "price", price, "status", o.Status)
	return f
}

// compactWorking drops terminal orders from the working list.
func (m *OrderManager) compactWorking() {
	live := m.working[:0]
	for _, id := range m.working {
		if !m.orders[id].Status.Terminal() {
			live = append(live, id)
		}
	}
	m.working = live
}

// limitTouch reports whether a limit order fills on this bar and at what
// reference price. A buy fills when the bar trades at or below the limit,
// at the better of the open and the limit; symmetric for sells. The price
// is never worse than the limit.
func limitTouch(side domain.Side, limit float64, bar domain.Bar, openRef float64) (float64, bool) {
	if side == domain.SideBuy {
		if bar.Low <= limit {
			return min(openRef, limit), true
		}
		return 0, false
	}
	if bar.High >= limit {
		return max(openRef, limit), true
	}
	return 0, false
}

// stopTouch reports whether the bar's range crosses the stop price: at or
// above for buy stops, at or below for sell stops.
func stopTouch(side domain.Side, stop float64, bar domain.Bar) bool {
	if side == domain.SideBuy {
		return bar.High >= stop
	}
	return bar.Low <= stop
}

// worseOf returns the price less favourable to the order's side.
func worseOf(side domain.Side, a, b float64) float64 {
	if side == domain.SideBuy {
		return max(a, b)
	}
	return min(a, b)
}
