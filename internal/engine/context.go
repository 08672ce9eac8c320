package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"goquant/internal/domain"
	"goquant/internal/strategy"
)

// Order rejection sentinels, returned synchronously to the strategy. None of
// these terminate the run.
var (
	ErrInvalidQty       = errors.New("order quantity must be positive")
	ErrMissingLimit     = errors.New("limit price required")
	ErrMissingStop      = errors.New("stop price required")
	ErrUnknownOrderType = errors.New("unknown order type")
	ErrRunConcluded     = errors.New("run has concluded")
)

// Compile-time interface check.
var _ strategy.Context = (*Context)(nil)

// Context is the strategy-facing execution context for one run. All calls
// take effect before the next event is dispatched; there is no cross-tick
// reordering.
type Context struct {
	orders *OrderManager
	ledger *PositionLedger
	log    *slog.Logger

	now       time.Time
	concluded bool
}

// NewContext wires a context over the run's order manager and ledger.
func NewContext(orders *OrderManager, ledger *PositionLedger, log *slog.Logger) *Context {
	return &Context{orders: orders, ledger: ledger, log: log}
}

// advance moves the context clock to the current event time. Called by the
// orchestrator before each dispatch.
func (c *Context) advance(t time.Time) { c.now = t }

// conclude marks the run finished; later submissions are rejected.
func (c *Context) conclude() { c.concluded = true }

// Position returns the current position for the symbol, zero-quantity if
// the symbol has never traded.
func (c *Context) Position(symbol string) domain.Position {
	return c.ledger.Position(symbol)
}

// SubmitOrder validates the request and queues it with the order manager.
// Rejections are returned as errors; the order is recorded as Rejected only
// when it carried enough identity to record at all (validation failures
// short-circuit before an ID is minted).
func (c *Context) SubmitOrder(req domain.OrderRequest) (string, error) {
	if c.concluded {
		return "", fmt.Errorf("submit %s %s: %w", req.Side, req.Symbol, ErrRunConcluded)
	}
	if req.Qty <= 0 {
		return "", fmt.Errorf("submit %s %s: %w", req.Side, req.Symbol, ErrInvalidQty)
	}
	switch req.Type {
	case domain.OrderTypeMarket:
	case domain.OrderTypeLimit:
		if req.LimitPrice <= 0 {
			return "", fmt.Errorf("submit %s %s: %w", req.Side, req.Symbol, ErrMissingLimit)
		}
	case domain.OrderTypeStop:
		if req.StopPrice <= 0 {
			return "", fmt.Errorf("submit %s %s: %w", req.Side, req.Symbol, ErrMissingStop)
		}
	case domain.OrderTypeStopLimit:
		if req.LimitPrice <= 0 {
			return "", fmt.Errorf("submit %s %s: %w", req.Side, req.Symbol, ErrMissingLimit)
		}
		if req.StopPrice <= 0 {
			return "", fmt.Errorf("submit %s %s: %w", req.Side, req.Symbol, ErrMissingStop)
		}
	default:
		return "", fmt.Errorf("submit %s %s: %w: %q", req.Side, req.Symbol, ErrUnknownOrderType, req.Type)
	}

	o := c.orders.Submit(req, c.now)
	c.log.Debug("order submitted",
		"order_id", o.ID, "symbol", o.Symbol, "side", o.Side,
		"type", o.Type, "qty", o.Qty)
	return o.ID, nil
}

// CancelOrder requests cancellation of a working order.
func (c *Context) CancelOrder(orderID string) strategy.CancelResult {
	res := c.orders.Cancel(orderID)
	c.log.Debug("cancel requested", "order_id", orderID, "result", res)
	return res
}

// Buy submits a market buy for qty units.
func (c *Context) Buy(symbol string, qty float64) (string, error) {
	return c.SubmitOrder(domain.OrderRequest{
		Symbol: symbol,
		Side:   domain.SideBuy,
		Qty:    qty,
		Type:   domain.OrderTypeMarket,
	})
}

// Sell submits a market sell for qty units.
func (c *Context) Sell(symbol string, qty float64) (string, error) {
	return c.SubmitOrder(domain.OrderRequest{
		Symbol: symbol,
		Side:   domain.SideSell,
		Qty:    qty,
		Type:   domain.OrderTypeMarket,
	})
}

// Log returns the run's structured logger.
func (c *Context) Log() *slog.Logger {
	return c.log
}
