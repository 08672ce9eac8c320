// Package strategy defines the Strategy callback contract implemented by
// user-authored trading strategies and provides a Registry for managing
// multiple strategy implementations.
package strategy

import (
	"log/slog"
	"sort"

	"goquant/internal/domain"
)

// Setup is returned by Initialize and consumed exactly once by the engine
// before the replay starts. A strategy cannot alter its subscriptions or
// lookback requirement after that point.
type Setup struct {
	// Symbols the strategy wants bar events for.
	Symbols []string
	// MinLookback is the bar history each symbol must accumulate before the
	// strategy receives its first OnBar call. Zero means no gate beyond the
	// engine-wide configuration.
	MinLookback int
}

// Context is the engine surface a strategy may call from OnBar. All calls
// are synchronous and take effect before the next event is dispatched.
type Context interface {
	// Position returns the current position for the symbol. A symbol never
	// traded yields a zero-quantity Position, not an error.
	Position(symbol string) domain.Position

	// SubmitOrder validates and queues an order, returning its ID. Invalid
	// requests (non-positive quantity, missing required price, submission
	// after the run ended) are rejected with an error; the run continues.
	SubmitOrder(req domain.OrderRequest) (string, error)

	// CancelOrder requests cancellation of a working order.
	CancelOrder(orderID string) CancelResult

	// Buy submits a market buy for qty units.
	Buy(symbol string, qty float64) (string, error)

	// Sell submits a market sell for qty units.
	Sell(symbol string, qty float64) (string, error)

	// Log returns the run's structured logger.
	Log() *slog.Logger
}

// CancelResult reports the outcome of a cancellation request.
type CancelResult string

const (
	CancelAccepted        CancelResult = "accepted"
	CancelNotFound        CancelResult = "not_found"
	CancelAlreadyTerminal CancelResult = "already_terminal"
)

// Strategy is the interface that all trading strategies must implement.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Initialize is called exactly once before the first event, with the
	// parameter set chosen for this run. It returns the Setup the engine
	// uses to drive the replay.
	Initialize(params domain.ParameterSet) (Setup, error)

	// OnBar is called once per replay event. history holds, for every
	// symbol present in the event, the accumulated bars up to and including
	// the current one, oldest first.
	OnBar(ctx Context, history map[string][]domain.Bar) error
}

// Factory constructs a fresh, isolated Strategy instance. The optimizer
// calls it once per parameter set so concurrent runs never share state.
type Factory func() Strategy

// Registry holds a named collection of strategy factories for lookup and
// enumeration.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a strategy factory to the registry under name.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Get retrieves a strategy factory by name. The second return value
// indicates whether the factory was found.
func (r *Registry) Get(name string) (Factory, bool) {
	f, ok := r.factories[name]
	return f, ok
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
