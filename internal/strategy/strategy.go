// Package strategy defines the Strategy contract (§6.2): a deterministic
// function of declared inputs and its own internal state that only ever
// affects the backtest through the Orders it returns — it never touches a
// Portfolio directly.
package strategy

import (
	"time"

	"marketsim/internal/bar"
	"marketsim/internal/order"
	"marketsim/internal/portfolio"
)

// Strategy is implemented by every trading strategy run by the engine.
type Strategy interface {
	// Name identifies the strategy, e.g. for Results labeling and logs.
	Name() string

	// RequiredSymbols lists the symbols this strategy needs bars for.
	RequiredSymbols() []string

	// Initialize is called once before the event loop starts, given the
	// series the engine fetched for the run's [start,end] range; the same
	// bars are then delivered one timestamp at a time through OnBar. A
	// non-nil error is fatal and aborts the run (§7).
	Initialize(data map[string]*bar.TimeSeries) error

	// OnBar is called once per global timestamp with the bars available at
	// that timestamp (one per fetched symbol that traded on t, across every
	// strategy's RequiredSymbols), before GenerateOrders. Strategies update internal indicator
	// state here; they must not mutate p. A non-nil error is fatal and
	// aborts the run carrying t (§7).
	OnBar(t time.Time, currentBars map[string]bar.Bar, p *portfolio.Portfolio) error

	// GenerateOrders returns the orders this strategy wants placed at t,
	// given the same bars OnBar just saw. p is read-only: strategies size
	// orders off of p.Cash/p.GetPosition but never call p.UpdatePosition. A
	// non-nil error is fatal and aborts the run carrying t (§7).
	GenerateOrders(t time.Time, currentBars map[string]bar.Bar, p *portfolio.Portfolio) ([]*order.Order, error)

	// Parameters returns the strategy's current tunable parameters, keyed
	// by name, for the evaluator's parameter sweep.
	Parameters() map[string]float64

	// SetParameter updates one tunable parameter in place.
	SetParameter(name string, value float64)
}
