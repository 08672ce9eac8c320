// Package cost provides the pluggable commission and slippage models applied
// at fill time. All models are pure functions of their inputs so repeated
// runs over identical data produce identical fills.
package cost

import (
	"fmt"
	"math"

	"goquant/internal/config"
	"goquant/internal/domain"
)

// Commission computes the fee charged for a prospective fill.
type Commission interface {
	Charge(qty, price float64) float64
}

// Slippage adjusts a reference price to the simulated execution price. The
// adjustment is always adverse: buys pay more, sells receive less. barVolume
// is the volume of the bar the fill executes against.
type Slippage interface {
	Adjust(side domain.Side, qty, refPrice, barVolume float64) float64
}

// ---------------------------------------------------------------------------
// Commission models
// ---------------------------------------------------------------------------

// NoCommission charges nothing.
type NoCommission struct{}

func (NoCommission) Charge(_, _ float64) float64 { return 0 }

// FixedCommission charges a flat fee per fill.
type FixedCommission struct {
	Fee float64
}

func (c FixedCommission) Charge(_, _ float64) float64 { return c.Fee }

// PercentCommission charges a fraction of the fill notional.
type PercentCommission struct {
	Rate float64 // e.g. 0.001 for 10 bps
}

func (c PercentCommission) Charge(qty, price float64) float64 {
	return math.Abs(qty) * price * c.Rate
}

// PerUnitCommission charges a fee per unit traded.
type PerUnitCommission struct {
	Fee float64
}

func (c PerUnitCommission) Charge(qty, _ float64) float64 {
	return math.Abs(qty) * c.Fee
}

// ---------------------------------------------------------------------------
// Slippage models
// ---------------------------------------------------------------------------

// NoSlippage returns the reference price unchanged.
type NoSlippage struct{}

func (NoSlippage) Adjust(_ domain.Side, _, refPrice, _ float64) float64 {
	return refPrice
}

// PercentSlippage moves the price against the fill by a fixed fraction.
type PercentSlippage struct {
	Rate float64 // e.g. 0.0005 for 5 bps
}

func (s PercentSlippage) Adjust(side domain.Side, _, refPrice, _ float64) float64 {
	return refPrice * (1 + side.Sign()*s.Rate)
}

// FixedSlippage moves the price against the fill by an absolute amount.
type FixedSlippage struct {
	Amount float64
}

func (s FixedSlippage) Adjust(side domain.Side, _, refPrice, _ float64) float64 {
	return refPrice + side.Sign()*s.Amount
}

// VolumeShareSlippage scales price impact with the fill's share of bar
// volume: impact = Rate * (qty/volume)^2, capped at MaxImpact. Zero-volume
// bars fall back to the cap.
type VolumeShareSlippage struct {
	Rate      float64 // impact per squared volume share, e.g. 0.1
	MaxImpact float64 // cap as a fraction of price, e.g. 0.05
}

func (s VolumeShareSlippage) Adjust(side domain.Side, qty, refPrice, barVolume float64) float64 {
	impact := s.MaxImpact
	if barVolume > 0 {
		share := math.Abs(qty) / barVolume
		impact = s.Rate * share * share
		if impact > s.MaxImpact {
			impact = s.MaxImpact
		}
	}
	return refPrice * (1 + side.Sign()*impact)
}

// ---------------------------------------------------------------------------
// Config selection
// ---------------------------------------------------------------------------

// CommissionFromConfig builds the configured commission model. An empty or
// "none" type yields the zero-cost model.
func CommissionFromConfig(mc config.ModelConfig) (Commission, error) {
	switch mc.Type {
	case "", "none":
		return NoCommission{}, nil
	case "fixed":
		return FixedCommission{Fee: mc.Value}, nil
	case "percent":
		return PercentCommission{Rate: mc.Value}, nil
	case "per_unit":
		return PerUnitCommission{Fee: mc.Value}, nil
	default:
		return nil, fmt.Errorf("cost: unknown commission model %q", mc.Type)
	}
}

// SlippageFromConfig builds the configured slippage model. An empty or
// "none" type yields the identity model.
func SlippageFromConfig(mc config.ModelConfig) (Slippage, error) {
	switch mc.Type {
	case "", "none":
		return NoSlippage{}, nil
	case "percent":
		return PercentSlippage{Rate: mc.Value}, nil
	case "fixed":
		return FixedSlippage{Amount: mc.Value}, nil
	case "volume_share":
		return VolumeShareSlippage{Rate: mc.Value, MaxImpact: 0.05}, nil
	default:
		return nil, fmt.Errorf("cost: unknown slippage model %q", mc.Type)
	}
}
