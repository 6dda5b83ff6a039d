// Package curve maps a collateralisation shortfall to the bonus paid to
// recollateralizers.
package curve

import (
	"fmt"

	"arthcore/core/fixed"
)

// Params configures the discount curve. MaxBonusBps is paid once the deficit
// reaches FullBonusThreshold (in ratio units, 1e6 = 100%).
type Params struct {
	MaxBonusBps        uint64 `toml:"max_bonus_bps"`
	FullBonusThreshold uint64 `toml:"full_bonus_threshold"`
}

// DefaultParams pays up to 0.75% once the system is 10 points under target.
func DefaultParams() Params {
	return Params{MaxBonusBps: 75, FullBonusThreshold: 100_000}
}

func (p Params) Validate() error {
	if p.MaxBonusBps > fixed.BpsDenominator {
		return fmt.Errorf("curve: max bonus %d bps exceeds 100%%", p.MaxBonusBps)
	}
	if p.FullBonusThreshold == 0 || p.FullBonusThreshold > fixed.MaxRatio {
		return fmt.Errorf("curve: full bonus threshold %d out of range", p.FullBonusThreshold)
	}
	return nil
}

// BonusBps returns the bonus for the gap between the current target ratio and
// the effective ratio actually backed by collateral. The bonus is zero once the
// effective ratio reaches the target, grows linearly with the deficit and
// saturates at MaxBonusBps.
func (p Params) BonusBps(currentRatio, effectiveRatio uint64) uint64 {
	if effectiveRatio >= currentRatio || p.MaxBonusBps == 0 {
		return 0
	}
	deficit := currentRatio - effectiveRatio
	if p.FullBonusThreshold == 0 || deficit >= p.FullBonusThreshold {
		return p.MaxBonusBps
	}
	// Both operands are bounded by 1e6 and 1e4 so the product fits in uint64.
	return p.MaxBonusBps * deficit / p.FullBonusThreshold
}
