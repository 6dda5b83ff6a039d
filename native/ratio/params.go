package ratio

import (
	"fmt"
	"time"

	"arthcore/core/fixed"
)

// Params are the administrative knobs of the controller. PriceBand and
// StepSize share the six decimal precision of prices and the ratio.
type Params struct {
	PriceTarget     uint64
	PriceBand       uint64
	StepSize        uint64
	RefreshCooldown time.Duration
}

// DefaultParams targets 1.00 GMU with a 0.25% band, 0.25% steps and an hourly
// cooldown.
func DefaultParams() Params {
	return Params{
		PriceTarget:     fixed.MaxRatio,
		PriceBand:       2_500,
		StepSize:        2_500,
		RefreshCooldown: time.Hour,
	}
}

// Normalise fills zero values with defaults.
func (p Params) Normalise() Params {
	def := DefaultParams()
	if p.PriceTarget == 0 {
		p.PriceTarget = def.PriceTarget
	}
	if p.StepSize == 0 {
		p.StepSize = def.StepSize
	}
	return p
}

func (p Params) Validate() error {
	if p.PriceTarget == 0 {
		return fmt.Errorf("ratio: price target must be positive")
	}
	if p.PriceBand >= p.PriceTarget {
		return fmt.Errorf("ratio: price band %d must be below target %d", p.PriceBand, p.PriceTarget)
	}
	if p.StepSize == 0 || p.StepSize > fixed.MaxRatio {
		return fmt.Errorf("ratio: step size %d out of range", p.StepSize)
	}
	if p.RefreshCooldown < 0 {
		return fmt.Errorf("ratio: refresh cooldown must not be negative")
	}
	return nil
}

// NextRatio computes the ratio after a refresh observing price. Above the band
// the ratio steps down, below it steps up, inside it is unchanged. The result
// is clamped to [0, MaxRatio], including when the input already lies outside.
func NextRatio(current, price uint64, p Params) uint64 {
	target := p.PriceTarget
	if target == 0 {
		target = fixed.MaxRatio
	}
	switch {
	case price > target+p.PriceBand:
		if current <= p.StepSize {
			return 0
		}
		next := current - p.StepSize
		if next > fixed.MaxRatio {
			return fixed.MaxRatio
		}
		return next
	case price+p.PriceBand < target:
		if current >= fixed.MaxRatio || p.StepSize >= fixed.MaxRatio-current {
			return fixed.MaxRatio
		}
		return current + p.StepSize
	default:
		if current > fixed.MaxRatio {
			return fixed.MaxRatio
		}
		return current
	}
}
