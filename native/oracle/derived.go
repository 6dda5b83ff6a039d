package oracle

import (
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"arthcore/core/fixed"
)

// RatioSource derives a price by dividing two feeds quoted in a common unit,
// e.g. ETH/USD ÷ GMU/USD = ETH/GMU.
type RatioSource struct {
	id          string
	numerator   Source
	denominator Source
}

func NewRatioSource(id string, numerator, denominator Source) *RatioSource {
	return &RatioSource{id: normaliseID(id), numerator: numerator, denominator: denominator}
}

func (s *RatioSource) ID() string { return s.id }

func (s *RatioSource) Quote(baseAmount *uint256.Int) (PriceQuote, error) {
	num, err := s.numerator.Quote(nil)
	if err != nil {
		return PriceQuote{}, err
	}
	den, err := s.denominator.Quote(nil)
	if err != nil {
		return PriceQuote{}, err
	}
	numPrice, err := num.GMU()
	if err != nil {
		return PriceQuote{}, err
	}
	denPrice, err := den.GMU()
	if err != nil {
		return PriceQuote{}, err
	}
	if denPrice == 0 {
		return PriceQuote{}, fmt.Errorf("ratio %s: %w", s.id, fixed.ErrDivisionByZero)
	}
	perUnit, err := fixed.MulDivDown(uint256.NewInt(numPrice), fixed.PricePrecision, uint256.NewInt(denPrice))
	if err != nil {
		return PriceQuote{}, fmt.Errorf("ratio %s: %w", s.id, err)
	}
	return unitQuote(s.id, perUnit, oldest(num.ObservedAt, den.ObservedAt), baseAmount)
}

func (s *RatioSource) CanRefresh() bool {
	return s.numerator.CanRefresh() || s.denominator.CanRefresh()
}

func (s *RatioSource) Refresh() error {
	return refreshAll(s.numerator, s.denominator)
}

// Chain multiplies hops together, e.g. collateral/ETH × ETH/GMU =
// collateral/GMU. Every hop must quote successfully; errors propagate
// unchanged.
type Chain struct {
	id   string
	hops []Source
}

func NewChain(id string, hops ...Source) (*Chain, error) {
	if len(hops) == 0 {
		return nil, fmt.Errorf("chain %s: at least one hop required", id)
	}
	for i, hop := range hops {
		if hop == nil {
			return nil, fmt.Errorf("chain %s: hop %d is nil", id, i)
		}
	}
	return &Chain{id: normaliseID(id), hops: append([]Source(nil), hops...)}, nil
}

func (c *Chain) ID() string { return c.id }

func (c *Chain) Quote(baseAmount *uint256.Int) (PriceQuote, error) {
	perUnit := fixed.PricePrecision.Clone()
	var observedAt time.Time
	for _, hop := range c.hops {
		q, err := hop.Quote(nil)
		if err != nil {
			return PriceQuote{}, err
		}
		price, err := q.GMU()
		if err != nil {
			return PriceQuote{}, err
		}
		perUnit, err = fixed.MulDivDown(perUnit, uint256.NewInt(price), fixed.PricePrecision)
		if err != nil {
			return PriceQuote{}, fmt.Errorf("chain %s: %w", c.id, err)
		}
		observedAt = oldest(observedAt, q.ObservedAt)
	}
	return unitQuote(c.id, perUnit, observedAt, baseAmount)
}

func (c *Chain) CanRefresh() bool {
	for _, hop := range c.hops {
		if hop.CanRefresh() {
			return true
		}
	}
	return false
}

func (c *Chain) Refresh() error {
	return refreshAll(c.hops...)
}

func refreshAll(sources ...Source) error {
	var errs []error
	for _, src := range sources {
		if !src.CanRefresh() {
			continue
		}
		if err := src.Refresh(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func oldest(a, b time.Time) time.Time {
	switch {
	case a.IsZero():
		return b
	case b.IsZero():
		return a
	case b.Before(a):
		return b
	default:
		return a
	}
}
