// Package oracle provides the price sources and the aggregator that normalise
// stablecoin, share token and collateral prices into GMU at six decimals.
package oracle

import (
	"fmt"
	"strings"
	"time"

	"github.com/holiman/uint256"

	"arthcore/core/fixed"
)

// PriceQuote captures a price for a base amount along with the time the
// underlying observation was made and the source identifier. Quotes are
// produced per query and never persisted.
type PriceQuote struct {
	Price      *uint256.Int
	Decimals   uint8
	ObservedAt time.Time
	SourceID   string
}

// Clone returns a deep copy of the quote to prevent accidental mutations.
func (q PriceQuote) Clone() PriceQuote {
	clone := q
	if q.Price != nil {
		clone.Price = q.Price.Clone()
	}
	return clone
}

// GMU renders the quote at six decimals, rounding down.
func (q PriceQuote) GMU() (uint64, error) {
	if q.Price == nil {
		return 0, fmt.Errorf("oracle %s: empty quote", q.SourceID)
	}
	var scaled *uint256.Int
	switch {
	case q.Decimals == fixed.PriceDecimals:
		scaled = q.Price.Clone()
	case q.Decimals > fixed.PriceDecimals:
		scaled = new(uint256.Int).Div(q.Price, fixed.Pow10(q.Decimals-fixed.PriceDecimals))
	default:
		var overflow bool
		scaled, overflow = new(uint256.Int).MulOverflow(q.Price, fixed.Pow10(fixed.PriceDecimals-q.Decimals))
		if overflow {
			return 0, fixed.ErrOverflow
		}
	}
	if !scaled.IsUint64() {
		return 0, fmt.Errorf("oracle %s: price %s: %w", q.SourceID, scaled.Dec(), fixed.ErrOverflow)
	}
	return scaled.Uint64(), nil
}

// Source is a single price feed. Quote returns the price of baseAmount units
// of the base asset expressed at PriceDecimals; a nil baseAmount means one
// whole unit. CanRefresh reports whether Refresh would currently succeed.
type Source interface {
	ID() string
	Quote(baseAmount *uint256.Int) (PriceQuote, error)
	CanRefresh() bool
	Refresh() error
}

// unitQuote scales a per-unit price to baseAmount units. baseAmount is in
// PriceDecimals precision so that nil or 1e6 both mean a single unit.
func unitQuote(id string, perUnit *uint256.Int, observedAt time.Time, baseAmount *uint256.Int) (PriceQuote, error) {
	price := perUnit.Clone()
	if baseAmount != nil && !baseAmount.Eq(fixed.PricePrecision) {
		var err error
		price, err = fixed.MulDivDown(perUnit, baseAmount, fixed.PricePrecision)
		if err != nil {
			return PriceQuote{}, fmt.Errorf("oracle %s: %w", id, err)
		}
	}
	return PriceQuote{
		Price:      price,
		Decimals:   fixed.PriceDecimals,
		ObservedAt: observedAt,
		SourceID:   id,
	}, nil
}

func normaliseID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

type clock func() time.Time

func (c clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}
