// Package fixed implements the integer fixed-point helpers shared by the
// oracle, ratio and pool modules. Prices and ratios use six decimals; fees use
// basis points. Every helper allocates its result and never mutates inputs.
package fixed

import (
	"fmt"

	"github.com/holiman/uint256"
)

const (
	// PriceDecimals is the precision of GMU prices and the collateral ratio.
	PriceDecimals = 6
	// TokenDecimals is the precision of the stablecoin and share token.
	TokenDecimals = 18
	// MaxRatio represents a 100% collateral ratio.
	MaxRatio uint64 = 1_000_000
	// BpsDenominator represents 100% in basis points.
	BpsDenominator uint64 = 10_000
)

var (
	// PricePrecision is 1.00 at six decimals.
	PricePrecision = uint256.NewInt(1_000_000)
	// Bps is 100% in basis points.
	Bps = uint256.NewInt(BpsDenominator)
)

// ErrOverflow reports a result that does not fit in 256 bits.
var ErrOverflow = fmt.Errorf("fixed: arithmetic overflow")

// ErrDivisionByZero reports a zero denominator.
var ErrDivisionByZero = fmt.Errorf("fixed: division by zero")

// Zero returns a fresh zero value.
func Zero() *uint256.Int { return new(uint256.Int) }

// OrZero returns a copy of v, or zero when v is nil.
func OrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v.Clone()
}

// Pow10 returns 10^exp.
func Pow10(exp uint8) *uint256.Int {
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(exp)))
}

// MulDivDown computes floor(x*y/d) using a 512-bit intermediate product.
func MulDivDown(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d == nil || d.IsZero() {
		return nil, ErrDivisionByZero
	}
	z, overflow := new(uint256.Int).MulDivOverflow(OrZero(x), OrZero(y), d)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// MulDivUp computes ceil(x*y/d) using a 512-bit intermediate product.
func MulDivUp(x, y, d *uint256.Int) (*uint256.Int, error) {
	z, err := MulDivDown(x, y, d)
	if err != nil {
		return nil, err
	}
	rem := new(uint256.Int).MulMod(OrZero(x), OrZero(y), d)
	if rem.IsZero() {
		return z, nil
	}
	if _, overflow := z.AddOverflow(z, uint256.NewInt(1)); overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// ApplyBpsDown returns floor(amount * (10000 - feeBps) / 10000); used to net a
// fee out of an amount the protocol pays.
func ApplyBpsDown(amount *uint256.Int, feeBps uint64) (*uint256.Int, error) {
	if feeBps > BpsDenominator {
		return nil, fmt.Errorf("fixed: fee %d bps exceeds 100%%", feeBps)
	}
	return MulDivDown(amount, uint256.NewInt(BpsDenominator-feeBps), Bps)
}

// ScaleBps returns floor(amount * multiplierBps / 10000).
func ScaleBps(amount *uint256.Int, multiplierBps uint64) (*uint256.Int, error) {
	return MulDivDown(amount, uint256.NewInt(multiplierBps), Bps)
}

// ToTokenUnits lifts an amount with the given decimals to 18 decimals.
func ToTokenUnits(amount *uint256.Int, decimals uint8) (*uint256.Int, error) {
	if decimals > TokenDecimals {
		return nil, fmt.Errorf("fixed: decimals %d exceed %d", decimals, TokenDecimals)
	}
	z, overflow := new(uint256.Int).MulOverflow(OrZero(amount), Pow10(TokenDecimals-decimals))
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// ValueOf converts a token amount at the given decimals into 18-decimal GMU
// value at a six-decimal price, rounding down.
func ValueOf(amount *uint256.Int, decimals uint8, price uint64) (*uint256.Int, error) {
	scaled, err := ToTokenUnits(amount, decimals)
	if err != nil {
		return nil, err
	}
	return MulDivDown(scaled, uint256.NewInt(price), PricePrecision)
}

// AmountForValueDown converts an 18-decimal GMU value into a token amount at
// the given decimals, rounding down. Used for amounts paid to a caller.
func AmountForValueDown(value *uint256.Int, decimals uint8, price uint64) (*uint256.Int, error) {
	den, err := priceDenominator(decimals, price)
	if err != nil {
		return nil, err
	}
	return MulDivDown(value, PricePrecision, den)
}

// AmountForValueUp converts an 18-decimal GMU value into a token amount at the
// given decimals, rounding up. Used for amounts a caller must supply.
func AmountForValueUp(value *uint256.Int, decimals uint8, price uint64) (*uint256.Int, error) {
	den, err := priceDenominator(decimals, price)
	if err != nil {
		return nil, err
	}
	return MulDivUp(value, PricePrecision, den)
}

func priceDenominator(decimals uint8, price uint64) (*uint256.Int, error) {
	if price == 0 {
		return nil, ErrDivisionByZero
	}
	if decimals > TokenDecimals {
		return nil, fmt.Errorf("fixed: decimals %d exceed %d", decimals, TokenDecimals)
	}
	den, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(price), Pow10(TokenDecimals-decimals))
	if overflow {
		return nil, ErrOverflow
	}
	return den, nil
}

// Min returns a copy of the smaller operand.
func Min(a, b *uint256.Int) *uint256.Int {
	if OrZero(a).Cmp(OrZero(b)) <= 0 {
		return OrZero(a)
	}
	return OrZero(b)
}

// SaturatingSub returns max(a-b, 0).
func SaturatingSub(a, b *uint256.Int) *uint256.Int {
	z, underflow := new(uint256.Int).SubOverflow(OrZero(a), OrZero(b))
	if underflow {
		return new(uint256.Int)
	}
	return z
}

// FromDecimal parses a base-10 amount, treating the empty string as zero.
func FromDecimal(raw string) (*uint256.Int, error) {
	if raw == "" {
		return new(uint256.Int), nil
	}
	v, err := uint256.FromDecimal(raw)
	if err != nil {
		return nil, fmt.Errorf("fixed: parse %q: %w", raw, err)
	}
	return v, nil
}

// String renders v in base 10, treating nil as zero.
func String(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
