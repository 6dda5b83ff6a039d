package fixed

import (
	"testing"

	"github.com/holiman/uint256"
)

func TestMulDivRounding(t *testing.T) {
	down, err := MulDivDown(uint256.NewInt(10), uint256.NewInt(1), uint256.NewInt(3))
	if err != nil {
		t.Fatalf("mul div down: %v", err)
	}
	if down.Uint64() != 3 {
		t.Fatalf("expected 3, got %s", down)
	}
	up, err := MulDivUp(uint256.NewInt(10), uint256.NewInt(1), uint256.NewInt(3))
	if err != nil {
		t.Fatalf("mul div up: %v", err)
	}
	if up.Uint64() != 4 {
		t.Fatalf("expected 4, got %s", up)
	}
	exact, err := MulDivUp(uint256.NewInt(9), uint256.NewInt(1), uint256.NewInt(3))
	if err != nil {
		t.Fatalf("mul div up exact: %v", err)
	}
	if exact.Uint64() != 3 {
		t.Fatalf("expected exact division to stay 3, got %s", exact)
	}
}

func TestMulDivWideIntermediate(t *testing.T) {
	huge := new(uint256.Int).Lsh(uint256.NewInt(1), 200)
	got, err := MulDivDown(huge, huge, huge)
	if err != nil {
		t.Fatalf("mul div: %v", err)
	}
	if !got.Eq(huge) {
		t.Fatalf("expected 512-bit intermediate to round trip")
	}
	if _, err := MulDivDown(huge, huge, uint256.NewInt(1)); err != ErrOverflow {
		t.Fatalf("expected overflow, got %v", err)
	}
	if _, err := MulDivDown(huge, huge, Zero()); err != ErrDivisionByZero {
		t.Fatalf("expected division by zero, got %v", err)
	}
}

func TestApplyBpsDown(t *testing.T) {
	got, err := ApplyBpsDown(uint256.NewInt(1_000_000), 30)
	if err != nil {
		t.Fatalf("apply bps: %v", err)
	}
	if got.Uint64() != 997_000 {
		t.Fatalf("expected 997000, got %s", got)
	}
	if _, err := ApplyBpsDown(uint256.NewInt(1), 10_001); err == nil {
		t.Fatalf("expected fee above 100%% to fail")
	}
}

func TestValueConversions(t *testing.T) {
	// 100 USDC (6 decimals) at 1.00 GMU is 100e18 GMU units.
	usdc := uint256.NewInt(100_000_000)
	value, err := ValueOf(usdc, 6, 1_000_000)
	if err != nil {
		t.Fatalf("value of: %v", err)
	}
	want := new(uint256.Int).Mul(uint256.NewInt(100), Pow10(18))
	if !value.Eq(want) {
		t.Fatalf("expected %s, got %s", want, value)
	}
	back, err := AmountForValueDown(value, 6, 1_000_000)
	if err != nil {
		t.Fatalf("amount for value: %v", err)
	}
	if !back.Eq(usdc) {
		t.Fatalf("expected round trip to %s, got %s", usdc, back)
	}
	// 1 wei of GMU value at a 6 decimal collateral rounds to 0 down and 1 up.
	down, _ := AmountForValueDown(uint256.NewInt(1), 6, 1_000_000)
	up, _ := AmountForValueUp(uint256.NewInt(1), 6, 1_000_000)
	if !down.IsZero() || up.Uint64() != 1 {
		t.Fatalf("unexpected rounding down=%s up=%s", down, up)
	}
}

func TestSaturatingSubAndMin(t *testing.T) {
	if got := SaturatingSub(uint256.NewInt(3), uint256.NewInt(5)); !got.IsZero() {
		t.Fatalf("expected saturation at zero, got %s", got)
	}
	if got := Min(uint256.NewInt(3), uint256.NewInt(5)); got.Uint64() != 3 {
		t.Fatalf("expected min 3, got %s", got)
	}
}

func TestFromDecimal(t *testing.T) {
	v, err := FromDecimal("")
	if err != nil || !v.IsZero() {
		t.Fatalf("expected empty string to parse as zero: %v %v", v, err)
	}
	if _, err := FromDecimal("-1"); err == nil {
		t.Fatalf("expected negative amount to fail")
	}
	if String(nil) != "0" {
		t.Fatalf("expected nil to render as 0")
	}
}
