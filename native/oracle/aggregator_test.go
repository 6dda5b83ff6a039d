package oracle

import (
	"errors"
	"testing"
	"time"

	"github.com/holiman/uint256"

	coreerrors "arthcore/core/errors"
)

func TestPushSourceStaleness(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	src := NewPushSource("gmu/usd", time.Hour)
	src.SetClock(clk.Now)

	if _, err := src.Quote(nil); !errors.Is(err, coreerrors.ErrStalePrice) {
		t.Fatalf("expected ErrStalePrice before first push, got %v", err)
	}
	if err := src.Push(uint256.NewInt(1_020_000), clk.Now()); err != nil {
		t.Fatalf("push: %v", err)
	}
	clk.Advance(time.Hour)
	quote, err := src.Quote(nil)
	if err != nil {
		t.Fatalf("quote at staleness bound: %v", err)
	}
	if quote.Price.Uint64() != 1_020_000 {
		t.Fatalf("unexpected price %s", quote.Price)
	}
	clk.Advance(time.Second)
	if _, err := src.Quote(nil); !errors.Is(err, coreerrors.ErrStalePrice) {
		t.Fatalf("expected ErrStalePrice past bound, got %v", err)
	}
	if src.CanRefresh() {
		t.Fatalf("push sources never refresh")
	}
	// An older push does not roll the price back.
	if err := src.Push(uint256.NewInt(5), clk.Now().Add(-2*time.Hour)); err != nil {
		t.Fatalf("push: %v", err)
	}
	if price, _, _ := src.LastPush(); price.Uint64() != 1_020_000 {
		t.Fatalf("expected out of order push to be ignored, got %s", price)
	}
}

func TestTwoHopCollateralNormalisation(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}

	ethUSD := NewPushSource("eth/usd", time.Hour)
	gmuUSD := NewPushSource("gmu/usd", time.Hour)
	ethUSD.SetClock(clk.Now)
	gmuUSD.SetClock(clk.Now)
	if err := ethUSD.Push(uint256.NewInt(2_000_000_000), clk.Now()); err != nil { // 2000 USD
		t.Fatalf("push: %v", err)
	}
	if err := gmuUSD.Push(uint256.NewInt(1_250_000), clk.Now()); err != nil { // 1.25 USD
		t.Fatalf("push: %v", err)
	}
	ethGMU := NewRatioSource("eth/gmu", ethUSD, gmuUSD)

	acc := NewPairAccumulator()
	if err := acc.Observe(uint256.NewInt(500), clk.Now()); err != nil { // 0.0005 ETH
		t.Fatalf("observe: %v", err)
	}
	colETH := NewTWAPSource("usdc/eth", acc, time.Minute)
	colETH.SetClock(clk.Now)
	if err := colETH.Refresh(); err != nil {
		t.Fatalf("anchor: %v", err)
	}

	chain, err := NewChain("usdc/gmu", colETH, ethGMU)
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
	agg := NewAggregator()
	if err := agg.RegisterCollateral("usdc", chain); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := agg.GetCollateralPrice("USDC"); !errors.Is(err, coreerrors.ErrPeriodNotElapsed) {
		t.Fatalf("expected TWAP error to propagate unchanged, got %v", err)
	}

	clk.Advance(time.Minute)
	refreshed, failures := agg.RefreshDue()
	if len(failures) != 0 || len(refreshed) != 1 || refreshed[0] != "USDC" {
		t.Fatalf("unexpected refresh result %v %v", refreshed, failures)
	}
	price, err := agg.GetCollateralPrice("usdc")
	if err != nil {
		t.Fatalf("collateral price: %v", err)
	}
	// 0.0005 ETH × (2000 / 1.25) GMU = 0.8 GMU
	if price != 800_000 {
		t.Fatalf("expected 0.8 GMU, got %d", price)
	}

	clk.Advance(2 * time.Hour)
	if _, err := agg.GetCollateralPrice("usdc"); !errors.Is(err, coreerrors.ErrStalePrice) {
		t.Fatalf("expected stale push feed to block the chain, got %v", err)
	}
}

func TestAggregatorRoutesMustBeRegistered(t *testing.T) {
	agg := NewAggregator()
	if _, err := agg.GetStablecoinPrice(); !errors.Is(err, coreerrors.ErrOracleNotSet) {
		t.Fatalf("expected ErrOracleNotSet, got %v", err)
	}
	if _, err := agg.GetShareTokenPrice(); !errors.Is(err, coreerrors.ErrOracleNotSet) {
		t.Fatalf("expected ErrOracleNotSet, got %v", err)
	}
	if _, err := agg.GetCollateralPrice("dai"); !errors.Is(err, coreerrors.ErrOracleNotSet) {
		t.Fatalf("expected ErrOracleNotSet, got %v", err)
	}

	src := NewPushSource("arth/gmu", 0)
	if err := src.Push(uint256.NewInt(1_003_000), time.Now()); err != nil {
		t.Fatalf("push: %v", err)
	}
	agg.SetStablecoinSource(src)
	price, err := agg.GetStablecoinPrice()
	if err != nil || price != 1_003_000 {
		t.Fatalf("unexpected stablecoin price %d err %v", price, err)
	}
	if err := agg.RegisterCollateral("dai", src); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := agg.RegisterCollateral("DAI", src); !errors.Is(err, coreerrors.ErrDuplicateCollateral) {
		t.Fatalf("expected duplicate registration to fail, got %v", err)
	}

	snapshot := agg.Snapshot()
	if len(snapshot) != 3 {
		t.Fatalf("expected three routes, got %d", len(snapshot))
	}
	for _, status := range snapshot {
		switch status.Route {
		case RouteShare:
			if status.Error == "" {
				t.Fatalf("expected share route to report missing oracle")
			}
		default:
			if status.Price != 1_003_000 {
				t.Fatalf("unexpected status %+v", status)
			}
		}
	}
}

func TestQuoteGMUScaling(t *testing.T) {
	q := PriceQuote{Price: uint256.NewInt(200_012_345_678), Decimals: 8}
	got, err := q.GMU()
	if err != nil || got != 2_000_123_456 {
		t.Fatalf("expected truncation to six decimals, got %d err %v", got, err)
	}
	q = PriceQuote{Price: uint256.NewInt(15), Decimals: 1}
	got, err = q.GMU()
	if err != nil || got != 1_500_000 {
		t.Fatalf("expected upscaling to six decimals, got %d err %v", got, err)
	}
}
