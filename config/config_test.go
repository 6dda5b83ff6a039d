package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	coreerrors "arthcore/core/errors"
	"arthcore/core/fixed"
	nativecommon "arthcore/native/common"
	"arthcore/native/pool"
)

func writeParams(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "params.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write params: %v", err)
	}
	return path
}

func TestLoadParamsParsesSections(t *testing.T) {
	path := writeParams(t, `Owner = "0x00000000000000000000000000000000000000a1"

[ratio]
PriceTarget = 1000000
PriceBand = 5000
StepSize = 2500
RefreshCooldownSeconds = 600
SeedRatio = 850000

[curve]
max_bonus_bps = 50
full_bonus_threshold = 200000

[[pool]]
ID = "usdc"
Decimals = 6
Ceiling = "5000000000000"
MintingFeeBps = 30
RedemptionFeeBps = 45
RedemptionDelayBlocks = 3

[[pool]]
ID = "dai"
Decimals = 18

[pauses]
Buyback = true
Collateral = ["DAI"]
`)
	cfg, err := LoadParams(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	rp := cfg.Ratio.ControllerParams()
	if rp.PriceBand != 5000 || rp.RefreshCooldown != 10*time.Minute {
		t.Fatalf("unexpected ratio params %+v", rp)
	}
	if seed, err := cfg.Ratio.Seed(); err != nil || seed != 850_000 {
		t.Fatalf("seed = %d, %v", seed, err)
	}
	if cfg.Curve.MaxBonusBps != 50 || cfg.Curve.FullBonusThreshold != 200_000 {
		t.Fatalf("unexpected curve %+v", cfg.Curve)
	}
	if len(cfg.Pools) != 2 || cfg.Pools[0].ID != "USDC" || cfg.Pools[1].ID != "DAI" {
		t.Fatalf("unexpected pools %+v", cfg.Pools)
	}
	usdc, err := cfg.Pools[0].PoolParams()
	if err != nil {
		t.Fatalf("pool params: %v", err)
	}
	if usdc.Ceiling == nil || usdc.Ceiling.Dec() != "5000000000000" || usdc.RedemptionDelayBlocks != 3 {
		t.Fatalf("unexpected usdc params %+v", usdc)
	}
	dai, err := cfg.Pools[1].PoolParams()
	if err != nil {
		t.Fatalf("pool params: %v", err)
	}
	if dai.Ceiling != nil {
		t.Fatalf("expected uncapped dai pool, got ceiling %s", dai.Ceiling)
	}
	if cfg.OwnerAddress().Hex() != "0x00000000000000000000000000000000000000A1" {
		t.Fatalf("owner = %s", cfg.OwnerAddress().Hex())
	}

	switches := nativecommon.NewSwitches()
	cfg.Pauses.Apply(switches)
	if !switches.IsPaused(pool.SwitchBuyback) || !switches.IsPaused("pool/DAI") || switches.IsPaused(pool.SwitchMint) {
		t.Fatalf("pause switches not applied")
	}
}

func TestLoadParamsAppliesDefaults(t *testing.T) {
	path := writeParams(t, `[[pool]]
ID = "USDC"
Decimals = 6
`)
	cfg, err := LoadParams(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Ratio.PriceTarget != fixed.MaxRatio || cfg.Ratio.StepSize != 2_500 {
		t.Fatalf("ratio defaults not applied: %+v", cfg.Ratio)
	}
	if seed, _ := cfg.Ratio.Seed(); seed != fixed.MaxRatio {
		t.Fatalf("omitted seed = %d, want full collateral", seed)
	}
	if cfg.Curve.MaxBonusBps != 75 {
		t.Fatalf("curve defaults not applied: %+v", cfg.Curve)
	}
	if cfg.OwnerAddress() != (common.Address{}) {
		t.Fatalf("expected zero owner")
	}
}

func TestLoadParamsCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "params.toml")
	cfg, err := LoadParams(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Pools) != 1 || cfg.Pools[0].ID != "USDC" {
		t.Fatalf("unexpected default pools %+v", cfg.Pools)
	}
	reloaded, err := LoadParams(path)
	if err != nil {
		t.Fatalf("reload default file: %v", err)
	}
	if reloaded.Ratio != cfg.Ratio || reloaded.Pools[0] != cfg.Pools[0] {
		t.Fatalf("default file did not round trip: %+v vs %+v", reloaded, cfg)
	}
}

func TestLoadParamsRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown key":       "Bogus = 1\n",
		"bad owner":         "Owner = \"nope\"\n",
		"seed out of range": "[ratio]\nSeedRatio = 1000001\n",
		"band above target": "[ratio]\nPriceTarget = 1000\nPriceBand = 1000\n",
		"duplicate pool":    "[[pool]]\nID = \"usdc\"\n[[pool]]\nID = \"USDC\"\n",
		"fee over 100%":     "[[pool]]\nID = \"usdc\"\nMintingFeeBps = 10001\n",
		"bad ceiling":       "[[pool]]\nID = \"usdc\"\nCeiling = \"12x\"\n",
		"unknown pause":     "[pauses]\nCollateral = [\"WBTC\"]\n",
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadParams(writeParams(t, contents)); err == nil {
				t.Fatalf("expected %s to be rejected", name)
			}
		})
	}
}

func TestSeedOutOfRangeIsClassified(t *testing.T) {
	seed := uint64(2_000_000)
	_, err := Ratio{SeedRatio: &seed}.Seed()
	if !errors.Is(err, coreerrors.ErrRatioOutOfRange) {
		t.Fatalf("expected ErrRatioOutOfRange, got %v", err)
	}
	if !strings.Contains(err.Error(), "2000000") {
		t.Fatalf("error should name the seed: %v", err)
	}
}
