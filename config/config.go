package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"arthcore/native/curve"
	"arthcore/native/ratio"
)

// LoadParams loads the economic parameters from path, writing a default file
// when none exists.
func LoadParams(path string) (*Params, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := &Params{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}
	cfg.normalise()
	if err := ValidateParams(cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func (p *Params) normalise() {
	p.Owner = strings.TrimSpace(p.Owner)
	def := ratio.DefaultParams()
	if p.Ratio.PriceTarget == 0 {
		p.Ratio.PriceTarget = def.PriceTarget
	}
	if p.Ratio.StepSize == 0 {
		p.Ratio.StepSize = def.StepSize
	}
	if p.Curve == (curve.Params{}) {
		p.Curve = curve.DefaultParams()
	}
	for i := range p.Pools {
		p.Pools[i].ID = strings.ToUpper(strings.TrimSpace(p.Pools[i].ID))
		p.Pools[i].Ceiling = strings.TrimSpace(p.Pools[i].Ceiling)
	}
	if p.Pools == nil {
		p.Pools = []Pool{}
	}
}

// DefaultParams returns the parameters written for a fresh install: a single
// uncapped six decimal USDC pool at full collateralisation.
func DefaultParams() *Params {
	def := ratio.DefaultParams()
	return &Params{
		Ratio: Ratio{
			PriceTarget:            def.PriceTarget,
			PriceBand:              def.PriceBand,
			StepSize:               def.StepSize,
			RefreshCooldownSeconds: uint64(def.RefreshCooldown.Seconds()),
		},
		Curve: curve.DefaultParams(),
		Pools: []Pool{{
			ID:                         "USDC",
			Decimals:                   6,
			MintingFeeBps:              30,
			RedemptionFeeBps:           45,
			BuybackFeeBps:              20,
			RecollateralizeFeeBps:      20,
			RecollateralizeBonusMaxBps: 75,
			RedemptionDelayBlocks:      2,
		}},
	}
}

func createDefault(path string) (*Params, error) {
	cfg := DefaultParams()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Params) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
