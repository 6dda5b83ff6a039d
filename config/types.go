package config

import "arthcore/native/curve"

// Ratio configures the collateral ratio controller. Prices, band and step are
// six decimal fixed point.
type Ratio struct {
	PriceTarget            uint64  `toml:"PriceTarget"`
	PriceBand              uint64  `toml:"PriceBand"`
	StepSize               uint64  `toml:"StepSize"`
	RefreshCooldownSeconds uint64  `toml:"RefreshCooldownSeconds"`
	SeedRatio              *uint64 `toml:"SeedRatio,omitempty"`
}

// Pool configures one collateral pool. Ceiling is a base-10 amount in the
// collateral's native units; empty or "0" leaves the pool uncapped.
type Pool struct {
	ID                         string `toml:"ID"`
	Decimals                   uint8  `toml:"Decimals"`
	Ceiling                    string `toml:"Ceiling"`
	MintingFeeBps              uint64 `toml:"MintingFeeBps"`
	RedemptionFeeBps           uint64 `toml:"RedemptionFeeBps"`
	BuybackFeeBps              uint64 `toml:"BuybackFeeBps"`
	RecollateralizeFeeBps      uint64 `toml:"RecollateralizeFeeBps"`
	RecollateralizeBonusMaxBps uint64 `toml:"RecollateralizeBonusMaxBps"`
	RedemptionDelayBlocks      uint64 `toml:"RedemptionDelayBlocks"`
}

// Pauses lists the operation switches that start engaged.
type Pauses struct {
	Pools           bool     `toml:"Pools"`
	Mint            bool     `toml:"Mint"`
	Redeem          bool     `toml:"Redeem"`
	Collect         bool     `toml:"Collect"`
	Recollateralize bool     `toml:"Recollateralize"`
	Buyback         bool     `toml:"Buyback"`
	Collateral      []string `toml:"Collateral"`
}

// Params bundles the economic parameters of the system.
type Params struct {
	Owner  string       `toml:"Owner"`
	Ratio  Ratio        `toml:"ratio"`
	Curve  curve.Params `toml:"curve"`
	Pools  []Pool       `toml:"pool"`
	Pauses Pauses       `toml:"pauses"`
}
