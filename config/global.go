package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	coreerrors "arthcore/core/errors"
	"arthcore/core/fixed"
	nativecommon "arthcore/native/common"
	"arthcore/native/pool"
	"arthcore/native/ratio"
)

// ControllerParams converts the ratio section into controller parameters.
func (r Ratio) ControllerParams() ratio.Params {
	return ratio.Params{
		PriceTarget:     r.PriceTarget,
		PriceBand:       r.PriceBand,
		StepSize:        r.StepSize,
		RefreshCooldown: time.Duration(r.RefreshCooldownSeconds) * time.Second,
	}
}

// Seed returns the ratio a fresh store starts at. An omitted seed means full
// collateral.
func (r Ratio) Seed() (uint64, error) {
	if r.SeedRatio == nil {
		return fixed.MaxRatio, nil
	}
	if *r.SeedRatio > fixed.MaxRatio {
		return 0, fmt.Errorf("ratio: seed %d: %w", *r.SeedRatio, coreerrors.ErrRatioOutOfRange)
	}
	return *r.SeedRatio, nil
}

// PoolParams parses the pool section into runtime parameters.
func (p Pool) PoolParams() (pool.Params, error) {
	ceiling, err := fixed.FromDecimal(p.Ceiling)
	if err != nil {
		return pool.Params{}, fmt.Errorf("pool %s: invalid ceiling: %w", p.ID, err)
	}
	return pool.Params{
		Decimals:                   p.Decimals,
		Ceiling:                    ceilingOrNil(ceiling),
		MintingFeeBps:              p.MintingFeeBps,
		RedemptionFeeBps:           p.RedemptionFeeBps,
		BuybackFeeBps:              p.BuybackFeeBps,
		RecollateralizeFeeBps:      p.RecollateralizeFeeBps,
		RecollateralizeBonusMaxBps: p.RecollateralizeBonusMaxBps,
		RedemptionDelayBlocks:      p.RedemptionDelayBlocks,
	}, nil
}

func ceilingOrNil(v *uint256.Int) *uint256.Int {
	if v == nil || v.IsZero() {
		return nil
	}
	return v
}

// OwnerAddress parses the administrative owner. An empty owner yields the zero
// address, which never passes an ownership check.
func (p *Params) OwnerAddress() common.Address {
	if p.Owner == "" {
		return common.Address{}
	}
	return common.HexToAddress(p.Owner)
}

// Apply engages the configured switches.
func (p Pauses) Apply(s *nativecommon.Switches) {
	s.Set("pool", p.Pools)
	s.Set(pool.SwitchMint, p.Mint)
	s.Set(pool.SwitchRedeem, p.Redeem)
	s.Set(pool.SwitchCollect, p.Collect)
	s.Set(pool.SwitchRecollateralize, p.Recollateralize)
	s.Set(pool.SwitchBuyback, p.Buyback)
	for _, id := range p.Collateral {
		s.Set("pool/"+normaliseID(id), true)
	}
}

func normaliseID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
