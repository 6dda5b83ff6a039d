package config

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

func ValidateParams(p *Params) error {
	if p.Owner != "" && !common.IsHexAddress(p.Owner) {
		return fmt.Errorf("owner: %q is not a hex address", p.Owner)
	}
	if err := p.Ratio.ControllerParams().Validate(); err != nil {
		return err
	}
	if _, err := p.Ratio.Seed(); err != nil {
		return err
	}
	if err := p.Curve.Validate(); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(p.Pools))
	for i, pool := range p.Pools {
		if pool.ID == "" {
			return fmt.Errorf("pool[%d]: id required", i)
		}
		if _, dup := seen[pool.ID]; dup {
			return fmt.Errorf("pool %s: declared twice", pool.ID)
		}
		seen[pool.ID] = struct{}{}
		params, err := pool.PoolParams()
		if err != nil {
			return err
		}
		if err := params.Validate(); err != nil {
			return fmt.Errorf("pool %s: %w", pool.ID, err)
		}
	}
	for _, id := range p.Pauses.Collateral {
		if _, ok := seen[normaliseID(id)]; !ok {
			return fmt.Errorf("pauses: unknown collateral %q", id)
		}
	}
	return nil
}
