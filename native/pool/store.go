package pool

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"arthcore/core/fixed"
	"arthcore/storage"
)

type storedLedger struct {
	CollateralBalance   string
	UnclaimedCollateral string
	Nonce               uint64
}

type storedClaim struct {
	ID             string
	Pool           string
	Mode           string
	Claimant       common.Address
	CollateralOwed string
	ShareOwed      string
	BlockRequested uint64
	CollectibleAt  uint64 `rlp:"optional"`
}

func toStoredLedger(l Ledger) storedLedger {
	return storedLedger{
		CollateralBalance:   fixed.String(l.CollateralBalance),
		UnclaimedCollateral: fixed.String(l.UnclaimedCollateral),
		Nonce:               l.Nonce,
	}
}

func fromStoredLedger(s storedLedger) (Ledger, error) {
	balance, err := fixed.FromDecimal(s.CollateralBalance)
	if err != nil {
		return Ledger{}, err
	}
	unclaimed, err := fixed.FromDecimal(s.UnclaimedCollateral)
	if err != nil {
		return Ledger{}, err
	}
	return Ledger{CollateralBalance: balance, UnclaimedCollateral: unclaimed, Nonce: s.Nonce}, nil
}

func toStoredClaim(c *PendingRedemption) storedClaim {
	return storedClaim{
		ID:             c.ID,
		Pool:           c.Pool,
		Mode:           c.Mode,
		Claimant:       c.Claimant,
		CollateralOwed: fixed.String(c.CollateralOwed),
		ShareOwed:      fixed.String(c.ShareOwed),
		BlockRequested: c.BlockRequested,
		CollectibleAt:  c.CollectibleAt,
	}
}

func fromStoredClaim(s storedClaim) (*PendingRedemption, error) {
	col, err := fixed.FromDecimal(s.CollateralOwed)
	if err != nil {
		return nil, err
	}
	share, err := fixed.FromDecimal(s.ShareOwed)
	if err != nil {
		return nil, err
	}
	return &PendingRedemption{
		ID:             s.ID,
		Pool:           s.Pool,
		Mode:           s.Mode,
		Claimant:       s.Claimant,
		CollateralOwed: col,
		ShareOwed:      share,
		BlockRequested: s.BlockRequested,
		CollectibleAt:  s.CollectibleAt,
	}, nil
}

// loadPool restores the ledger and the pending redemptions of poolID.
func loadPool(kv *storage.KVStore, poolID string) (Ledger, map[string]*PendingRedemption, error) {
	ledger := newLedger()
	var stored storedLedger
	ok, err := kv.KVGet(ledgerKey(poolID), &stored)
	if err != nil {
		return Ledger{}, nil, fmt.Errorf("pool %s: load ledger: %w", poolID, err)
	}
	if ok {
		if ledger, err = fromStoredLedger(stored); err != nil {
			return Ledger{}, nil, fmt.Errorf("pool %s: decode ledger: %w", poolID, err)
		}
	}
	claims := make(map[string]*PendingRedemption)
	keys, err := kv.KVKeys(poolClaimPrefix)
	if err != nil {
		return Ledger{}, nil, fmt.Errorf("pool %s: list claims: %w", poolID, err)
	}
	for _, key := range keys {
		var sc storedClaim
		found, err := kv.KVGet(key, &sc)
		if err != nil {
			return Ledger{}, nil, fmt.Errorf("pool %s: load claim %s: %w", poolID, key, err)
		}
		if !found || sc.Pool != poolID {
			continue
		}
		claim, err := fromStoredClaim(sc)
		if err != nil {
			return Ledger{}, nil, fmt.Errorf("pool %s: decode claim %s: %w", poolID, key, err)
		}
		claims[claim.ID] = claim
	}
	return ledger, claims, nil
}
