package pool

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"arthcore/core/fixed"
	"arthcore/storage"
)

// TokenLedger is the fungible token collaborator used for the stablecoin, the
// share token and each collateral token. Every call either applies fully or
// fails.
type TokenLedger interface {
	Transfer(from, to common.Address, amount *uint256.Int) error
	BalanceOf(account common.Address) *uint256.Int
	Mint(to common.Address, amount *uint256.Int) error
	Burn(from common.Address, amount *uint256.Int) error
	TotalSupply() *uint256.Int
}

// StagedLedger is implemented by token ledgers persisted in the pool store.
// Their changed balances are committed in the same batch as the pool state.
type StagedLedger interface {
	Stage(ws *storage.WriteSet)
}

// PriceReader is the slice of the price aggregator the pools consume. Prices
// are GMU at six decimals.
type PriceReader interface {
	GetShareTokenPrice() (uint64, error)
	GetCollateralPrice(id string) (uint64, error)
}

// Params configures one collateral pool. A nil or zero Ceiling means the pool
// is uncapped.
type Params struct {
	Decimals                   uint8
	Ceiling                    *uint256.Int
	MintingFeeBps              uint64
	RedemptionFeeBps           uint64
	BuybackFeeBps              uint64
	RecollateralizeFeeBps      uint64
	RecollateralizeBonusMaxBps uint64
	RedemptionDelayBlocks      uint64
}

func (p Params) Validate() error {
	if p.Decimals > fixed.TokenDecimals {
		return fmt.Errorf("pool: collateral decimals %d exceed %d", p.Decimals, fixed.TokenDecimals)
	}
	fees := map[string]uint64{
		"minting":             p.MintingFeeBps,
		"redemption":          p.RedemptionFeeBps,
		"buyback":             p.BuybackFeeBps,
		"recollateralize":     p.RecollateralizeFeeBps,
		"recollateralize_max": p.RecollateralizeBonusMaxBps,
	}
	for name, bps := range fees {
		if bps > fixed.BpsDenominator {
			return fmt.Errorf("pool: %s fee %d bps exceeds 100%%", name, bps)
		}
	}
	return nil
}

func (p Params) clone() Params {
	out := p
	if p.Ceiling != nil {
		out.Ceiling = p.Ceiling.Clone()
	}
	return out
}

func (p Params) capped() bool {
	return p.Ceiling != nil && !p.Ceiling.IsZero()
}

// Ledger is the per-pool collateral account. UnclaimedCollateral is the part
// of CollateralBalance reserved for pending redemptions.
type Ledger struct {
	CollateralBalance   *uint256.Int
	UnclaimedCollateral *uint256.Int
	Nonce               uint64
}

func newLedger() Ledger {
	return Ledger{CollateralBalance: new(uint256.Int), UnclaimedCollateral: new(uint256.Int)}
}

func (l Ledger) clone() Ledger {
	return Ledger{
		CollateralBalance:   fixed.OrZero(l.CollateralBalance),
		UnclaimedCollateral: fixed.OrZero(l.UnclaimedCollateral),
		Nonce:               l.Nonce,
	}
}

// Available is the collateral not reserved for pending redemptions.
func (l Ledger) Available() *uint256.Int {
	return fixed.SaturatingSub(l.CollateralBalance, l.UnclaimedCollateral)
}

// Redemption modes.
const (
	Mode1to1        = "1to1"
	ModeFractional  = "fractional"
	ModeAlgorithmic = "algorithmic"
)

// PendingRedemption is the first phase of a redemption. It is collectible by
// its claimant from CollectibleAt, fixed when the claim is made, and removed
// on collection.
type PendingRedemption struct {
	ID             string         `json:"id"`
	Pool           string         `json:"pool"`
	Mode           string         `json:"mode"`
	Claimant       common.Address `json:"claimant"`
	CollateralOwed *uint256.Int   `json:"-"`
	ShareOwed      *uint256.Int   `json:"-"`
	BlockRequested uint64         `json:"blockRequested"`
	CollectibleAt  uint64         `json:"collectibleAt"`
}

func (r *PendingRedemption) clone() *PendingRedemption {
	if r == nil {
		return nil
	}
	out := *r
	out.CollateralOwed = fixed.OrZero(r.CollateralOwed)
	out.ShareOwed = fixed.OrZero(r.ShareOwed)
	return &out
}

// Info is a read-only view of a pool.
type Info struct {
	ID                  string
	Address             common.Address
	Params              Params
	CollateralBalance   *uint256.Int
	UnclaimedCollateral *uint256.Int
	AvailableCollateral *uint256.Int
	PendingRedemptions  int
}
