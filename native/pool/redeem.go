package pool

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	coreerrors "arthcore/core/errors"
	"arthcore/core/events"
	"arthcore/core/fixed"
)

// Redeem1to1 burns stablecoin and reserves collateral worth its value net of
// the redemption fee. Valid only at a 100% ratio.
func (p *Pool) Redeem1to1(ctx context.Context, caller common.Address, stableIn, minCollateralOut *uint256.Int) (string, error) {
	var id string
	err := p.execute(ctx, "redeem_1to1", SwitchRedeem, func(tx *txn) error {
		r := p.registry
		if err := requirePositive(stableIn); err != nil {
			return err
		}
		if err := ratioEligible(Mode1to1, r.currentRatio()); err != nil {
			return err
		}
		price, err := r.prices.GetCollateralPrice(p.id)
		if err != nil {
			return err
		}
		net, err := fixed.ApplyBpsDown(stableIn, p.params.RedemptionFeeBps)
		if err != nil {
			return err
		}
		colOut, err := fixed.AmountForValueDown(net, p.params.Decimals, price)
		if err != nil {
			return err
		}
		if err := checkSlippage(colOut, minCollateralOut); err != nil {
			return err
		}
		id, err = tx.requestRedemption(caller, Mode1to1, stableIn, colOut, new(uint256.Int))
		return err
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// RedeemFractional splits the net value between collateral, at the current
// ratio, and share tokens for the remainder.
func (p *Pool) RedeemFractional(ctx context.Context, caller common.Address, stableIn, minCollateralOut, minShareOut *uint256.Int) (string, error) {
	var id string
	err := p.execute(ctx, "redeem_fractional", SwitchRedeem, func(tx *txn) error {
		r := p.registry
		if err := requirePositive(stableIn); err != nil {
			return err
		}
		cr := r.currentRatio()
		if err := ratioEligible(ModeFractional, cr); err != nil {
			return err
		}
		colPrice, err := r.prices.GetCollateralPrice(p.id)
		if err != nil {
			return err
		}
		sharePrice, err := r.prices.GetShareTokenPrice()
		if err != nil {
			return err
		}
		net, err := fixed.ApplyBpsDown(stableIn, p.params.RedemptionFeeBps)
		if err != nil {
			return err
		}
		colValue, err := fixed.MulDivDown(net, uint256.NewInt(cr), fixed.PricePrecision)
		if err != nil {
			return err
		}
		shareValue := fixed.SaturatingSub(net, colValue)
		colOut, err := fixed.AmountForValueDown(colValue, p.params.Decimals, colPrice)
		if err != nil {
			return err
		}
		shareOut, err := fixed.AmountForValueDown(shareValue, fixed.TokenDecimals, sharePrice)
		if err != nil {
			return err
		}
		if err := checkSlippage(colOut, minCollateralOut); err != nil {
			return err
		}
		if err := checkSlippage(shareOut, minShareOut); err != nil {
			return err
		}
		id, err = tx.requestRedemption(caller, ModeFractional, stableIn, colOut, shareOut)
		return err
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// RedeemAlgorithmic burns stablecoin for share tokens only. Valid only at a
// 0% ratio.
func (p *Pool) RedeemAlgorithmic(ctx context.Context, caller common.Address, stableIn, minShareOut *uint256.Int) (string, error) {
	var id string
	err := p.execute(ctx, "redeem_algorithmic", SwitchRedeem, func(tx *txn) error {
		r := p.registry
		if err := requirePositive(stableIn); err != nil {
			return err
		}
		if err := ratioEligible(ModeAlgorithmic, r.currentRatio()); err != nil {
			return err
		}
		sharePrice, err := r.prices.GetShareTokenPrice()
		if err != nil {
			return err
		}
		net, err := fixed.ApplyBpsDown(stableIn, p.params.RedemptionFeeBps)
		if err != nil {
			return err
		}
		shareOut, err := fixed.AmountForValueDown(net, fixed.TokenDecimals, sharePrice)
		if err != nil {
			return err
		}
		if err := checkSlippage(shareOut, minShareOut); err != nil {
			return err
		}
		id, err = tx.requestRedemption(caller, ModeAlgorithmic, stableIn, new(uint256.Int), shareOut)
		return err
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// requestRedemption burns the stablecoin, reserves the collateral and stages
// the pending redemption.
func (tx *txn) requestRedemption(caller common.Address, mode string, stableIn, colOut, shareOut *uint256.Int) (string, error) {
	p := tx.pool
	r := p.registry
	if tx.ledger.Available().Lt(colOut) {
		return "", fmt.Errorf("owe %s, available %s: %w", colOut.Dec(), tx.ledger.Available().Dec(), coreerrors.ErrInsufficientPoolCollateral)
	}
	if err := tx.journal.burn(r.stable, caller, stableIn); err != nil {
		return "", err
	}
	tx.ledger.UnclaimedCollateral = new(uint256.Int).Add(tx.ledger.UnclaimedCollateral, colOut)
	nonce := tx.ledger.Nonce
	tx.ledger.Nonce++
	height := r.height()
	claim := &PendingRedemption{
		ID:             claimID(p.id, caller, nonce),
		Pool:           p.id,
		Mode:           mode,
		Claimant:       caller,
		CollateralOwed: colOut.Clone(),
		ShareOwed:      shareOut.Clone(),
		BlockRequested: height,
		CollectibleAt:  height + p.params.RedemptionDelayBlocks,
	}
	tx.putClaims = append(tx.putClaims, claim)
	tx.emit(events.PoolRedemptionRequested{
		Pool:           p.id,
		Mode:           mode,
		ClaimID:        claim.ID,
		Claimant:       caller,
		StableIn:       stableIn,
		CollateralOwed: claim.CollateralOwed,
		ShareOwed:      claim.ShareOwed,
		Block:          claim.BlockRequested,
	})
	return claim.ID, nil
}

// CollectRedemption pays out a pending redemption to its claimant once the
// redemption delay has elapsed. A collected claim is gone; collecting it again
// fails with ErrNotFound.
func (p *Pool) CollectRedemption(ctx context.Context, caller common.Address, id string) (*uint256.Int, *uint256.Int, error) {
	var colOut, shareOut *uint256.Int
	err := p.execute(ctx, "collect_redemption", SwitchCollect, func(tx *txn) error {
		r := p.registry
		key := strings.ToLower(strings.TrimSpace(id))
		claim, ok := p.claims[key]
		if !ok {
			return fmt.Errorf("claim %s: %w", key, coreerrors.ErrNotFound)
		}
		if claim.Claimant != caller {
			return coreerrors.ErrNotClaimant
		}
		if height := r.height(); height < claim.CollectibleAt {
			return fmt.Errorf("height %d, collectible at %d: %w", height, claim.CollectibleAt, coreerrors.ErrTooEarly)
		}
		if tx.ledger.UnclaimedCollateral.Lt(claim.CollateralOwed) {
			return fmt.Errorf("unclaimed %s below owed %s: %w", tx.ledger.UnclaimedCollateral.Dec(), claim.CollateralOwed.Dec(), coreerrors.ErrInsufficientPoolCollateral)
		}
		if err := tx.withdrawCollateral(caller, claim.CollateralOwed); err != nil {
			return err
		}
		tx.ledger.UnclaimedCollateral = new(uint256.Int).Sub(tx.ledger.UnclaimedCollateral, claim.CollateralOwed)
		if err := tx.journal.mint(r.share, caller, claim.ShareOwed); err != nil {
			return err
		}
		tx.delClaims = append(tx.delClaims, key)
		colOut, shareOut = claim.CollateralOwed.Clone(), claim.ShareOwed.Clone()
		tx.emit(events.PoolRedemptionCollected{Pool: p.id, ClaimID: key, Claimant: caller, CollateralOut: colOut, ShareOut: shareOut})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return colOut, shareOut, nil
}
