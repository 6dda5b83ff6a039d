package pool

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	coreerrors "arthcore/core/errors"
	"arthcore/core/events"
	"arthcore/core/fixed"
)

// Recollateralize accepts collateral while the system holds less value than
// the current ratio requires, paying share tokens worth the deposit plus a
// bonus from the discount curve, net of the recollateralization fee.
func (p *Pool) Recollateralize(ctx context.Context, caller common.Address, collateralIn, minShareOut *uint256.Int) (*uint256.Int, error) {
	var out *uint256.Int
	err := p.execute(ctx, "recollateralize", SwitchRecollateralize, func(tx *txn) error {
		r := p.registry
		if err := requirePositive(collateralIn); err != nil {
			return err
		}
		cr := r.currentRatio()
		if cr >= fixed.MaxRatio {
			return fmt.Errorf("recollateralize at ratio %d: %w", cr, coreerrors.ErrRatioNotEligible)
		}
		colPrice, err := r.prices.GetCollateralPrice(p.id)
		if err != nil {
			return err
		}
		sharePrice, err := r.prices.GetShareTokenPrice()
		if err != nil {
			return err
		}
		global, err := r.globalCollateralValueLocked()
		if err != nil {
			return err
		}
		required, err := r.requiredCollateralLocked(cr)
		if err != nil {
			return err
		}
		shortfall := fixed.SaturatingSub(required, global)
		colValue, err := fixed.ValueOf(collateralIn, p.params.Decimals, colPrice)
		if err != nil {
			return err
		}
		if shortfall.IsZero() || colValue.Gt(shortfall) {
			return fmt.Errorf("value %s, shortfall %s: %w", colValue.Dec(), shortfall.Dec(), coreerrors.ErrExceedsAvailable)
		}
		effective, err := r.effectiveRatioLocked(global)
		if err != nil {
			return err
		}
		bonus := r.curve.BonusBps(cr, effective)
		if bonus > p.params.RecollateralizeBonusMaxBps {
			bonus = p.params.RecollateralizeBonusMaxBps
		}
		multiplier := fixed.BpsDenominator + bonus
		if p.params.RecollateralizeFeeBps >= multiplier {
			multiplier = 0
		} else {
			multiplier -= p.params.RecollateralizeFeeBps
		}
		scaled, err := fixed.ScaleBps(colValue, multiplier)
		if err != nil {
			return err
		}
		if out, err = fixed.AmountForValueDown(scaled, fixed.TokenDecimals, sharePrice); err != nil {
			return err
		}
		if err := tx.checkCeiling(collateralIn); err != nil {
			return err
		}
		if err := checkSlippage(out, minShareOut); err != nil {
			return err
		}
		if err := tx.depositCollateral(caller, collateralIn); err != nil {
			return err
		}
		if err := tx.journal.mint(r.share, caller, out); err != nil {
			return err
		}
		tx.emit(events.PoolRecollateralized{Pool: p.id, Account: caller, CollateralIn: collateralIn, ShareOut: out, BonusBps: bonus})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Buyback burns share tokens for collateral drawn from the value held above
// what the current ratio requires.
func (p *Pool) Buyback(ctx context.Context, caller common.Address, shareIn, minCollateralOut *uint256.Int) (*uint256.Int, error) {
	var out *uint256.Int
	err := p.execute(ctx, "buyback", SwitchBuyback, func(tx *txn) error {
		r := p.registry
		if err := requirePositive(shareIn); err != nil {
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
		global, err := r.globalCollateralValueLocked()
		if err != nil {
			return err
		}
		required, err := r.requiredCollateralLocked(r.currentRatio())
		if err != nil {
			return err
		}
		excess := fixed.SaturatingSub(global, required)
		shareValue, err := fixed.ValueOf(shareIn, fixed.TokenDecimals, sharePrice)
		if err != nil {
			return err
		}
		if excess.IsZero() || shareValue.Gt(excess) {
			return fmt.Errorf("value %s, excess %s: %w", shareValue.Dec(), excess.Dec(), coreerrors.ErrInsufficientExcess)
		}
		net, err := fixed.ApplyBpsDown(shareValue, p.params.BuybackFeeBps)
		if err != nil {
			return err
		}
		if out, err = fixed.AmountForValueDown(net, p.params.Decimals, colPrice); err != nil {
			return err
		}
		if tx.ledger.Available().Lt(out) {
			return fmt.Errorf("owe %s, available %s: %w", out.Dec(), tx.ledger.Available().Dec(), coreerrors.ErrInsufficientPoolCollateral)
		}
		if err := checkSlippage(out, minCollateralOut); err != nil {
			return err
		}
		if err := tx.journal.burn(r.share, caller, shareIn); err != nil {
			return err
		}
		if err := tx.withdrawCollateral(caller, out); err != nil {
			return err
		}
		tx.emit(events.PoolBoughtBack{Pool: p.id, Account: caller, ShareIn: shareIn, CollateralOut: out})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
