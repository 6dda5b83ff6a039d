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

// Mint1to1 mints stablecoin fully backed by collateral. Valid only at a 100%
// ratio.
func (p *Pool) Mint1to1(ctx context.Context, caller common.Address, collateralIn, minStableOut *uint256.Int) (*uint256.Int, error) {
	var out *uint256.Int
	err := p.execute(ctx, "mint_1to1", SwitchMint, func(tx *txn) error {
		r := p.registry
		if err := requirePositive(collateralIn); err != nil {
			return err
		}
		if err := ratioEligible(Mode1to1, r.currentRatio()); err != nil {
			return err
		}
		price, err := r.prices.GetCollateralPrice(p.id)
		if err != nil {
			return err
		}
		value, err := fixed.ValueOf(collateralIn, p.params.Decimals, price)
		if err != nil {
			return err
		}
		if out, err = fixed.ApplyBpsDown(value, p.params.MintingFeeBps); err != nil {
			return err
		}
		if err := tx.checkCeiling(collateralIn); err != nil {
			return err
		}
		if err := checkSlippage(out, minStableOut); err != nil {
			return err
		}
		if err := tx.depositCollateral(caller, collateralIn); err != nil {
			return err
		}
		if err := tx.journal.mint(r.stable, caller, out); err != nil {
			return err
		}
		tx.emit(events.PoolMinted{Pool: p.id, Mode: Mode1to1, Account: caller, CollateralIn: collateralIn, StableOut: out})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FractionalMintQuote is the split a fractional mint requires for a given
// collateral input.
type FractionalMintQuote struct {
	CollateralValue *uint256.Int
	TotalValue      *uint256.Int
	ShareNeeded     *uint256.Int
	StableOut       *uint256.Int
}

// quoteFractional splits a collateral input into the share token needed to
// cover the remaining 1 - ratio of value. The share requirement is rounded up
// and the output rounded down.
func (p *Pool) quoteFractional(collateralIn *uint256.Int, currentRatio uint64) (FractionalMintQuote, error) {
	r := p.registry
	colPrice, err := r.prices.GetCollateralPrice(p.id)
	if err != nil {
		return FractionalMintQuote{}, err
	}
	sharePrice, err := r.prices.GetShareTokenPrice()
	if err != nil {
		return FractionalMintQuote{}, err
	}
	colValue, err := fixed.ValueOf(collateralIn, p.params.Decimals, colPrice)
	if err != nil {
		return FractionalMintQuote{}, err
	}
	total, err := fixed.MulDivDown(colValue, fixed.PricePrecision, uint256.NewInt(currentRatio))
	if err != nil {
		return FractionalMintQuote{}, err
	}
	shareValue, err := fixed.MulDivUp(colValue, uint256.NewInt(fixed.MaxRatio-currentRatio), uint256.NewInt(currentRatio))
	if err != nil {
		return FractionalMintQuote{}, err
	}
	shareNeeded, err := fixed.AmountForValueUp(shareValue, fixed.TokenDecimals, sharePrice)
	if err != nil {
		return FractionalMintQuote{}, err
	}
	out, err := fixed.ApplyBpsDown(total, p.params.MintingFeeBps)
	if err != nil {
		return FractionalMintQuote{}, err
	}
	return FractionalMintQuote{CollateralValue: colValue, TotalValue: total, ShareNeeded: shareNeeded, StableOut: out}, nil
}

// QuoteFractionalMint previews MintFractional at the current ratio and prices.
func (p *Pool) QuoteFractionalMint(collateralIn *uint256.Int) (FractionalMintQuote, error) {
	if err := requirePositive(collateralIn); err != nil {
		return FractionalMintQuote{}, err
	}
	p.registry.mu.Lock()
	defer p.registry.mu.Unlock()
	cr := p.registry.currentRatio()
	if err := ratioEligible(ModeFractional, cr); err != nil {
		return FractionalMintQuote{}, err
	}
	return p.quoteFractional(collateralIn, cr)
}

// MintFractional mints against collateral covering the ratio share of value
// and share tokens covering the rest. Only the share tokens actually needed
// are burned; supplying fewer fails with ErrInsufficientShareInput.
func (p *Pool) MintFractional(ctx context.Context, caller common.Address, collateralIn, shareIn, minStableOut *uint256.Int) (*uint256.Int, error) {
	var out *uint256.Int
	err := p.execute(ctx, "mint_fractional", SwitchMint, func(tx *txn) error {
		r := p.registry
		if err := requirePositive(collateralIn); err != nil {
			return err
		}
		cr := r.currentRatio()
		if err := ratioEligible(ModeFractional, cr); err != nil {
			return err
		}
		quote, err := p.quoteFractional(collateralIn, cr)
		if err != nil {
			return err
		}
		if fixed.OrZero(shareIn).Lt(quote.ShareNeeded) {
			return fmt.Errorf("need %s share tokens, got %s: %w", quote.ShareNeeded.Dec(), fixed.String(shareIn), coreerrors.ErrInsufficientShareInput)
		}
		if err := tx.checkCeiling(collateralIn); err != nil {
			return err
		}
		if err := checkSlippage(quote.StableOut, minStableOut); err != nil {
			return err
		}
		if err := tx.depositCollateral(caller, collateralIn); err != nil {
			return err
		}
		if err := tx.journal.burn(r.share, caller, quote.ShareNeeded); err != nil {
			return err
		}
		if err := tx.journal.mint(r.stable, caller, quote.StableOut); err != nil {
			return err
		}
		out = quote.StableOut
		tx.emit(events.PoolMinted{Pool: p.id, Mode: ModeFractional, Account: caller, CollateralIn: collateralIn, ShareIn: quote.ShareNeeded, StableOut: out})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MintAlgorithmic mints stablecoin backed entirely by share tokens. Valid only
// at a 0% ratio.
func (p *Pool) MintAlgorithmic(ctx context.Context, caller common.Address, shareIn, minStableOut *uint256.Int) (*uint256.Int, error) {
	var out *uint256.Int
	err := p.execute(ctx, "mint_algorithmic", SwitchMint, func(tx *txn) error {
		r := p.registry
		if err := requirePositive(shareIn); err != nil {
			return err
		}
		if err := ratioEligible(ModeAlgorithmic, r.currentRatio()); err != nil {
			return err
		}
		sharePrice, err := r.prices.GetShareTokenPrice()
		if err != nil {
			return err
		}
		value, err := fixed.ValueOf(shareIn, fixed.TokenDecimals, sharePrice)
		if err != nil {
			return err
		}
		if out, err = fixed.ApplyBpsDown(value, p.params.MintingFeeBps); err != nil {
			return err
		}
		if err := checkSlippage(out, minStableOut); err != nil {
			return err
		}
		if err := tx.journal.burn(r.share, caller, shareIn); err != nil {
			return err
		}
		if err := tx.journal.mint(r.stable, caller, out); err != nil {
			return err
		}
		tx.emit(events.PoolMinted{Pool: p.id, Mode: ModeAlgorithmic, Account: caller, ShareIn: shareIn, StableOut: out})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
