package pool

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// journal performs token ledger calls and remembers how to undo each one so a
// failed operation leaves every ledger as it found it.
type journal struct {
	undo []func() error
}

func (j *journal) transfer(token TokenLedger, from, to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	if err := token.Transfer(from, to, amount); err != nil {
		return err
	}
	amt := amount.Clone()
	j.undo = append(j.undo, func() error { return token.Transfer(to, from, amt) })
	return nil
}

func (j *journal) mint(token TokenLedger, to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	if err := token.Mint(to, amount); err != nil {
		return err
	}
	amt := amount.Clone()
	j.undo = append(j.undo, func() error { return token.Burn(to, amt) })
	return nil
}

func (j *journal) burn(token TokenLedger, from common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	if err := token.Burn(from, amount); err != nil {
		return err
	}
	amt := amount.Clone()
	j.undo = append(j.undo, func() error { return token.Mint(from, amt) })
	return nil
}

// revert undoes the recorded calls in reverse order.
func (j *journal) revert() error {
	var errs []error
	for i := len(j.undo) - 1; i >= 0; i-- {
		if err := j.undo[i](); err != nil {
			errs = append(errs, err)
		}
	}
	j.undo = nil
	return errors.Join(errs...)
}
