package common

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	coreerrors "arthcore/core/errors"
)

// Ownable restricts administrative operations to a single owner account.
type Ownable struct {
	mu    sync.RWMutex
	owner common.Address
}

func NewOwnable(owner common.Address) *Ownable {
	return &Ownable{owner: owner}
}

func (o *Ownable) Owner() common.Address {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.owner
}

// RequireOwner fails with ErrNotOwner unless caller is the owner. The zero
// address never owns anything.
func (o *Ownable) RequireOwner(caller common.Address) error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.owner == (common.Address{}) || caller != o.owner {
		return fmt.Errorf("%s: %w", caller.Hex(), coreerrors.ErrNotOwner)
	}
	return nil
}

func (o *Ownable) TransferOwnership(caller, next common.Address) error {
	if err := o.RequireOwner(caller); err != nil {
		return err
	}
	if next == (common.Address{}) {
		return fmt.Errorf("new owner must not be the zero address: %w", coreerrors.ErrInvalidAmount)
	}
	o.mu.Lock()
	o.owner = next
	o.mu.Unlock()
	return nil
}
