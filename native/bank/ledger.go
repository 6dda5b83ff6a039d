// Package bank provides the fungible token ledger used for the stablecoin,
// the share token and collateral tokens when no external ledger is attached.
// Balances live in memory and are persisted through Stage and Load.
package bank

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"arthcore/core/fixed"
)

var (
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	ErrSupplyOverflow      = errors.New("bank: supply overflow")
)

// Ledger tracks balances for a single token.
type Ledger struct {
	mu       sync.RWMutex
	symbol   string
	decimals uint8
	balances map[common.Address]*uint256.Int
	supply   *uint256.Int
	dirty    map[common.Address]struct{}
}

func NewLedger(symbol string, decimals uint8) *Ledger {
	return &Ledger{
		symbol:   strings.ToUpper(strings.TrimSpace(symbol)),
		decimals: decimals,
		balances: make(map[common.Address]*uint256.Int),
		supply:   new(uint256.Int),
		dirty:    make(map[common.Address]struct{}),
	}
}

func (l *Ledger) Symbol() string  { return l.symbol }
func (l *Ledger) Decimals() uint8 { return l.decimals }

func (l *Ledger) BalanceOf(account common.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return fixed.OrZero(l.balances[account])
}

func (l *Ledger) TotalSupply() *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.supply.Clone()
}

func (l *Ledger) Transfer(from, to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	bal := fixed.OrZero(l.balances[from])
	if bal.Lt(amount) {
		return fmt.Errorf("%s transfer %s from %s: %w", l.symbol, amount.Dec(), from.Hex(), ErrInsufficientBalance)
	}
	if from == to {
		return nil
	}
	l.balances[from] = new(uint256.Int).Sub(bal, amount)
	l.balances[to] = new(uint256.Int).Add(fixed.OrZero(l.balances[to]), amount)
	l.touch(from, to)
	return nil
}

func (l *Ledger) Mint(to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	supply, overflow := new(uint256.Int).AddOverflow(l.supply, amount)
	if overflow {
		return fmt.Errorf("%s mint: %w", l.symbol, ErrSupplyOverflow)
	}
	l.supply = supply
	l.balances[to] = new(uint256.Int).Add(fixed.OrZero(l.balances[to]), amount)
	l.touch(to)
	return nil
}

func (l *Ledger) Burn(from common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	bal := fixed.OrZero(l.balances[from])
	if bal.Lt(amount) {
		return fmt.Errorf("%s burn %s from %s: %w", l.symbol, amount.Dec(), from.Hex(), ErrInsufficientBalance)
	}
	l.balances[from] = new(uint256.Int).Sub(bal, amount)
	l.supply = new(uint256.Int).Sub(l.supply, amount)
	l.touch(from)
	return nil
}

func (l *Ledger) touch(accounts ...common.Address) {
	for _, account := range accounts {
		l.dirty[account] = struct{}{}
	}
}

// Holders returns the number of accounts with a non-zero balance.
func (l *Ledger) Holders() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, bal := range l.balances {
		if !bal.IsZero() {
			n++
		}
	}
	return n
}
