package bank

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"arthcore/core/fixed"
	"arthcore/storage"
)

func supplyKey(symbol string) []byte {
	return []byte("bank/" + symbol + "/supply")
}

func balancePrefix(symbol string) []byte {
	return []byte("bank/" + symbol + "/balance/")
}

func balanceKey(symbol string, account common.Address) []byte {
	return append(balancePrefix(symbol), account.Bytes()...)
}

// Load restores the supply and balances persisted for this ledger's symbol.
func (l *Ledger) Load(kv *storage.KVStore) error {
	var supply string
	ok, err := kv.KVGet(supplyKey(l.symbol), &supply)
	if err != nil {
		return fmt.Errorf("%s: load supply: %w", l.symbol, err)
	}
	if !ok {
		return nil
	}
	total, err := fixed.FromDecimal(supply)
	if err != nil {
		return fmt.Errorf("%s: decode supply: %w", l.symbol, err)
	}
	prefix := balancePrefix(l.symbol)
	keys, err := kv.KVKeys(prefix)
	if err != nil {
		return fmt.Errorf("%s: list balances: %w", l.symbol, err)
	}
	balances := make(map[common.Address]*uint256.Int, len(keys))
	for _, key := range keys {
		raw := bytes.TrimPrefix(key, prefix)
		if len(raw) != common.AddressLength {
			continue
		}
		var stored string
		if _, err := kv.KVGet(key, &stored); err != nil {
			return fmt.Errorf("%s: load balance: %w", l.symbol, err)
		}
		bal, err := fixed.FromDecimal(stored)
		if err != nil {
			return fmt.Errorf("%s: decode balance: %w", l.symbol, err)
		}
		balances[common.BytesToAddress(raw)] = bal
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.supply = total
	l.balances = balances
	l.dirty = make(map[common.Address]struct{})
	return nil
}

// Stage writes the supply and every balance changed since the previous call
// into ws. Zero balances are deleted.
func (l *Ledger) Stage(ws *storage.WriteSet) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for account := range l.dirty {
		bal := l.balances[account]
		if bal == nil || bal.IsZero() {
			ws.Delete(balanceKey(l.symbol, account))
		} else {
			ws.Put(balanceKey(l.symbol, account), bal.Dec())
		}
	}
	ws.Put(supplyKey(l.symbol), l.supply.Dec())
	l.dirty = make(map[common.Address]struct{})
}
