package pool

import (
	"encoding/binary"
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"lukechampine.com/blake3"
)

var (
	poolLedgerPrefix = []byte("pool/ledger/")
	poolClaimPrefix  = []byte("pool/claim/")
)

func normaliseID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

func ledgerKey(poolID string) []byte {
	trimmed := normaliseID(poolID)
	buf := make([]byte, len(poolLedgerPrefix)+len(trimmed))
	copy(buf, poolLedgerPrefix)
	copy(buf[len(poolLedgerPrefix):], trimmed)
	return buf
}

func claimKey(claimID string) []byte {
	trimmed := strings.ToLower(strings.TrimSpace(claimID))
	buf := make([]byte, len(poolClaimPrefix)+len(trimmed))
	copy(buf, poolClaimPrefix)
	copy(buf[len(poolClaimPrefix):], trimmed)
	return buf
}

// claimID derives a deterministic identifier from the pool, the claimant and
// the pool nonce at request time.
func claimID(poolID string, claimant common.Address, nonce uint64) string {
	h := blake3.New(32, nil)
	_, _ = h.Write([]byte(normaliseID(poolID)))
	_, _ = h.Write(claimant.Bytes())
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], nonce)
	_, _ = h.Write(n[:])
	return hex.EncodeToString(h.Sum(nil))
}

// poolAddress is the account that custodies a pool's collateral.
func poolAddress(poolID string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("arth/pool/" + normaliseID(poolID)))[12:])
}
