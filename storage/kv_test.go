package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type record struct {
	Name    string
	Balance string
	Nonce   uint64
}

func TestKVStoreRoundTrip(t *testing.T) {
	store := NewKVStore(NewMemDB())

	var missing record
	ok, err := store.KVGet([]byte("pool/ledger/USDC"), &missing)
	require.NoError(t, err)
	require.False(t, ok)

	in := record{Name: "USDC", Balance: "1000000", Nonce: 3}
	require.NoError(t, store.KVPut([]byte("pool/ledger/USDC"), in))

	var out record
	ok, err = store.KVGet([]byte("pool/ledger/USDC"), &out)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, in, out)

	require.NoError(t, store.KVDelete([]byte("pool/ledger/USDC")))
	ok, err = store.KVGet([]byte("pool/ledger/USDC"), &out)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestWriteSetIsAllOrNothing(t *testing.T) {
	db := NewMemDB()
	store := NewKVStore(db)
	require.NoError(t, store.KVPut([]byte("pool/claim/a"), record{Name: "a"}))

	ws := store.NewWriteSet()
	ws.Put([]byte("pool/ledger/USDC"), record{Name: "USDC", Nonce: 1})
	ws.Delete([]byte("pool/claim/a"))

	// Nothing is visible before commit.
	has, err := db.Has([]byte("pool/ledger/USDC"))
	require.NoError(t, err)
	require.False(t, has)
	has, err = db.Has([]byte("pool/claim/a"))
	require.NoError(t, err)
	require.True(t, has)

	require.NoError(t, ws.Commit())
	has, _ = db.Has([]byte("pool/ledger/USDC"))
	require.True(t, has)
	has, _ = db.Has([]byte("pool/claim/a"))
	require.False(t, has)
}

func TestWriteSetEncodingFailureWritesNothing(t *testing.T) {
	db := NewMemDB()
	store := NewKVStore(db)
	ws := store.NewWriteSet()
	ws.Put([]byte("ok"), record{Name: "fine"})
	ws.Put([]byte("bad"), map[string]int{"x": 1})
	require.Error(t, ws.Commit())
	has, _ := db.Has([]byte("ok"))
	require.False(t, has)
}

func TestKeysByPrefix(t *testing.T) {
	db := NewMemDB()
	require.NoError(t, db.Put([]byte("pool/claim/b"), []byte{1}))
	require.NoError(t, db.Put([]byte("pool/claim/a"), []byte{1}))
	require.NoError(t, db.Put([]byte("pool/ledger/a"), []byte{1}))
	keys, err := db.Keys([]byte("pool/claim/"))
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("pool/claim/a"), []byte("pool/claim/b")}, keys)
}

func TestLevelDBBatchAndNotFound(t *testing.T) {
	db, err := NewLevelDB(filepath.Join(t.TempDir(), "state"))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Get([]byte("ratio/state"))
	require.ErrorIs(t, err, ErrNotFound)

	batch := db.NewBatch()
	batch.Put([]byte("ratio/state"), []byte("v1"))
	batch.Put([]byte("pool/ledger/USDC"), []byte("v2"))
	require.Equal(t, 2, batch.Len())
	require.NoError(t, batch.Write())

	value, err := db.Get([]byte("ratio/state"))
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), value)

	keys, err := db.Keys([]byte("pool/"))
	require.NoError(t, err)
	require.Len(t, keys, 1)
}
