package storage

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

// KVStore persists RLP encoded records on top of a Database.
type KVStore struct {
	db Database
}

// NewKVStore wraps db. A nil db falls back to an in-memory database.
func NewKVStore(db Database) *KVStore {
	if db == nil {
		db = NewMemDB()
	}
	return &KVStore{db: db}
}

// DB exposes the underlying database.
func (s *KVStore) DB() Database { return s.db }

// KVPut encodes value with RLP and stores it under key.
func (s *KVStore) KVPut(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("storage: encode %q: %w", key, err)
	}
	return s.db.Put(key, encoded)
}

// KVGet decodes the record under key into out. The boolean reports whether the
// key existed.
func (s *KVStore) KVGet(key []byte, out interface{}) (bool, error) {
	encoded, err := s.db.Get(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(encoded, out); err != nil {
		return false, fmt.Errorf("storage: decode %q: %w", key, err)
	}
	return true, nil
}

func (s *KVStore) KVDelete(key []byte) error {
	return s.db.Delete(key)
}

// KVKeys lists the keys under prefix.
func (s *KVStore) KVKeys(prefix []byte) ([][]byte, error) {
	return s.db.Keys(prefix)
}

// NewWriteSet starts a set of writes that are committed together.
func (s *KVStore) NewWriteSet() *WriteSet {
	return &WriteSet{batch: s.db.NewBatch()}
}

// WriteSet stages RLP encoded writes. Nothing reaches the database until
// Commit succeeds.
type WriteSet struct {
	batch Batch
	err   error
}

// Put stages value under key. Encoding failures are reported by Commit.
func (w *WriteSet) Put(key []byte, value interface{}) {
	if w.err != nil {
		return
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		w.err = fmt.Errorf("storage: encode %q: %w", key, err)
		return
	}
	w.batch.Put(key, encoded)
}

func (w *WriteSet) Delete(key []byte) {
	if w.err != nil {
		return
	}
	w.batch.Delete(key)
}

// Commit writes every staged record atomically.
func (w *WriteSet) Commit() error {
	if w.err != nil {
		return w.err
	}
	if w.batch.Len() == 0 {
		return nil
	}
	return w.batch.Write()
}
