package ratio

import (
	"arthcore/storage"
)

var stateKey = []byte("ratio/state")

// State is the global ratio singleton. LastRefresh is unix seconds.
type State struct {
	Ratio       uint64
	LastRefresh int64
	Paused      bool
}

// Store persists the controller state.
type Store interface {
	LoadRatioState() (State, bool, error)
	SaveRatioState(State) error
}

type storedState struct {
	Ratio       uint64
	LastRefresh uint64
	Paused      bool
}

// KVStore keeps the state under a single key of an RLP key-value store.
type KVStore struct {
	kv *storage.KVStore
}

func NewKVStore(kv *storage.KVStore) *KVStore {
	return &KVStore{kv: kv}
}

func (s *KVStore) LoadRatioState() (State, bool, error) {
	var stored storedState
	ok, err := s.kv.KVGet(stateKey, &stored)
	if err != nil || !ok {
		return State{}, ok, err
	}
	return State{Ratio: stored.Ratio, LastRefresh: int64(stored.LastRefresh), Paused: stored.Paused}, true, nil
}

func (s *KVStore) SaveRatioState(st State) error {
	last := st.LastRefresh
	if last < 0 {
		last = 0
	}
	return s.kv.KVPut(stateKey, storedState{Ratio: st.Ratio, LastRefresh: uint64(last), Paused: st.Paused})
}

// MemoryStore keeps the state in memory.
type MemoryStore struct {
	state *State
}

func (s *MemoryStore) LoadRatioState() (State, bool, error) {
	if s.state == nil {
		return State{}, false, nil
	}
	return *s.state, true, nil
}

func (s *MemoryStore) SaveRatioState(st State) error {
	s.state = &st
	return nil
}
