package session

import (
	"strconv"
	"sync"

	"github.com/jonboulle/clockwork"
)

// Carry-over keys read by downstream booking screens. The names are part of
// the cross-screen contract and must not change.
const (
	KeyReactionSec  = "reserve.rtSec"
	KeyStrayClicks  = "reserve.nrClicks"
	KeyTotalStartMs = "reserve.totalStartAtMs"
	KeyRoomSummary  = "reserve.roomSummary"
)

// MemoryStore is the in-process KeyedStore implementation.
type MemoryStore struct {
	mu sync.Mutex
	m  map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string]string)}
}

func (s *MemoryStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok
}

func (s *MemoryStore) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
}

func (s *MemoryStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
}

// ensureTotalStart initializes the total-elapsed start marker if this session
// did not inherit one, and returns the marker in epoch millis.
func ensureTotalStart(store KeyedStore, clock clockwork.Clock) int64 {
	if v, ok := store.Get(KeyTotalStartMs); ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			return ms
		}
	}
	ms := clock.Now().UnixMilli()
	store.Set(KeyTotalStartMs, strconv.FormatInt(ms, 10))
	return ms
}
