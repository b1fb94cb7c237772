package rates

import (
	"sync"

	"github.com/vitwit/paygate/types"
)

// RateStore is the persistent tier of the rate cache (a currency-rate table
// in the external store collaborator).
type RateStore interface {
	Get(currency types.Currency) (*types.RateEntry, bool)
	Upsert(entry types.RateEntry)
}

// MemoryRateStore is the in-repo RateStore implementation.
type MemoryRateStore struct {
	mu      sync.RWMutex
	entries map[types.Currency]types.RateEntry
}

func NewMemoryRateStore() *MemoryRateStore {
	return &MemoryRateStore{entries: make(map[types.Currency]types.RateEntry)}
}

func (s *MemoryRateStore) Get(currency types.Currency) (*types.RateEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[currency]
	if !ok {
		return nil, false
	}
	return &entry, true
}

func (s *MemoryRateStore) Upsert(entry types.RateEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Currency] = entry
}
