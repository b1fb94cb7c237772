package payment

import (
	"sync"

	"github.com/vitwit/paygate/types"
)

// Store persists payment records. The relational schema behind it is an
// external collaborator; the core only needs these operations.
type Store interface {
	Put(p *types.Payment)
	Get(id string) (*types.Payment, bool)
	List(userID string, filter types.PaymentFilter) []*types.Payment
	FindPending() []*types.Payment
	FindPendingByAddress(currency types.Currency, address string) (*types.Payment, bool)
}

// MemoryStore is the in-repo Store implementation.
type MemoryStore struct {
	mu       sync.RWMutex
	payments map[string]types.Payment
	order    []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{payments: make(map[string]types.Payment)}
}

func (s *MemoryStore) Put(p *types.Payment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.payments[p.ID]; !exists {
		s.order = append(s.order, p.ID)
	}
	s.payments[p.ID] = *p
}

func (s *MemoryStore) Get(id string) (*types.Payment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.payments[id]
	if !ok {
		return nil, false
	}
	return &p, true
}

func (s *MemoryStore) List(userID string, filter types.PaymentFilter) []*types.Payment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.Payment
	skipped := 0
	// Newest first, like the upstream query layer.
	for i := len(s.order) - 1; i >= 0; i-- {
		p := s.payments[s.order[i]]
		if p.UserID != userID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.Currency != "" && p.Currency != filter.Currency {
			continue
		}
		if filter.Offset > 0 && skipped < filter.Offset {
			skipped++
			continue
		}

		cp := p
		out = append(out, &cp)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out
}

func (s *MemoryStore) FindPending() []*types.Payment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.Payment
	for _, id := range s.order {
		p := s.payments[id]
		if p.Status == types.StatusPending {
			cp := p
			out = append(out, &cp)
		}
	}
	return out
}

func (s *MemoryStore) FindPendingByAddress(currency types.Currency, address string) (*types.Payment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.order {
		p := s.payments[id]
		if p.Status == types.StatusPending && p.Currency == currency && p.Address == address {
			cp := p
			return &cp, true
		}
	}
	return nil, false
}
