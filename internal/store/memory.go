package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jarvis-network/synthereum-sub002/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	pools     map[string]*model.Pool
	positions map[string]*model.SponsorPosition
	quotes    []model.QuoteRecord
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pools:     make(map[string]*model.Pool),
		positions: make(map[string]*model.SponsorPosition),
	}
}

func (s *MemoryStore) UpsertPool(_ context.Context, p *model.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := clonePool(p)
	if stored.Price == nil {
		if existing, ok := s.pools[p.ID]; ok && existing.Price != nil {
			price := *existing.Price
			stored.Price = &price
		}
	}
	s.pools[p.ID] = stored
	return nil
}

func (s *MemoryStore) GetPool(_ context.Context, id string) (*model.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pools[id]
	if !ok {
		return nil, fmt.Errorf("pool %s: %w", id, ErrNotFound)
	}
	return clonePool(p), nil
}

func (s *MemoryStore) ListPools(_ context.Context) ([]model.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pools := make([]model.Pool, 0, len(s.pools))
	for _, p := range s.pools {
		pools = append(pools, *clonePool(p))
	}
	sort.Slice(pools, func(i, j int) bool { return pools[i].ID < pools[j].ID })
	return pools, nil
}

func (s *MemoryStore) UpdatePrice(_ context.Context, poolID string, price model.Price) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pools[poolID]
	if !ok {
		return fmt.Errorf("pool %s: %w", poolID, ErrNotFound)
	}
	p.Price = &price
	return nil
}

func (s *MemoryStore) UpsertPosition(_ context.Context, sp *model.SponsorPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pools[sp.PoolID]; !ok {
		return fmt.Errorf("pool %s: %w", sp.PoolID, ErrNotFound)
	}
	stored := *sp
	s.positions[positionID(sp.PoolID, sp.Sponsor)] = &stored
	return nil
}

func (s *MemoryStore) GetPosition(_ context.Context, poolID, sponsor string) (*model.SponsorPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sp, ok := s.positions[positionID(poolID, sponsor)]
	if !ok {
		return nil, fmt.Errorf("position %s/%s: %w", poolID, sponsor, ErrNotFound)
	}
	out := *sp
	return &out, nil
}

func (s *MemoryStore) ListPositions(_ context.Context, poolID string) ([]model.SponsorPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.SponsorPosition
	for _, sp := range s.positions {
		if sp.PoolID == poolID {
			result = append(result, *sp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Sponsor < result[j].Sponsor })
	return result, nil
}

func (s *MemoryStore) InsertQuote(_ context.Context, q *model.QuoteRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.quotes = append(s.quotes, *q)
	return nil
}

func (s *MemoryStore) GetQuotesBySponsor(_ context.Context, poolID, sponsor string) ([]model.QuoteRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.QuoteRecord
	for _, q := range s.quotes {
		if q.PoolID == poolID && q.Sponsor == sponsor {
			result = append(result, q)
		}
	}
	return result, nil
}

func clonePool(p *model.Pool) *model.Pool {
	out := *p
	if p.Price != nil {
		price := *p.Price
		out.Price = &price
	}
	return &out
}

func positionID(poolID, sponsor string) string {
	return poolID + "/" + sponsor
}
