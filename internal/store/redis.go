package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jarvis-network/synthereum-sub002/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for the snapshots the quote path reads on every request. Writes go
// to the primary store and invalidate the cache; reads check Redis first
// then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) UpsertPool(ctx context.Context, p *model.Pool) error {
	if err := s.primary.UpsertPool(ctx, p); err != nil {
		return err
	}
	// The primary may have kept a stored price; re-read on next access.
	s.rdb.Del(ctx, poolKey(p.ID))
	return nil
}

func (s *CachedStore) UpdatePrice(ctx context.Context, poolID string, price model.Price) error {
	if err := s.primary.UpdatePrice(ctx, poolID, price); err != nil {
		return err
	}
	s.rdb.Del(ctx, poolKey(poolID))
	return nil
}

func (s *CachedStore) UpsertPosition(ctx context.Context, sp *model.SponsorPosition) error {
	if err := s.primary.UpsertPosition(ctx, sp); err != nil {
		return err
	}
	s.cache(ctx, positionKey(sp.PoolID, sp.Sponsor), sp)
	return nil
}

func (s *CachedStore) InsertQuote(ctx context.Context, q *model.QuoteRecord) error {
	return s.primary.InsertQuote(ctx, q)
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetPool(ctx context.Context, id string) (*model.Pool, error) {
	var p model.Pool
	if s.lookup(ctx, poolKey(id), &p) {
		return &p, nil
	}

	// Cache miss: read from primary.
	pool, err := s.primary.GetPool(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, poolKey(id), pool)
	return pool, nil
}

func (s *CachedStore) GetPosition(ctx context.Context, poolID, sponsor string) (*model.SponsorPosition, error) {
	var sp model.SponsorPosition
	if s.lookup(ctx, positionKey(poolID, sponsor), &sp) {
		return &sp, nil
	}

	out, err := s.primary.GetPosition(ctx, poolID, sponsor)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, positionKey(poolID, sponsor), out)
	return out, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListPools(ctx context.Context) ([]model.Pool, error) {
	return s.primary.ListPools(ctx)
}

func (s *CachedStore) ListPositions(ctx context.Context, poolID string) ([]model.SponsorPosition, error) {
	return s.primary.ListPositions(ctx, poolID)
}

func (s *CachedStore) GetQuotesBySponsor(ctx context.Context, poolID, sponsor string) ([]model.QuoteRecord, error) {
	return s.primary.GetQuotesBySponsor(ctx, poolID, sponsor)
}

// --- Cache helpers ---

func (s *CachedStore) lookup(ctx context.Context, key string, dst any) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

func (s *CachedStore) cache(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

func poolKey(id string) string                  { return fmt.Sprintf("pool:%s", id) }
func positionKey(poolID, sponsor string) string { return fmt.Sprintf("position:%s:%s", poolID, sponsor) }
