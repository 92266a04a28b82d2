package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	fp "github.com/jarvis-network/synthereum-sub002/internal/fixedpoint"
	"github.com/jarvis-network/synthereum-sub002/internal/model"
)

func newCachedEnv(t *testing.T) (*CachedStore, *MemoryStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	primary := NewMemoryStore()
	return NewCachedStore(primary, rdb, time.Minute), primary, mr
}

func TestCachedStore_PoolReadThroughAndInvalidation(t *testing.T) {
	ctx := context.Background()
	cs, primary, mr := newCachedEnv(t)
	id := "jEUR-USDC"

	if err := cs.UpsertPool(ctx, testPool(id)); err != nil {
		t.Fatal(err)
	}
	if mr.Exists(poolKey(id)) {
		t.Fatal("pool writes should not populate the cache")
	}

	if _, err := cs.GetPool(ctx, id); err != nil {
		t.Fatal(err)
	}
	if !mr.Exists(poolKey(id)) {
		t.Fatal("expected pool cached after read")
	}

	// A change behind the cache's back stays invisible until invalidated.
	first := model.Price{CollateralPrice: fp.One, SyntheticPrice: fp.MustParse("1.08")}
	if err := primary.UpdatePrice(ctx, id, first); err != nil {
		t.Fatal(err)
	}
	p, err := cs.GetPool(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if p.Price != nil {
		t.Fatalf("expected cached pool without price, got %+v", p.Price)
	}

	second := model.Price{CollateralPrice: fp.One, SyntheticPrice: fp.MustParse("1.1")}
	if err := cs.UpdatePrice(ctx, id, second); err != nil {
		t.Fatal(err)
	}
	if mr.Exists(poolKey(id)) {
		t.Fatal("expected price update to invalidate the pool entry")
	}
	p, err = cs.GetPool(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if p.Price == nil || !p.Price.SyntheticPrice.Eq(second.SyntheticPrice) {
		t.Errorf("expected synthetic price 1.1, got %+v", p.Price)
	}
}

func TestCachedStore_PositionWriteThrough(t *testing.T) {
	ctx := context.Background()
	cs, primary, mr := newCachedEnv(t)
	id := "jEUR-USDC"
	if err := cs.UpsertPool(ctx, testPool(id)); err != nil {
		t.Fatal(err)
	}

	sp := &model.SponsorPosition{PoolID: id, Sponsor: "0xabc", Collateral: fp.New(150), Tokens: fp.New(100)}
	if err := cs.UpsertPosition(ctx, sp); err != nil {
		t.Fatal(err)
	}
	if !mr.Exists(positionKey(id, "0xabc")) {
		t.Fatal("expected position written to the cache")
	}

	stale := &model.SponsorPosition{PoolID: id, Sponsor: "0xabc", Collateral: fp.New(1), Tokens: fp.New(1)}
	if err := primary.UpsertPosition(ctx, stale); err != nil {
		t.Fatal(err)
	}
	got, err := cs.GetPosition(ctx, id, "0xabc")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Collateral.Eq(fp.New(150)) {
		t.Errorf("expected cached collateral 150, got %s", got.Collateral)
	}

	mr.FastForward(2 * time.Minute)
	got, err = cs.GetPosition(ctx, id, "0xabc")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Collateral.Eq(fp.New(1)) {
		t.Errorf("expected primary collateral 1 after expiry, got %s", got.Collateral)
	}
}

func TestCachedStore_MissNotCached(t *testing.T) {
	ctx := context.Background()
	cs, _, mr := newCachedEnv(t)

	if _, err := cs.GetPool(ctx, "jGBP-USDC"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := cs.GetPosition(ctx, "jGBP-USDC", "0xabc"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if keys := mr.Keys(); len(keys) != 0 {
		t.Errorf("expected empty cache, got %v", keys)
	}
}
