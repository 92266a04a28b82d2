// Package store defines the persistence interface for pool and position
// snapshots and the quote audit log. Implementations include PostgreSQL
// (source of truth), Redis (read-through cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/jarvis-network/synthereum-sub002/internal/model"
)

// ErrNotFound is returned when a pool or position does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Pool snapshots ---

	// UpsertPool creates or replaces a pool's parameters. The stored price
	// is kept when p.Price is nil.
	UpsertPool(ctx context.Context, p *model.Pool) error

	// GetPool retrieves a pool by its ID.
	GetPool(ctx context.Context, id string) (*model.Pool, error)

	// ListPools returns all pools.
	ListPools(ctx context.Context) ([]model.Pool, error)

	// UpdatePrice records the latest oracle price for a pool.
	UpdatePrice(ctx context.Context, poolID string, price model.Price) error

	// --- Sponsor positions ---

	// UpsertPosition creates or replaces a sponsor's position snapshot.
	UpsertPosition(ctx context.Context, sp *model.SponsorPosition) error

	// GetPosition retrieves one sponsor's position in a pool.
	GetPosition(ctx context.Context, poolID, sponsor string) (*model.SponsorPosition, error)

	// ListPositions returns every sponsor position in a pool.
	ListPositions(ctx context.Context, poolID string) ([]model.SponsorPosition, error)

	// --- Quote audit log ---

	// InsertQuote appends an immutable quote record.
	InsertQuote(ctx context.Context, q *model.QuoteRecord) error

	// GetQuotesBySponsor returns a sponsor's quotes in a pool, oldest first.
	GetQuotesBySponsor(ctx context.Context, poolID, sponsor string) ([]model.QuoteRecord, error)
}
