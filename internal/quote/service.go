// Package quote provides the HTTP handlers for maintaining pool and
// position snapshots and for quoting position operations against them.
//
// All monetary values use fixedpoint.Value, never float64.
package quote

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	fp "github.com/jarvis-network/synthereum-sub002/internal/fixedpoint"
	"github.com/jarvis-network/synthereum-sub002/internal/metrics"
	"github.com/jarvis-network/synthereum-sub002/internal/model"
	"github.com/jarvis-network/synthereum-sub002/internal/pool"
	"github.com/jarvis-network/synthereum-sub002/internal/ratio"
	"github.com/jarvis-network/synthereum-sub002/internal/risk"
	"github.com/jarvis-network/synthereum-sub002/internal/store"
)

// Service serves snapshot maintenance and quotes. The engine is pure, so
// quotes need no serialization; snapshot writes are last-writer-wins.
type Service struct {
	store store.Store
	wsHub *WSHub // optional WebSocket hub for real-time broadcasts
	now   func() time.Time
}

// NewService creates a new quote service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, hub *WSHub) *Service {
	return &Service{
		store: st,
		wsHub: hub,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// --- Request/Response types ---

// PriceRequest is the JSON body for PUT /pools/{poolID}/price.
type PriceRequest struct {
	CollateralPrice fp.Value `json:"collateral_price"`
	SyntheticPrice  fp.Value `json:"synthetic_price"`
}

// PositionRequest is the JSON body for PUT /pools/{poolID}/positions/{sponsor}.
type PositionRequest struct {
	Collateral                 fp.Value  `json:"collateral"`
	Tokens                     fp.Value  `json:"tokens"`
	PendingWithdrawalAmount    fp.Value  `json:"pending_withdrawal_amount"`
	PendingWithdrawalTimestamp time.Time `json:"pending_withdrawal_timestamp"`
}

// PositionView is a stored position with its derived ratios.
type PositionView struct {
	model.SponsorPosition
	UserRatio       fp.Value `json:"user_ratio"`
	WithdrawalReady bool     `json:"withdrawal_ready"`
}

// QuoteRequest is the JSON body for POST /pools/{poolID}/quote. Sponsor is
// optional; without one the quote is for opening a new position.
type QuoteRequest struct {
	Sponsor   string          `json:"sponsor"`
	Operation model.Operation `json:"operation"`
	risk.Request
}

// QuoteResponse is the JSON body returned from POST /pools/{poolID}/quote.
type QuoteResponse struct {
	QuoteID string `json:"quote_id"`
	PoolID  string `json:"pool_id"`
	Sponsor string `json:"sponsor,omitempty"`
	risk.Result
}

// --- HTTP Handlers ---

// CreatePool handles POST /api/v1/pools
func (s *Service) CreatePool(w http.ResponseWriter, r *http.Request) {
	var p model.Pool
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := pool.Validate(&p); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := pool.Normalize(&p); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if _, err := s.store.GetPool(ctx, p.ID); err == nil {
		writeError(w, "pool already exists: "+p.ID, http.StatusConflict)
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		writeError(w, "failed to check pool", http.StatusInternalServerError)
		return
	}

	p.UpdatedAt = s.now()
	if p.Price != nil {
		p.Price.UpdatedAt = p.UpdatedAt
	}
	if err := s.store.UpsertPool(ctx, &p); err != nil {
		writeError(w, "failed to store pool", http.StatusInternalServerError)
		return
	}
	metrics.SnapshotUpdates.WithLabelValues("pool").Inc()
	s.refreshPoolGauge(ctx)

	slog.Info("pool created",
		"pool", p.ID,
		"gcr", p.CollateralizationRatio.String(),
		"cap_deposit_ratio", p.CapDepositRatio.String(),
		"fee", p.FeePercentage.String(),
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{Type: MsgPoolUpdated, PoolID: p.ID})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(p)
}

// ListPools handles GET /api/v1/pools
func (s *Service) ListPools(w http.ResponseWriter, r *http.Request) {
	pools, err := s.store.ListPools(r.Context())
	if err != nil {
		writeError(w, "failed to list pools", http.StatusInternalServerError)
		return
	}
	if pools == nil {
		pools = []model.Pool{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pools)
}

// GetPool handles GET /api/v1/pools/{poolID}
func (s *Service) GetPool(w http.ResponseWriter, r *http.Request) {
	p, ok := s.loadPool(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(p)
}

// UpdatePrice handles PUT /api/v1/pools/{poolID}/price
func (s *Service) UpdatePrice(w http.ResponseWriter, r *http.Request) {
	poolID := chi.URLParam(r, "poolID")

	var req PriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !req.CollateralPrice.IsPositive() || !req.SyntheticPrice.IsPositive() {
		writeError(w, "prices must be positive", http.StatusBadRequest)
		return
	}

	price := model.Price{
		CollateralPrice: req.CollateralPrice,
		SyntheticPrice:  req.SyntheticPrice,
		UpdatedAt:       s.now(),
	}
	ctx := r.Context()
	if err := s.store.UpdatePrice(ctx, poolID, price); err != nil {
		writeStoreError(w, err, "failed to update price")
		return
	}
	metrics.SnapshotUpdates.WithLabelValues("price").Inc()

	p, err := s.store.GetPool(ctx, poolID)
	if err != nil {
		writeStoreError(w, err, "failed to load pool")
		return
	}
	gcr := ratio.GlobalCollateralizationRatio(p.CollateralizationRatio, &price.SyntheticPrice)

	slog.Info("price updated",
		"pool", poolID,
		"collateral_price", price.CollateralPrice.String(),
		"synthetic_price", price.SyntheticPrice.String(),
		"gcr", gcr.String(),
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:            MsgPriceUpdated,
			PoolID:          poolID,
			CollateralPrice: price.CollateralPrice.String(),
			SyntheticPrice:  price.SyntheticPrice.String(),
			GlobalRatio:     gcr.String(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(p)
}

// UpsertPosition handles PUT /api/v1/pools/{poolID}/positions/{sponsor}
func (s *Service) UpsertPosition(w http.ResponseWriter, r *http.Request) {
	poolID := chi.URLParam(r, "poolID")
	sponsor, err := pool.NormalizeSponsor(chi.URLParam(r, "sponsor"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req PositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// --- Input validation ---
	if req.Collateral.Sign() < 0 || req.Tokens.Sign() < 0 || req.PendingWithdrawalAmount.Sign() < 0 {
		writeError(w, "amounts must not be negative", http.StatusBadRequest)
		return
	}
	if req.Tokens.IsZero() && !req.Collateral.IsZero() {
		writeError(w, "a position without tokens cannot hold collateral", http.StatusBadRequest)
		return
	}

	sp := &model.SponsorPosition{
		PoolID:                     poolID,
		Sponsor:                    sponsor,
		Collateral:                 req.Collateral,
		Tokens:                     req.Tokens,
		PendingWithdrawalAmount:    req.PendingWithdrawalAmount,
		PendingWithdrawalTimestamp: req.PendingWithdrawalTimestamp,
		UpdatedAt:                  s.now(),
	}
	if err := s.store.UpsertPosition(r.Context(), sp); err != nil {
		writeStoreError(w, err, "failed to store position")
		return
	}
	metrics.SnapshotUpdates.WithLabelValues("position").Inc()

	slog.Info("position updated",
		"pool", poolID,
		"sponsor", sponsor,
		"collateral", sp.Collateral.String(),
		"tokens", sp.Tokens.String(),
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:       MsgPositionUpdated,
			PoolID:     poolID,
			Sponsor:    sponsor,
			Collateral: sp.Collateral.String(),
			Tokens:     sp.Tokens.String(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sp)
}

// GetPosition handles GET /api/v1/pools/{poolID}/positions/{sponsor}
func (s *Service) GetPosition(w http.ResponseWriter, r *http.Request) {
	p, ok := s.loadPool(w, r)
	if !ok {
		return
	}
	sponsor, err := pool.NormalizeSponsor(chi.URLParam(r, "sponsor"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	sp, err := s.store.GetPosition(r.Context(), p.ID, sponsor)
	if err != nil {
		writeStoreError(w, err, "failed to load position")
		return
	}

	view := PositionView{SponsorPosition: *sp}
	if p.Price != nil {
		view.UserRatio = ratio.UserCollateralizationRatio(sp.Collateral, sp.Tokens,
			p.Price.SyntheticPrice, p.Price.CollateralPrice)
	}
	view.WithdrawalReady = risk.WithdrawalReady(p.PositionFor(sp), s.now())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(view)
}

// Quote handles POST /api/v1/pools/{poolID}/quote
// Evaluates the operation against the stored snapshots and records the
// result in the quote log.
func (s *Service) Quote(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !req.Operation.Valid() {
		writeError(w, "operation must be one of borrow, deposit, repay, redeem, withdraw", http.StatusBadRequest)
		return
	}

	p, ok := s.loadPool(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	var sp *model.SponsorPosition
	if req.Sponsor != "" {
		sponsor, err := pool.NormalizeSponsor(req.Sponsor)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		req.Sponsor = sponsor

		sp, err = s.store.GetPosition(ctx, p.ID, sponsor)
		if errors.Is(err, store.ErrNotFound) {
			sp = nil // no position yet: quote as a new one
		} else if err != nil {
			writeError(w, "failed to load position", http.StatusInternalServerError)
			return
		}
	}

	res, err := risk.Evaluate(req.Operation, p.PositionFor(sp), p.Price, req.Request)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	record := &model.QuoteRecord{
		ID:               uuid.New().String(),
		PoolID:           p.ID,
		Sponsor:          req.Sponsor,
		Operation:        req.Operation,
		Collateral:       req.Collateral,
		Synthetic:        req.Synthetic,
		Valid:            res.Valid,
		ErrorKind:        res.ErrorKind.String(),
		NewRatio:         res.Snapshot.NewRatio,
		LiquidationPrice: res.Snapshot.LiquidationPrice,
		Fee:              res.Snapshot.Fee,
		Timestamp:        s.now(),
	}
	if err := s.store.InsertQuote(ctx, record); err != nil {
		writeError(w, "failed to record quote", http.StatusInternalServerError)
		return
	}

	outcome := metrics.Outcome(res.Valid, record.ErrorKind)
	metrics.QuotesTotal.WithLabelValues(string(req.Operation), outcome).Inc()
	metrics.QuoteLatency.WithLabelValues(string(req.Operation)).Observe(time.Since(start).Seconds())

	slog.Debug("quote computed",
		"quote_id", record.ID,
		"pool", p.ID,
		"sponsor", req.Sponsor,
		"op", req.Operation,
		"outcome", outcome,
		"new_ratio", res.Snapshot.NewRatio.String(),
		"fee", res.Snapshot.Fee.String(),
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(QuoteResponse{
		QuoteID: record.ID,
		PoolID:  p.ID,
		Sponsor: req.Sponsor,
		Result:  res,
	})
}

// GetQuotes handles GET /api/v1/pools/{poolID}/positions/{sponsor}/quotes
// Returns the sponsor's quote history, oldest first.
func (s *Service) GetQuotes(w http.ResponseWriter, r *http.Request) {
	poolID := chi.URLParam(r, "poolID")
	sponsor, err := pool.NormalizeSponsor(chi.URLParam(r, "sponsor"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	quotes, err := s.store.GetQuotesBySponsor(r.Context(), poolID, sponsor)
	if err != nil {
		writeError(w, "failed to get quotes", http.StatusInternalServerError)
		return
	}
	if quotes == nil {
		quotes = []model.QuoteRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(quotes)
}

// SeedPools stores pools that do not exist yet. Existing pools keep their
// stored parameters and price.
func (s *Service) SeedPools(ctx context.Context, pools []*model.Pool) error {
	for _, p := range pools {
		if err := pool.Validate(p); err != nil {
			return err
		}
		if err := pool.Normalize(p); err != nil {
			return err
		}
		if _, err := s.store.GetPool(ctx, p.ID); err == nil {
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if err := s.store.UpsertPool(ctx, p); err != nil {
			return err
		}
		slog.Info("pool seeded", "pool", p.ID)
	}
	s.refreshPoolGauge(ctx)
	return nil
}

func (s *Service) loadPool(w http.ResponseWriter, r *http.Request) (*model.Pool, bool) {
	poolID := chi.URLParam(r, "poolID")
	p, err := s.store.GetPool(r.Context(), poolID)
	if err != nil {
		writeStoreError(w, err, "failed to load pool")
		return nil, false
	}
	return p, true
}

func (s *Service) refreshPoolGauge(ctx context.Context) {
	if pools, err := s.store.ListPools(ctx); err == nil {
		metrics.TrackedPools.Set(float64(len(pools)))
	}
}

// writeStoreError maps store.ErrNotFound to 404 and anything else to 500.
func writeStoreError(w http.ResponseWriter, err error, message string) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, err.Error(), http.StatusNotFound)
		return
	}
	slog.Error(message, "err", err)
	writeError(w, message, http.StatusInternalServerError)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
