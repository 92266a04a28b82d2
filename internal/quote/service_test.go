package quote_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	fp "github.com/jarvis-network/synthereum-sub002/internal/fixedpoint"
	"github.com/jarvis-network/synthereum-sub002/internal/model"
	"github.com/jarvis-network/synthereum-sub002/internal/quote"
	"github.com/jarvis-network/synthereum-sub002/internal/store"
)

const (
	poolID  = "jEUR-USDC"
	sponsor = "0x00000000000000000000000000000000000000aa"
)

func d(s string) fp.Value { return fp.MustParse(s) }

// newTestEnv creates a test Service with in-memory store and chi router.
func newTestEnv(t *testing.T, hub *quote.WSHub) (*quote.Service, *store.MemoryStore, chi.Router) {
	t.Helper()
	ms := store.NewMemoryStore()
	svc := quote.NewService(ms, hub)

	r := chi.NewRouter()
	r.Get("/api/v1/pools", svc.ListPools)
	r.Post("/api/v1/pools", svc.CreatePool)
	r.Get("/api/v1/pools/{poolID}", svc.GetPool)
	r.Put("/api/v1/pools/{poolID}/price", svc.UpdatePrice)
	r.Put("/api/v1/pools/{poolID}/positions/{sponsor}", svc.UpsertPosition)
	r.Get("/api/v1/pools/{poolID}/positions/{sponsor}", svc.GetPosition)
	r.Get("/api/v1/pools/{poolID}/positions/{sponsor}/quotes", svc.GetQuotes)
	r.Post("/api/v1/pools/{poolID}/quote", svc.Quote)

	return svc, ms, r
}

// seedPool creates a test pool with a unit price directly in the store.
func seedPool(t *testing.T, ms *store.MemoryStore) *model.Pool {
	t.Helper()
	p := &model.Pool{
		ID:                     poolID,
		SyntheticSymbol:        "jEUR",
		CollateralSymbol:       "USDC",
		CollateralizationRatio: d("1.5"),
		LiquidationRatio:       d("1.2"),
		CollateralRequirement:  d("1.2"),
		FeePercentage:          d("0.002"),
		CapDepositRatio:        d("2"),
		MinSponsorTokens:       d("5"),
		CollateralDecimals:     18,
		SyntheticDecimals:      18,
		Price:                  &model.Price{CollateralPrice: fp.One, SyntheticPrice: fp.One},
		UpdatedAt:              time.Now().UTC(),
	}
	if err := ms.UpsertPool(context.Background(), p); err != nil {
		t.Fatalf("failed to seed pool: %v", err)
	}
	return p
}

func seedPosition(t *testing.T, ms *store.MemoryStore, coll, tokens string) {
	t.Helper()
	sp := &model.SponsorPosition{PoolID: poolID, Sponsor: sponsor, Collateral: d(coll), Tokens: d(tokens)}
	if err := ms.UpsertPosition(context.Background(), sp); err != nil {
		t.Fatalf("failed to seed position: %v", err)
	}
}

func do(t *testing.T, router chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func doQuote(t *testing.T, router chi.Router, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	return do(t, router, "POST", "/api/v1/pools/"+poolID+"/quote", body)
}

func decodeQuote(t *testing.T, w *httptest.ResponseRecorder) quote.QuoteResponse {
	t.Helper()
	var resp quote.QuoteResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

// --- Quote tests ---

func TestQuote_BorrowOpeningPosition(t *testing.T) {
	_, ms, router := newTestEnv(t, nil)
	seedPool(t, ms)

	w := doQuote(t, router, map[string]any{
		"operation":  "borrow",
		"collateral": "150",
		"synthetic":  "100",
		"focus":      "synthetic",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	resp := decodeQuote(t, w)
	if !resp.Valid {
		t.Fatalf("expected valid quote, got error kind %s", resp.ErrorKind)
	}
	if resp.QuoteID == "" {
		t.Error("expected non-empty quote_id")
	}
	if !resp.Snapshot.Fee.Eq(d("0.3")) {
		t.Errorf("expected fee 0.3, got %s", resp.Snapshot.Fee)
	}
	if !resp.Snapshot.NewRatio.Eq(d("149.7")) {
		t.Errorf("expected new ratio 149.7, got %s", resp.Snapshot.NewRatio)
	}
	if !resp.GlobalRatio.Eq(d("150")) {
		t.Errorf("expected global ratio 150, got %s", resp.GlobalRatio)
	}
}

func TestQuote_RecordedInLog(t *testing.T) {
	_, ms, router := newTestEnv(t, nil)
	seedPool(t, ms)
	seedPosition(t, ms, "150", "100")

	for _, amount := range []string{"10", "20"} {
		w := doQuote(t, router, map[string]any{
			"sponsor":    sponsor,
			"operation":  "deposit",
			"collateral": amount,
		})
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
	}

	w := do(t, router, "GET", "/api/v1/pools/"+poolID+"/positions/"+sponsor+"/quotes", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var quotes []model.QuoteRecord
	if err := json.NewDecoder(w.Body).Decode(&quotes); err != nil {
		t.Fatal(err)
	}
	if len(quotes) != 2 {
		t.Fatalf("expected 2 quotes, got %d", len(quotes))
	}
	if quotes[0].Collateral != "10" || quotes[1].Collateral != "20" {
		t.Errorf("expected quotes for 10 then 20, got %s then %s", quotes[0].Collateral, quotes[1].Collateral)
	}
	if quotes[0].Operation != model.OpDeposit || !quotes[0].Valid {
		t.Errorf("expected valid deposit quote, got %+v", quotes[0])
	}
}

func TestQuote_RepayFloorRejected(t *testing.T) {
	_, ms, router := newTestEnv(t, nil)
	seedPool(t, ms)
	seedPosition(t, ms, "90", "60")

	w := doQuote(t, router, map[string]any{
		"sponsor":   sponsor,
		"operation": "repay",
		"synthetic": "58",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"error_kind":"below_minimum_sponsor_position"`) {
		t.Errorf("expected below_minimum_sponsor_position in %s", w.Body.String())
	}

	resp := decodeQuote(t, w)
	if resp.Valid {
		t.Error("expected invalid quote")
	}
}

func TestQuote_UnknownSponsorQuotesNewPosition(t *testing.T) {
	_, ms, router := newTestEnv(t, nil)
	seedPool(t, ms)

	w := doQuote(t, router, map[string]any{
		"sponsor":    "0x00000000000000000000000000000000000000BB",
		"operation":  "borrow",
		"collateral": "150",
		"synthetic":  "100",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decodeQuote(t, w)
	if !resp.Valid {
		t.Errorf("expected valid opening borrow, got %s", resp.ErrorKind)
	}
	if resp.Sponsor != "0x00000000000000000000000000000000000000bb" {
		t.Errorf("expected normalized sponsor, got %s", resp.Sponsor)
	}
}

func TestQuote_BadRequests(t *testing.T) {
	_, ms, router := newTestEnv(t, nil)
	seedPool(t, ms)

	tests := []struct {
		name string
		body any
	}{
		{"malformed json", "{"},
		{"unknown operation", map[string]any{"operation": "liquidate", "collateral": "1"}},
		{"invalid amount", map[string]any{"operation": "borrow", "collateral": "abc"}},
		{"negative amount", map[string]any{"operation": "deposit", "collateral": "-5"}},
		{"invalid sponsor", map[string]any{"operation": "borrow", "sponsor": "alice", "collateral": "1"}},
		{"invalid focus", map[string]any{"operation": "borrow", "collateral": "1", "focus": "both"}},
		{"oversized exponent", map[string]any{"operation": "borrow", "collateral": "1e9000000", "synthetic": "100"}},
		{"over 256 bits", map[string]any{"operation": "borrow", "collateral": "1e80", "synthetic": "1e79"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, "POST", "/api/v1/pools/"+poolID+"/quote", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestQuote_PoolNotFound(t *testing.T) {
	_, _, router := newTestEnv(t, nil)

	w := do(t, router, "POST", "/api/v1/pools/jGBP-USDC/quote", map[string]any{"operation": "borrow", "collateral": "1"})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

// --- Snapshot tests ---

func TestUpdatePrice(t *testing.T) {
	_, ms, router := newTestEnv(t, nil)
	seedPool(t, ms)

	w := do(t, router, "PUT", "/api/v1/pools/"+poolID+"/price", map[string]string{
		"collateral_price": "1",
		"synthetic_price":  "1.08",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	p, err := ms.GetPool(context.Background(), poolID)
	if err != nil {
		t.Fatal(err)
	}
	if p.Price == nil || !p.Price.SyntheticPrice.Eq(d("1.08")) {
		t.Errorf("expected synthetic price 1.08, got %+v", p.Price)
	}
	if p.Price.UpdatedAt.IsZero() {
		t.Error("expected price timestamp to be set")
	}
}

func TestUpdatePrice_Invalid(t *testing.T) {
	_, ms, router := newTestEnv(t, nil)
	seedPool(t, ms)

	w := do(t, router, "PUT", "/api/v1/pools/"+poolID+"/price", map[string]string{
		"collateral_price": "1",
		"synthetic_price":  "0",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for zero price, got %d", w.Code)
	}

	w = do(t, router, "PUT", "/api/v1/pools/"+poolID+"/price", map[string]string{
		"collateral_price": "1",
		"synthetic_price":  "1e80",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for price over 256 bits, got %d", w.Code)
	}

	w = do(t, router, "PUT", "/api/v1/pools/jGBP-USDC/price", map[string]string{
		"collateral_price": "1",
		"synthetic_price":  "1.2",
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown pool, got %d", w.Code)
	}
}

func TestUpsertAndGetPosition(t *testing.T) {
	_, ms, router := newTestEnv(t, nil)
	seedPool(t, ms)

	w := do(t, router, "PUT", "/api/v1/pools/"+poolID+"/positions/"+sponsor, map[string]string{
		"collateral": "150",
		"tokens":     "100",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = do(t, router, "GET", "/api/v1/pools/"+poolID+"/positions/"+sponsor, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var view quote.PositionView
	if err := json.NewDecoder(w.Body).Decode(&view); err != nil {
		t.Fatal(err)
	}
	if !view.Collateral.Eq(d("150")) || !view.Tokens.Eq(d("100")) {
		t.Errorf("expected 150/100, got %s/%s", view.Collateral, view.Tokens)
	}
	if !view.UserRatio.Eq(d("150")) {
		t.Errorf("expected user ratio 150, got %s", view.UserRatio)
	}
	if view.WithdrawalReady {
		t.Error("expected no pending withdrawal")
	}
}

func TestGetPosition_WithdrawalReady(t *testing.T) {
	_, ms, router := newTestEnv(t, nil)
	seedPool(t, ms)

	w := do(t, router, "PUT", "/api/v1/pools/"+poolID+"/positions/"+sponsor, map[string]any{
		"collateral":                   "150",
		"tokens":                       "100",
		"pending_withdrawal_amount":    "10",
		"pending_withdrawal_timestamp": time.Now().Add(-time.Minute).UTC(),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = do(t, router, "GET", "/api/v1/pools/"+poolID+"/positions/"+sponsor, nil)
	var view quote.PositionView
	if err := json.NewDecoder(w.Body).Decode(&view); err != nil {
		t.Fatal(err)
	}
	if !view.WithdrawalReady {
		t.Error("expected withdrawal past its timestamp to be ready")
	}
}

func TestUpsertPosition_Invalid(t *testing.T) {
	_, ms, router := newTestEnv(t, nil)
	seedPool(t, ms)

	tests := []struct {
		name    string
		sponsor string
		body    map[string]string
		want    int
	}{
		{"bad sponsor", "bob", map[string]string{"collateral": "1", "tokens": "1"}, http.StatusBadRequest},
		{"collateral without tokens", sponsor, map[string]string{"collateral": "1", "tokens": "0"}, http.StatusBadRequest},
		{"negative tokens", sponsor, map[string]string{"collateral": "1", "tokens": "-1"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, "PUT", "/api/v1/pools/"+poolID+"/positions/"+tt.sponsor, tt.body)
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}

	w := do(t, router, "PUT", "/api/v1/pools/jGBP-USDC/positions/"+sponsor, map[string]string{"collateral": "1", "tokens": "1"})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown pool, got %d", w.Code)
	}
}

func TestGetPosition_NotFound(t *testing.T) {
	_, ms, router := newTestEnv(t, nil)
	seedPool(t, ms)

	w := do(t, router, "GET", "/api/v1/pools/"+poolID+"/positions/"+sponsor, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

// --- Pool tests ---

func TestCreatePool_Valid(t *testing.T) {
	_, _, router := newTestEnv(t, nil)

	body := map[string]any{
		"id":                      "jCHF-USDC",
		"collateralization_ratio": "1.5",
		"liquidation_ratio":       "1.2",
		"collateral_requirement":  "1.2",
		"fee_percentage":          "0.002",
		"cap_deposit_ratio":       "2",
		"collateral_decimals":     6,
		"synthetic_decimals":      18,
	}
	w := do(t, router, "POST", "/api/v1/pools", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var p model.Pool
	if err := json.NewDecoder(w.Body).Decode(&p); err != nil {
		t.Fatal(err)
	}
	if p.SyntheticSymbol != "jCHF" || p.CollateralSymbol != "USDC" {
		t.Errorf("expected symbols from id, got %s/%s", p.SyntheticSymbol, p.CollateralSymbol)
	}

	w = do(t, router, "POST", "/api/v1/pools", body)
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for duplicate pool, got %d", w.Code)
	}

	w = do(t, router, "GET", "/api/v1/pools", nil)
	var pools []model.Pool
	if err := json.NewDecoder(w.Body).Decode(&pools); err != nil {
		t.Fatal(err)
	}
	if len(pools) != 1 {
		t.Errorf("expected 1 pool, got %d", len(pools))
	}
}

func TestCreatePool_Invalid(t *testing.T) {
	_, _, router := newTestEnv(t, nil)

	tests := []map[string]any{
		{"id": "EUR/USDC", "collateralization_ratio": "1.5", "cap_deposit_ratio": "2"},
		{"id": "jEUR-USDC", "collateralization_ratio": "0", "cap_deposit_ratio": "2"},
		{"id": "jEUR-USDC", "collateralization_ratio": "1.5", "cap_deposit_ratio": "1"},
		{"id": "jEUR-USDC", "collateralization_ratio": "1.5", "cap_deposit_ratio": "2",
			"price": map[string]string{"collateral_price": "1", "synthetic_price": "0"}},
		{"id": "jEUR-USDC", "collateralization_ratio": "1e9000000", "cap_deposit_ratio": "2"},
	}
	for _, body := range tests {
		w := do(t, router, "POST", "/api/v1/pools", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for %v, got %d", body, w.Code)
		}
	}
}

func TestGetPool_NotFound(t *testing.T) {
	_, _, router := newTestEnv(t, nil)

	w := do(t, router, "GET", "/api/v1/pools/"+poolID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "error") {
		t.Errorf("expected JSON error body, got %s", w.Body.String())
	}
}

func TestSeedPools_KeepsExisting(t *testing.T) {
	svc, ms, _ := newTestEnv(t, nil)
	seeded := seedPool(t, ms)

	err := svc.SeedPools(context.Background(), []*model.Pool{
		{ID: poolID, CollateralizationRatio: d("3"), CapDepositRatio: d("4")},
		{ID: "jGBP-USDC", CollateralizationRatio: d("1.5"), CapDepositRatio: d("2")},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	p, _ := ms.GetPool(context.Background(), poolID)
	if !p.CollateralizationRatio.Eq(seeded.CollateralizationRatio) {
		t.Errorf("existing pool was overwritten: gcr %s", p.CollateralizationRatio)
	}
	gbp, err := ms.GetPool(context.Background(), "jGBP-USDC")
	if err != nil {
		t.Fatalf("expected seeded pool: %v", err)
	}
	if gbp.SyntheticSymbol != "jGBP" {
		t.Errorf("expected symbol jGBP, got %s", gbp.SyntheticSymbol)
	}
}
