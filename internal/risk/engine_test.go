package risk

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jarvis-network/synthereum-sub002/internal/bounds"
	fp "github.com/jarvis-network/synthereum-sub002/internal/fixedpoint"
	"github.com/jarvis-network/synthereum-sub002/internal/model"
)

func d(s string) fp.Value { return fp.MustParse(s) }

func unitPrice() *model.Price {
	return &model.Price{CollateralPrice: fp.One, SyntheticPrice: fp.One}
}

func pool() model.Position {
	return model.Position{
		CollateralizationRatio: d("1.5"),
		LiquidationRatio:       d("1.2"),
		CollateralRequirement:  d("1.2"),
		FeePercentage:          d("0.002"),
		CapDepositRatio:        d("2"),
		MinSponsorTokens:       d("5"),
		CollateralDecimals:     18,
		SyntheticDecimals:      18,
	}
}

func withPosition(coll, tokens string) model.Position {
	p := pool()
	p.PositionCollateral = d(coll)
	p.PositionTokens = d(tokens)
	return p
}

func assertValue(t *testing.T, want string, got fp.Value, field string) {
	t.Helper()
	assert.Truef(t, got.Eq(d(want)), "%s: expected %s, got %s", field, want, got)
}

func TestBorrow_OpeningPosition(t *testing.T) {
	res, err := Borrow(pool(), unitPrice(), Request{Collateral: "150", Synthetic: "100", Focus: bounds.LegSynthetic})
	require.NoError(t, err)
	require.True(t, res.Valid, "error kind %s", res.ErrorKind)

	assertValue(t, "0.3", res.Snapshot.Fee, "fee")
	assertValue(t, "149.7", res.Snapshot.NewRatio, "new ratio")
	assertValue(t, "0.80160320641282565", res.Snapshot.LiquidationPrice, "liquidation price")
	assertValue(t, "150", res.Bounds.MinCollateral, "min collateral")
	assertValue(t, "199.9", res.Bounds.MaxCollateral, "max collateral")
	assertValue(t, "150", res.GlobalRatio, "global ratio")
	assert.True(t, res.UserRatio.IsZero(), "new position has no user ratio")
}

func TestRedeem_MaxRedeemGuard(t *testing.T) {
	pos := withPosition("300", "0")
	pos.PositionTokens = fp.FromRawInt64(1000)
	pos.MinSponsorTokens = fp.Zero

	res, err := Redeem(pos, unitPrice(), Request{Synthetic: "0.00000000000000096", Focus: bounds.LegSynthetic})
	require.NoError(t, err)
	require.True(t, res.Valid, "error kind %s", res.ErrorKind)
	assert.True(t, res.Bounds.MaxRedeem)

	assertValue(t, "300", res.Bounds.MinCollateral, "min collateral")
	assertValue(t, "300", res.Bounds.MaxCollateral, "max collateral")
	assert.True(t, res.Snapshot.NewRatio.IsZero())
	assert.True(t, res.Snapshot.LiquidationPrice.IsZero())
	assertValue(t, "0.576", res.Snapshot.Fee, "fee")
}

func TestRepay_FloorRejection(t *testing.T) {
	res, err := Repay(withPosition("90", "60"), unitPrice(), Request{Synthetic: "58", Focus: bounds.LegSynthetic})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, bounds.BelowMinimumSponsorPosition, res.ErrorKind)
	assert.True(t, res.Snapshot.Fee.IsZero(), "invalid input carries no snapshot")
}

func TestRepay_Valid(t *testing.T) {
	res, err := Repay(withPosition("90", "60"), unitPrice(), Request{Synthetic: "10"})
	require.NoError(t, err)
	require.True(t, res.Valid, "error kind %s", res.ErrorKind)
	// fee = 10 * 1.5 * 0.002
	assertValue(t, "0.03", res.Snapshot.Fee, "fee")
	assertValue(t, "179.94", res.Snapshot.NewRatio, "new ratio")
	assertValue(t, "150", res.UserRatio, "user ratio")
}

// A missing price is not degenerate: bounds still solve and only the
// price-derived fields stay zero.
func TestDeposit_WithoutPrice(t *testing.T) {
	res, err := Deposit(withPosition("150", "100"), nil, Request{Collateral: "20"})
	require.NoError(t, err)
	require.True(t, res.Valid)
	assert.True(t, res.Snapshot.Fee.IsZero(), "deposits are free")
	assert.True(t, res.Snapshot.NewRatio.IsZero(), "no price, no ratio")
	assertValue(t, "1", res.GlobalRatio, "global ratio sentinel")
}

func TestEvaluate_NonPositivePrice(t *testing.T) {
	cases := []struct {
		op  model.Operation
		pos model.Position
		req Request
	}{
		{model.OpBorrow, pool(), Request{Collateral: "150", Synthetic: "100", Focus: bounds.LegSynthetic}},
		{model.OpDeposit, withPosition("150", "100"), Request{Collateral: "20"}},
		{model.OpRepay, withPosition("90", "60"), Request{Synthetic: "10"}},
		{model.OpRedeem, withPosition("150", "100"), Request{Collateral: "15", Synthetic: "10", Focus: bounds.LegSynthetic}},
		{model.OpWithdraw, withPosition("200", "100"), Request{Collateral: "10"}},
	}
	prices := map[string]*model.Price{
		"zero synthetic":  {CollateralPrice: fp.One, SyntheticPrice: fp.Zero},
		"zero collateral": {CollateralPrice: fp.Zero, SyntheticPrice: fp.One},
		"negative":        {CollateralPrice: fp.One, SyntheticPrice: d("-1.5")},
	}

	for _, tc := range cases {
		res, err := Evaluate(tc.op, tc.pos, unitPrice(), tc.req)
		require.NoError(t, err)
		require.Truef(t, res.Valid, "%s should be valid at a unit price, got %s", tc.op, res.ErrorKind)

		for name, price := range prices {
			t.Run(string(tc.op)+"/"+name, func(t *testing.T) {
				res, err := Evaluate(tc.op, tc.pos, price, tc.req)
				require.NoError(t, err)
				assert.False(t, res.Valid)
				assert.Equal(t, bounds.DegenerateInput, res.ErrorKind)
				assert.Equal(t, Snapshot{}, res.Snapshot)
			})
		}
	}
}

func TestWithdraw_SlowAndFast(t *testing.T) {
	pos := withPosition("200", "100")
	tests := []struct {
		amount string
		valid  bool
		slow   bool
		ratio  string
	}{
		{"40", true, false, "160"},
		{"50", true, false, "150"},
		{"60", true, true, "140"},
		{"90", false, false, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			res, err := Withdraw(pos, unitPrice(), Request{Collateral: tt.amount})
			require.NoError(t, err)
			assert.Equal(t, tt.valid, res.Valid)
			assert.Equal(t, tt.slow, res.SlowWithdrawal)
			assertValue(t, tt.ratio, res.Snapshot.NewRatio, "new ratio")
			assert.True(t, res.Snapshot.Fee.IsZero(), "withdrawals are free")
		})
	}
}

func TestEvaluate_InvalidAmount(t *testing.T) {
	for _, req := range []Request{
		{Collateral: "abc"},
		{Synthetic: "1.2.3"},
		{Collateral: "-1"},
		{Collateral: "1e9000000", Synthetic: "100"},
		{Collateral: "1e80", Synthetic: "1e79"},
	} {
		_, err := Evaluate(model.OpBorrow, pool(), unitPrice(), req)
		assert.Truef(t, errors.Is(err, ErrInvalidAmount), "request %+v: expected ErrInvalidAmount, got %v", req, err)
	}
}

func TestEvaluate_UnknownOperation(t *testing.T) {
	_, err := Evaluate(model.Operation("liquidate"), pool(), unitPrice(), Request{Collateral: "1"})
	assert.ErrorIs(t, err, ErrUnknownOperation)
}

func TestEvaluate_EmptyInput(t *testing.T) {
	for _, op := range model.Operations {
		res, err := Evaluate(op, withPosition("150", "100"), unitPrice(), Request{Collateral: " ", Synthetic: ""})
		require.NoError(t, err)
		assert.False(t, res.Valid)
		assert.Equal(t, bounds.Bounds{}, res.Bounds)
		assert.Equal(t, Snapshot{}, res.Snapshot)
	}
}

func TestParseAmount_TruncatesToTokenDecimals(t *testing.T) {
	a, err := parseAmount("150.1234567", 6)
	require.NoError(t, err)
	require.True(t, a.Present)
	assertValue(t, "150.123456", a.Value, "amount")
}

func TestEvaluate_Concurrent(t *testing.T) {
	pos := withPosition("150", "100")
	req := Request{Collateral: "30", Synthetic: "10", Focus: bounds.LegCollateral}

	want, err := Evaluate(model.OpBorrow, pos, unitPrice(), req)
	require.NoError(t, err)
	wantJSON, err := json.Marshal(want)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([][]byte, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := Evaluate(model.OpBorrow, pos, unitPrice(), req)
			if err != nil {
				return
			}
			results[i], _ = json.Marshal(res)
		}(i)
	}
	wg.Wait()

	for i, got := range results {
		assert.JSONEqf(t, string(wantJSON), string(got), "goroutine %d", i)
	}
}

func TestWithdrawalReady(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	pos := withPosition("200", "100")

	assert.False(t, WithdrawalReady(pos, now), "nothing pending")

	pos.PendingWithdrawalAmount = d("10")
	pos.PendingWithdrawalTimestamp = now.Add(time.Hour)
	assert.False(t, WithdrawalReady(pos, now))
	assert.True(t, WithdrawalReady(pos, now.Add(time.Hour)))
	assert.True(t, WithdrawalReady(pos, now.Add(2*time.Hour)))
}
