// Package risk composes ratio math, fee calculation and bound solving into
// one entry point per position operation.
//
// Every function here is a pure function of its arguments. Callers re-run
// the engine on each input or price change and pass the previous bounds back
// in Request.Previous.
package risk

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jarvis-network/synthereum-sub002/internal/bounds"
	"github.com/jarvis-network/synthereum-sub002/internal/fee"
	fp "github.com/jarvis-network/synthereum-sub002/internal/fixedpoint"
	"github.com/jarvis-network/synthereum-sub002/internal/model"
	"github.com/jarvis-network/synthereum-sub002/internal/ratio"
)

var (
	// ErrInvalidAmount is returned when an amount string is not a
	// non-negative decimal number.
	ErrInvalidAmount = errors.New("risk: invalid amount")

	// ErrUnknownOperation is returned by Evaluate for an unsupported operation.
	ErrUnknownOperation = errors.New("risk: unknown operation")
)

// Request is the raw user input for one operation. Empty strings mean the
// field has not been filled in.
type Request struct {
	Collateral string         `json:"collateral"`
	Synthetic  string         `json:"synthetic"`
	Focus      bounds.Leg     `json:"focus"`
	Previous   *bounds.Bounds `json:"previous,omitempty"`
}

// Snapshot is the projected state of the position if the operation executes.
// NewRatio is a percentage. All fields are zero unless the input is valid.
type Snapshot struct {
	NewRatio         fp.Value `json:"new_ratio"`
	LiquidationPrice fp.Value `json:"liquidation_price"`
	Fee              fp.Value `json:"fee"`
}

// Result is the engine output for one operation.
type Result struct {
	Operation model.Operation  `json:"operation"`
	Bounds    bounds.Bounds    `json:"bounds"`
	Snapshot  Snapshot         `json:"snapshot"`
	Valid     bool             `json:"valid"`
	ErrorKind bounds.ErrorKind `json:"error_kind,omitempty"`

	// GlobalRatio and UserRatio describe the pool and the position before
	// the operation, as percentages.
	GlobalRatio fp.Value `json:"global_ratio"`
	UserRatio   fp.Value `json:"user_ratio"`

	// SlowWithdrawal is set on a valid withdrawal that leaves the position
	// under the GCR. The ledger queues such withdrawals.
	SlowWithdrawal bool `json:"slow_withdrawal,omitempty"`
}

// Borrow evaluates minting synthetic tokens against collateral.
func Borrow(pos model.Position, price *model.Price, req Request) (Result, error) {
	return evaluate(model.OpBorrow, pos, price, req)
}

// Deposit evaluates adding collateral to an existing position.
func Deposit(pos model.Position, price *model.Price, req Request) (Result, error) {
	return evaluate(model.OpDeposit, pos, price, req)
}

// Repay evaluates burning synthetic tokens while keeping the collateral.
func Repay(pos model.Position, price *model.Price, req Request) (Result, error) {
	return evaluate(model.OpRepay, pos, price, req)
}

// Redeem evaluates burning synthetic tokens for collateral.
func Redeem(pos model.Position, price *model.Price, req Request) (Result, error) {
	return evaluate(model.OpRedeem, pos, price, req)
}

// Withdraw evaluates removing collateral from an existing position.
func Withdraw(pos model.Position, price *model.Price, req Request) (Result, error) {
	return evaluate(model.OpWithdraw, pos, price, req)
}

// Evaluate dispatches on op.
func Evaluate(op model.Operation, pos model.Position, price *model.Price, req Request) (Result, error) {
	if !op.Valid() {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownOperation, op)
	}
	return evaluate(op, pos, price, req)
}

func evaluate(op model.Operation, pos model.Position, price *model.Price, req Request) (Result, error) {
	in, err := parseInput(pos, req)
	if err != nil {
		return Result{}, err
	}

	var px model.Price
	if price != nil {
		px = *price
	}

	b := bounds.Solve(op, pos, price, in)
	res := Result{
		Operation:   op,
		Bounds:      b,
		Valid:       b.Valid,
		ErrorKind:   b.ErrorKind,
		GlobalRatio: globalRatio(pos, price),
		UserRatio: ratio.UserCollateralizationRatio(pos.PositionCollateral, pos.PositionTokens,
			px.SyntheticPrice, px.CollateralPrice),
	}
	if !b.Valid {
		return res, nil
	}

	// Absent legs carry a zero Value.
	synthetic, collateral := in.Synthetic.Value, in.Collateral.Value
	res.Snapshot.Fee = fee.ForOperation(op, pos, synthetic)
	if b.MaxRedeem {
		return res, nil
	}

	branch := pos.Branch()
	change := ratio.Change{Collateral: collateral, Synthetic: synthetic, Fee: res.Snapshot.Fee}
	res.Snapshot.NewRatio = ratio.NewRatio(op, branch, change, px)
	res.Snapshot.LiquidationPrice = ratio.LiquidationPrice(op, branch, change, pos.CollateralRequirement, px)

	if op == model.OpWithdraw {
		res.SlowWithdrawal = res.Snapshot.NewRatio.Lt(gcrThreshold(pos, px))
	}
	return res, nil
}

// WithdrawalReady reports whether a queued slow withdrawal may be executed.
func WithdrawalReady(pos model.Position, now time.Time) bool {
	if !pos.PendingWithdrawalAmount.IsPositive() {
		return false
	}
	return !now.Before(pos.PendingWithdrawalTimestamp)
}

func globalRatio(pos model.Position, price *model.Price) fp.Value {
	if price == nil {
		return ratio.GlobalCollateralizationRatio(pos.CollateralizationRatio, nil)
	}
	return ratio.GlobalCollateralizationRatio(pos.CollateralizationRatio, &price.SyntheticPrice)
}

// gcrThreshold expresses the pool GCR on the same price basis as a position
// ratio, so it compares against NewRatio directly.
func gcrThreshold(pos model.Position, px model.Price) fp.Value {
	return ratio.UserCollateralizationRatio(pos.CollateralizationRatio, fp.One, px.SyntheticPrice, px.CollateralPrice)
}

func parseInput(pos model.Position, req Request) (bounds.Input, error) {
	in := bounds.Input{Focus: req.Focus, Previous: req.Previous}
	var err error
	if in.Collateral, err = parseAmount(req.Collateral, pos.CollateralDecimals); err != nil {
		return in, fmt.Errorf("collateral: %w", err)
	}
	if in.Synthetic, err = parseAmount(req.Synthetic, pos.SyntheticDecimals); err != nil {
		return in, fmt.Errorf("synthetic: %w", err)
	}
	return in, nil
}

func parseAmount(s string, decimals uint8) (bounds.Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return bounds.Amount{}, nil
	}
	v, err := fp.ParseUnits(s, decimals)
	if err != nil {
		return bounds.Amount{}, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	if v.Sign() < 0 {
		return bounds.Amount{}, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, s)
	}
	return bounds.Some(v), nil
}
