// Package bounds solves, per operation, the minimum and maximum amounts a
// user may enter given the pool's deposit-cap and GCR constraints.
//
// Solvers are pure functions of (Position, Input). The only memory across
// recomputations is the previous result, which the caller passes back in
// Input.Previous.
package bounds

import (
	"fmt"

	fp "github.com/jarvis-network/synthereum-sub002/internal/fixedpoint"
	"github.com/jarvis-network/synthereum-sub002/internal/model"
)

// ErrorKind tags why an input is not valid. Every kind is recoverable by the
// user changing the input.
type ErrorKind int

const (
	None ErrorKind = iota
	BelowMinimum
	ExceedsCap
	MintLimitReached
	BelowMinimumSponsorPosition
	BelowLiquidationThreshold
	DegenerateInput
)

var kindNames = map[ErrorKind]string{
	None:                        "",
	BelowMinimum:                "below_minimum",
	ExceedsCap:                  "exceeds_cap",
	MintLimitReached:            "mint_limit_reached",
	BelowMinimumSponsorPosition: "below_minimum_sponsor_position",
	BelowLiquidationThreshold:   "below_liquidation_threshold",
	DegenerateInput:             "degenerate_input",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("error_kind(%d)", int(k))
}

// MarshalText encodes the kind by name.
func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *ErrorKind) UnmarshalText(text []byte) error {
	for kind, name := range kindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("bounds: unknown error kind %q", text)
}

// Leg identifies one of the two amount fields.
type Leg int

const (
	LegCollateral Leg = iota
	LegSynthetic
)

func (l Leg) String() string {
	if l == LegSynthetic {
		return "synthetic"
	}
	return "collateral"
}

// MarshalText encodes the leg by name.
func (l Leg) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText decodes "collateral" or "synthetic".
func (l *Leg) UnmarshalText(text []byte) error {
	switch string(text) {
	case "collateral", "":
		*l = LegCollateral
	case "synthetic":
		*l = LegSynthetic
	default:
		return fmt.Errorf("bounds: unknown leg %q", text)
	}
	return nil
}

// Amount is an optional user-entered quantity. An empty input field is an
// Amount with Present == false.
type Amount struct {
	Value   fp.Value
	Present bool
}

// Some returns a present Amount.
func Some(v fp.Value) Amount {
	return Amount{Value: v, Present: true}
}

// Input is what the user has typed so far.
type Input struct {
	Collateral Amount
	Synthetic  Amount
	// Focus is the field the user edited most recently.
	Focus Leg
	// Previous is the result of the last computation, if any. Its range for
	// the focused leg is reused so that bounds never depend on the leg being
	// solved for.
	Previous *Bounds
}

// Bounds is the legal input range for both legs and the validity of the
// current input against it.
type Bounds struct {
	MinCollateral fp.Value  `json:"min_collateral"`
	MaxCollateral fp.Value  `json:"max_collateral"`
	MinSynthetic  fp.Value  `json:"min_synthetic"`
	MaxSynthetic  fp.Value  `json:"max_synthetic"`
	Valid         bool      `json:"valid"`
	ErrorKind     ErrorKind `json:"error_kind,omitempty"`
	// MaxRedeem is set when a redeem request closes the whole position.
	MaxRedeem bool `json:"max_redeem,omitempty"`
}

// Empty reports whether neither leg has input.
func (in Input) Empty() bool {
	return !in.Collateral.Present && !in.Synthetic.Present
}

// focus returns the leg bounds are derived from: the declared focus when
// that field has input, otherwise whichever field does.
func (in Input) focus() Leg {
	switch {
	case in.Focus == LegSynthetic && in.Synthetic.Present:
		return LegSynthetic
	case in.Focus == LegCollateral && in.Collateral.Present:
		return LegCollateral
	case in.Synthetic.Present:
		return LegSynthetic
	}
	return LegCollateral
}

// Solve dispatches to the per-operation solver. Withdraw needs the price to
// evaluate the resulting ratio. A price that is present but not positive
// makes every operation degenerate; a missing price only blocks withdraw.
func Solve(op model.Operation, p model.Position, price *model.Price, in Input) Bounds {
	if in.Empty() {
		return Bounds{}
	}
	if price != nil && (!price.CollateralPrice.IsPositive() || !price.SyntheticPrice.IsPositive()) {
		return degenerate()
	}
	switch op {
	case model.OpBorrow:
		return Borrow(p, in)
	case model.OpDeposit:
		return Deposit(p, in)
	case model.OpRepay:
		return Repay(p, in)
	case model.OpRedeem:
		return Redeem(p, in)
	case model.OpWithdraw:
		return Withdraw(p, price, in)
	}
	return Bounds{ErrorKind: DegenerateInput}
}

// check classifies v against [min, max]. A single-point range at a non-zero
// value accepts any input: such ranges appear when the pool is at capacity
// and the ledger settles the exact point.
func check(v, min, max fp.Value) ErrorKind {
	if !v.IsPositive() {
		return BelowMinimum
	}
	if min.Eq(max) && max.IsPositive() {
		return None
	}
	if v.Lt(min) {
		return BelowMinimum
	}
	if v.Gt(max) {
		return ExceedsCap
	}
	return None
}

// twoSided resolves the ranges of a two-legged operation. solveSynthetic
// maps a collateral amount to the synthetic range and solveCollateral the
// reverse. The leg being solved for is always computed from the focused
// leg, the focused leg's own range comes from the previous result when it
// holds one.
func twoSided(in Input, solveSynthetic, solveCollateral func(fp.Value) (fp.Value, fp.Value)) Bounds {
	var b Bounds
	if in.focus() == LegCollateral {
		b.MinSynthetic, b.MaxSynthetic = solveSynthetic(in.Collateral.Value)
		switch {
		case in.Previous != nil && in.Previous.MaxCollateral.IsPositive():
			b.MinCollateral, b.MaxCollateral = in.Previous.MinCollateral, in.Previous.MaxCollateral
		case in.Synthetic.Present:
			b.MinCollateral, b.MaxCollateral = solveCollateral(in.Synthetic.Value)
		}
	} else {
		b.MinCollateral, b.MaxCollateral = solveCollateral(in.Synthetic.Value)
		switch {
		case in.Previous != nil && in.Previous.MaxSynthetic.IsPositive():
			b.MinSynthetic, b.MaxSynthetic = in.Previous.MinSynthetic, in.Previous.MaxSynthetic
		case in.Collateral.Present:
			b.MinSynthetic, b.MaxSynthetic = solveSynthetic(in.Collateral.Value)
		}
	}
	return b
}

// validateBoth sets Valid once both legs are present and in range.
func (b *Bounds) validateBoth(in Input) {
	if !in.Collateral.Present || !in.Synthetic.Present {
		return
	}
	if k := check(in.Collateral.Value, b.MinCollateral, b.MaxCollateral); k != None {
		b.ErrorKind = k
		return
	}
	if k := check(in.Synthetic.Value, b.MinSynthetic, b.MaxSynthetic); k != None {
		b.ErrorKind = k
		return
	}
	b.Valid = true
}

// sponsorFloorViolated reports whether leaving remaining tokens would create
// a non-zero position smaller than the protocol minimum.
func sponsorFloorViolated(p model.Position, remaining fp.Value) bool {
	return remaining.IsPositive() && remaining.Lt(p.MinSponsorTokens)
}

func degenerate() Bounds {
	return Bounds{ErrorKind: DegenerateInput}
}
