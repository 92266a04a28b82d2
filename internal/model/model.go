// Package model defines the core domain types shared across the risk engine
// and the snapshot service. All monetary values use fixedpoint.Value, never
// float64 for money.
package model

import (
	"time"

	"github.com/jarvis-network/synthereum-sub002/internal/fixedpoint"
)

// Operation is a position adjustment the engine can evaluate.
type Operation string

const (
	OpBorrow   Operation = "borrow"
	OpDeposit  Operation = "deposit"
	OpRepay    Operation = "repay"
	OpRedeem   Operation = "redeem"
	OpWithdraw Operation = "withdraw"
)

// Operations lists every supported operation.
var Operations = []Operation{OpBorrow, OpDeposit, OpRepay, OpRedeem, OpWithdraw}

// Valid reports whether op is a known operation.
func (op Operation) Valid() bool {
	switch op {
	case OpBorrow, OpDeposit, OpRepay, OpRedeem, OpWithdraw:
		return true
	}
	return false
}

// Position is the snapshot of one sponsor position together with the pool
// parameters that constrain it. It is read once per computation and never
// mutated by the engine.
//
// Ratios (CollateralizationRatio, LiquidationRatio, CollateralRequirement,
// CapDepositRatio) are plain collateral-per-token factors, 1.5 meaning 150%.
// Invariant: PositionTokens == 0 implies PositionCollateral == 0.
type Position struct {
	PositionCollateral     fixedpoint.Value `json:"position_collateral"`
	PositionTokens         fixedpoint.Value `json:"position_tokens"`
	CollateralizationRatio fixedpoint.Value `json:"collateralization_ratio"` // pool GCR
	LiquidationRatio       fixedpoint.Value `json:"liquidation_ratio"`
	CollateralRequirement  fixedpoint.Value `json:"collateral_requirement"`
	FeePercentage          fixedpoint.Value `json:"fee_percentage"`
	CapDepositRatio        fixedpoint.Value `json:"cap_deposit_ratio"`
	CapMintAmount          fixedpoint.Value `json:"cap_mint_amount"`
	TotalTokensOutstanding fixedpoint.Value `json:"total_tokens_outstanding"`
	MinSponsorTokens       fixedpoint.Value `json:"min_sponsor_tokens"`
	CollateralDecimals     uint8            `json:"collateral_decimals"`
	SyntheticDecimals      uint8            `json:"synthetic_decimals"`

	PendingWithdrawalAmount    fixedpoint.Value `json:"pending_withdrawal_amount"`
	PendingWithdrawalTimestamp time.Time        `json:"pending_withdrawal_timestamp"`
}

// Branch selects the formula family for a position: opening a new position
// or adjusting an existing one.
func (p Position) Branch() Branch {
	if !p.PositionTokens.IsPositive() {
		return NewPosition{}
	}
	return ExistingPosition{
		Collateral: p.PositionCollateral,
		Tokens:     p.PositionTokens,
	}
}

// Branch is the tagged union NewPosition | ExistingPosition. Formulas
// dispatch on it once with a type switch.
type Branch interface {
	isBranch()
}

// NewPosition is a sponsor with no outstanding debt. Per-unit ratios of the
// current position are undefined.
type NewPosition struct{}

// ExistingPosition is a sponsor with Tokens > 0.
type ExistingPosition struct {
	Collateral fixedpoint.Value
	Tokens     fixedpoint.Value
}

func (NewPosition) isBranch()      {}
func (ExistingPosition) isBranch() {}

// Price is an oracle snapshot. Both prices are quoted in the same unit.
type Price struct {
	CollateralPrice fixedpoint.Value `json:"collateral_price"`
	SyntheticPrice  fixedpoint.Value `json:"synthetic_price"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// Pool holds the pool-wide parameters and the latest price for one
// synthetic/collateral pair.
type Pool struct {
	ID                     string           `json:"id"`
	SyntheticSymbol        string           `json:"synthetic_symbol"`
	CollateralSymbol       string           `json:"collateral_symbol"`
	CollateralizationRatio fixedpoint.Value `json:"collateralization_ratio"`
	LiquidationRatio       fixedpoint.Value `json:"liquidation_ratio"`
	CollateralRequirement  fixedpoint.Value `json:"collateral_requirement"`
	FeePercentage          fixedpoint.Value `json:"fee_percentage"`
	CapDepositRatio        fixedpoint.Value `json:"cap_deposit_ratio"`
	CapMintAmount          fixedpoint.Value `json:"cap_mint_amount"`
	TotalTokensOutstanding fixedpoint.Value `json:"total_tokens_outstanding"`
	MinSponsorTokens       fixedpoint.Value `json:"min_sponsor_tokens"`
	CollateralDecimals     uint8            `json:"collateral_decimals"`
	SyntheticDecimals      uint8            `json:"synthetic_decimals"`
	Price                  *Price           `json:"price,omitempty"`
	UpdatedAt              time.Time        `json:"updated_at"`
}

// SponsorPosition is the per-sponsor part of a position snapshot.
type SponsorPosition struct {
	PoolID                     string           `json:"pool_id"`
	Sponsor                    string           `json:"sponsor"`
	Collateral                 fixedpoint.Value `json:"collateral"`
	Tokens                     fixedpoint.Value `json:"tokens"`
	PendingWithdrawalAmount    fixedpoint.Value `json:"pending_withdrawal_amount"`
	PendingWithdrawalTimestamp time.Time        `json:"pending_withdrawal_timestamp"`
	UpdatedAt                  time.Time        `json:"updated_at"`
}

// PositionFor composes the engine Position for one sponsor of the pool.
// A nil sponsor yields a new (empty) position.
func (p *Pool) PositionFor(sp *SponsorPosition) Position {
	pos := Position{
		CollateralizationRatio: p.CollateralizationRatio,
		LiquidationRatio:       p.LiquidationRatio,
		CollateralRequirement:  p.CollateralRequirement,
		FeePercentage:          p.FeePercentage,
		CapDepositRatio:        p.CapDepositRatio,
		CapMintAmount:          p.CapMintAmount,
		TotalTokensOutstanding: p.TotalTokensOutstanding,
		MinSponsorTokens:       p.MinSponsorTokens,
		CollateralDecimals:     p.CollateralDecimals,
		SyntheticDecimals:      p.SyntheticDecimals,
	}
	if sp != nil {
		pos.PositionCollateral = sp.Collateral
		pos.PositionTokens = sp.Tokens
		pos.PendingWithdrawalAmount = sp.PendingWithdrawalAmount
		pos.PendingWithdrawalTimestamp = sp.PendingWithdrawalTimestamp
	}
	return pos
}

// QuoteRecord is an immutable audit entry of one engine evaluation.
type QuoteRecord struct {
	ID               string           `json:"id"`
	PoolID           string           `json:"pool_id"`
	Sponsor          string           `json:"sponsor"`
	Operation        Operation        `json:"operation"`
	Collateral       string           `json:"collateral"`
	Synthetic        string           `json:"synthetic"`
	Valid            bool             `json:"valid"`
	ErrorKind        string           `json:"error_kind,omitempty"`
	NewRatio         fixedpoint.Value `json:"new_ratio"`
	LiquidationPrice fixedpoint.Value `json:"liquidation_price"`
	Fee              fixedpoint.Value `json:"fee"`
	Timestamp        time.Time        `json:"timestamp"`
}
