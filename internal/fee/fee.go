// Package fee computes the protocol fee charged on position adjustments.
package fee

import (
	fp "github.com/jarvis-network/synthereum-sub002/internal/fixedpoint"
	"github.com/jarvis-network/synthereum-sub002/internal/model"
)

// Compute returns amount * collateralizationRatio * feePercentage / 10^36:
// both 18-decimal multiplications share one descale, so the result is
// linear in amount up to a single truncation unit.
func Compute(amount, collateralizationRatio, feePercentage fp.Value) fp.Value {
	if !amount.IsPositive() || !collateralizationRatio.IsPositive() || !feePercentage.IsPositive() {
		return fp.Zero
	}
	return fp.Mul3(amount, collateralizationRatio, feePercentage)
}

// ApplicableRatio is the collateral-per-token factor the fee is levied at:
// the pool GCR when opening a position, the position's own
// collateral/tokens when adjusting one.
func ApplicableRatio(p model.Position) fp.Value {
	switch b := p.Branch().(type) {
	case model.ExistingPosition:
		return b.Collateral.Div(b.Tokens)
	}
	return p.CollateralizationRatio
}

// ForOperation returns the fee for op on the synthetic leg. Deposits and
// withdrawals move collateral only and are free.
func ForOperation(op model.Operation, p model.Position, synthetic fp.Value) fp.Value {
	switch op {
	case model.OpBorrow, model.OpRepay, model.OpRedeem:
		return Compute(synthetic, ApplicableRatio(p), p.FeePercentage)
	}
	return fp.Zero
}
