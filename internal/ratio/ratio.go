// Package ratio derives collateralization ratios and liquidation prices from
// position state and live prices.
//
// Ratios are returned as percentages (149.7 meaning 149.7%). Degenerate
// inputs (non-positive prices or denominators) produce zero, never a panic:
// every division below is guarded.
package ratio

import (
	fp "github.com/jarvis-network/synthereum-sub002/internal/fixedpoint"
	"github.com/jarvis-network/synthereum-sub002/internal/model"
)

// Change is the user's requested adjustment plus the fee charged on it.
// Fee is denominated in collateral and is deducted from the position.
type Change struct {
	Collateral fp.Value
	Synthetic  fp.Value
	Fee        fp.Value
}

// GlobalCollateralizationRatio returns gcr * (1/price) * 100. A missing price
// yields the display sentinel 1, a non-positive price yields 0.
func GlobalCollateralizationRatio(gcr fp.Value, syntheticPrice *fp.Value) fp.Value {
	if syntheticPrice == nil {
		return fp.One
	}
	if !syntheticPrice.IsPositive() {
		return fp.Zero
	}
	return gcr.Mul(fp.One.Div(*syntheticPrice)).Mul(fp.Hundred)
}

// UserCollateralizationRatio returns
// (collateral/tokens) * (collateralPrice/syntheticPrice) * 100.
func UserCollateralizationRatio(collateral, tokens, syntheticPrice, collateralPrice fp.Value) fp.Value {
	if !collateral.IsPositive() {
		return fp.Zero
	}
	if !tokens.IsPositive() || !syntheticPrice.IsPositive() {
		return fp.Zero
	}
	return collateral.Div(tokens).Mul(collateralPrice.Div(syntheticPrice)).Mul(fp.Hundred)
}

// PostOperation returns the collateral and tokens a position would hold after
// op. ok is false when the result is not a position: a new position for
// anything but borrow, or an existing one whose debt would reach zero.
func PostOperation(op model.Operation, b model.Branch, c Change) (collateral, tokens fp.Value, ok bool) {
	switch b := b.(type) {
	case model.NewPosition:
		if op != model.OpBorrow {
			return fp.Zero, fp.Zero, false
		}
		collateral, tokens = c.Collateral.Sub(c.Fee), c.Synthetic
	case model.ExistingPosition:
		switch op {
		case model.OpBorrow:
			collateral = b.Collateral.Add(c.Collateral).Sub(c.Fee)
			tokens = b.Tokens.Add(c.Synthetic)
		case model.OpDeposit:
			collateral, tokens = b.Collateral.Add(c.Collateral), b.Tokens
		case model.OpRepay:
			collateral, tokens = b.Collateral.Sub(c.Fee), b.Tokens.Sub(c.Synthetic)
		case model.OpRedeem:
			collateral = b.Collateral.Sub(c.Collateral).Sub(c.Fee)
			tokens = b.Tokens.Sub(c.Synthetic)
		case model.OpWithdraw:
			collateral, tokens = b.Collateral.Sub(c.Collateral), b.Tokens
		default:
			return fp.Zero, fp.Zero, false
		}
	default:
		return fp.Zero, fp.Zero, false
	}
	if !tokens.IsPositive() {
		return fp.Zero, fp.Zero, false
	}
	return collateral, tokens, true
}

// BorrowRatio is the collateralization ratio after minting c.Synthetic
// against c.Collateral.
func BorrowRatio(b model.Branch, c Change, price model.Price) fp.Value {
	switch b := b.(type) {
	case model.NewPosition:
		// (collateral - fee) / synthetic
		return UserCollateralizationRatio(c.Collateral.Sub(c.Fee), c.Synthetic,
			price.SyntheticPrice, price.CollateralPrice)
	case model.ExistingPosition:
		// (positionCollateral + collateral - fee) / (positionTokens + synthetic)
		return UserCollateralizationRatio(b.Collateral.Add(c.Collateral).Sub(c.Fee), b.Tokens.Add(c.Synthetic),
			price.SyntheticPrice, price.CollateralPrice)
	}
	return fp.Zero
}

// DepositRatio is the ratio after adding c.Collateral. Depositing into a new
// position is undefined and yields zero.
func DepositRatio(b model.Branch, c Change, price model.Price) fp.Value {
	switch b := b.(type) {
	case model.ExistingPosition:
		return UserCollateralizationRatio(b.Collateral.Add(c.Collateral), b.Tokens,
			price.SyntheticPrice, price.CollateralPrice)
	}
	return fp.Zero
}

// RepayRatio is the ratio after burning c.Synthetic while keeping the
// collateral (less the fee).
func RepayRatio(b model.Branch, c Change, price model.Price) fp.Value {
	switch b := b.(type) {
	case model.ExistingPosition:
		return UserCollateralizationRatio(b.Collateral.Sub(c.Fee), b.Tokens.Sub(c.Synthetic),
			price.SyntheticPrice, price.CollateralPrice)
	}
	return fp.Zero
}

// RedeemRatio is the ratio after burning c.Synthetic and receiving
// c.Collateral. Closing the position yields zero.
func RedeemRatio(b model.Branch, c Change, price model.Price) fp.Value {
	switch b := b.(type) {
	case model.ExistingPosition:
		return UserCollateralizationRatio(b.Collateral.Sub(c.Collateral).Sub(c.Fee), b.Tokens.Sub(c.Synthetic),
			price.SyntheticPrice, price.CollateralPrice)
	}
	return fp.Zero
}

// WithdrawRatio is the ratio after removing c.Collateral.
func WithdrawRatio(b model.Branch, c Change, price model.Price) fp.Value {
	switch b := b.(type) {
	case model.ExistingPosition:
		return UserCollateralizationRatio(b.Collateral.Sub(c.Collateral), b.Tokens,
			price.SyntheticPrice, price.CollateralPrice)
	}
	return fp.Zero
}

// NewRatio dispatches to the per-operation ratio formula.
func NewRatio(op model.Operation, b model.Branch, c Change, price model.Price) fp.Value {
	switch op {
	case model.OpBorrow:
		return BorrowRatio(b, c, price)
	case model.OpDeposit:
		return DepositRatio(b, c, price)
	case model.OpRepay:
		return RepayRatio(b, c, price)
	case model.OpRedeem:
		return RedeemRatio(b, c, price)
	case model.OpWithdraw:
		return WithdrawRatio(b, c, price)
	}
	return fp.Zero
}

// LiquidationPrice returns
// collateralRequirement * (tokens'/collateral') * syntheticPrice
// for the post-operation position, the collateral price at which the
// position becomes liquidatable.
func LiquidationPrice(op model.Operation, b model.Branch, c Change, requirement fp.Value, price model.Price) fp.Value {
	collateral, tokens, ok := PostOperation(op, b, c)
	if !ok || !collateral.IsPositive() || !price.SyntheticPrice.IsPositive() {
		return fp.Zero
	}
	return requirement.Mul(tokens.Div(collateral)).Mul(price.SyntheticPrice)
}
