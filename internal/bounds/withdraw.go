package bounds

import (
	fp "github.com/jarvis-network/synthereum-sub002/internal/fixedpoint"
	"github.com/jarvis-network/synthereum-sub002/internal/model"
	"github.com/jarvis-network/synthereum-sub002/internal/ratio"
)

// Withdraw bounds a collateral withdrawal. There is no cap solver: any
// amount up to the position's collateral is in range, and the input is
// valid only while the resulting ratio stays above the liquidation ratio.
func Withdraw(p model.Position, price *model.Price, in Input) Bounds {
	if in.Empty() {
		return Bounds{}
	}
	branch := p.Branch()
	pos, ok := branch.(model.ExistingPosition)
	if !ok {
		return degenerate()
	}
	if price == nil || !price.SyntheticPrice.IsPositive() || !price.CollateralPrice.IsPositive() {
		return degenerate()
	}

	b := Bounds{MinCollateral: fp.Zero, MaxCollateral: pos.Collateral}
	if !in.Collateral.Present {
		return b
	}
	if k := check(in.Collateral.Value, b.MinCollateral, b.MaxCollateral); k != None {
		b.ErrorKind = k
		return b
	}

	after := ratio.WithdrawRatio(branch, ratio.Change{Collateral: in.Collateral.Value}, *price)
	if after.Lte(p.LiquidationRatio.Mul(fp.Hundred)) {
		b.ErrorKind = BelowLiquidationThreshold
		return b
	}
	b.Valid = true
	return b
}
