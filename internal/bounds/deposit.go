package bounds

import (
	fp "github.com/jarvis-network/synthereum-sub002/internal/fixedpoint"
	"github.com/jarvis-network/synthereum-sub002/internal/model"
)

// Deposit bounds a collateral top-up. The position may hold at most
// tokens * capDepositRatio collateral; the synthetic leg is ignored.
func Deposit(p model.Position, in Input) Bounds {
	if in.Empty() {
		return Bounds{}
	}
	pos, ok := p.Branch().(model.ExistingPosition)
	if !ok || !p.CapDepositRatio.IsPositive() {
		return degenerate()
	}

	b := Bounds{
		MinCollateral: fp.Zero,
		MaxCollateral: pos.Tokens.Mul(p.CapDepositRatio).Sub(pos.Collateral).ClampZero(),
	}
	if !in.Collateral.Present {
		return b
	}
	if k := check(in.Collateral.Value, b.MinCollateral, b.MaxCollateral); k != None {
		b.ErrorKind = k
		return b
	}
	b.Valid = true
	return b
}
