package bounds

import (
	fp "github.com/jarvis-network/synthereum-sub002/internal/fixedpoint"
	"github.com/jarvis-network/synthereum-sub002/internal/model"
)

// Repay bounds a burn of synthetic tokens that keeps the collateral in the
// position. Burning raises collateral per token, so the cap is the amount
// that keeps the position under the deposit-cap ratio and at or above the
// minimum sponsor size.
func Repay(p model.Position, in Input) Bounds {
	if in.Empty() {
		return Bounds{}
	}
	pos, ok := p.Branch().(model.ExistingPosition)
	if !ok || !p.CapDepositRatio.IsPositive() {
		return degenerate()
	}

	byCap := pos.Tokens.Sub(pos.Collateral.Div(p.CapDepositRatio))
	byFloor := pos.Tokens.Sub(p.MinSponsorTokens)
	b := Bounds{
		MinSynthetic: fp.Zero,
		MaxSynthetic: fp.Min(byCap, byFloor).ClampZero(),
	}
	if !in.Synthetic.Present {
		return b
	}

	t := in.Synthetic.Value
	remaining := pos.Tokens.Sub(t)
	switch {
	case !t.IsPositive():
		b.ErrorKind = BelowMinimum
	case remaining.Sign() < 0:
		b.ErrorKind = ExceedsCap
	case sponsorFloorViolated(p, remaining):
		b.ErrorKind = BelowMinimumSponsorPosition
	case t.Gt(b.MaxSynthetic):
		b.ErrorKind = ExceedsCap
	default:
		b.Valid = true
	}
	return b
}
