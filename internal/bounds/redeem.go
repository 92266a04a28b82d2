package bounds

import (
	"github.com/holiman/uint256"

	fp "github.com/jarvis-network/synthereum-sub002/internal/fixedpoint"
	"github.com/jarvis-network/synthereum-sub002/internal/model"
)

// RedeemDustUnits is the number of synthetic base units under the full
// position at which a redeem is treated as closing the position. Leaving
// less behind would strand dust the ledger cannot redeem later.
//
// The value is an unverified tolerance carried over from production quotes.
const RedeemDustUnits = 50

// Redeem bounds a burn of synthetic tokens in exchange for collateral at the
// position's own collateral per token.
//
// A synthetic amount within RedeemDustUnits of the whole position switches to
// max-redeem: both ranges collapse to the full position and the result has
// MaxRedeem set.
func Redeem(p model.Position, in Input) Bounds {
	if in.Empty() {
		return Bounds{}
	}
	pos, ok := p.Branch().(model.ExistingPosition)
	if !ok || !pos.Collateral.IsPositive() {
		return degenerate()
	}
	dust, err := fp.FromBaseUnits(uint256.NewInt(RedeemDustUnits), p.SyntheticDecimals)
	if err != nil {
		return degenerate()
	}

	if in.Synthetic.Present && in.Synthetic.Value.Gt(pos.Tokens.Sub(dust)) {
		b := Bounds{
			MinCollateral: pos.Collateral,
			MaxCollateral: pos.Collateral,
			MinSynthetic:  pos.Tokens,
			MaxSynthetic:  pos.Tokens,
			MaxRedeem:     true,
		}
		if in.Synthetic.Value.Gt(pos.Tokens) {
			b.ErrorKind = ExceedsCap
			return b
		}
		b.Valid = true
		return b
	}

	perToken := pos.Collateral.Div(pos.Tokens)
	if !perToken.IsPositive() {
		return degenerate()
	}
	b := twoSided(in,
		func(c fp.Value) (fp.Value, fp.Value) {
			return span(c.Div(perToken), pos.Tokens)
		},
		func(t fp.Value) (fp.Value, fp.Value) {
			return span(fp.Zero, t.Mul(perToken))
		},
	)
	b.validateBoth(in)
	if b.Valid && sponsorFloorViolated(p, pos.Tokens.Sub(in.Synthetic.Value)) {
		b.Valid = false
		b.ErrorKind = BelowMinimumSponsorPosition
	}
	return b
}
