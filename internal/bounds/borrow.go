package bounds

import (
	fp "github.com/jarvis-network/synthereum-sub002/internal/fixedpoint"
	"github.com/jarvis-network/synthereum-sub002/internal/model"
)

// BorrowCollateralSlack is subtracted from the maximum collateral solved
// from a synthetic amount. It keeps the quoted cap strictly under the
// deposit-cap ratio after ledger rounding.
//
// The value is an unverified tolerance carried over from production quotes.
var BorrowCollateralSlack = fp.MustParse("0.1")

// Borrow bounds a mint of synthetic tokens against collateral. The GCR gives
// the minimum collateral per token and the deposit-cap ratio the maximum; a
// cap below the GCR leaves no legal range and is degenerate.
func Borrow(p model.Position, in Input) Bounds {
	if in.Empty() {
		return Bounds{}
	}
	gcr, capRatio := p.CollateralizationRatio, p.CapDepositRatio
	if !gcr.IsPositive() || capRatio.Lt(gcr) {
		return degenerate()
	}

	var solveSynthetic, solveCollateral func(fp.Value) (fp.Value, fp.Value)
	switch pos := p.Branch().(type) {
	case model.NewPosition:
		solveSynthetic = func(c fp.Value) (fp.Value, fp.Value) {
			return span(c.Div(capRatio), c.Div(gcr))
		}
		solveCollateral = func(t fp.Value) (fp.Value, fp.Value) {
			return span(t.Mul(gcr), t.Mul(capRatio).Sub(BorrowCollateralSlack))
		}
	case model.ExistingPosition:
		solveSynthetic = func(c fp.Value) (fp.Value, fp.Value) {
			total := pos.Collateral.Add(c)
			return span(total.Div(capRatio).Sub(pos.Tokens), total.Div(gcr).Sub(pos.Tokens))
		}
		solveCollateral = func(t fp.Value) (fp.Value, fp.Value) {
			total := pos.Tokens.Add(t)
			return span(
				total.Mul(gcr).Sub(pos.Collateral),
				total.Mul(capRatio).Sub(pos.Collateral).Sub(BorrowCollateralSlack),
			)
		}
	}

	b := twoSided(in, solveSynthetic, solveCollateral)
	if in.Synthetic.Present && mintLimitReached(p, in.Synthetic.Value) {
		b.ErrorKind = MintLimitReached
		return b
	}
	b.validateBoth(in)
	return b
}

// mintLimitReached reports whether minting t would take the pool's
// outstanding supply past its mint cap. A zero cap means uncapped.
func mintLimitReached(p model.Position, t fp.Value) bool {
	if !p.CapMintAmount.IsPositive() {
		return false
	}
	return p.TotalTokensOutstanding.Add(t).Gt(p.CapMintAmount)
}

// span clamps a solved range at zero and collapses it to its upper end when
// the lower end overtakes it.
func span(min, max fp.Value) (fp.Value, fp.Value) {
	min, max = min.ClampZero(), max.ClampZero()
	if min.Gt(max) {
		min = max
	}
	return min, max
}
