// Package fixedpoint implements the 18-decimal fixed-point number used by the
// risk engine. A Value holds the scaled integer v and represents v / 10^18.
//
// Arithmetic follows integer-ledger semantics: every multiplication and
// division truncates toward zero at 18 fraction digits, so the result of a
// composite formula depends on the order of its operations. Callers that
// must agree with the settlement ledger keep the ledger's order.
//
// The scaled integer is stored in a shopspring/decimal value restricted to
// whole numbers. Decimal is arbitrary precision, so 256-bit ledger amounts
// and their intermediate products never overflow. float64 is never used.
package fixedpoint

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Decimals is the number of implied fraction digits.
const Decimals = 18

// maxExponent bounds the decimal exponent accepted from text, in either
// direction. Larger magnitudes cannot fit in 256 bits once scaled.
const maxExponent = 96

var (
	// ErrInvalidNumber is returned when a string is not a decimal number.
	ErrInvalidNumber = errors.New("fixedpoint: invalid number")

	// ErrUnsupportedDecimals is returned for token precisions above 18 digits.
	ErrUnsupportedDecimals = errors.New("fixedpoint: token decimals exceed 18")

	// ErrNegative is returned when a negative value is converted to base units.
	ErrNegative = errors.New("fixedpoint: negative value has no base-unit form")

	// ErrOverflow is returned when a value does not fit in 256 bits.
	ErrOverflow = errors.New("fixedpoint: value exceeds 256 bits")

	scale  = decimal.New(1, Decimals)
	scale2 = decimal.New(1, 2*Decimals)

	// Zero is 0.
	Zero = Value{}

	// One is 1.0 (scaled integer 10^18).
	One = Value{raw: scale}

	// Hundred converts a ratio factor to a percentage.
	Hundred = New(100)
)

// Value is an immutable 18-decimal fixed-point number. Compare values with
// Eq/Cmp rather than ==, two equal values may differ in internal form.
type Value struct {
	raw decimal.Decimal
}

// New returns the whole number n.
func New(n int64) Value {
	return Value{raw: decimal.New(n, Decimals)}
}

// FromRaw wraps an already-scaled integer.
func FromRaw(raw *big.Int) Value {
	if raw == nil {
		return Zero
	}
	return Value{raw: decimal.NewFromBigInt(raw, 0)}
}

// FromRawInt64 wraps an already-scaled int64.
func FromRawInt64(raw int64) Value {
	return Value{raw: decimal.New(raw, 0)}
}

// FromScaledString parses a scaled integer such as "1500000000000000000".
func FromScaledString(s string) (Value, error) {
	b, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return Zero, fmt.Errorf("%w: %q", ErrInvalidNumber, s)
	}
	if b.BitLen() > 256 {
		return Zero, fmt.Errorf("%w: %q", ErrOverflow, s)
	}
	return FromRaw(b), nil
}

// Parse parses a human decimal string ("150.25"). Digits beyond the 18th
// fraction digit are truncated.
func Parse(s string) (Value, error) {
	return ParseUnits(s, Decimals)
}

// MustParse is Parse for constants and tests. It panics on malformed input.
func MustParse(s string) Value {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// ParseUnits parses a human decimal string keeping at most decimals fraction
// digits, the way a token input field with that precision would.
func ParseUnits(s string, decimals uint8) (Value, error) {
	if decimals > Decimals {
		return Zero, ErrUnsupportedDecimals
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, fmt.Errorf("%w: empty string", ErrInvalidNumber)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("%w: %q", ErrInvalidNumber, s)
	}
	if exp := d.Exponent(); exp > maxExponent || exp < -maxExponent {
		return Zero, fmt.Errorf("%w: %q exponent out of range", ErrInvalidNumber, s)
	}
	raw := d.Truncate(int32(decimals)).Shift(Decimals).Truncate(0)
	if raw.BigInt().BitLen() > 256 {
		return Zero, fmt.Errorf("%w: %q", ErrOverflow, s)
	}
	return Value{raw: raw}, nil
}

// FromBaseUnits converts a ledger amount of a token with the given decimals.
func FromBaseUnits(x *uint256.Int, decimals uint8) (Value, error) {
	if decimals > Decimals {
		return Zero, ErrUnsupportedDecimals
	}
	if x == nil {
		return Zero, nil
	}
	return Value{raw: decimal.NewFromBigInt(x.ToBig(), int32(Decimals-decimals))}, nil
}

// ParseBaseUnits parses a base-unit integer string as produced by the ledger.
func ParseBaseUnits(s string, decimals uint8) (Value, error) {
	x, err := uint256.FromDecimal(strings.TrimSpace(s))
	if err != nil {
		return Zero, fmt.Errorf("%w: %q: %v", ErrInvalidNumber, s, err)
	}
	return FromBaseUnits(x, decimals)
}

// ToBaseUnits converts v to a ledger amount, truncating digits the token
// cannot represent.
func (v Value) ToBaseUnits(decimals uint8) (*uint256.Int, error) {
	if decimals > Decimals {
		return nil, ErrUnsupportedDecimals
	}
	if v.raw.IsNegative() {
		return nil, ErrNegative
	}
	units := v.raw.Shift(-int32(Decimals - decimals)).Truncate(0)
	x, overflow := uint256.FromBig(units.BigInt())
	if overflow {
		return nil, ErrOverflow
	}
	return x, nil
}

// Raw returns a copy of the scaled integer.
func (v Value) Raw() *big.Int {
	return v.raw.BigInt()
}

// Add returns v + w.
func (v Value) Add(w Value) Value { return Value{raw: v.raw.Add(w.raw)} }

// Sub returns v - w.
func (v Value) Sub(w Value) Value { return Value{raw: v.raw.Sub(w.raw)} }

// Neg returns -v.
func (v Value) Neg() Value { return Value{raw: v.raw.Neg()} }

// Mul returns v * w truncated toward zero: (v.raw * w.raw) / 10^18.
func (v Value) Mul(w Value) Value {
	q, _ := v.raw.Mul(w.raw).QuoRem(scale, 0)
	return Value{raw: q}
}

// Div returns v / w truncated toward zero: (v.raw * 10^18) / w.raw.
// Dividing by zero panics, callers guard every denominator.
func (v Value) Div(w Value) Value {
	if w.raw.IsZero() {
		panic("fixedpoint: division by zero")
	}
	q, _ := v.raw.Mul(scale).QuoRem(w.raw, 0)
	return Value{raw: q}
}

// Mul3 returns a * b * c with a single descale: (a.raw * b.raw * c.raw) / 10^36.
func Mul3(a, b, c Value) Value {
	q, _ := a.raw.Mul(b.raw).Mul(c.raw).QuoRem(scale2, 0)
	return Value{raw: q}
}

// Cmp returns -1, 0 or +1.
func (v Value) Cmp(w Value) int { return v.raw.Cmp(w.raw) }

// Eq reports v == w.
func (v Value) Eq(w Value) bool { return v.raw.Equal(w.raw) }

// Lt reports v < w.
func (v Value) Lt(w Value) bool { return v.raw.LessThan(w.raw) }

// Lte reports v <= w.
func (v Value) Lte(w Value) bool { return v.raw.LessThanOrEqual(w.raw) }

// Gt reports v > w.
func (v Value) Gt(w Value) bool { return v.raw.GreaterThan(w.raw) }

// Gte reports v >= w.
func (v Value) Gte(w Value) bool { return v.raw.GreaterThanOrEqual(w.raw) }

// Sign returns -1, 0 or +1.
func (v Value) Sign() int { return v.raw.Sign() }

// IsZero reports v == 0.
func (v Value) IsZero() bool { return v.raw.IsZero() }

// IsPositive reports v > 0.
func (v Value) IsPositive() bool { return v.raw.IsPositive() }

// Min returns the smaller of v and w.
func Min(v, w Value) Value {
	if v.Lte(w) {
		return v
	}
	return w
}

// Max returns the larger of v and w.
func Max(v, w Value) Value {
	if v.Gte(w) {
		return v
	}
	return w
}

// ClampZero returns v, or zero when v is negative.
func (v Value) ClampZero() Value {
	if v.raw.IsNegative() {
		return Zero
	}
	return v
}

// Decimal returns the human value as a decimal, for display and storage.
func (v Value) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(v.raw.BigInt(), -Decimals)
}

// String returns the exact human value without trailing zeros.
func (v Value) String() string {
	return v.Decimal().String()
}

// DisplayString returns the human value truncated (not rounded) to
// precision fraction digits.
func (v Value) DisplayString(precision int) string {
	if precision < 0 {
		precision = 0
	}
	return v.Decimal().Truncate(int32(precision)).StringFixed(int32(precision))
}

// MarshalText encodes the human decimal string.
func (v Value) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText decodes a human decimal string.
func (v *Value) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// MarshalJSON encodes the value as a quoted human decimal string.
func (v Value) MarshalJSON() ([]byte, error) {
	return []byte(`"` + v.String() + `"`), nil
}

// UnmarshalJSON accepts a quoted decimal string or a bare JSON number.
func (v *Value) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*v = Zero
		return nil
	}
	return v.UnmarshalText([]byte(strings.Trim(s, `"`)))
}
