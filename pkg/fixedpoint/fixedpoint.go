package fixedpoint

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

const (
	// MaxDecimals is the largest decimal precision accepted from any source.
	MaxDecimals = 36
	// BpsDenominator is 100% expressed in basis points.
	BpsDenominator = 10000
)

// MaxUint256 is the saturation ceiling for every price computation.
var MaxUint256 = func() uint256.Int {
	var z uint256.Int
	z.SetAllOne()
	return z
}()

var bpsDenominator = *uint256.NewInt(BpsDenominator)

// Pow10 returns 10^decimals.
func Pow10(decimals uint8) (uint256.Int, error) {
	if decimals > MaxDecimals {
		return uint256.Int{}, fmt.Errorf("%w: %d", ErrDecimalsOutOfRange, decimals)
	}
	var z uint256.Int
	z.Exp(uint256.NewInt(10), uint256.NewInt(uint64(decimals)))
	return z, nil
}

// BaseUnit returns the fixed-point scale for the given precision.
func BaseUnit(decimals uint8) (uint256.Int, error) {
	return Pow10(decimals)
}

// Normalize converts a raw upstream value with srcDecimals of precision into
// the base unit: raw * baseUnit / 10^srcDecimals. The multiplication keeps a
// 512-bit intermediate. A result that does not fit into 256 bits is returned
// as MaxUint256 together with ErrSaturated.
func Normalize(raw *big.Int, srcDecimals uint8, baseUnit uint256.Int) (uint256.Int, error) {
	if raw == nil || raw.Sign() <= 0 {
		return uint256.Int{}, ErrNonPositive
	}
	scale, err := Pow10(srcDecimals)
	if err != nil {
		return uint256.Int{}, err
	}

	var x uint256.Int
	if overflow := x.SetFromBig(raw); overflow {
		return MaxUint256, fmt.Errorf("%w: raw value exceeds 256 bits", ErrSaturated)
	}

	var z uint256.Int
	if _, overflow := z.MulDivOverflow(&x, &baseUnit, &scale); overflow {
		return MaxUint256, fmt.Errorf("%w: %s * %s / 10^%d", ErrSaturated, x.Dec(), baseUnit.Dec(), srcDecimals)
	}
	return z, nil
}

// Denormalize converts a base-unit price back into targetDecimals of precision.
// It is the inverse of Normalize: a 6 -> 8 -> 6 decimal round trip is exact.
func Denormalize(price uint256.Int, targetDecimals uint8, baseUnit uint256.Int) (uint256.Int, error) {
	if baseUnit.IsZero() {
		return uint256.Int{}, ErrZeroDivisor
	}
	scale, err := Pow10(targetDecimals)
	if err != nil {
		return uint256.Int{}, err
	}
	var z uint256.Int
	if _, overflow := z.MulDivOverflow(&price, &scale, &baseUnit); overflow {
		return MaxUint256, ErrSaturated
	}
	return z, nil
}

// DeviationBps returns |next-prev| * 10000 / prev, truncated. A zero prev
// yields zero.
func DeviationBps(next, prev uint256.Int) uint256.Int {
	if prev.IsZero() {
		return uint256.Int{}
	}
	var diff uint256.Int
	if next.Lt(&prev) {
		diff.Sub(&prev, &next)
	} else {
		diff.Sub(&next, &prev)
	}
	var z uint256.Int
	if _, overflow := z.MulDivOverflow(&diff, &bpsDenominator, &prev); overflow {
		return MaxUint256
	}
	return z
}

// ExceedsDeviation reports whether next moved away from prev by more than
// maxBps. A zero maxBps or a zero prev disables the check.
func ExceedsDeviation(next, prev uint256.Int, maxBps uint32) bool {
	if maxBps == 0 || prev.IsZero() {
		return false
	}
	dev := DeviationBps(next, prev)
	limit := uint256.NewInt(uint64(maxBps))
	return dev.Gt(limit)
}

// WithinBounds reports whether p lies in [lower, upper]. A zero bound
// disables that side.
func WithinBounds(p, lower, upper uint256.Int) bool {
	if !lower.IsZero() && p.Lt(&lower) {
		return false
	}
	if !upper.IsZero() && p.Gt(&upper) {
		return false
	}
	return true
}

// MulBase multiplies two base-unit values: a * b / baseUnit.
func MulBase(a, b, baseUnit uint256.Int) (uint256.Int, error) {
	if baseUnit.IsZero() {
		return uint256.Int{}, ErrZeroDivisor
	}
	var z uint256.Int
	if _, overflow := z.MulDivOverflow(&a, &b, &baseUnit); overflow {
		return MaxUint256, ErrSaturated
	}
	return z, nil
}

// ApplyBpsDiscount returns v * (10000 - bps) / 10000.
func ApplyBpsDiscount(v uint256.Int, bps uint32) (uint256.Int, error) {
	if bps > BpsDenominator {
		return uint256.Int{}, fmt.Errorf("%w: %d", ErrInvalidBps, bps)
	}
	factor := uint256.NewInt(uint64(BpsDenominator - bps))
	var z uint256.Int
	z.MulDivOverflow(&v, factor, &bpsDenominator)
	return z, nil
}

// Min returns the smaller of a and b.
func Min(a, b uint256.Int) uint256.Int {
	if a.Lt(&b) {
		return a
	}
	return b
}

// ToDecimal renders a fixed-point value with the given precision.
func ToDecimal(p uint256.Int, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(p.ToBig(), -int32(decimals))
}

// FromDecimal scales d by 10^decimals. Negative values and values with more
// fractional digits than decimals are rejected.
func FromDecimal(d decimal.Decimal, decimals uint8) (uint256.Int, error) {
	if d.IsNegative() {
		return uint256.Int{}, fmt.Errorf("%w: %s", ErrNonPositive, d.String())
	}
	shifted := d.Shift(int32(decimals))
	if !shifted.Equal(shifted.Truncate(0)) {
		return uint256.Int{}, fmt.Errorf("%w: %s at %d decimals", ErrExcessPrecision, d.String(), decimals)
	}
	var z uint256.Int
	if overflow := z.SetFromBig(shifted.BigInt()); overflow {
		return uint256.Int{}, ErrSaturated
	}
	return z, nil
}

// ParseDecimal parses a decimal string and scales it by 10^decimals.
func ParseDecimal(s string, decimals uint8) (uint256.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return uint256.Int{}, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return FromDecimal(d, decimals)
}

// FromUint64 is a convenience constructor for small literal prices.
func FromUint64(v uint64) uint256.Int {
	return *uint256.NewInt(v)
}
