// Package fixedpoint provides unsigned fixed-point price arithmetic.
package fixedpoint

import "errors"

var (
	// ErrDecimalsOutOfRange indicates a decimal precision above MaxDecimals.
	ErrDecimalsOutOfRange = errors.New("decimals out of range")
	// ErrNonPositive indicates a raw value that is zero or negative.
	ErrNonPositive = errors.New("value is not positive")
	// ErrSaturated indicates a result that does not fit into 256 bits.
	ErrSaturated = errors.New("value saturated")
	// ErrExcessPrecision indicates a decimal with more fractional digits than the target precision.
	ErrExcessPrecision = errors.New("value has more fractional digits than precision allows")
	// ErrInvalidBps indicates a basis point value above 10000.
	ErrInvalidBps = errors.New("basis points must be within [0, 10000]")
	// ErrZeroDivisor indicates a division by a zero base unit.
	ErrZeroDivisor = errors.New("zero divisor")
)
