// Package peg provides the hard-peg wrapper: a guardian-set fixed price
// kept inside an optional guard band.
package peg

import "errors"

var (
	// ErrPegOutOfBand indicates a peg price outside [lowerGuard, upperGuard].
	ErrPegOutOfBand = errors.New("peg price outside guard band")
	// ErrZeroPeg indicates a zero peg price.
	ErrZeroPeg = errors.New("peg price must be positive")
	// ErrInvalidGuards indicates a lower guard above the upper guard.
	ErrInvalidGuards = errors.New("lower guard above upper guard")
)
