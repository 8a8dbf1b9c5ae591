// Package vault provides the wrapper that prices vault shares from the
// vault's own share-to-asset conversion.
package vault

import "errors"

// ErrImplausibleDecimals indicates a vault reporting zero or oversized precision.
var ErrImplausibleDecimals = errors.New("implausible vault decimals")
