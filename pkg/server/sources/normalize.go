package sources

import (
	"fmt"
	"strings"
)

// NormalizeAsset converts an asset identifier to its canonical form.
// Examples:
//   - " weth " -> "WETH"
//   - "sUSDe" -> "SUSDE"
func NormalizeAsset(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}

// ValidateAsset rejects empty identifiers and identifiers with whitespace or slashes.
func ValidateAsset(asset string) error {
	if asset == "" {
		return fmt.Errorf("%w", ErrEmptyAsset)
	}
	if strings.ContainsAny(asset, " \t\n/") {
		return fmt.Errorf("%w: %q contains whitespace or '/'", ErrInvalidConfig, asset)
	}
	return nil
}
