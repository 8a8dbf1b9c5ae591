// Package aggregator owns the per-asset provider registry and resolves a
// final price per asset through a primary, fallback and last-good ladder.
package aggregator

import "errors"

var (
	// ErrAssetNotRegistered indicates an asset without a registry entry.
	ErrAssetNotRegistered = errors.New("asset not registered")
	// ErrNoUsablePrice indicates that neither provider nor a remembered price is usable.
	ErrNoUsablePrice = errors.New("no usable price")
	// ErrPriceNotLive indicates that the resolved price is not live.
	ErrPriceNotLive = errors.New("price not live")
	// ErrInvalidProvider indicates a missing provider.
	ErrInvalidProvider = errors.New("provider is not a contract")
	// ErrProviderMissingAsset indicates a provider without a binding for the asset.
	ErrProviderMissingAsset = errors.New("provider does not serve asset")
	// ErrIncompatibleBase indicates a provider quoting another base currency or unit.
	ErrIncompatibleBase = errors.New("provider base currency or unit differs")
	// ErrSameProvider indicates primary and fallback pointing at the same provider.
	ErrSameProvider = errors.New("primary and fallback must differ")
	// ErrInvalidRiskConfig indicates invalid risk parameters.
	ErrInvalidRiskConfig = errors.New("invalid risk config")
	// ErrAlreadyFrozen indicates a freeze of a frozen asset.
	ErrAlreadyFrozen = errors.New("asset already frozen")
	// ErrNotFrozen indicates an operation that requires a frozen asset.
	ErrNotFrozen = errors.New("asset not frozen")
	// ErrNoLastGood indicates an asset that never had a trusted price.
	ErrNoLastGood = errors.New("asset has no last good price")
	// ErrZeroPrice indicates a pushed price of zero.
	ErrZeroPrice = errors.New("price must be positive")
	// ErrInvalidTimestamp indicates a missing or future timestamp.
	ErrInvalidTimestamp = errors.New("timestamp missing or in the future")
	// ErrNotResolvedLive indicates a last-good recording while the asset resolves to neither provider.
	ErrNotResolvedLive = errors.New("asset does not resolve to a live provider price")
	// ErrInvalidConfig indicates an invalid aggregator configuration.
	ErrInvalidConfig = errors.New("invalid aggregator configuration")
	// ErrUnknownState indicates an unrecognized resolution state name.
	ErrUnknownState = errors.New("unknown resolution state")
)
