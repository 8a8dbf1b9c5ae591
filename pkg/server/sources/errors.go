// Package sources provides the provider wrapper contract, the liveness
// checks every wrapper variant shares and the factory registry.
package sources

import "errors"

var (
	// ErrAssetNotConfigured indicates that the wrapper has no binding for the asset.
	ErrAssetNotConfigured = errors.New("asset not configured on provider")
	// ErrEmptyAsset indicates an empty asset identifier.
	ErrEmptyAsset = errors.New("asset must not be empty")
	// ErrInvalidParams indicates invalid heartbeat, deviation or bound parameters.
	ErrInvalidParams = errors.New("invalid feed parameters")
	// ErrNilUpstream indicates a missing upstream handle.
	ErrNilUpstream = errors.New("upstream must not be nil")
	// ErrNotContract indicates an upstream handle that does not answer as a price contract.
	ErrNotContract = errors.New("provider is not a contract")
	// ErrDecimalsChanged indicates that a rebinding would change the upstream precision.
	ErrDecimalsChanged = errors.New("upstream decimals changed for existing asset")
	// ErrPriceNotAlive indicates that the current observation is not live.
	ErrPriceNotAlive = errors.New("price not alive")
	// ErrInvalidConfig indicates that the provider configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrInvalidEnv indicates an incomplete wrapper environment.
	ErrInvalidEnv = errors.New("invalid wrapper environment")
	// ErrUnknownKind indicates a wrapper kind without a registered factory.
	ErrUnknownKind = errors.New("unknown provider kind")
	// ErrDuplicateProvider indicates a provider name that is already taken.
	ErrDuplicateProvider = errors.New("provider already exists")
	// ErrProviderNotFound indicates an unknown provider name.
	ErrProviderNotFound = errors.New("provider not found")
)
