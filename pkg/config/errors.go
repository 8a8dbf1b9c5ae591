// Package config provides configuration loading and validation for the oracle resolver.
package config

import "errors"

var (
	// ErrInvalidDuration indicates a malformed or negative duration.
	ErrInvalidDuration = errors.New("invalid duration")
	// ErrBaseCurrencyRequired indicates a missing oracle.base_currency.
	ErrBaseCurrencyRequired = errors.New("oracle.base_currency must be specified")
	// ErrInvalidBaseDecimals indicates base decimals above the supported maximum.
	ErrInvalidBaseDecimals = errors.New("invalid oracle.base_decimals")
	// ErrAdminRequired indicates a missing access.admin.
	ErrAdminRequired = errors.New("access.admin must be specified")
	// ErrTokenEnvNotSet indicates a token environment variable that is not set.
	ErrTokenEnvNotSet = errors.New("token environment variable not set")
	// ErrDuplicateToken indicates one bearer token assigned to two principals.
	ErrDuplicateToken = errors.New("token assigned to more than one principal")
	// ErrTLSConfigIncomplete indicates that TLS config is incomplete.
	ErrTLSConfigIncomplete = errors.New("TLS cert and key must be specified when TLS is enabled")
	// ErrTLSCertNotFound indicates that the TLS cert file was not found.
	ErrTLSCertNotFound = errors.New("TLS cert file not found")
	// ErrTLSKeyNotFound indicates that the TLS key file was not found.
	ErrTLSKeyNotFound = errors.New("TLS key file not found")
	// ErrProviderTypeRequired indicates that provider type is required.
	ErrProviderTypeRequired = errors.New("provider type is required")
	// ErrProviderNameRequired indicates that provider name is required.
	ErrProviderNameRequired = errors.New("provider name is required")
	// ErrUnknownProviderType indicates that the provider type is unknown.
	ErrUnknownProviderType = errors.New("unknown provider type")
	// ErrDuplicateProvider indicates two providers with the same name.
	ErrDuplicateProvider = errors.New("duplicate provider name")
	// ErrAssetRequired indicates an asset entry without an asset identifier.
	ErrAssetRequired = errors.New("asset must be specified")
	// ErrDuplicateAsset indicates an asset registered twice.
	ErrDuplicateAsset = errors.New("duplicate asset")
	// ErrPrimaryRequired indicates an asset without a primary provider.
	ErrPrimaryRequired = errors.New("primary provider must be specified")
	// ErrUnknownProvider indicates an asset referencing a provider that is not configured or disabled.
	ErrUnknownProvider = errors.New("asset references unknown provider")
	// ErrSameProvider indicates primary and fallback naming the same provider.
	ErrSameProvider = errors.New("primary and fallback must differ")
	// ErrInvalidLogLevel indicates that the log level is invalid.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidLogFormat indicates that the log format is invalid.
	ErrInvalidLogFormat = errors.New("invalid log format")
)
