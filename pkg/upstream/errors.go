// Package upstream defines the typed clients that provider wrappers read
// raw prices from. Every call returns an explicit error instead of panicking.
package upstream

import "errors"

var (
	// ErrNotContract indicates that no contract code exists at the upstream address.
	ErrNotContract = errors.New("upstream is not a contract")
	// ErrMalformedResponse indicates an upstream answer with an unexpected shape.
	ErrMalformedResponse = errors.New("malformed upstream response")
	// ErrUnavailable indicates that the upstream has no value to serve.
	ErrUnavailable = errors.New("upstream unavailable")
	// ErrInvalidSpec indicates an invalid upstream spec.
	ErrInvalidSpec = errors.New("invalid upstream spec")
	// ErrUnknownType indicates an upstream spec type without a client.
	ErrUnknownType = errors.New("unknown upstream type")
	// ErrUnsupported indicates that an upstream type cannot serve the requested contract.
	ErrUnsupported = errors.New("upstream type does not support this contract")
)
