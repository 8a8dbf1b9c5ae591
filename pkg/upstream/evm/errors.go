// Package evm provides go-ethereum clients for on-chain price upstreams.
package evm

import "errors"

var (
	// ErrInvalidAddress indicates that the contract address is not a hex address.
	ErrInvalidAddress = errors.New("invalid contract address")
	// ErrRPCURLRequired indicates that rpc_url configuration is required.
	ErrRPCURLRequired = errors.New("rpc_url is required")
)
