package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/StrathCole/oracle-resolver/pkg/metrics"
	"github.com/StrathCole/oracle-resolver/pkg/upstream"
)

// Backend is the subset of ethclient.Client the contracts need.
type Backend interface {
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

var (
	aggregatorV3ABI = mustParseABI(aggregatorV3ABIJSON)
	pushProxyABI    = mustParseABI(pushProxyABIJSON)
	erc4626ABI      = mustParseABI(erc4626ABIJSON)
	fundamentalABI  = mustParseABI(fundamentalABIJSON)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("evm: parse abi: %v", err))
	}
	return parsed
}

// ParseAddress validates and converts a hex contract address.
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}

// contract binds an ABI to an address on a backend.
type contract struct {
	backend Backend
	address common.Address
	abi     abi.ABI
}

// ensureCode fails with upstream.ErrNotContract when nothing is deployed at the address.
func (c *contract) ensureCode(ctx context.Context) error {
	code, err := c.backend.CodeAt(ctx, c.address, nil)
	if err != nil {
		return fmt.Errorf("failed to read code at %s: %w", c.address.Hex(), err)
	}
	if len(code) == 0 {
		return fmt.Errorf("%w: %s", upstream.ErrNotContract, c.address.Hex())
	}
	return nil
}

// call packs, executes and unpacks a view method. Unpack failures and
// unexpected output counts are reported as upstream.ErrMalformedResponse.
func (c *contract) call(ctx context.Context, method string, want int, args ...interface{}) ([]interface{}, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	start := time.Now()
	result, err := c.backend.CallContract(ctx, ethereum.CallMsg{
		To:   &c.address,
		Data: data,
	}, nil) // nil = latest block
	metrics.RecordUpstreamCall(upstream.TypeEVM, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}

	out, err := c.abi.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", upstream.ErrMalformedResponse, method, err)
	}
	if len(out) != want {
		return nil, fmt.Errorf("%w: %s returned %d values, want %d", upstream.ErrMalformedResponse, method, len(out), want)
	}
	return out, nil
}

func (c *contract) decimals(ctx context.Context) (uint8, error) {
	out, err := c.call(ctx, "decimals", 1)
	if err != nil {
		return 0, err
	}
	d, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("%w: decimals is %T", upstream.ErrMalformedResponse, out[0])
	}
	return d, nil
}

func asBig(method string, v interface{}) (*big.Int, error) {
	b, ok := v.(*big.Int)
	if !ok || b == nil {
		return nil, fmt.Errorf("%w: %s returned %T", upstream.ErrMalformedResponse, method, v)
	}
	return b, nil
}

func unixFromBig(b *big.Int) time.Time {
	if !b.IsInt64() {
		return time.Time{}
	}
	return upstream.UnixTime(b.Int64())
}
