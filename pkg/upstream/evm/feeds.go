package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/StrathCole/oracle-resolver/pkg/upstream"
)

var (
	_ upstream.RoundFeed         = (*AggregatorV3)(nil)
	_ upstream.ValueFeed         = (*PushProxy)(nil)
	_ upstream.ShareVault        = (*ERC4626)(nil)
	_ upstream.FundamentalSource = (*Fundamental)(nil)
)

// AggregatorV3 reads a round-based price feed.
type AggregatorV3 struct {
	contract
}

// NewAggregatorV3 binds a round-based feed at address.
func NewAggregatorV3(backend Backend, address common.Address) *AggregatorV3 {
	return &AggregatorV3{contract{backend: backend, address: address, abi: aggregatorV3ABI}}
}

// Decimals verifies contract code exists and returns the feed precision.
func (a *AggregatorV3) Decimals(ctx context.Context) (uint8, error) {
	if err := a.ensureCode(ctx); err != nil {
		return 0, err
	}
	return a.decimals(ctx)
}

// LatestRound calls latestRoundData.
func (a *AggregatorV3) LatestRound(ctx context.Context) (upstream.Round, error) {
	const method = "latestRoundData"
	out, err := a.call(ctx, method, 5)
	if err != nil {
		return upstream.Round{}, err
	}

	vals := make([]*big.Int, len(out))
	for i, v := range out {
		if vals[i], err = asBig(method, v); err != nil {
			return upstream.Round{}, err
		}
	}

	return upstream.Round{
		RoundID:         vals[0],
		Answer:          vals[1],
		StartedAt:       unixFromBig(vals[2]),
		UpdatedAt:       unixFromBig(vals[3]),
		AnsweredInRound: vals[4],
	}, nil
}

// PushProxy reads a push-oracle proxy exposing read() (int224, uint32).
type PushProxy struct {
	contract
}

// NewPushProxy binds a push proxy at address.
func NewPushProxy(backend Backend, address common.Address) *PushProxy {
	return &PushProxy{contract{backend: backend, address: address, abi: pushProxyABI}}
}

// Decimals verifies contract code exists and returns the proxy precision.
func (p *PushProxy) Decimals(ctx context.Context) (uint8, error) {
	if err := p.ensureCode(ctx); err != nil {
		return 0, err
	}
	return p.decimals(ctx)
}

// Latest calls read.
func (p *PushProxy) Latest(ctx context.Context) (upstream.Value, error) {
	const method = "read"
	out, err := p.call(ctx, method, 2)
	if err != nil {
		return upstream.Value{}, err
	}
	answer, err := asBig(method, out[0])
	if err != nil {
		return upstream.Value{}, err
	}
	ts, ok := out[1].(uint32)
	if !ok {
		return upstream.Value{}, fmt.Errorf("%w: read timestamp is %T", upstream.ErrMalformedResponse, out[1])
	}
	return upstream.Value{Answer: answer, UpdatedAt: upstream.UnixTime(int64(ts))}, nil
}

// ERC4626 reads a tokenized vault.
type ERC4626 struct {
	contract
}

// NewERC4626 binds a vault at address.
func NewERC4626(backend Backend, address common.Address) *ERC4626 {
	return &ERC4626{contract{backend: backend, address: address, abi: erc4626ABI}}
}

// ShareDecimals verifies contract code exists and returns the share precision.
func (v *ERC4626) ShareDecimals(ctx context.Context) (uint8, error) {
	if err := v.ensureCode(ctx); err != nil {
		return 0, err
	}
	return v.decimals(ctx)
}

// AssetDecimals resolves the underlying token and returns its precision.
func (v *ERC4626) AssetDecimals(ctx context.Context) (uint8, error) {
	out, err := v.call(ctx, "asset", 1)
	if err != nil {
		return 0, err
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return 0, fmt.Errorf("%w: asset is %T", upstream.ErrMalformedResponse, out[0])
	}
	token := contract{backend: v.backend, address: addr, abi: erc4626ABI}
	if err := token.ensureCode(ctx); err != nil {
		return 0, err
	}
	return token.decimals(ctx)
}

// ConvertToAssets calls convertToAssets(shares).
func (v *ERC4626) ConvertToAssets(ctx context.Context, shares *big.Int) (*big.Int, error) {
	const method = "convertToAssets"
	out, err := v.call(ctx, method, 1, shares)
	if err != nil {
		return nil, err
	}
	return asBig(method, out[0])
}

// Fundamental reads a NAV source.
type Fundamental struct {
	contract
}

// NewFundamental binds a fundamental source at address.
func NewFundamental(backend Backend, address common.Address) *Fundamental {
	return &Fundamental{contract{backend: backend, address: address, abi: fundamentalABI}}
}

// Decimals verifies contract code exists and returns the NAV precision.
func (f *Fundamental) Decimals(ctx context.Context) (uint8, error) {
	if err := f.ensureCode(ctx); err != nil {
		return 0, err
	}
	return f.decimals(ctx)
}

// NavPerShare calls navPerShare.
func (f *Fundamental) NavPerShare(ctx context.Context) (upstream.Value, error) {
	const method = "navPerShare"
	out, err := f.call(ctx, method, 2)
	if err != nil {
		return upstream.Value{}, err
	}
	nav, err := asBig(method, out[0])
	if err != nil {
		return upstream.Value{}, err
	}
	updated, err := asBig(method, out[1])
	if err != nil {
		return upstream.Value{}, err
	}
	return upstream.Value{Answer: nav, UpdatedAt: unixFromBig(updated)}, nil
}

// RedemptionRate calls redemptionRate.
func (f *Fundamental) RedemptionRate(ctx context.Context) (*big.Int, error) {
	const method = "redemptionRate"
	out, err := f.call(ctx, method, 1)
	if err != nil {
		return nil, err
	}
	return asBig(method, out[0])
}

// RedemptionFeeBps calls redemptionFeeBps.
func (f *Fundamental) RedemptionFeeBps(ctx context.Context) (uint32, error) {
	out, err := f.call(ctx, "redemptionFeeBps", 1)
	if err != nil {
		return 0, err
	}
	fee, ok := out[0].(uint16)
	if !ok {
		return 0, fmt.Errorf("%w: redemptionFeeBps is %T", upstream.ErrMalformedResponse, out[0])
	}
	return uint32(fee), nil
}
