// Package memory provides in-process upstreams whose answers are set
// directly. They back local development setups and tests.
package memory

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/StrathCole/oracle-resolver/pkg/upstream"
)

var (
	_ upstream.RoundFeed         = (*RoundFeed)(nil)
	_ upstream.ValueFeed         = (*ValueFeed)(nil)
	_ upstream.ShareVault        = (*Vault)(nil)
	_ upstream.FundamentalSource = (*Fundamental)(nil)
)

// fault is shared by every memory upstream: a forced error or panic.
type fault struct {
	err      error
	panicMsg string
	delay    time.Duration
}

func (f fault) apply(ctx context.Context) error {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.err
}

// RoundFeed is a settable round-based feed.
type RoundFeed struct {
	mu       sync.RWMutex
	decimals uint8
	decErr   error
	round    upstream.Round
	fault    fault
}

// NewRoundFeed creates a round feed with the given precision.
func NewRoundFeed(decimals uint8) *RoundFeed {
	return &RoundFeed{decimals: decimals}
}

// Set publishes a new complete round.
func (f *RoundFeed) Set(answer *big.Int, updatedAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	next := big.NewInt(1)
	if f.round.RoundID != nil {
		next = new(big.Int).Add(f.round.RoundID, big.NewInt(1))
	}
	f.round = upstream.Round{
		RoundID:         next,
		Answer:          new(big.Int).Set(answer),
		StartedAt:       updatedAt,
		UpdatedAt:       updatedAt,
		AnsweredInRound: next,
	}
}

// SetRound publishes a round verbatim, including inconsistent metadata.
func (f *RoundFeed) SetRound(r upstream.Round) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.round = r
}

// SetDecimals changes the reported precision.
func (f *RoundFeed) SetDecimals(decimals uint8) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decimals = decimals
}

// SetDecimalsError makes Decimals fail, as a call to an address without code would.
func (f *RoundFeed) SetDecimalsError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decErr = err
}

// Fail makes LatestRound return err. A nil err clears the failure.
func (f *RoundFeed) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fault.err = err
}

// Panic makes LatestRound panic with msg. An empty msg clears it.
func (f *RoundFeed) Panic(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fault.panicMsg = msg
}

// Delay makes LatestRound block for d or until the context ends.
func (f *RoundFeed) Delay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fault.delay = d
}

// Decimals implements upstream.RoundFeed.
func (f *RoundFeed) Decimals(_ context.Context) (uint8, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.decimals, f.decErr
}

// LatestRound implements upstream.RoundFeed.
func (f *RoundFeed) LatestRound(ctx context.Context) (upstream.Round, error) {
	f.mu.RLock()
	flt, round := f.fault, f.round
	f.mu.RUnlock()

	if err := flt.apply(ctx); err != nil {
		return upstream.Round{}, err
	}
	if round.RoundID == nil {
		return upstream.Round{}, fmt.Errorf("%w: no round published", upstream.ErrUnavailable)
	}
	return round, nil
}

// ValueFeed is a settable push-proxy feed.
type ValueFeed struct {
	mu       sync.RWMutex
	decimals uint8
	decErr   error
	value    upstream.Value
	fault    fault
}

// NewValueFeed creates a value feed with the given precision.
func NewValueFeed(decimals uint8) *ValueFeed {
	return &ValueFeed{decimals: decimals}
}

// Set publishes a new value.
func (f *ValueFeed) Set(answer *big.Int, updatedAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.value = upstream.Value{Answer: new(big.Int).Set(answer), UpdatedAt: updatedAt}
}

// SetDecimals changes the reported precision.
func (f *ValueFeed) SetDecimals(decimals uint8) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decimals = decimals
}

// SetDecimalsError makes Decimals fail.
func (f *ValueFeed) SetDecimalsError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decErr = err
}

// Fail makes Latest return err. A nil err clears the failure.
func (f *ValueFeed) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fault.err = err
}

// Panic makes Latest panic with msg. An empty msg clears it.
func (f *ValueFeed) Panic(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fault.panicMsg = msg
}

// Decimals implements upstream.ValueFeed.
func (f *ValueFeed) Decimals(_ context.Context) (uint8, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.decimals, f.decErr
}

// Latest implements upstream.ValueFeed.
func (f *ValueFeed) Latest(ctx context.Context) (upstream.Value, error) {
	f.mu.RLock()
	flt, value := f.fault, f.value
	f.mu.RUnlock()

	if err := flt.apply(ctx); err != nil {
		return upstream.Value{}, err
	}
	if value.Answer == nil {
		return upstream.Value{}, fmt.Errorf("%w: no value published", upstream.ErrUnavailable)
	}
	return value, nil
}

// Vault is a settable share vault with a fixed exchange rate.
type Vault struct {
	mu            sync.RWMutex
	shareDecimals uint8
	assetDecimals uint8
	// assetsPerShare is the asset amount one whole share converts to.
	assetsPerShare *big.Int
	fault          fault
}

// NewVault creates a vault where one whole share is worth assetsPerShare.
func NewVault(shareDecimals, assetDecimals uint8, assetsPerShare *big.Int) *Vault {
	return &Vault{
		shareDecimals:  shareDecimals,
		assetDecimals:  assetDecimals,
		assetsPerShare: new(big.Int).Set(assetsPerShare),
	}
}

// SetAssetsPerShare changes the exchange rate.
func (v *Vault) SetAssetsPerShare(amount *big.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.assetsPerShare = new(big.Int).Set(amount)
}

// SetDecimals changes the reported share and asset precision.
func (v *Vault) SetDecimals(shareDecimals, assetDecimals uint8) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.shareDecimals = shareDecimals
	v.assetDecimals = assetDecimals
}

// Fail makes ConvertToAssets return err.
func (v *Vault) Fail(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.fault.err = err
}

// ShareDecimals implements upstream.ShareVault.
func (v *Vault) ShareDecimals(_ context.Context) (uint8, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.shareDecimals, nil
}

// AssetDecimals implements upstream.ShareVault.
func (v *Vault) AssetDecimals(_ context.Context) (uint8, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.assetDecimals, nil
}

// ConvertToAssets implements upstream.ShareVault.
func (v *Vault) ConvertToAssets(ctx context.Context, shares *big.Int) (*big.Int, error) {
	v.mu.RLock()
	flt, rate, shareDec := v.fault, v.assetsPerShare, v.shareDecimals
	v.mu.RUnlock()

	if err := flt.apply(ctx); err != nil {
		return nil, err
	}
	out := new(big.Int).Mul(shares, rate)
	return out.Quo(out, pow10(shareDec)), nil
}

// Fundamental is a settable fundamental source.
type Fundamental struct {
	mu       sync.RWMutex
	decimals uint8
	nav      upstream.Value
	rate     *big.Int
	feeBps   uint32

	navErr  error
	rateErr error
	feeErr  error
	panics  string
}

// NewFundamental creates a fundamental source with the given precision.
func NewFundamental(decimals uint8) *Fundamental {
	return &Fundamental{decimals: decimals}
}

// Set publishes all formula inputs at once.
func (f *Fundamental) Set(nav *big.Int, updatedAt time.Time, rate *big.Int, feeBps uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nav = upstream.Value{Answer: new(big.Int).Set(nav), UpdatedAt: updatedAt}
	f.rate = new(big.Int).Set(rate)
	f.feeBps = feeBps
}

// FailNav makes NavPerShare return err.
func (f *Fundamental) FailNav(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navErr = err
}

// FailRate makes RedemptionRate return err.
func (f *Fundamental) FailRate(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rateErr = err
}

// FailFee makes RedemptionFeeBps return err.
func (f *Fundamental) FailFee(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feeErr = err
}

// Panic makes every read panic with msg.
func (f *Fundamental) Panic(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.panics = msg
}

// Decimals implements upstream.FundamentalSource.
func (f *Fundamental) Decimals(_ context.Context) (uint8, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.decimals, nil
}

// NavPerShare implements upstream.FundamentalSource.
func (f *Fundamental) NavPerShare(_ context.Context) (upstream.Value, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.panics != "" {
		panic(f.panics)
	}
	if f.navErr != nil {
		return upstream.Value{}, f.navErr
	}
	if f.nav.Answer == nil {
		return upstream.Value{}, fmt.Errorf("%w: no nav published", upstream.ErrUnavailable)
	}
	return f.nav, nil
}

// RedemptionRate implements upstream.FundamentalSource.
func (f *Fundamental) RedemptionRate(_ context.Context) (*big.Int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.panics != "" {
		panic(f.panics)
	}
	if f.rateErr != nil {
		return nil, f.rateErr
	}
	if f.rate == nil {
		return nil, fmt.Errorf("%w: no rate published", upstream.ErrUnavailable)
	}
	return f.rate, nil
}

// RedemptionFeeBps implements upstream.FundamentalSource.
func (f *Fundamental) RedemptionFeeBps(_ context.Context) (uint32, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.panics != "" {
		panic(f.panics)
	}
	return f.feeBps, f.feeErr
}

func pow10(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}
