package vault

import (
	"context"
	"fmt"
	"math/big"

	"github.com/StrathCole/oracle-resolver/pkg/access"
	"github.com/StrathCole/oracle-resolver/pkg/fixedpoint"
	"github.com/StrathCole/oracle-resolver/pkg/server/sources"
	"github.com/StrathCole/oracle-resolver/pkg/upstream"
)

var _ sources.Wrapper = (*Wrapper)(nil)

// Wrapper prices one whole share as convertToAssets(10^shareDecimals),
// normalized from the asset precision. There is no external timestamp, so an
// observation is stamped with the current time and is live whenever the
// conversion succeeds with a positive, in-bounds result.
type Wrapper struct {
	*sources.BaseWrapper[upstream.ShareVault]
}

// New creates an empty vault wrapper.
func New(name string, env sources.Env) (*Wrapper, error) {
	base, err := sources.NewBaseWrapper[upstream.ShareVault](name, sources.KindVault, env)
	if err != nil {
		return nil, err
	}
	return &Wrapper{BaseWrapper: base}, nil
}

// Configure binds asset to vault.
func (w *Wrapper) Configure(ctx context.Context, caller access.Principal, asset string, vault upstream.ShareVault, params sources.FeedParams) error {
	if err := w.Authorize(caller, access.CapOracleManager); err != nil {
		return err
	}
	return w.bind(ctx, asset, vault, params)
}

func (w *Wrapper) bind(ctx context.Context, asset string, vault upstream.ShareVault, params sources.FeedParams) error {
	if vault == nil {
		return fmt.Errorf("%w: %s", sources.ErrNilUpstream, asset)
	}
	shareDec, err := vault.ShareDecimals(ctx)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", sources.ErrNotContract, asset, err)
	}
	assetDec, err := vault.AssetDecimals(ctx)
	if err != nil {
		return fmt.Errorf("%w: %s underlying: %v", sources.ErrNotContract, asset, err)
	}
	if err := checkDecimals(shareDec, assetDec); err != nil {
		return fmt.Errorf("%s: %w", asset, err)
	}
	return w.Bind(asset, vault, sources.Precision{shareDec, assetDec}, params)
}

func checkDecimals(decimals ...uint8) error {
	for _, d := range decimals {
		if d == 0 || d > fixedpoint.MaxDecimals {
			return fmt.Errorf("%w: %d", ErrImplausibleDecimals, d)
		}
	}
	return nil
}

// Observe implements sources.Wrapper.
func (w *Wrapper) Observe(ctx context.Context, asset string) (sources.Observation, error) {
	b, err := w.Lookup(asset)
	if err != nil {
		return sources.Observation{}, err
	}
	return w.Guard(asset, func() sources.Observation {
		shareDec, assetDec := b.Precision[0], b.Precision[1]
		oneShare := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(shareDec)), nil)

		assets, err := b.Upstream.ConvertToAssets(ctx, oneShare)
		if err != nil {
			return w.Fault(asset, sources.ReasonUpstreamError, err)
		}
		return w.AssessRaw(asset, assets, assetDec, w.Now(), b.Params, b.LastGood)
	}), nil
}

// RecordLastGood implements sources.Wrapper.
func (w *Wrapper) RecordLastGood(ctx context.Context, caller access.Principal, asset string) (sources.Observation, error) {
	return w.Record(ctx, caller, asset, w.Observe)
}
