// Package formula provides the wrapper that derives a price from
// fundamental inputs: min(navPerShare, redemptionRate after fee).
package formula

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/StrathCole/oracle-resolver/pkg/access"
	"github.com/StrathCole/oracle-resolver/pkg/fixedpoint"
	"github.com/StrathCole/oracle-resolver/pkg/server/sources"
	"github.com/StrathCole/oracle-resolver/pkg/upstream"
)

var _ sources.Wrapper = (*Wrapper)(nil)

// Wrapper computes min(nav, rate * (10000 - feeBps) / 10000). Any failing
// input read degrades the observation to not live.
type Wrapper struct {
	*sources.BaseWrapper[upstream.FundamentalSource]
}

// New creates an empty formula wrapper.
func New(name string, env sources.Env) (*Wrapper, error) {
	base, err := sources.NewBaseWrapper[upstream.FundamentalSource](name, sources.KindFormula, env)
	if err != nil {
		return nil, err
	}
	return &Wrapper{BaseWrapper: base}, nil
}

// Configure binds asset to a fundamental source.
func (w *Wrapper) Configure(ctx context.Context, caller access.Principal, asset string, src upstream.FundamentalSource, params sources.FeedParams) error {
	if err := w.Authorize(caller, access.CapOracleManager); err != nil {
		return err
	}
	return w.bind(ctx, asset, src, params)
}

func (w *Wrapper) bind(ctx context.Context, asset string, src upstream.FundamentalSource, params sources.FeedParams) error {
	if src == nil {
		return fmt.Errorf("%w: %s", sources.ErrNilUpstream, asset)
	}
	decimals, err := src.Decimals(ctx)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", sources.ErrNotContract, asset, err)
	}
	return w.Bind(asset, src, sources.Precision{decimals}, params)
}

// Observe implements sources.Wrapper.
func (w *Wrapper) Observe(ctx context.Context, asset string) (sources.Observation, error) {
	b, err := w.Lookup(asset)
	if err != nil {
		return sources.Observation{}, err
	}
	return w.Guard(asset, func() sources.Observation {
		return w.observe(ctx, asset, b)
	}), nil
}

func (w *Wrapper) observe(ctx context.Context, asset string, b sources.Binding[upstream.FundamentalSource]) sources.Observation {
	src, decimals := b.Upstream, b.Precision[0]

	nav, err := src.NavPerShare(ctx)
	if err != nil {
		return w.Fault(asset, sources.ReasonUpstreamError, fmt.Errorf("navPerShare: %w", err))
	}
	rate, err := src.RedemptionRate(ctx)
	if err != nil {
		return w.Fault(asset, sources.ReasonUpstreamError, fmt.Errorf("redemptionRate: %w", err))
	}
	fee, err := src.RedemptionFeeBps(ctx)
	if err != nil {
		return w.Fault(asset, sources.ReasonUpstreamError, fmt.Errorf("redemptionFeeBps: %w", err))
	}

	navPrice, navOK := w.Normalize(asset, nav.Answer, decimals)
	ratePrice, rateOK := w.Normalize(asset, rate, decimals)
	afterFee, feeErr := fixedpoint.ApplyBpsDiscount(ratePrice, fee)
	if feeErr != nil {
		w.Logger().Warn("Redemption fee out of range", "asset", asset, "fee_bps", fee)
		afterFee = uint256.Int{}
	}

	price := fixedpoint.Min(navPrice, afterFee)
	obs := w.Assess(asset, price, nav.UpdatedAt, b.Params, b.LastGood)
	if !navOK || !rateOK || feeErr != nil {
		return obs.NotLive()
	}
	return obs
}

// RecordLastGood implements sources.Wrapper.
func (w *Wrapper) RecordLastGood(ctx context.Context, caller access.Principal, asset string) (sources.Observation, error) {
	return w.Record(ctx, caller, asset, w.Observe)
}
