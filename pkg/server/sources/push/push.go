// Package push provides the wrapper for push-style proxies that publish a
// single value and timestamp without round metadata.
package push

import (
	"context"
	"fmt"

	"github.com/StrathCole/oracle-resolver/pkg/access"
	"github.com/StrathCole/oracle-resolver/pkg/server/sources"
	"github.com/StrathCole/oracle-resolver/pkg/upstream"
)

var _ sources.Wrapper = (*Wrapper)(nil)

// Wrapper reads one push proxy per asset.
type Wrapper struct {
	*sources.BaseWrapper[upstream.ValueFeed]
}

// New creates an empty push wrapper.
func New(name string, env sources.Env) (*Wrapper, error) {
	base, err := sources.NewBaseWrapper[upstream.ValueFeed](name, sources.KindPush, env)
	if err != nil {
		return nil, err
	}
	return &Wrapper{BaseWrapper: base}, nil
}

// Configure binds asset to proxy.
func (w *Wrapper) Configure(ctx context.Context, caller access.Principal, asset string, proxy upstream.ValueFeed, params sources.FeedParams) error {
	if err := w.Authorize(caller, access.CapOracleManager); err != nil {
		return err
	}
	return w.bind(ctx, asset, proxy, params)
}

func (w *Wrapper) bind(ctx context.Context, asset string, proxy upstream.ValueFeed, params sources.FeedParams) error {
	if proxy == nil {
		return fmt.Errorf("%w: %s", sources.ErrNilUpstream, asset)
	}
	decimals, err := proxy.Decimals(ctx)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", sources.ErrNotContract, asset, err)
	}
	return w.Bind(asset, proxy, sources.Precision{decimals}, params)
}

// Observe implements sources.Wrapper.
func (w *Wrapper) Observe(ctx context.Context, asset string) (sources.Observation, error) {
	b, err := w.Lookup(asset)
	if err != nil {
		return sources.Observation{}, err
	}
	return w.Guard(asset, func() sources.Observation {
		v, err := b.Upstream.Latest(ctx)
		if err != nil {
			return w.Fault(asset, sources.ReasonUpstreamError, err)
		}
		return w.AssessRaw(asset, v.Answer, b.Precision[0], v.UpdatedAt, b.Params, b.LastGood)
	}), nil
}

// RecordLastGood implements sources.Wrapper.
func (w *Wrapper) RecordLastGood(ctx context.Context, caller access.Principal, asset string) (sources.Observation, error) {
	return w.Record(ctx, caller, asset, w.Observe)
}
