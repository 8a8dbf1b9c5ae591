// Package feed provides the wrapper for round-based upstream feeds.
package feed

import (
	"context"
	"fmt"

	"github.com/StrathCole/oracle-resolver/pkg/access"
	"github.com/StrathCole/oracle-resolver/pkg/server/sources"
	"github.com/StrathCole/oracle-resolver/pkg/upstream"
)

var _ sources.Wrapper = (*Wrapper)(nil)

// Wrapper reads one round-based feed per asset. A round answered in an
// earlier round than its own id is never live.
type Wrapper struct {
	*sources.BaseWrapper[upstream.RoundFeed]
}

// New creates an empty feed wrapper.
func New(name string, env sources.Env) (*Wrapper, error) {
	base, err := sources.NewBaseWrapper[upstream.RoundFeed](name, sources.KindFeed, env)
	if err != nil {
		return nil, err
	}
	return &Wrapper{BaseWrapper: base}, nil
}

// Configure binds asset to feed. The feed must answer Decimals.
func (w *Wrapper) Configure(ctx context.Context, caller access.Principal, asset string, feed upstream.RoundFeed, params sources.FeedParams) error {
	if err := w.Authorize(caller, access.CapOracleManager); err != nil {
		return err
	}
	return w.bind(ctx, asset, feed, params)
}

func (w *Wrapper) bind(ctx context.Context, asset string, feed upstream.RoundFeed, params sources.FeedParams) error {
	if feed == nil {
		return fmt.Errorf("%w: %s", sources.ErrNilUpstream, asset)
	}
	decimals, err := feed.Decimals(ctx)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", sources.ErrNotContract, asset, err)
	}
	return w.Bind(asset, feed, sources.Precision{decimals}, params)
}

// Observe implements sources.Wrapper.
func (w *Wrapper) Observe(ctx context.Context, asset string) (sources.Observation, error) {
	b, err := w.Lookup(asset)
	if err != nil {
		return sources.Observation{}, err
	}
	return w.Guard(asset, func() sources.Observation {
		round, err := b.Upstream.LatestRound(ctx)
		if err != nil {
			return w.Fault(asset, sources.ReasonUpstreamError, err)
		}
		obs := w.AssessRaw(asset, round.Answer, b.Precision[0], round.UpdatedAt, b.Params, b.LastGood)
		if !round.Complete() {
			w.Logger().Debug("Round not answered in itself", "asset", asset,
				"round_id", round.RoundID, "answered_in_round", round.AnsweredInRound)
			return obs.NotLive()
		}
		return obs
	}), nil
}

// RecordLastGood implements sources.Wrapper.
func (w *Wrapper) RecordLastGood(ctx context.Context, caller access.Principal, asset string) (sources.Observation, error) {
	return w.Record(ctx, caller, asset, w.Observe)
}
