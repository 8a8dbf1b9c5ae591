// Package composite provides the wrapper that multiplies a spot leg by an
// exchange-rate leg, for example an underlying price times a share rate.
package composite

import (
	"context"
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"github.com/StrathCole/oracle-resolver/pkg/access"
	"github.com/StrathCole/oracle-resolver/pkg/fixedpoint"
	"github.com/StrathCole/oracle-resolver/pkg/metrics"
	"github.com/StrathCole/oracle-resolver/pkg/server/sources"
	"github.com/StrathCole/oracle-resolver/pkg/upstream"
)

var _ sources.Wrapper = (*Wrapper)(nil)

// Leg is one input feed with its own staleness budget.
type Leg struct {
	Feed         upstream.RoundFeed
	Heartbeat    time.Duration
	MaxStaleTime time.Duration
}

func (l Leg) budget() time.Duration {
	return sources.StalenessBudget(l.Heartbeat, l.MaxStaleTime, sources.DefaultHeartbeat, sources.DefaultMaxStaleTime)
}

// Legs is the upstream of a composite binding.
type Legs struct {
	Spot Leg
	Rate Leg
}

// Wrapper prices an asset as spot * rate / baseUnit. The composite
// timestamp is the older leg's, and the composite is live only when both
// legs are live under their own budgets.
type Wrapper struct {
	*sources.BaseWrapper[Legs]
}

// New creates an empty composite wrapper.
func New(name string, env sources.Env) (*Wrapper, error) {
	base, err := sources.NewBaseWrapper[Legs](name, sources.KindComposite, env)
	if err != nil {
		return nil, err
	}
	return &Wrapper{BaseWrapper: base}, nil
}

// Configure binds asset to a spot and a rate leg. params carries the
// composite-level bounds and deviation; leg staleness comes from the legs.
func (w *Wrapper) Configure(ctx context.Context, caller access.Principal, asset string, legs Legs, params sources.FeedParams) error {
	if err := w.Authorize(caller, access.CapOracleManager); err != nil {
		return err
	}
	return w.bind(ctx, asset, legs, params)
}

func (w *Wrapper) bind(ctx context.Context, asset string, legs Legs, params sources.FeedParams) error {
	if legs.Spot.Feed == nil || legs.Rate.Feed == nil {
		return fmt.Errorf("%w: %s needs both legs", sources.ErrNilUpstream, asset)
	}
	if err := sources.ValidateLimits(legs.Spot.Heartbeat, legs.Spot.MaxStaleTime, 0, uint256.Int{}, uint256.Int{}); err != nil {
		return fmt.Errorf("spot leg: %w", err)
	}
	if err := sources.ValidateLimits(legs.Rate.Heartbeat, legs.Rate.MaxStaleTime, 0, uint256.Int{}, uint256.Int{}); err != nil {
		return fmt.Errorf("rate leg: %w", err)
	}
	spotDec, err := legs.Spot.Feed.Decimals(ctx)
	if err != nil {
		return fmt.Errorf("%w: %s spot leg: %v", sources.ErrNotContract, asset, err)
	}
	rateDec, err := legs.Rate.Feed.Decimals(ctx)
	if err != nil {
		return fmt.Errorf("%w: %s rate leg: %v", sources.ErrNotContract, asset, err)
	}
	return w.Bind(asset, legs, sources.Precision{spotDec, rateDec}, params)
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

func (w *Wrapper) observe(ctx context.Context, asset string, b sources.Binding[Legs]) sources.Observation {
	spot, spotAt, spotLive, err := w.readLeg(ctx, asset, b.Upstream.Spot, b.Precision[0])
	if err != nil {
		return w.Fault(asset, sources.ReasonUpstreamError, fmt.Errorf("spot leg: %w", err))
	}
	rate, rateAt, rateLive, err := w.readLeg(ctx, asset, b.Upstream.Rate, b.Precision[1])
	if err != nil {
		return w.Fault(asset, sources.ReasonUpstreamError, fmt.Errorf("rate leg: %w", err))
	}

	price, mulErr := fixedpoint.MulBase(spot, rate, w.BaseUnit())
	observedAt := spotAt
	if rateAt.Before(spotAt) {
		observedAt = rateAt
	}

	budget := b.Upstream.Spot.budget()
	if rb := b.Upstream.Rate.budget(); rb > budget {
		budget = rb
	}
	check := b.Params.Check(w.Now(), observedAt, b.LastGood.Price)
	check.Budget = budget

	reason := check.Evaluate(price)
	live := spotLive && rateLive && mulErr == nil && reason == sources.ReasonLive
	if !live {
		w.Logger().Debug("Composite not live", "asset", asset, "spot_live", spotLive,
			"rate_live", rateLive, "reason", string(reason), "error", mulErr)
	}
	if reason == sources.ReasonDeviation {
		metrics.RecordDeviationRejection("wrapper", asset)
		w.Logger().Warn("Composite rejected by deviation check", "asset", asset)
	}
	return sources.Observation{Price: price, ObservedAt: observedAt, IsLive: live}
}

// readLeg returns the leg value in the base unit and whether it is live on its own.
func (w *Wrapper) readLeg(ctx context.Context, asset string, leg Leg, decimals uint8) (uint256.Int, time.Time, bool, error) {
	round, err := leg.Feed.LatestRound(ctx)
	if err != nil {
		return uint256.Int{}, time.Time{}, false, err
	}
	value, ok := w.Normalize(asset, round.Answer, decimals)
	live := ok && round.Complete() &&
		sources.Freshness(w.Now(), round.UpdatedAt, leg.budget()) == sources.ReasonLive
	return value, round.UpdatedAt, live, nil
}

// RecordLastGood implements sources.Wrapper.
func (w *Wrapper) RecordLastGood(ctx context.Context, caller access.Principal, asset string) (sources.Observation, error) {
	return w.Record(ctx, caller, asset, w.Observe)
}
