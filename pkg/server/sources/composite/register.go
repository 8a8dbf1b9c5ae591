package composite

import (
	"context"
	"fmt"

	"github.com/StrathCole/oracle-resolver/pkg/server/sources"
)

func init() {
	sources.Register(sources.KindComposite, NewFromConfig)
}

// NewFromConfig builds a composite wrapper. Each asset entry carries a
// "spot" and a "rate" upstream plus spot_/rate_ prefixed heartbeat and
// max_stale_time settings.
func NewFromConfig(ctx context.Context, name string, env sources.Env, config map[string]interface{}) (sources.Wrapper, error) {
	w, err := New(name, env)
	if err != nil {
		return nil, err
	}
	assets, err := sources.ParseAssetBindings(config)
	if err != nil {
		return nil, err
	}
	if len(assets) > 0 && env.Dialer == nil {
		return nil, fmt.Errorf("%w: no upstream dialer", sources.ErrInvalidEnv)
	}
	for _, m := range assets {
		asset := sources.GetString(m, "asset")
		params, err := sources.ParseFeedParams(m, "", env.BaseDecimals)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", asset, err)
		}
		spot, err := parseLeg(ctx, env, m, "spot")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", asset, err)
		}
		rate, err := parseLeg(ctx, env, m, "rate")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", asset, err)
		}
		if err := w.bind(ctx, asset, Legs{Spot: spot, Rate: rate}, params); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func parseLeg(ctx context.Context, env sources.Env, m map[string]interface{}, key string) (Leg, error) {
	spec, err := sources.ParseUpstream(m, key)
	if err != nil {
		return Leg{}, err
	}
	feed, err := env.Dialer.RoundFeed(ctx, spec)
	if err != nil {
		return Leg{}, fmt.Errorf("%s: %w", key, err)
	}
	heartbeat, err := sources.GetDuration(m, key+"_heartbeat")
	if err != nil {
		return Leg{}, err
	}
	stale, err := sources.GetDuration(m, key+"_max_stale_time")
	if err != nil {
		return Leg{}, err
	}
	return Leg{Feed: feed, Heartbeat: heartbeat, MaxStaleTime: stale}, nil
}
