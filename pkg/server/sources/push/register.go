package push

import (
	"context"
	"fmt"

	"github.com/StrathCole/oracle-resolver/pkg/server/sources"
)

func init() {
	sources.Register(sources.KindPush, NewFromConfig)
}

// NewFromConfig builds a push wrapper and binds every configured asset.
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
		spec, err := sources.ParseUpstream(m, "upstream")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", asset, err)
		}
		params, err := sources.ParseFeedParams(m, "", env.BaseDecimals)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", asset, err)
		}
		up, err := env.Dialer.ValueFeed(ctx, spec)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", asset, err)
		}
		if err := w.bind(ctx, asset, up, params); err != nil {
			return nil, err
		}
	}
	return w, nil
}
