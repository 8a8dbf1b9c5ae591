package peg

import (
	"context"
	"fmt"

	"github.com/StrathCole/oracle-resolver/pkg/server/sources"
)

func init() {
	sources.Register(sources.KindPeg, NewFromConfig)
}

// NewFromConfig builds a peg wrapper. Each asset entry carries "price" and
// optional "lower_guard"/"upper_guard" as decimal strings.
func NewFromConfig(_ context.Context, name string, env sources.Env, config map[string]interface{}) (sources.Wrapper, error) {
	w, err := New(name, env)
	if err != nil {
		return nil, err
	}
	assets, err := sources.ParseAssetBindings(config)
	if err != nil {
		return nil, err
	}
	for _, m := range assets {
		asset := sources.GetString(m, "asset")
		var p Peg
		if p.Price, err = sources.GetPrice(m, "price", env.BaseDecimals); err != nil {
			return nil, fmt.Errorf("%s: %w", asset, err)
		}
		if p.LowerGuard, err = sources.GetPrice(m, "lower_guard", env.BaseDecimals); err != nil {
			return nil, fmt.Errorf("%s: %w", asset, err)
		}
		if p.UpperGuard, err = sources.GetPrice(m, "upper_guard", env.BaseDecimals); err != nil {
			return nil, fmt.Errorf("%s: %w", asset, err)
		}
		params, err := sources.ParseFeedParams(m, "", env.BaseDecimals)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", asset, err)
		}
		if err := w.bind(asset, p, params); err != nil {
			return nil, err
		}
	}
	return w, nil
}
