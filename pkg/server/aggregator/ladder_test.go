package aggregator

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/StrathCole/oracle-resolver/pkg/server/sources"
	"github.com/StrathCole/oracle-resolver/pkg/server/sources/feed"
	"github.com/StrathCole/oracle-resolver/pkg/upstream/memory"
)

// TestLadder_Property checks the resolution order against a simple model.
func TestLadder_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := newFixture(t)
		ctx := context.Background()
		primary := newStub("chainlink", "WETH")
		fallback := newStub("redstone", "WETH")
		f.register(t, "WETH", primary, fallback)

		primaryLive := rapid.Bool().Draw(rt, "primary_live")
		fallbackLive := rapid.Bool().Draw(rt, "fallback_live")
		withLastGood := rapid.Bool().Draw(rt, "last_good")
		frozen := withLastGood && rapid.Bool().Draw(rt, "frozen")
		price := e8(rapid.Uint64Range(1, 1_000_000).Draw(rt, "price"))

		if withLastGood {
			primary.live(price, now)
			_, err := f.agg.RecordLastGood(ctx, "manager", "WETH")
			require.NoError(rt, err)
		}
		if frozen {
			require.NoError(rt, f.agg.Freeze("guardian", "WETH"))
		}
		primary.live(price, now)
		if !primaryLive {
			primary.dead()
		}
		fallback.live(price, now)
		if !fallbackLive {
			fallback.dead()
		}

		want := StateNone
		switch {
		case frozen:
			want = StateFrozen
		case primaryLive:
			want = StatePrimary
		case fallbackLive:
			want = StateFallback
		case withLastGood:
			want = StateLastGood
		}

		res, err := f.agg.Resolve(ctx, "WETH")
		require.NoError(rt, err)
		assert.Equal(rt, want, res.State)
		assert.Equal(rt, want == StateFallback, res.UsedFallback)
		assert.Equal(rt, want == StatePrimary || want == StateFallback, res.Observation.IsLive)

		_, err = f.agg.GetPrice(ctx, "WETH")
		assert.Equal(rt, res.Observation.IsLive, err == nil)
	})
}

// TestLadder_FeedWrappers runs the ladder over real feed wrappers backed by
// in-memory rounds.
func TestLadder_FeedWrappers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	env := sources.Env{
		BaseCurrency: "USD",
		BaseDecimals: 8,
		Access:       f.ctrl,
		Clock:        f.agg.clock,
	}

	chainlink, err := feed.New("chainlink", env)
	require.NoError(t, err)
	redstone, err := feed.New("redstone", env)
	require.NoError(t, err)

	primaryRound := memory.NewRoundFeed(8)
	fallbackRound := memory.NewRoundFeed(8)
	params := sources.FeedParams{Heartbeat: time.Hour, MaxStaleTime: 5 * time.Minute}
	require.NoError(t, chainlink.Configure(ctx, "manager", "WETH", primaryRound, params))
	require.NoError(t, redstone.Configure(ctx, "manager", "WETH", fallbackRound, params))

	require.NoError(t, f.agg.SetPrimaryProvider("manager", "WETH", chainlink))
	require.NoError(t, f.agg.SetFallbackProvider("manager", "WETH", redstone))

	primaryRound.Set(big.NewInt(250_00000000), now)
	fallbackRound.Set(big.NewInt(249_00000000), now)

	price, err := f.agg.GetPrice(ctx, "WETH")
	require.NoError(t, err)
	assert.Equal(t, e8(250), price)
	_, err = f.agg.RecordLastGood(ctx, "manager", "WETH")
	require.NoError(t, err)

	// Both rounds go stale.
	f.advance(2 * time.Hour)
	res, err := f.agg.Resolve(ctx, "WETH")
	require.NoError(t, err)
	assert.Equal(t, StateLastGood, res.State)
	assert.Equal(t, e8(250), res.Observation.Price)

	require.NoError(t, f.agg.Freeze("guardian", "WETH"))
	require.NoError(t, f.agg.PushFrozenPrice("guardian", "WETH", e8(260), now.Add(time.Hour)))
	obs, err := f.agg.GetObservation(ctx, "WETH")
	require.NoError(t, err)
	assert.Equal(t, e8(260), obs.Price)
	assert.False(t, obs.IsLive)

	require.NoError(t, f.agg.Unfreeze("guardian", "WETH"))
	fallbackRound.Set(big.NewInt(259_00000000), now.Add(2*time.Hour))
	res, err = f.agg.Resolve(ctx, "WETH")
	require.NoError(t, err)
	assert.Equal(t, StateFallback, res.State)
	assert.True(t, res.UsedFallback)
	assert.Equal(t, e8(259), res.Observation.Price)
}
