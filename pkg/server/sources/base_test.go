package sources

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/oracle-resolver/pkg/access"
	"github.com/StrathCole/oracle-resolver/pkg/fixedpoint"
)

type testUpstream struct {
	answer *big.Int
}

func newTestBase(t *testing.T) (*BaseWrapper[*testUpstream], *access.Control, *time.Time) {
	t.Helper()
	ctrl, err := access.NewControl("admin")
	require.NoError(t, err)
	require.NoError(t, ctrl.Grant("admin", "manager", access.CapOracleManager))

	now := time.Unix(1_700_000_000, 0)
	base, err := NewBaseWrapper[*testUpstream]("test", KindFeed, Env{
		BaseCurrency: "USD",
		BaseDecimals: 8,
		Access:       ctrl,
		Clock:        func() time.Time { return now },
	})
	require.NoError(t, err)
	return base, ctrl, &now
}

func TestNewBaseWrapper_InvalidEnv(t *testing.T) {
	_, err := NewBaseWrapper[*testUpstream]("x", KindFeed, Env{BaseDecimals: 8})
	require.ErrorIs(t, err, ErrInvalidEnv)

	ctrl, _ := access.NewControl("admin")
	_, err = NewBaseWrapper[*testUpstream]("x", KindFeed, Env{BaseCurrency: "USD", BaseDecimals: 37, Access: ctrl})
	require.ErrorIs(t, err, ErrInvalidEnv)

	_, err = NewBaseWrapper[*testUpstream]("", KindFeed, Env{BaseCurrency: "USD", Access: ctrl})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestBaseWrapper_Configure(t *testing.T) {
	base, _, _ := newTestBase(t)
	up := &testUpstream{}

	err := base.Configure("stranger", "WETH", up, Precision{8}, FeedParams{})
	require.ErrorIs(t, err, access.ErrUnauthorized)

	require.NoError(t, base.Configure("manager", " weth ", up, Precision{8}, FeedParams{}))
	assert.Equal(t, []string{"WETH"}, base.Assets())

	err = base.Configure("manager", "WETH", up, Precision{18}, FeedParams{})
	require.ErrorIs(t, err, ErrDecimalsChanged)

	err = base.Configure("manager", "WETH", up, Precision{8}, FeedParams{MaxDeviationBps: 20000})
	require.ErrorIs(t, err, ErrInvalidParams)

	err = base.Configure("manager", "", up, Precision{8}, FeedParams{})
	require.ErrorIs(t, err, ErrEmptyAsset)

	err = base.Configure("manager", "WBTC", up, Precision{40}, FeedParams{})
	require.ErrorIs(t, err, fixedpoint.ErrDecimalsOutOfRange)
}

func TestBaseWrapper_RecordAndRebind(t *testing.T) {
	base, _, _ := newTestBase(t)
	require.NoError(t, base.Bind("WETH", &testUpstream{}, Precision{8}, FeedParams{}))

	live := Observation{Price: fixedpoint.FromUint64(100), ObservedAt: time.Unix(1, 0), IsLive: true}
	observe := func(context.Context, string) (Observation, error) { return live, nil }

	_, err := base.Record(context.Background(), "stranger", "WETH", observe)
	require.ErrorIs(t, err, access.ErrUnauthorized)

	got, err := base.Record(context.Background(), "manager", "WETH", observe)
	require.NoError(t, err)
	assert.Equal(t, live, got)

	notLive := func(context.Context, string) (Observation, error) { return live.NotLive(), nil }
	_, err = base.Record(context.Background(), "manager", "WETH", notLive)
	require.ErrorIs(t, err, ErrPriceNotAlive)

	require.NoError(t, base.Bind("WETH", &testUpstream{}, Precision{8}, FeedParams{MaxDeviationBps: 50}))
	b, ok := base.Binding("weth")
	require.True(t, ok)
	assert.Equal(t, live, b.LastGood, "rebinding keeps the local reference")
	assert.Equal(t, uint32(50), b.Params.MaxDeviationBps)
}

func TestBaseWrapper_Remove(t *testing.T) {
	base, _, _ := newTestBase(t)
	require.NoError(t, base.Bind("WETH", &testUpstream{}, Precision{8}, FeedParams{}))

	require.ErrorIs(t, base.Remove("stranger", "WETH"), access.ErrUnauthorized)
	require.NoError(t, base.Remove("manager", "WETH"))
	require.ErrorIs(t, base.Remove("manager", "WETH"), ErrAssetNotConfigured)

	_, err := base.Lookup("WETH")
	require.ErrorIs(t, err, ErrAssetNotConfigured)

	// A removed asset may come back with a different precision.
	require.NoError(t, base.Bind("WETH", &testUpstream{}, Precision{18}, FeedParams{}))
}

func TestBaseWrapper_AssessRaw(t *testing.T) {
	base, _, now := newTestBase(t)

	obs := base.AssessRaw("USDC", big.NewInt(1_000_000), 6, *now, FeedParams{}, Observation{})
	assert.True(t, obs.IsLive)
	assert.Equal(t, uint64(100_000_000), obs.Price.Uint64())

	obs = base.AssessRaw("USDC", big.NewInt(-1), 6, *now, FeedParams{}, Observation{})
	assert.False(t, obs.IsLive)
	assert.True(t, obs.Price.IsZero())

	huge := new(big.Int).Lsh(big.NewInt(1), 255)
	obs = base.AssessRaw("USDC", huge, 0, *now, FeedParams{}, Observation{})
	assert.False(t, obs.IsLive, "saturated values are never live")
	assert.Equal(t, fixedpoint.MaxUint256, obs.Price)

	stale := now.Add(-DefaultHeartbeat - DefaultMaxStaleTime - time.Second)
	obs = base.AssessRaw("USDC", big.NewInt(1_000_000), 6, stale, FeedParams{}, Observation{})
	assert.False(t, obs.IsLive)
	assert.Equal(t, uint64(100_000_000), obs.Price.Uint64(), "price is reported even when not live")
}

func TestBaseWrapper_Guard(t *testing.T) {
	base, _, _ := newTestBase(t)
	obs := base.Guard("WETH", func() Observation {
		panic("upstream exploded")
	})
	assert.False(t, obs.IsLive)
	assert.True(t, obs.IsEmpty())
}
