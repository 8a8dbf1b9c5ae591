package peg

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/oracle-resolver/pkg/access"
	"github.com/StrathCole/oracle-resolver/pkg/fixedpoint"
	"github.com/StrathCole/oracle-resolver/pkg/server/sources"
)

var now = time.Unix(1_700_000_000, 0)

func testEnv(t *testing.T) sources.Env {
	t.Helper()
	ctrl, err := access.NewControl("admin")
	require.NoError(t, err)
	require.NoError(t, ctrl.Grant("admin", "manager", access.CapOracleManager))
	require.NoError(t, ctrl.Grant("admin", "guardian", access.CapGuardian))
	return sources.Env{
		BaseCurrency: "USD",
		BaseDecimals: 8,
		Access:       ctrl,
		Clock:        func() time.Time { return now },
	}
}

func usd(v uint64) Peg {
	return Peg{
		Price:      fixedpoint.FromUint64(v),
		LowerGuard: fixedpoint.FromUint64(98_000000),
		UpperGuard: fixedpoint.FromUint64(102_000000),
	}
}

func TestConfigure(t *testing.T) {
	w, err := New("peg", testEnv(t))
	require.NoError(t, err)

	require.ErrorIs(t, w.Configure("guardian", "USDC", usd(100_000000), sources.FeedParams{}), access.ErrUnauthorized)
	require.ErrorIs(t, w.Configure("manager", "USDC", usd(0), sources.FeedParams{}), ErrZeroPeg)
	require.ErrorIs(t, w.Configure("manager", "USDC", usd(97_000000), sources.FeedParams{}), ErrPegOutOfBand)

	inverted := usd(100_000000)
	inverted.LowerGuard, inverted.UpperGuard = inverted.UpperGuard, inverted.LowerGuard
	require.ErrorIs(t, w.Configure("manager", "USDC", inverted, sources.FeedParams{}), ErrInvalidGuards)

	require.NoError(t, w.Configure("manager", "USDC", usd(100_000000), sources.FeedParams{}))

	obs, err := w.Observe(context.Background(), "USDC")
	require.NoError(t, err)
	assert.True(t, obs.IsLive)
	assert.Equal(t, uint64(100_000000), obs.Price.Uint64())
	assert.Equal(t, now, obs.ObservedAt)
}

func TestSetPeg(t *testing.T) {
	w, err := New("peg", testEnv(t))
	require.NoError(t, err)
	require.NoError(t, w.Configure("manager", "USDC", usd(100_000000), sources.FeedParams{}))

	require.ErrorIs(t, w.SetPeg("manager", "USDC", fixedpoint.FromUint64(101_000000)), access.ErrUnauthorized)
	require.ErrorIs(t, w.SetPeg("guardian", "USDC", fixedpoint.FromUint64(103_000000)), ErrPegOutOfBand)
	require.ErrorIs(t, w.SetPeg("guardian", "USDC", fixedpoint.FromUint64(0)), ErrZeroPeg)
	require.ErrorIs(t, w.SetPeg("guardian", "DAI", fixedpoint.FromUint64(100_000000)), sources.ErrAssetNotConfigured)

	obs, _ := w.Observe(context.Background(), "USDC")
	assert.Equal(t, uint64(100_000000), obs.Price.Uint64(), "rejected updates leave the peg untouched")

	require.NoError(t, w.SetPeg("guardian", "USDC", fixedpoint.FromUint64(102_000000)))
	obs, _ = w.Observe(context.Background(), "USDC")
	assert.Equal(t, uint64(102_000000), obs.Price.Uint64())
}

func TestNewFromConfig(t *testing.T) {
	w, err := sources.Create(context.Background(), sources.KindPeg, "peg", testEnv(t), map[string]interface{}{
		"assets": []interface{}{
			map[string]interface{}{"asset": "USDC", "price": "1", "lower_guard": "0.98", "upper_guard": "1.02"},
		},
	})
	require.NoError(t, err)

	obs, err := w.Observe(context.Background(), "USDC")
	require.NoError(t, err)
	assert.Equal(t, uint64(100_000000), obs.Price.Uint64())

	_, err = sources.Create(context.Background(), sources.KindPeg, "peg", testEnv(t), map[string]interface{}{
		"assets": []interface{}{
			map[string]interface{}{"asset": "USDC", "price": "1.5", "upper_guard": "1.02"},
		},
	})
	require.ErrorIs(t, err, ErrPegOutOfBand)
}
