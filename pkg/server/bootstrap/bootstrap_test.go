package bootstrap

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/oracle-resolver/pkg/access"
	"github.com/StrathCole/oracle-resolver/pkg/config"
	"github.com/StrathCole/oracle-resolver/pkg/server/aggregator"
)

const runtimeYAML = `
oracle:
  base_currency: usd
  base_decimals: 8
access:
  admin: ops
  managers: [desk]
  guardians: [guard]
  tokens:
    ops: ops-token
    guard: guard-token
providers:
  - type: feed
    name: chainlink
    config:
      assets:
        - asset: weth
          upstream:
            type: memory
            name: eth-usd
            decimals: 8
          heartbeat: 1h
          max_stale_time: 10m
  - type: push
    name: redstone
    config:
      assets:
        - asset: WETH
          upstream:
            type: memory
            name: eth-push
            decimals: 8
          heartbeat: 1h
  - type: peg
    name: stable-peg
    config:
      assets:
        - asset: USDC
          price: "1"
          lower_guard: "0.95"
          upper_guard: "1.05"
  - type: feed
    name: broken
    config:
      assets:
        - asset: WBTC
          upstream:
            type: carrier-pigeon
  - type: feed
    name: disabled
    enabled: false
assets:
  - asset: WETH
    primary: chainlink
    fallback: redstone
    risk:
      max_deviation_bps: 2000
      min_answer: "100"
      max_answer: "100000"
  - asset: usdc
    primary: stable-peg
`

func buildRuntime(t *testing.T, yaml string) (*Runtime, error) {
	t.Helper()
	cfg, err := config.Parse([]byte(yaml))
	require.NoError(t, err)
	rt, err := Build(context.Background(), cfg, nil)
	if rt != nil {
		t.Cleanup(rt.Close)
	}
	return rt, err
}

func TestBuild_AssemblesRuntime(t *testing.T) {
	rt, err := buildRuntime(t, runtimeYAML)
	require.NoError(t, err)

	names := make([]string, 0)
	for _, w := range rt.Providers.List() {
		names = append(names, w.Name())
	}
	assert.Equal(t, []string{"chainlink", "redstone", "stable-peg"}, names)
	assert.Equal(t, []string{"USDC", "WETH"}, rt.Aggregator.Assets())

	assert.True(t, rt.Access.Has("desk", access.CapOracleManager))
	assert.True(t, rt.Access.Has("guard", access.CapGuardian))
	assert.False(t, rt.Access.Has(systemPrincipal, access.CapOracleManager))

	assert.Equal(t, access.Principal("ops"), rt.Tokens["ops-token"])
	assert.Equal(t, access.Principal("guard"), rt.Tokens["guard-token"])

	entry, err := rt.Aggregator.Entry("weth")
	require.NoError(t, err)
	assert.Equal(t, "chainlink", entry.PrimaryName())
	assert.Equal(t, "redstone", entry.FallbackName())
	assert.Equal(t, uint32(2000), entry.Risk.MaxDeviationBps)
	assert.Equal(t, *uint256.NewInt(100_00000000), entry.Risk.MinAnswer)
	assert.Equal(t, *uint256.NewInt(100000_00000000), entry.Risk.MaxAnswer)
}

func TestBuild_ResolvesThroughMemoryUpstreams(t *testing.T) {
	rt, err := buildRuntime(t, runtimeYAML)
	require.NoError(t, err)
	ctx := context.Background()

	// Primary has no round yet; the push fallback answers.
	rt.Memory.ValueFeed("eth-push", 8).Set(big.NewInt(2499_00000000), time.Now())
	res, err := rt.Aggregator.Resolve(ctx, "WETH")
	require.NoError(t, err)
	assert.Equal(t, aggregator.StateFallback, res.State)
	assert.True(t, res.UsedFallback)
	assert.Equal(t, *uint256.NewInt(2499_00000000), res.Observation.Price)

	rt.Memory.RoundFeed("eth-usd", 8).Set(big.NewInt(2500_00000000), time.Now())
	price, err := rt.Aggregator.GetPrice(ctx, "WETH")
	require.NoError(t, err)
	assert.Equal(t, *uint256.NewInt(2500_00000000), price)

	price, err = rt.Aggregator.GetPrice(ctx, "USDC")
	require.NoError(t, err)
	assert.Equal(t, *uint256.NewInt(1_00000000), price)

	price, err = rt.Aggregator.GetPrice(ctx, "USD")
	require.NoError(t, err)
	assert.Equal(t, *uint256.NewInt(1_00000000), price)
}

func TestBuild_MissingProvider(t *testing.T) {
	_, err := buildRuntime(t, runtimeYAML+`
  - asset: WBTC
    primary: broken
`)
	assert.ErrorIs(t, err, ErrMissingProvider)
}

func TestBuild_IncompatibleProvider(t *testing.T) {
	_, err := buildRuntime(t, runtimeYAML+`
  - asset: WBTC
    primary: stable-peg
`)
	assert.ErrorIs(t, err, aggregator.ErrProviderMissingAsset)
}

func TestBuild_RejectsInvalidAdmin(t *testing.T) {
	_, err := buildRuntime(t, "access:\n  admin: \"\"\n")
	assert.ErrorIs(t, err, access.ErrEmptyPrincipal)
}

func TestRiskFromConfig(t *testing.T) {
	risk, err := RiskFromConfig(config.RiskConfig{
		MaxStaleTime:    config.Duration(time.Minute),
		MaxDeviationBps: 50,
		MinAnswer:       "0.5",
	}, 8)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, risk.MaxStaleTime)
	assert.Equal(t, *uint256.NewInt(50_000_000), risk.MinAnswer)
	assert.True(t, risk.MaxAnswer.IsZero())

	_, err = RiskFromConfig(config.RiskConfig{MinAnswer: "10", MaxAnswer: "5"}, 8)
	assert.ErrorIs(t, err, aggregator.ErrInvalidRiskConfig)

	_, err = RiskFromConfig(config.RiskConfig{MinAnswer: "ten"}, 8)
	assert.Error(t, err)
}
