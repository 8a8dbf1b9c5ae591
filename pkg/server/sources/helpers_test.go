package sources

import (
	"context"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/oracle-resolver/pkg/access"
	"github.com/StrathCole/oracle-resolver/pkg/upstream"
)

func TestParseFeedParams(t *testing.T) {
	m := map[string]interface{}{
		"heartbeat":         "1h",
		"max_stale_time":    600,
		"max_deviation_bps": 250,
		"min_answer":        "0.5",
		"max_answer":        100000,
	}
	p, err := ParseFeedParams(m, "", 8)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, p.Heartbeat)
	assert.Equal(t, 10*time.Minute, p.MaxStaleTime)
	assert.Equal(t, uint32(250), p.MaxDeviationBps)
	assert.Equal(t, uint64(50_000_000), p.MinAnswer.Uint64())
	assert.Equal(t, uint64(100000_00000000), p.MaxAnswer.Uint64())

	leg, err := ParseFeedParams(map[string]interface{}{"spot_heartbeat": "30m"}, "spot_", 8)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, leg.Heartbeat)
}

func TestParseFeedParams_Invalid(t *testing.T) {
	tests := []struct {
		name string
		m    map[string]interface{}
	}{
		{"bad duration", map[string]interface{}{"heartbeat": "soon"}},
		{"negative bps", map[string]interface{}{"max_deviation_bps": -1}},
		{"bps above 10000", map[string]interface{}{"max_deviation_bps": 10001}},
		{"inverted bounds", map[string]interface{}{"min_answer": "10", "max_answer": "1"}},
		{"bad price", map[string]interface{}{"min_answer": "ten"}},
		{"excess precision", map[string]interface{}{"min_answer": "0.000000001"}},
		{"wrong type", map[string]interface{}{"heartbeat": []interface{}{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFeedParams(tt.m, "", 8)
			require.Error(t, err)
		})
	}
}

func TestParseAssetBindings(t *testing.T) {
	got, err := ParseAssetBindings(map[string]interface{}{
		"assets": []interface{}{
			map[string]interface{}{"asset": "WETH"},
		},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)

	none, err := ParseAssetBindings(map[string]interface{}{})
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = ParseAssetBindings(map[string]interface{}{"assets": "WETH"})
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = ParseAssetBindings(map[string]interface{}{"assets": []interface{}{map[string]interface{}{}}})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestParseUpstream(t *testing.T) {
	spec, err := ParseUpstream(map[string]interface{}{
		"upstream": map[string]interface{}{"type": "memory", "name": "eth", "decimals": 8},
	}, "upstream")
	require.NoError(t, err)
	assert.Equal(t, upstream.TypeMemory, spec.Type)

	_, err = ParseUpstream(map[string]interface{}{}, "upstream")
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNormalizeAsset(t *testing.T) {
	assert.Equal(t, "WETH", NormalizeAsset(" weth\t"))
	require.NoError(t, ValidateAsset("WETH"))
	require.ErrorIs(t, ValidateAsset(""), ErrEmptyAsset)
	require.ErrorIs(t, ValidateAsset("ETH/USD"), ErrInvalidConfig)
}

type stubWrapper struct {
	name string
}

func (s stubWrapper) Name() string { return s.name }
func (stubWrapper) Kind() Kind     { return KindPeg }
func (stubWrapper) BaseCurrency() string {
	return "USD"
}
func (stubWrapper) BaseUnit() uint256.Int { return uint256.Int{} }
func (stubWrapper) Assets() []string      { return nil }
func (stubWrapper) Observe(context.Context, string) (Observation, error) {
	return Observation{}, nil
}
func (stubWrapper) RecordLastGood(context.Context, access.Principal, string) (Observation, error) {
	return Observation{}, nil
}
func (stubWrapper) Remove(access.Principal, string) error { return nil }

func TestDirectory(t *testing.T) {
	d := NewDirectory()
	require.NoError(t, d.Add(stubWrapper{name: "b"}))
	require.NoError(t, d.Add(stubWrapper{name: "a"}))
	require.ErrorIs(t, d.Add(stubWrapper{name: "a"}), ErrDuplicateProvider)

	w, err := d.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "a", w.Name())

	_, err = d.Get("c")
	require.ErrorIs(t, err, ErrProviderNotFound)

	list := d.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Name())
}

func TestCreate_UnknownKind(t *testing.T) {
	_, err := Create(context.Background(), Kind("oracle.band"), "x", Env{}, nil)
	require.ErrorIs(t, err, ErrUnknownKind)
}
