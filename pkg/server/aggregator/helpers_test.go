package aggregator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/oracle-resolver/pkg/access"
	"github.com/StrathCole/oracle-resolver/pkg/server/sources"
)

var now = time.Unix(1_700_000_000, 0)

func e8(v uint64) uint256.Int {
	return *uint256.NewInt(v * 100_000_000)
}

// stubProvider is a settable provider wrapper.
type stubProvider struct {
	name     string
	currency string
	unit     uint256.Int
	assets   []string

	mu       sync.Mutex
	obs      sources.Observation
	err      error
	panicMsg string
	block    bool
	calls    int
}

var _ sources.Wrapper = (*stubProvider)(nil)

func newStub(name string, assets ...string) *stubProvider {
	return &stubProvider{name: name, currency: "USD", unit: *uint256.NewInt(100_000_000), assets: assets}
}

func (s *stubProvider) live(price uint256.Int, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.obs = sources.Observation{Price: price, ObservedAt: at, IsLive: true}
	s.err, s.panicMsg, s.block = nil, "", false
}

func (s *stubProvider) dead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.obs = s.obs.NotLive()
}

func (s *stubProvider) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *stubProvider) explode(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panicMsg = msg
}

func (s *stubProvider) hang() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.block = true
}

func (s *stubProvider) Name() string                          { return s.name }
func (s *stubProvider) Kind() sources.Kind                    { return sources.KindFeed }
func (s *stubProvider) BaseCurrency() string                  { return s.currency }
func (s *stubProvider) BaseUnit() uint256.Int                 { return s.unit }
func (s *stubProvider) Assets() []string                      { return s.assets }
func (s *stubProvider) Remove(access.Principal, string) error { return nil }

func (s *stubProvider) Observe(ctx context.Context, _ string) (sources.Observation, error) {
	s.mu.Lock()
	s.calls++
	obs, err, panicMsg, block := s.obs, s.err, s.panicMsg, s.block
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return sources.Observation{}, ctx.Err()
	}
	if panicMsg != "" {
		panic(panicMsg)
	}
	return obs, err
}

func (s *stubProvider) RecordLastGood(ctx context.Context, _ access.Principal, asset string) (sources.Observation, error) {
	return s.Observe(ctx, asset)
}

// recorder collects published events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Publish(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

type fixture struct {
	agg    *Aggregator
	ctrl   *access.Control
	events *recorder
	clock  *time.Time
	mu     *sync.Mutex
}

func (f fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	*f.clock = f.clock.Add(d)
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctrl, err := access.NewControl("admin")
	require.NoError(t, err)
	require.NoError(t, ctrl.Grant("admin", "manager", access.CapOracleManager))
	require.NoError(t, ctrl.Grant("admin", "guardian", access.CapGuardian))

	clock := now
	var mu sync.Mutex
	events := &recorder{}
	agg, err := New(Config{
		BaseCurrency:    "usd",
		BaseDecimals:    8,
		ProviderTimeout: 50 * time.Millisecond,
	}, ctrl, nil, WithSink(events), WithClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return clock
	}))
	require.NoError(t, err)
	return fixture{agg: agg, ctrl: ctrl, events: events, clock: &clock, mu: &mu}
}

// register sets primary and optional fallback for asset.
func (f fixture) register(t *testing.T, asset string, primary, fallback *stubProvider) {
	t.Helper()
	require.NoError(t, f.agg.SetPrimaryProvider("manager", asset, primary))
	if fallback != nil {
		require.NoError(t, f.agg.SetFallbackProvider("manager", asset, fallback))
	}
}
