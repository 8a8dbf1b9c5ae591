package sources

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/StrathCole/oracle-resolver/pkg/access"
	"github.com/StrathCole/oracle-resolver/pkg/fixedpoint"
	"github.com/StrathCole/oracle-resolver/pkg/logging"
	"github.com/StrathCole/oracle-resolver/pkg/metrics"
)

// Precision records the upstream decimals of a binding. Variants with two
// inputs (composite legs, vault share/asset) use both slots.
type Precision [2]uint8

// Binding is the per-asset configuration of a wrapper.
type Binding[U any] struct {
	Upstream  U
	Params    FeedParams
	Precision Precision
	// LastGood is the wrapper-local deviation reference.
	LastGood Observation
}

// BaseWrapper provides common functionality for all wrapper variants.
type BaseWrapper[U any] struct {
	name         string
	kind         Kind
	baseCurrency string
	baseDecimals uint8
	baseUnit     uint256.Int
	access       *access.Control
	logger       *logging.Logger
	clock        func() time.Time

	mu       sync.RWMutex
	bindings map[string]Binding[U]
}

// NewBaseWrapper creates the shared part of a wrapper.
func NewBaseWrapper[U any](name string, kind Kind, env Env) (*BaseWrapper[U], error) {
	if name == "" {
		return nil, fmt.Errorf("%w: provider name is required", ErrInvalidConfig)
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	unit, err := fixedpoint.BaseUnit(env.BaseDecimals)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnv, err)
	}
	return &BaseWrapper[U]{
		name:         name,
		kind:         kind,
		baseCurrency: env.BaseCurrency,
		baseDecimals: env.BaseDecimals,
		baseUnit:     unit,
		access:       env.Access,
		logger:       env.Logger.With("provider", name, "kind", string(kind)),
		clock:        env.Clock,
		bindings:     make(map[string]Binding[U]),
	}, nil
}

// Name returns the provider handle.
func (b *BaseWrapper[U]) Name() string {
	return b.name
}

// Kind returns the wrapper variant.
func (b *BaseWrapper[U]) Kind() Kind {
	return b.kind
}

// BaseCurrency returns the currency prices are quoted in.
func (b *BaseWrapper[U]) BaseCurrency() string {
	return b.baseCurrency
}

// BaseUnit returns the fixed-point scale of every price.
func (b *BaseWrapper[U]) BaseUnit() uint256.Int {
	return b.baseUnit
}

// BaseDecimals returns log10 of the base unit.
func (b *BaseWrapper[U]) BaseDecimals() uint8 {
	return b.baseDecimals
}

// Logger returns the logger
func (b *BaseWrapper[U]) Logger() *logging.Logger {
	return b.logger
}

// Now returns the wrapper clock.
func (b *BaseWrapper[U]) Now() time.Time {
	return b.clock()
}

// Assets lists configured assets in sorted order.
func (b *BaseWrapper[U]) Assets() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	assets := make([]string, 0, len(b.bindings))
	for a := range b.bindings {
		assets = append(assets, a)
	}
	sort.Strings(assets)
	return assets
}

// Binding returns a copy of the binding for asset.
func (b *BaseWrapper[U]) Binding(asset string) (Binding[U], bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	binding, ok := b.bindings[NormalizeAsset(asset)]
	return binding, ok
}

// Lookup is Binding with ErrAssetNotConfigured for a missing asset.
func (b *BaseWrapper[U]) Lookup(asset string) (Binding[U], error) {
	binding, ok := b.Binding(asset)
	if !ok {
		return binding, fmt.Errorf("%w: %s on %s", ErrAssetNotConfigured, asset, b.name)
	}
	return binding, nil
}

// Authorize checks that caller holds capability.
func (b *BaseWrapper[U]) Authorize(caller access.Principal, capability access.Capability) error {
	return b.access.Authorize(caller, capability)
}

// Configure is Bind gated by CapOracleManager.
func (b *BaseWrapper[U]) Configure(caller access.Principal, asset string, up U, precision Precision, params FeedParams) error {
	if err := b.Authorize(caller, access.CapOracleManager); err != nil {
		return err
	}
	return b.Bind(asset, up, precision, params)
}

// Bind registers or replaces the binding of asset. Replacing a binding with a
// different upstream precision fails with ErrDecimalsChanged. The local
// last-good reference survives a rebinding.
func (b *BaseWrapper[U]) Bind(asset string, up U, precision Precision, params FeedParams) error {
	asset = NormalizeAsset(asset)
	if err := ValidateAsset(asset); err != nil {
		return err
	}
	if err := params.Validate(); err != nil {
		return err
	}
	for _, d := range precision {
		if d > fixedpoint.MaxDecimals {
			return fmt.Errorf("%w: %d", fixedpoint.ErrDecimalsOutOfRange, d)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	prev, exists := b.bindings[asset]
	if exists && prev.Precision != precision {
		return fmt.Errorf("%w: %s was %v, now %v", ErrDecimalsChanged, asset, prev.Precision, precision)
	}
	b.bindings[asset] = Binding[U]{
		Upstream:  up,
		Params:    params,
		Precision: precision,
		LastGood:  prev.LastGood,
	}

	b.logger.Info("Provider binding configured", "asset", asset, "replaced", exists,
		"heartbeat", params.Heartbeat.String(), "max_stale_time", params.MaxStaleTime.String(),
		"max_deviation_bps", params.MaxDeviationBps)
	return nil
}

// Update replaces the binding of asset with fn's result under the write lock.
func (b *BaseWrapper[U]) Update(asset string, fn func(Binding[U]) (Binding[U], error)) error {
	asset = NormalizeAsset(asset)

	b.mu.Lock()
	defer b.mu.Unlock()

	cur, ok := b.bindings[asset]
	if !ok {
		return fmt.Errorf("%w: %s on %s", ErrAssetNotConfigured, asset, b.name)
	}
	next, err := fn(cur)
	if err != nil {
		return err
	}
	if next.Precision != cur.Precision {
		return fmt.Errorf("%w: %s", ErrDecimalsChanged, asset)
	}
	b.bindings[asset] = next
	return nil
}

// Remove drops the binding of asset. Gated by CapOracleManager.
func (b *BaseWrapper[U]) Remove(caller access.Principal, asset string) error {
	if err := b.Authorize(caller, access.CapOracleManager); err != nil {
		return err
	}
	asset = NormalizeAsset(asset)

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.bindings[asset]; !ok {
		return fmt.Errorf("%w: %s on %s", ErrAssetNotConfigured, asset, b.name)
	}
	delete(b.bindings, asset)
	b.logger.Info("Provider binding removed", "asset", asset)
	return nil
}

// Record implements Wrapper.RecordLastGood on top of a variant's Observe.
func (b *BaseWrapper[U]) Record(ctx context.Context, caller access.Principal, asset string,
	observe func(context.Context, string) (Observation, error),
) (Observation, error) {
	if err := b.Authorize(caller, access.CapOracleManager); err != nil {
		return Observation{}, err
	}
	obs, err := observe(ctx, asset)
	if err != nil {
		return Observation{}, err
	}
	if !obs.IsLive {
		return Observation{}, fmt.Errorf("%w: %s on %s", ErrPriceNotAlive, asset, b.name)
	}
	if err := b.Update(asset, func(cur Binding[U]) (Binding[U], error) {
		cur.LastGood = obs
		return cur, nil
	}); err != nil {
		return Observation{}, err
	}
	b.logger.Info("Provider last good price recorded", "asset", NormalizeAsset(asset),
		"price", obs.Price.Dec(), "observed_at", obs.ObservedAt)
	return obs, nil
}

// Assess applies the shared liveness rules to a normalized price. The price
// is returned even when the observation is not live.
func (b *BaseWrapper[U]) Assess(asset string, price uint256.Int, updatedAt time.Time, params FeedParams, lastGood Observation) Observation {
	reason := params.Check(b.clock(), updatedAt, lastGood.Price).Evaluate(price)
	b.note(asset, reason)
	return Observation{Price: price, ObservedAt: updatedAt, IsLive: reason == ReasonLive}
}

// AssessRaw normalizes raw from decimals into the base unit, then applies
// Assess. A saturated value is reported at MaxUint256 and never live.
func (b *BaseWrapper[U]) AssessRaw(asset string, raw *big.Int, decimals uint8, updatedAt time.Time, params FeedParams, lastGood Observation) Observation {
	price, ok := b.Normalize(asset, raw, decimals)
	obs := b.Assess(asset, price, updatedAt, params, lastGood)
	if !ok {
		obs.IsLive = false
	}
	return obs
}

// Normalize scales raw into the base unit. ok is false for non-positive,
// saturated or otherwise unusable values.
func (b *BaseWrapper[U]) Normalize(asset string, raw *big.Int, decimals uint8) (uint256.Int, bool) {
	price, err := fixedpoint.Normalize(raw, decimals, b.baseUnit)
	if err != nil {
		b.logger.Debug("Normalization failed", "asset", asset, "decimals", decimals, "error", err)
		return price, false
	}
	return price, true
}

// Fault records an upstream failure and returns an empty not-live observation.
func (b *BaseWrapper[U]) Fault(asset string, reason Reason, err error) Observation {
	metrics.RecordProviderFault(b.name, string(reason))
	b.logger.Warn("Upstream read failed", "asset", asset, "reason", string(reason), "error", err)
	return Observation{}
}

// Guard runs read and converts a panic into a not-live observation.
func (b *BaseWrapper[U]) Guard(asset string, read func() Observation) (obs Observation) {
	defer func() {
		if r := recover(); r != nil {
			obs = b.Fault(asset, ReasonPanic, fmt.Errorf("recovered: %v", r))
		}
		metrics.RecordObservation(b.name, asset, obs.IsLive)
	}()
	return read()
}

func (b *BaseWrapper[U]) note(asset string, reason Reason) {
	switch reason {
	case ReasonLive:
	case ReasonDeviation:
		metrics.RecordDeviationRejection("wrapper", asset)
		b.logger.Warn("Observation rejected by deviation check", "asset", asset)
	default:
		b.logger.Debug("Observation not live", "asset", asset, "reason", string(reason))
	}
}
