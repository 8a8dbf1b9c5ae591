package aggregator

import (
	"context"
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"github.com/StrathCole/oracle-resolver/pkg/metrics"
	"github.com/StrathCole/oracle-resolver/pkg/server/sources"
)

// Resolve walks the resolution ladder for asset: frozen, primary, fallback,
// last good. Provider faults never surface as errors; the only error is an
// unregistered asset. A ladder with no usable rung yields StateNone.
func (a *Aggregator) Resolve(ctx context.Context, asset string) (Resolution, error) {
	asset = sources.NormalizeAsset(asset)
	now := a.clock()

	if asset == a.cfg.BaseCurrency {
		return Resolution{
			Asset:       asset,
			Observation: sources.Observation{Price: a.baseUnit, ObservedAt: now, IsLive: true},
			State:       StateBase,
		}, nil
	}

	entry := a.load(asset)
	if entry == nil {
		return Resolution{Asset: asset}, fmt.Errorf("%w: %s", ErrAssetNotRegistered, asset)
	}
	res := a.resolveEntry(ctx, *entry)

	age := now.Sub(res.Observation.ObservedAt)
	if res.Observation.IsEmpty() {
		age = -1
	}
	metrics.RecordResolution(asset, res.State.String(), age)
	return res, nil
}

func (a *Aggregator) resolveEntry(ctx context.Context, entry AssetEntry) Resolution {
	res := Resolution{Asset: entry.Asset, Frozen: entry.Frozen}

	if entry.Frozen {
		if entry.LastGood.IsEmpty() {
			res.State = StateNone
			return res
		}
		res.State = StateFrozen
		res.Observation = entry.LastGood.NotLive()
		return res
	}

	if obs, ok := a.usable(ctx, entry, entry.Primary); ok {
		res.State = StatePrimary
		res.Observation = obs
		res.Provider = entry.PrimaryName()
		return res
	}

	if entry.Fallback != nil {
		if obs, ok := a.usable(ctx, entry, entry.Fallback); ok {
			res.State = StateFallback
			res.Observation = obs
			res.Provider = entry.FallbackName()
			res.UsedFallback = true
			return res
		}
	}

	if !entry.LastGood.IsEmpty() {
		res.State = StateLastGood
		res.Observation = entry.LastGood.NotLive()
		return res
	}

	res.State = StateNone
	return res
}

// usable queries w and applies the aggregator-level checks of entry.
func (a *Aggregator) usable(ctx context.Context, entry AssetEntry, w sources.Wrapper) (sources.Observation, bool) {
	if w == nil {
		return sources.Observation{}, false
	}
	obs, reason := a.query(ctx, w, entry.Asset)
	if reason != sources.ReasonLive {
		return obs, false
	}
	if !obs.IsLive {
		a.logger.Debug("Provider observation not live", "asset", entry.Asset, "provider", w.Name())
		return obs, false
	}

	check := sources.Check{
		Now:             a.clock(),
		UpdatedAt:       obs.ObservedAt,
		Budget:          a.budget(entry.Risk),
		MinAnswer:       entry.Risk.MinAnswer,
		MaxAnswer:       entry.Risk.MaxAnswer,
		MaxDeviationBps: entry.Risk.MaxDeviationBps,
		Reference:       entry.LastGood.Price,
	}
	switch reason := check.Evaluate(obs.Price); reason {
	case sources.ReasonLive:
		return obs, true
	case sources.ReasonDeviation:
		metrics.RecordDeviationRejection("aggregator", entry.Asset)
		a.logger.Warn("Provider price rejected by deviation check", "asset", entry.Asset,
			"provider", w.Name(), "price", obs.Price.Dec(), "last_good", entry.LastGood.Price.Dec())
		return obs, false
	default:
		a.logger.Debug("Provider price rejected", "asset", entry.Asset, "provider", w.Name(), "reason", string(reason))
		return obs, false
	}
}

func (a *Aggregator) budget(risk RiskConfig) time.Duration {
	return sources.StalenessBudget(risk.HeartbeatOverride, risk.MaxStaleTime, a.cfg.DefaultHeartbeat, a.cfg.DefaultMaxStaleTime)
}

type queryResult struct {
	obs    sources.Observation
	reason sources.Reason
}

// query calls w.Observe bounded by the provider timeout. Errors, panics and
// timeouts come back as a non-live reason.
func (a *Aggregator) query(ctx context.Context, w sources.Wrapper, asset string) (sources.Observation, sources.Reason) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.ProviderTimeout)
	defer cancel()

	done := make(chan queryResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- queryResult{reason: sources.ReasonPanic}
				a.logger.Error("Provider panicked", "asset", asset, "provider", w.Name(), "panic", fmt.Sprint(r))
			}
		}()
		obs, err := w.Observe(ctx, asset)
		if err != nil {
			a.logger.Warn("Provider observe failed", "asset", asset, "provider", w.Name(), "error", err)
			done <- queryResult{reason: sources.ReasonUpstreamError}
			return
		}
		done <- queryResult{obs: obs}
	}()

	select {
	case res := <-done:
		if res.reason != sources.ReasonLive {
			metrics.RecordProviderFault(w.Name(), string(res.reason))
		}
		return res.obs, res.reason
	case <-ctx.Done():
		metrics.RecordProviderFault(w.Name(), string(sources.ReasonTimeout))
		a.logger.Warn("Provider timed out", "asset", asset, "provider", w.Name(), "timeout", a.cfg.ProviderTimeout.String())
		return sources.Observation{}, sources.ReasonTimeout
	}
}

// GetObservation resolves asset and fails with ErrNoUsablePrice when
// nothing is usable.
func (a *Aggregator) GetObservation(ctx context.Context, asset string) (sources.Observation, error) {
	res, err := a.Resolve(ctx, asset)
	if err != nil {
		return sources.Observation{}, err
	}
	if res.State == StateNone {
		return sources.Observation{}, fmt.Errorf("%w: %s", ErrNoUsablePrice, res.Asset)
	}
	return res.Observation, nil
}

// GetPrice returns only a live price.
func (a *Aggregator) GetPrice(ctx context.Context, asset string) (uint256.Int, error) {
	obs, err := a.GetObservation(ctx, asset)
	if err != nil {
		return uint256.Int{}, err
	}
	if !obs.IsLive {
		return uint256.Int{}, fmt.Errorf("%w: %s", ErrPriceNotLive, sources.NormalizeAsset(asset))
	}
	return obs.Price, nil
}

// BatchResolve resolves every asset in order and never fails. Unregistered
// and unresolvable assets yield an empty not-live observation.
func (a *Aggregator) BatchResolve(ctx context.Context, assets []string) BatchResult {
	out := BatchResult{
		Observations: make([]sources.Observation, len(assets)),
		Frozen:       make([]bool, len(assets)),
		UsedFallback: make([]bool, len(assets)),
		States:       make([]State, len(assets)),
	}
	for i, asset := range assets {
		res, err := a.Resolve(ctx, asset)
		if err != nil {
			continue
		}
		out.Observations[i] = res.Observation
		out.Frozen[i] = res.Frozen
		out.UsedFallback[i] = res.UsedFallback
		out.States[i] = res.State
	}
	return out
}
