package aggregator

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/StrathCole/oracle-resolver/pkg/access"
	"github.com/StrathCole/oracle-resolver/pkg/server/sources"
)

// compatible checks that w is present, quotes the aggregator's base
// currency and unit, and serves asset.
func (a *Aggregator) compatible(w sources.Wrapper, asset string) error {
	if w == nil {
		return ErrInvalidProvider
	}
	if sources.NormalizeAsset(w.BaseCurrency()) != a.cfg.BaseCurrency {
		return fmt.Errorf("%w: %s quotes %s, want %s", ErrIncompatibleBase, w.Name(), w.BaseCurrency(), a.cfg.BaseCurrency)
	}
	unit := w.BaseUnit()
	if !unit.Eq(&a.baseUnit) {
		return fmt.Errorf("%w: %s unit %s, want %s", ErrIncompatibleBase, w.Name(), unit.Dec(), a.baseUnit.Dec())
	}
	for _, served := range w.Assets() {
		if served == asset {
			return nil
		}
	}
	return fmt.Errorf("%w: %s on %s", ErrProviderMissingAsset, asset, w.Name())
}

func (a *Aggregator) prepare(caller access.Principal, capability access.Capability, asset string) (string, error) {
	if err := a.access.Authorize(caller, capability); err != nil {
		return "", err
	}
	asset = sources.NormalizeAsset(asset)
	if err := sources.ValidateAsset(asset); err != nil {
		return "", err
	}
	if asset == a.cfg.BaseCurrency {
		return "", fmt.Errorf("%w: %s is the base currency", ErrInvalidConfig, asset)
	}
	return asset, nil
}

// SetPrimaryProvider registers asset or replaces its primary provider.
// Switching to a different provider clears the remembered last-good price,
// so it is refused while the asset is frozen.
func (a *Aggregator) SetPrimaryProvider(caller access.Principal, asset string, w sources.Wrapper) (err error) {
	defer func() { a.record("set_primary", err) }()

	asset, err = a.prepare(caller, access.CapOracleManager, asset)
	if err != nil {
		return err
	}
	if err = a.compatible(w, asset); err != nil {
		return err
	}

	var created, reset bool
	err = a.mutate(asset, func(cur *AssetEntry) (*AssetEntry, error) {
		if cur == nil {
			created = true
			return &AssetEntry{Asset: asset, Primary: w}, nil
		}
		if cur.FallbackName() == w.Name() {
			return nil, fmt.Errorf("%w: %s", ErrSameProvider, w.Name())
		}
		if cur.PrimaryName() != w.Name() {
			if cur.Frozen {
				return nil, fmt.Errorf("%w: %s, unfreeze before changing the primary provider", ErrAlreadyFrozen, asset)
			}
			reset = !cur.LastGood.IsEmpty()
			cur.LastGood = sources.Observation{}
		}
		cur.Primary = w
		return cur, nil
	})
	if err != nil {
		return err
	}

	a.logger.Info("Primary provider set", "asset", asset, "provider", w.Name(),
		"created", created, "last_good_reset", reset, "caller", string(caller))
	a.emit(EventPrimarySet, asset, caller, w.Name(), uint256.Int{})
	return nil
}

// SetFallbackProvider sets the fallback of a registered asset.
func (a *Aggregator) SetFallbackProvider(caller access.Principal, asset string, w sources.Wrapper) (err error) {
	defer func() { a.record("set_fallback", err) }()

	asset, err = a.prepare(caller, access.CapOracleManager, asset)
	if err != nil {
		return err
	}
	if err = a.compatible(w, asset); err != nil {
		return err
	}
	err = a.existing(asset, func(cur AssetEntry) (AssetEntry, error) {
		if cur.PrimaryName() == w.Name() {
			return cur, fmt.Errorf("%w: %s", ErrSameProvider, w.Name())
		}
		cur.Fallback = w
		return cur, nil
	})
	if err != nil {
		return err
	}

	a.logger.Info("Fallback provider set", "asset", asset, "provider", w.Name(), "caller", string(caller))
	a.emit(EventFallbackSet, asset, caller, w.Name(), uint256.Int{})
	return nil
}

// ClearFallbackProvider removes the fallback of a registered asset.
func (a *Aggregator) ClearFallbackProvider(caller access.Principal, asset string) (err error) {
	defer func() { a.record("clear_fallback", err) }()

	asset, err = a.prepare(caller, access.CapOracleManager, asset)
	if err != nil {
		return err
	}
	var prev string
	err = a.existing(asset, func(cur AssetEntry) (AssetEntry, error) {
		prev = cur.FallbackName()
		cur.Fallback = nil
		return cur, nil
	})
	if err != nil {
		return err
	}

	a.logger.Info("Fallback provider cleared", "asset", asset, "previous", prev, "caller", string(caller))
	a.emit(EventFallbackCleared, asset, caller, prev, uint256.Int{})
	return nil
}

// UpdateRiskConfig replaces the aggregator-level checks of a registered asset.
func (a *Aggregator) UpdateRiskConfig(caller access.Principal, asset string, risk RiskConfig) (err error) {
	defer func() { a.record("update_risk", err) }()

	asset, err = a.prepare(caller, access.CapOracleManager, asset)
	if err != nil {
		return err
	}
	if err = risk.Validate(); err != nil {
		return err
	}
	err = a.existing(asset, func(cur AssetEntry) (AssetEntry, error) {
		cur.Risk = risk
		return cur, nil
	})
	if err != nil {
		return err
	}

	a.logger.Info("Risk config updated", "asset", asset,
		"heartbeat_override", risk.HeartbeatOverride.String(), "max_stale_time", risk.MaxStaleTime.String(),
		"max_deviation_bps", risk.MaxDeviationBps, "min_answer", risk.MinAnswer.Dec(),
		"max_answer", risk.MaxAnswer.Dec(), "caller", string(caller))
	a.emit(EventRiskUpdated, asset, caller, "", uint256.Int{})
	return nil
}

// RecordLastGood resolves asset and stores the result as the last-good
// price. Only a live primary or fallback resolution is accepted. The slot
// stays locked for the duration so no provider change can interleave.
func (a *Aggregator) RecordLastGood(ctx context.Context, caller access.Principal, asset string) (res Resolution, err error) {
	defer func() { a.record("record_last_good", err) }()

	asset, err = a.prepare(caller, access.CapOracleManager, asset)
	if err != nil {
		return Resolution{}, err
	}
	err = a.existing(asset, func(cur AssetEntry) (AssetEntry, error) {
		res = a.resolveEntry(ctx, cur)
		if res.State != StatePrimary && res.State != StateFallback {
			return cur, fmt.Errorf("%w: %s resolves to %s", ErrNotResolvedLive, asset, res.State)
		}
		cur.LastGood = res.Observation
		return cur, nil
	})
	if err != nil {
		return Resolution{}, err
	}

	a.logger.Info("Last good price recorded", "asset", asset, "price", res.Observation.Price.Dec(),
		"observed_at", res.Observation.ObservedAt, "source", res.State.String(), "caller", string(caller))
	a.emit(EventLastGoodRecorded, asset, caller, res.Provider, res.Observation.Price)
	return res, nil
}

// RemoveAsset deletes the registry entry of asset.
func (a *Aggregator) RemoveAsset(caller access.Principal, asset string) (err error) {
	defer func() { a.record("remove_asset", err) }()

	asset, err = a.prepare(caller, access.CapOracleManager, asset)
	if err != nil {
		return err
	}
	err = a.mutate(asset, func(cur *AssetEntry) (*AssetEntry, error) {
		if cur == nil {
			return nil, fmt.Errorf("%w: %s", ErrAssetNotRegistered, asset)
		}
		return nil, nil
	})
	if err != nil {
		return err
	}

	a.logger.Info("Asset removed", "asset", asset, "caller", string(caller))
	a.emit(EventAssetRemoved, asset, caller, "", uint256.Int{})
	return nil
}
