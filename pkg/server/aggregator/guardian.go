package aggregator

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"github.com/StrathCole/oracle-resolver/pkg/access"
	"github.com/StrathCole/oracle-resolver/pkg/metrics"
)

// Freeze pins asset to its last-good price. Reads then return that price
// as not live until Unfreeze. Gated by CapGuardian.
func (a *Aggregator) Freeze(caller access.Principal, asset string) (err error) {
	defer func() { a.record("freeze", err) }()

	asset, err = a.prepare(caller, access.CapGuardian, asset)
	if err != nil {
		return err
	}
	var pinned uint256.Int
	err = a.existing(asset, func(cur AssetEntry) (AssetEntry, error) {
		if cur.Frozen {
			return cur, fmt.Errorf("%w: %s", ErrAlreadyFrozen, asset)
		}
		if cur.LastGood.IsEmpty() {
			return cur, fmt.Errorf("%w: %s", ErrNoLastGood, asset)
		}
		cur.Frozen = true
		pinned = cur.LastGood.Price
		return cur, nil
	})
	if err != nil {
		return err
	}

	metrics.RecordFrozen(asset, true)
	a.logger.Warn("Asset frozen", "asset", asset, "price", pinned.Dec(), "caller", string(caller))
	a.emit(EventFrozen, asset, caller, "", pinned)
	return nil
}

// Unfreeze returns asset to normal resolution. Gated by CapGuardian.
func (a *Aggregator) Unfreeze(caller access.Principal, asset string) (err error) {
	defer func() { a.record("unfreeze", err) }()

	asset, err = a.prepare(caller, access.CapGuardian, asset)
	if err != nil {
		return err
	}
	err = a.existing(asset, func(cur AssetEntry) (AssetEntry, error) {
		if !cur.Frozen {
			return cur, fmt.Errorf("%w: %s", ErrNotFrozen, asset)
		}
		cur.Frozen = false
		return cur, nil
	})
	if err != nil {
		return err
	}

	metrics.RecordFrozen(asset, false)
	a.logger.Warn("Asset unfrozen", "asset", asset, "caller", string(caller))
	a.emit(EventUnfrozen, asset, caller, "", uint256.Int{})
	return nil
}

// PushFrozenPrice replaces the pinned price of a frozen asset. The price
// must be positive and observedAt must be set and not in the future. The
// pushed price also becomes the last-good reference after unfreezing.
func (a *Aggregator) PushFrozenPrice(caller access.Principal, asset string, price uint256.Int, observedAt time.Time) (err error) {
	defer func() { a.record("push_frozen_price", err) }()

	asset, err = a.prepare(caller, access.CapGuardian, asset)
	if err != nil {
		return err
	}
	if price.IsZero() {
		return ErrZeroPrice
	}
	if observedAt.IsZero() || observedAt.Unix() <= 0 || observedAt.After(a.clock()) {
		return fmt.Errorf("%w: %s", ErrInvalidTimestamp, observedAt)
	}
	err = a.existing(asset, func(cur AssetEntry) (AssetEntry, error) {
		if !cur.Frozen {
			return cur, fmt.Errorf("%w: %s", ErrNotFrozen, asset)
		}
		cur.LastGood.Price = price
		cur.LastGood.ObservedAt = observedAt
		cur.LastGood.IsLive = false
		return cur, nil
	})
	if err != nil {
		return err
	}

	a.logger.Warn("Frozen price pushed", "asset", asset, "price", price.Dec(),
		"observed_at", observedAt, "caller", string(caller))
	a.emit(EventFrozenPricePushed, asset, caller, "", price)
	return nil
}
