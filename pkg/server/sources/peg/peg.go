package peg

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/StrathCole/oracle-resolver/pkg/access"
	"github.com/StrathCole/oracle-resolver/pkg/fixedpoint"
	"github.com/StrathCole/oracle-resolver/pkg/server/sources"
)

var (
	_ sources.Wrapper   = (*Wrapper)(nil)
	_ sources.PegSetter = (*Wrapper)(nil)
)

// Peg is the state of one pegged asset. A zero guard disables that side.
type Peg struct {
	Price      uint256.Int
	LowerGuard uint256.Int
	UpperGuard uint256.Int
}

func (p Peg) validate() error {
	if p.Price.IsZero() {
		return ErrZeroPeg
	}
	if !p.UpperGuard.IsZero() && p.LowerGuard.Gt(&p.UpperGuard) {
		return fmt.Errorf("%w: %s > %s", ErrInvalidGuards, p.LowerGuard.Dec(), p.UpperGuard.Dec())
	}
	if !fixedpoint.WithinBounds(p.Price, p.LowerGuard, p.UpperGuard) {
		return fmt.Errorf("%w: %s not in [%s, %s]", ErrPegOutOfBand, p.Price.Dec(), p.LowerGuard.Dec(), p.UpperGuard.Dec())
	}
	return nil
}

// Wrapper serves fixed prices in the base unit. Observations are always live
// and stamped with the current time.
type Wrapper struct {
	*sources.BaseWrapper[Peg]
}

// New creates an empty peg wrapper.
func New(name string, env sources.Env) (*Wrapper, error) {
	base, err := sources.NewBaseWrapper[Peg](name, sources.KindPeg, env)
	if err != nil {
		return nil, err
	}
	return &Wrapper{BaseWrapper: base}, nil
}

// Configure binds asset to a peg. Gated by CapOracleManager.
func (w *Wrapper) Configure(caller access.Principal, asset string, peg Peg, params sources.FeedParams) error {
	if err := w.Authorize(caller, access.CapOracleManager); err != nil {
		return err
	}
	return w.bind(asset, peg, params)
}

func (w *Wrapper) bind(asset string, peg Peg, params sources.FeedParams) error {
	if err := peg.validate(); err != nil {
		return fmt.Errorf("%s: %w", asset, err)
	}
	return w.Bind(asset, peg, sources.Precision{w.BaseDecimals()}, params)
}

// SetPeg moves the peg price of asset. Gated by CapGuardian. A price outside
// the guard band is rejected, never clamped.
func (w *Wrapper) SetPeg(caller access.Principal, asset string, price uint256.Int) error {
	if err := w.Authorize(caller, access.CapGuardian); err != nil {
		return err
	}
	var prev uint256.Int
	err := w.Update(asset, func(cur sources.Binding[Peg]) (sources.Binding[Peg], error) {
		next := cur.Upstream
		next.Price = price
		if err := next.validate(); err != nil {
			return cur, err
		}
		prev = cur.Upstream.Price
		cur.Upstream = next
		return cur, nil
	})
	if err != nil {
		return err
	}
	w.Logger().Warn("Peg price updated", "asset", sources.NormalizeAsset(asset), "actor", string(caller),
		"previous", prev.Dec(), "price", price.Dec())
	return nil
}

// Observe implements sources.Wrapper.
func (w *Wrapper) Observe(_ context.Context, asset string) (sources.Observation, error) {
	b, err := w.Lookup(asset)
	if err != nil {
		return sources.Observation{}, err
	}
	return w.Guard(asset, func() sources.Observation {
		return sources.Observation{Price: b.Upstream.Price, ObservedAt: w.Now(), IsLive: true}
	}), nil
}

// RecordLastGood implements sources.Wrapper.
func (w *Wrapper) RecordLastGood(ctx context.Context, caller access.Principal, asset string) (sources.Observation, error) {
	return w.Record(ctx, caller, asset, w.Observe)
}
