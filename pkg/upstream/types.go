package upstream

import (
	"context"
	"math/big"
	"time"
)

// Round is one answer of a round-based feed.
type Round struct {
	RoundID         *big.Int
	Answer          *big.Int
	StartedAt       time.Time
	UpdatedAt       time.Time
	AnsweredInRound *big.Int
}

// Complete reports whether the round was answered in itself or a later round.
func (r Round) Complete() bool {
	if r.RoundID == nil || r.AnsweredInRound == nil {
		return false
	}
	return r.AnsweredInRound.Cmp(r.RoundID) >= 0
}

// Value is a single value/timestamp pair.
type Value struct {
	Answer    *big.Int
	UpdatedAt time.Time
}

// RoundFeed is a round-based aggregator feed.
type RoundFeed interface {
	Decimals(ctx context.Context) (uint8, error)
	LatestRound(ctx context.Context) (Round, error)
}

// ValueFeed is a push-style proxy without round metadata.
type ValueFeed interface {
	Decimals(ctx context.Context) (uint8, error)
	Latest(ctx context.Context) (Value, error)
}

// ShareVault converts vault shares into underlying assets.
type ShareVault interface {
	ShareDecimals(ctx context.Context) (uint8, error)
	AssetDecimals(ctx context.Context) (uint8, error)
	ConvertToAssets(ctx context.Context, shares *big.Int) (*big.Int, error)
}

// FundamentalSource exposes the inputs of a net-asset-value formula.
// NavPerShare and RedemptionRate share the precision reported by Decimals.
type FundamentalSource interface {
	Decimals(ctx context.Context) (uint8, error)
	NavPerShare(ctx context.Context) (Value, error)
	RedemptionRate(ctx context.Context) (*big.Int, error)
	RedemptionFeeBps(ctx context.Context) (uint32, error)
}

// Dialer builds upstream clients from specs.
type Dialer interface {
	RoundFeed(ctx context.Context, spec Spec) (RoundFeed, error)
	ValueFeed(ctx context.Context, spec Spec) (ValueFeed, error)
	ShareVault(ctx context.Context, spec Spec) (ShareVault, error)
	Fundamental(ctx context.Context, spec Spec) (FundamentalSource, error)
}

// UnixTime converts an upstream unix timestamp. Zero maps to the zero time.
func UnixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
