package sources

import (
	"time"

	"github.com/holiman/uint256"

	"github.com/StrathCole/oracle-resolver/pkg/fixedpoint"
)

// Reason names why an observation is not live. ReasonLive means it is.
type Reason string

const (
	ReasonLive          Reason = ""
	ReasonUpstreamError Reason = "upstream_error"
	ReasonPanic         Reason = "panic"
	ReasonTimeout       Reason = "timeout"
	ReasonIncomplete    Reason = "incomplete_round"
	ReasonNonPositive   Reason = "non_positive"
	ReasonSaturated     Reason = "saturated"
	ReasonNoTimestamp   Reason = "no_timestamp"
	ReasonFuture        Reason = "future_timestamp"
	ReasonStale         Reason = "stale"
	ReasonOutOfBounds   Reason = "out_of_bounds"
	ReasonDeviation     Reason = "deviation"
	ReasonNotLive       Reason = "not_live"
)

// Check holds the inputs of the liveness rules applied at both the wrapper
// and the aggregator layer.
type Check struct {
	Now             time.Time
	UpdatedAt       time.Time
	Budget          time.Duration
	MinAnswer       uint256.Int
	MaxAnswer       uint256.Int
	MaxDeviationBps uint32
	// Reference is the remembered last-good price; zero disables the deviation rule.
	Reference uint256.Int
}

// Evaluate applies the rules in order and returns the first one violated.
func (c Check) Evaluate(price uint256.Int) Reason {
	if price.IsZero() {
		return ReasonNonPositive
	}
	if reason := Freshness(c.Now, c.UpdatedAt, c.Budget); reason != ReasonLive {
		return reason
	}
	if !fixedpoint.WithinBounds(price, c.MinAnswer, c.MaxAnswer) {
		return ReasonOutOfBounds
	}
	if fixedpoint.ExceedsDeviation(price, c.Reference, c.MaxDeviationBps) {
		return ReasonDeviation
	}
	return ReasonLive
}

// Freshness checks a timestamp: set, not in the future, and no older than budget.
// An age of exactly budget is still fresh.
func Freshness(now, updatedAt time.Time, budget time.Duration) Reason {
	if IsZeroTime(updatedAt) {
		return ReasonNoTimestamp
	}
	if updatedAt.After(now) {
		return ReasonFuture
	}
	if now.Sub(updatedAt) > budget {
		return ReasonStale
	}
	return ReasonLive
}

// IsZeroTime treats the zero time and any time at or before the unix epoch as unset.
func IsZeroTime(t time.Time) bool {
	return t.IsZero() || t.Unix() <= 0
}
