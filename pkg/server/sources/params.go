package sources

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"github.com/StrathCole/oracle-resolver/pkg/fixedpoint"
)

const (
	// DefaultHeartbeat substitutes an unset heartbeat.
	DefaultHeartbeat = 24 * time.Hour
	// DefaultMaxStaleTime substitutes an unset stale allowance.
	DefaultMaxStaleTime = time.Hour
)

// FeedParams are the staleness, deviation and bound settings of one binding.
type FeedParams struct {
	Heartbeat       time.Duration
	MaxStaleTime    time.Duration
	MaxDeviationBps uint32
	MinAnswer       uint256.Int
	MaxAnswer       uint256.Int
}

// Validate rejects deviation above 100% and inverted bounds.
func (p FeedParams) Validate() error {
	return ValidateLimits(p.Heartbeat, p.MaxStaleTime, p.MaxDeviationBps, p.MinAnswer, p.MaxAnswer)
}

// ValidateLimits is the parameter check shared by wrapper and aggregator configuration.
func ValidateLimits(heartbeat, maxStale time.Duration, maxDeviationBps uint32, minAnswer, maxAnswer uint256.Int) error {
	if heartbeat < 0 || maxStale < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalidParams)
	}
	if maxDeviationBps > fixedpoint.BpsDenominator {
		return fmt.Errorf("%w: max deviation %d bps exceeds %d", ErrInvalidParams, maxDeviationBps, fixedpoint.BpsDenominator)
	}
	if !maxAnswer.IsZero() && minAnswer.Gt(&maxAnswer) {
		return fmt.Errorf("%w: min answer %s above max answer %s", ErrInvalidParams, minAnswer.Dec(), maxAnswer.Dec())
	}
	return nil
}

// Budget is heartbeat plus stale allowance with defaults substituted.
func (p FeedParams) Budget() time.Duration {
	return StalenessBudget(p.Heartbeat, p.MaxStaleTime, DefaultHeartbeat, DefaultMaxStaleTime)
}

// Check builds the liveness check for a reading of this binding.
func (p FeedParams) Check(now, updatedAt time.Time, reference uint256.Int) Check {
	return Check{
		Now:             now,
		UpdatedAt:       updatedAt,
		Budget:          p.Budget(),
		MinAnswer:       p.MinAnswer,
		MaxAnswer:       p.MaxAnswer,
		MaxDeviationBps: p.MaxDeviationBps,
		Reference:       reference,
	}
}

// StalenessBudget returns heartbeat + maxStale, each replaced by its default when zero.
func StalenessBudget(heartbeat, maxStale, defaultHeartbeat, defaultMaxStale time.Duration) time.Duration {
	if heartbeat == 0 {
		heartbeat = defaultHeartbeat
	}
	if maxStale == 0 {
		maxStale = defaultMaxStale
	}
	return heartbeat + maxStale
}
