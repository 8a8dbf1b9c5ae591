package sources

import (
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/oracle-resolver/pkg/fixedpoint"
)

func TestCheck_Evaluate(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	budget := 25 * time.Hour

	base := Check{Now: now, UpdatedAt: now, Budget: budget}

	tests := []struct {
		name  string
		price uint64
		mod   func(c *Check)
		want  Reason
	}{
		{"live", 100, nil, ReasonLive},
		{"zero price", 0, nil, ReasonNonPositive},
		{"no timestamp", 100, func(c *Check) { c.UpdatedAt = time.Time{} }, ReasonNoTimestamp},
		{"epoch timestamp", 100, func(c *Check) { c.UpdatedAt = time.Unix(0, 0) }, ReasonNoTimestamp},
		{"future timestamp", 100, func(c *Check) { c.UpdatedAt = now.Add(time.Second) }, ReasonFuture},
		{"age equals budget", 100, func(c *Check) { c.UpdatedAt = now.Add(-budget) }, ReasonLive},
		{"age one second past budget", 100, func(c *Check) { c.UpdatedAt = now.Add(-budget - time.Second) }, ReasonStale},
		{"below min", 99, func(c *Check) { c.MinAnswer = fixedpoint.FromUint64(100) }, ReasonOutOfBounds},
		{"above max", 201, func(c *Check) { c.MaxAnswer = fixedpoint.FromUint64(200) }, ReasonOutOfBounds},
		{"min only", 1000, func(c *Check) { c.MinAnswer = fixedpoint.FromUint64(100) }, ReasonLive},
		{"deviation at limit", 101, func(c *Check) {
			c.Reference = fixedpoint.FromUint64(100)
			c.MaxDeviationBps = 100
		}, ReasonLive},
		{"deviation past limit", 102, func(c *Check) {
			c.Reference = fixedpoint.FromUint64(100)
			c.MaxDeviationBps = 100
		}, ReasonDeviation},
		{"deviation disabled", 500, func(c *Check) { c.Reference = fixedpoint.FromUint64(100) }, ReasonLive},
		{"no reference", 500, func(c *Check) { c.MaxDeviationBps = 1 }, ReasonLive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			if tt.mod != nil {
				tt.mod(&c)
			}
			assert.Equal(t, tt.want, c.Evaluate(*uint256.NewInt(tt.price)))
		})
	}
}

func TestFeedParams_Validate(t *testing.T) {
	require.NoError(t, FeedParams{MaxDeviationBps: 10000}.Validate())
	require.ErrorIs(t, FeedParams{MaxDeviationBps: 10001}.Validate(), ErrInvalidParams)
	require.ErrorIs(t, FeedParams{
		MinAnswer: fixedpoint.FromUint64(10),
		MaxAnswer: fixedpoint.FromUint64(5),
	}.Validate(), ErrInvalidParams)
	require.NoError(t, FeedParams{MinAnswer: fixedpoint.FromUint64(10)}.Validate(), "zero max disables the upper bound")
	require.ErrorIs(t, FeedParams{Heartbeat: -time.Second}.Validate(), ErrInvalidParams)
}

func TestStalenessBudget(t *testing.T) {
	assert.Equal(t, DefaultHeartbeat+DefaultMaxStaleTime, FeedParams{}.Budget())
	assert.Equal(t, time.Hour+DefaultMaxStaleTime, FeedParams{Heartbeat: time.Hour}.Budget())
	assert.Equal(t, DefaultHeartbeat+time.Minute, FeedParams{MaxStaleTime: time.Minute}.Budget())
	assert.Equal(t, 3*time.Minute, StalenessBudget(time.Minute, 2*time.Minute, time.Hour, time.Hour))
}
