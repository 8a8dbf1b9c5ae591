package aggregator

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/StrathCole/oracle-resolver/pkg/access"
	"github.com/StrathCole/oracle-resolver/pkg/fixedpoint"
	"github.com/StrathCole/oracle-resolver/pkg/server/sources"
)

// State is the rung of the resolution ladder an answer came from.
type State int

const (
	StateNone State = iota
	StateFrozen
	StatePrimary
	StateFallback
	StateLastGood
	// StateBase is the base currency resolving to one base unit.
	StateBase
)

func (s State) String() string {
	switch s {
	case StateFrozen:
		return "frozen"
	case StatePrimary:
		return "primary"
	case StateFallback:
		return "fallback"
	case StateLastGood:
		return "last_good"
	case StateBase:
		return "base"
	default:
		return "none"
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name rendered by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for st := StateNone; st <= StateBase; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownState, text)
}

// Config holds the aggregator settings.
type Config struct {
	BaseCurrency        string
	BaseDecimals        uint8
	DefaultHeartbeat    time.Duration
	DefaultMaxStaleTime time.Duration
	// ProviderTimeout bounds each provider call during resolution.
	ProviderTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.DefaultHeartbeat == 0 {
		c.DefaultHeartbeat = sources.DefaultHeartbeat
	}
	if c.DefaultMaxStaleTime == 0 {
		c.DefaultMaxStaleTime = sources.DefaultMaxStaleTime
	}
	if c.ProviderTimeout == 0 {
		c.ProviderTimeout = 2 * time.Second
	}
}

func (c Config) validate() error {
	if c.BaseCurrency == "" {
		return fmt.Errorf("%w: base currency is required", ErrInvalidConfig)
	}
	if c.BaseDecimals > fixedpoint.MaxDecimals {
		return fmt.Errorf("%w: base decimals %d", ErrInvalidConfig, c.BaseDecimals)
	}
	if c.DefaultHeartbeat < 0 || c.DefaultMaxStaleTime < 0 || c.ProviderTimeout < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalidConfig)
	}
	return nil
}

// RiskConfig holds the aggregator-level checks of one asset. Zero values
// disable a check or fall back to the configured defaults.
type RiskConfig struct {
	MaxStaleTime      time.Duration
	HeartbeatOverride time.Duration
	MaxDeviationBps   uint32
	MinAnswer         uint256.Int
	MaxAnswer         uint256.Int
}

// Validate rejects deviation above 100% and inverted bounds.
func (r RiskConfig) Validate() error {
	if err := sources.ValidateLimits(r.HeartbeatOverride, r.MaxStaleTime, r.MaxDeviationBps, r.MinAnswer, r.MaxAnswer); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRiskConfig, err)
	}
	return nil
}

// AssetEntry is the registry record of one asset. Entries are immutable
// snapshots; every mutation stores a new one.
type AssetEntry struct {
	Asset    string
	Primary  sources.Wrapper
	Fallback sources.Wrapper
	Risk     RiskConfig
	Frozen   bool
	LastGood sources.Observation
}

// PrimaryName returns the primary provider handle.
func (e AssetEntry) PrimaryName() string {
	return providerName(e.Primary)
}

// FallbackName returns the fallback provider handle or "".
func (e AssetEntry) FallbackName() string {
	return providerName(e.Fallback)
}

func providerName(w sources.Wrapper) string {
	if w == nil {
		return ""
	}
	return w.Name()
}

// Resolution is the answer of one resolve call.
type Resolution struct {
	Asset        string
	Observation  sources.Observation
	State        State
	Frozen       bool
	UsedFallback bool
	// Provider is the provider the observation came from, if any.
	Provider string
}

// BatchResult holds parallel per-asset results of a batch resolve.
type BatchResult struct {
	Observations []sources.Observation
	Frozen       []bool
	UsedFallback []bool
	States       []State
}

// EventType names an administrative change.
type EventType string

const (
	EventPrimarySet        EventType = "primary_set"
	EventFallbackSet       EventType = "fallback_set"
	EventFallbackCleared   EventType = "fallback_cleared"
	EventRiskUpdated       EventType = "risk_updated"
	EventLastGoodRecorded  EventType = "last_good_recorded"
	EventAssetRemoved      EventType = "asset_removed"
	EventFrozen            EventType = "frozen"
	EventUnfrozen          EventType = "unfrozen"
	EventFrozenPricePushed EventType = "frozen_price_pushed"
)

// Event describes a committed administrative change.
type Event struct {
	ID       uuid.UUID
	Type     EventType
	Asset    string
	Actor    access.Principal
	Provider string
	Price    uint256.Int
	At       time.Time
}

// EventSink receives committed events. Publish must not block.
type EventSink interface {
	Publish(Event)
}
