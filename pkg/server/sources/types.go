package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"github.com/StrathCole/oracle-resolver/pkg/access"
	"github.com/StrathCole/oracle-resolver/pkg/fixedpoint"
	"github.com/StrathCole/oracle-resolver/pkg/logging"
	"github.com/StrathCole/oracle-resolver/pkg/upstream"
)

// Kind identifies a wrapper variant.
type Kind string

const (
	KindFeed      Kind = "feed"
	KindPush      Kind = "push"
	KindComposite Kind = "composite"
	KindVault     Kind = "vault"
	KindFormula   Kind = "formula"
	KindPeg       Kind = "peg"
)

// Observation is a normalized price reading. It is a value type; a new
// reading replaces an old one, nothing mutates it in place.
type Observation struct {
	Price      uint256.Int
	ObservedAt time.Time
	IsLive     bool
}

// IsEmpty reports whether the observation carries no price at all.
func (o Observation) IsEmpty() bool {
	return o.Price.IsZero() && o.ObservedAt.IsZero()
}

// NotLive returns a copy marked as not live.
func (o Observation) NotLive() Observation {
	o.IsLive = false
	return o
}

// Wrapper adapts one kind of upstream into observations scaled to a base unit.
type Wrapper interface {
	// Name returns the provider handle.
	Name() string
	Kind() Kind
	BaseCurrency() string
	BaseUnit() uint256.Int
	// Assets lists the configured assets.
	Assets() []string
	// Observe reads the current observation. Upstream faults never surface as
	// errors; the only error is an asset without a binding.
	Observe(ctx context.Context, asset string) (Observation, error)
	// RecordLastGood stores the current observation as the local deviation
	// reference. It fails with ErrPriceNotAlive when not live.
	RecordLastGood(ctx context.Context, caller access.Principal, asset string) (Observation, error)
	// Remove drops the binding of asset.
	Remove(caller access.Principal, asset string) error
}

// PegSetter is implemented by wrappers whose price a guardian sets directly.
type PegSetter interface {
	SetPeg(caller access.Principal, asset string, price uint256.Int) error
}

// Env carries what every wrapper of a process shares.
type Env struct {
	BaseCurrency string
	BaseDecimals uint8
	Access       *access.Control
	Dialer       upstream.Dialer
	Logger       *logging.Logger
	Clock        func() time.Time
}

// Validate checks the environment and fills in the logger and clock.
func (e *Env) Validate() error {
	if e.BaseCurrency == "" {
		return fmt.Errorf("%w: base currency is required", ErrInvalidEnv)
	}
	if e.BaseDecimals > fixedpoint.MaxDecimals {
		return fmt.Errorf("%w: base decimals %d", ErrInvalidEnv, e.BaseDecimals)
	}
	if e.Access == nil {
		return fmt.Errorf("%w: access control is required", ErrInvalidEnv)
	}
	if e.Logger == nil {
		e.Logger = logging.NewNoopLogger()
	}
	if e.Clock == nil {
		e.Clock = time.Now
	}
	return nil
}

// Factory builds a wrapper from its YAML configuration.
type Factory func(ctx context.Context, name string, env Env, config map[string]interface{}) (Wrapper, error)
