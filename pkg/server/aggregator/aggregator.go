package aggregator

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/StrathCole/oracle-resolver/pkg/access"
	"github.com/StrathCole/oracle-resolver/pkg/fixedpoint"
	"github.com/StrathCole/oracle-resolver/pkg/logging"
	"github.com/StrathCole/oracle-resolver/pkg/metrics"
	"github.com/StrathCole/oracle-resolver/pkg/server/sources"
)

// slot guards one asset. Writers serialize on mu; readers load the current
// entry without locking.
type slot struct {
	mu    sync.Mutex
	entry atomic.Pointer[AssetEntry]
}

// Aggregator resolves prices per asset. Reads run concurrently with each
// other and with administrative writes.
type Aggregator struct {
	cfg      Config
	baseUnit uint256.Int
	access   *access.Control
	logger   *logging.Logger
	clock    func() time.Time

	slots sync.Map // asset -> *slot

	sinkMu sync.RWMutex
	sinks  []EventSink
}

// Option customizes an Aggregator.
type Option func(*Aggregator)

// WithClock replaces the wall clock.
func WithClock(clock func() time.Time) Option {
	return func(a *Aggregator) {
		a.clock = clock
	}
}

// WithSink subscribes an event sink.
func WithSink(sink EventSink) Option {
	return func(a *Aggregator) {
		a.sinks = append(a.sinks, sink)
	}
}

// New creates an empty aggregator.
func New(cfg Config, control *access.Control, logger *logging.Logger, opts ...Option) (*Aggregator, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if control == nil {
		return nil, fmt.Errorf("%w: access control is required", ErrInvalidConfig)
	}
	cfg.BaseCurrency = sources.NormalizeAsset(cfg.BaseCurrency)
	unit, err := fixedpoint.BaseUnit(cfg.BaseDecimals)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	a := &Aggregator{
		cfg:      cfg,
		baseUnit: unit,
		access:   control,
		logger:   logger.With("component", "aggregator"),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// BaseCurrency returns the currency every price is quoted in.
func (a *Aggregator) BaseCurrency() string {
	return a.cfg.BaseCurrency
}

// BaseUnit returns the fixed-point scale of every price.
func (a *Aggregator) BaseUnit() uint256.Int {
	return a.baseUnit
}

// BaseDecimals returns log10 of the base unit.
func (a *Aggregator) BaseDecimals() uint8 {
	return a.cfg.BaseDecimals
}

// Access returns the capability registry guarding the aggregator.
func (a *Aggregator) Access() *access.Control {
	return a.access
}

// Subscribe adds an event sink.
func (a *Aggregator) Subscribe(sink EventSink) {
	a.sinkMu.Lock()
	defer a.sinkMu.Unlock()
	a.sinks = append(a.sinks, sink)
}

// Entry returns the registry entry of asset.
func (a *Aggregator) Entry(asset string) (AssetEntry, error) {
	asset = sources.NormalizeAsset(asset)
	entry := a.load(asset)
	if entry == nil {
		return AssetEntry{}, fmt.Errorf("%w: %s", ErrAssetNotRegistered, asset)
	}
	return *entry, nil
}

// Assets lists registered assets in sorted order.
func (a *Aggregator) Assets() []string {
	var assets []string
	a.slots.Range(func(key, value interface{}) bool {
		if value.(*slot).entry.Load() != nil {
			assets = append(assets, key.(string))
		}
		return true
	})
	sort.Strings(assets)
	return assets
}

func (a *Aggregator) load(asset string) *AssetEntry {
	s, ok := a.slots.Load(asset)
	if !ok {
		return nil
	}
	return s.(*slot).entry.Load()
}

func (a *Aggregator) slotFor(asset string) *slot {
	s, _ := a.slots.LoadOrStore(asset, &slot{})
	return s.(*slot)
}

// mutate runs fn on the current entry of asset under the slot lock and
// stores the result. fn receives nil for an unregistered asset and returns
// nil to remove the entry.
func (a *Aggregator) mutate(asset string, fn func(cur *AssetEntry) (*AssetEntry, error)) error {
	s := a.slotFor(asset)
	s.mu.Lock()
	defer s.mu.Unlock()

	var cur *AssetEntry
	if e := s.entry.Load(); e != nil {
		c := *e
		cur = &c
	}
	next, err := fn(cur)
	if err != nil {
		return err
	}
	s.entry.Store(next)
	return nil
}

// existing wraps mutate for operations on registered assets only.
func (a *Aggregator) existing(asset string, fn func(cur AssetEntry) (AssetEntry, error)) error {
	return a.mutate(asset, func(cur *AssetEntry) (*AssetEntry, error) {
		if cur == nil {
			return nil, fmt.Errorf("%w: %s", ErrAssetNotRegistered, asset)
		}
		next, err := fn(*cur)
		if err != nil {
			return nil, err
		}
		return &next, nil
	})
}

func (a *Aggregator) emit(typ EventType, asset string, actor access.Principal, provider string, price uint256.Int) {
	ev := Event{
		ID:       uuid.New(),
		Type:     typ,
		Asset:    asset,
		Actor:    actor,
		Provider: provider,
		Price:    price,
		At:       a.clock(),
	}
	a.sinkMu.RLock()
	sinks := a.sinks
	a.sinkMu.RUnlock()
	for _, sink := range sinks {
		sink.Publish(ev)
	}
}

func (a *Aggregator) record(operation string, err error) {
	metrics.RecordAdminOperation(operation, err)
	if err != nil {
		a.logger.Debug("Administrative operation rejected", "operation", operation, "error", err)
	}
}
