package memory

import (
	"sort"
	"sync"
)

// Store keys memory upstreams by name so configuration can refer to them.
type Store struct {
	mu           sync.Mutex
	rounds       map[string]*RoundFeed
	values       map[string]*ValueFeed
	vaults       map[string]*Vault
	fundamentals map[string]*Fundamental
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		rounds:       make(map[string]*RoundFeed),
		values:       make(map[string]*ValueFeed),
		vaults:       make(map[string]*Vault),
		fundamentals: make(map[string]*Fundamental),
	}
}

// RoundFeed returns the named round feed, creating it with decimals if absent.
func (s *Store) RoundFeed(name string, decimals uint8) *RoundFeed {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.rounds[name]; ok {
		return f
	}
	f := NewRoundFeed(decimals)
	s.rounds[name] = f
	return f
}

// ValueFeed returns the named value feed, creating it with decimals if absent.
func (s *Store) ValueFeed(name string, decimals uint8) *ValueFeed {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.values[name]; ok {
		return f
	}
	f := NewValueFeed(decimals)
	s.values[name] = f
	return f
}

// Vault returns the named vault. A vault created here starts at a 1:1 rate
// with equal share and asset precision.
func (s *Store) Vault(name string, decimals uint8) *Vault {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.vaults[name]; ok {
		return v
	}
	v := NewVault(decimals, decimals, pow10(decimals))
	s.vaults[name] = v
	return v
}

// Fundamental returns the named fundamental source, creating it if absent.
func (s *Store) Fundamental(name string, decimals uint8) *Fundamental {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.fundamentals[name]; ok {
		return f
	}
	f := NewFundamental(decimals)
	s.fundamentals[name] = f
	return f
}

// Names lists every upstream held by the store.
func (s *Store) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.rounds)+len(s.values)+len(s.vaults)+len(s.fundamentals))
	for n := range s.rounds {
		names = append(names, n)
	}
	for n := range s.values {
		names = append(names, n)
	}
	for n := range s.vaults {
		names = append(names, n)
	}
	for n := range s.fundamentals {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
