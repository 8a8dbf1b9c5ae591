package sources

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

var (
	registry = make(map[Kind]Factory)
	mu       sync.RWMutex
)

// Register adds a wrapper factory to the registry
func Register(kind Kind, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[kind] = factory
}

// Create builds a wrapper of the given kind from its configuration.
func Create(ctx context.Context, kind Kind, name string, env Env, config map[string]interface{}) (Wrapper, error) {
	mu.RLock()
	factory, ok := registry[kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	if config == nil {
		config = map[string]interface{}{}
	}
	return factory(ctx, name, env, config)
}

// Kinds returns all registered wrapper kinds
func Kinds() []Kind {
	mu.RLock()
	defer mu.RUnlock()

	kinds := make([]Kind, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Directory holds the wrappers of a process by provider handle.
type Directory struct {
	mu       sync.RWMutex
	wrappers map[string]Wrapper
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{wrappers: make(map[string]Wrapper)}
}

// Add stores w under its name.
func (d *Directory) Add(w Wrapper) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.wrappers[w.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateProvider, w.Name())
	}
	d.wrappers[w.Name()] = w
	return nil
}

// Get returns the wrapper named name.
func (d *Directory) Get(name string) (Wrapper, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	w, ok := d.wrappers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	return w, nil
}

// List returns every wrapper ordered by name.
func (d *Directory) List() []Wrapper {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Wrapper, 0, len(d.wrappers))
	for _, w := range d.wrappers {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}
