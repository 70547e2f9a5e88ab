package model

import (
	"fmt"
	"sort"
	"sync"

	"github.com/YuminosukeSato/holdout/pkg/errors"
)

// Factory builds an unfitted classifier from hyperparameters. A nil map selects the
// algorithm defaults.
type Factory func(params map[string]interface{}) (Classifier, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes an algorithm available to New and Unmarshal. It panics when name is
// empty, factory is nil or name is already registered.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if name == "" || factory == nil {
		panic("model: Register called with empty name or nil factory")
	}
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("model: Register called twice for %q", name))
	}
	registry[name] = factory
}

// New constructs the named algorithm with the given hyperparameters.
func New(name string, params map[string]interface{}) (Classifier, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.NewValidationError("algorithm", "unknown algorithm", name)
	}
	return factory(params)
}

// IsRegistered reports whether name has a factory.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[name]
	return ok
}

// Algorithms lists registered algorithm names in sorted order.
func Algorithms() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
