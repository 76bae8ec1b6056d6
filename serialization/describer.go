package serialization

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/ikuo/appmap/event"
)

// Describer is implemented by values, or by adapters wrapping them, that can
// describe themselves to the recording engine.
type Describer interface {
	// TypeName returns the runtime class name of the value.
	TypeName() string

	// Display returns a human-readable rendering. It may be arbitrarily long;
	// the serializer truncates it.
	Display() string

	// Members enumerates the immediate members of the value, one level deep.
	Members() []event.Property
}

// Sizer is implemented by describers of sized containers.
type Sizer interface {
	Size() int
}

// An AdapterFunc wraps a value of a registered type into a Describer.
type AdapterFunc func(v any) Describer

// AdapterRegistry maps runtime types to the adapters that describe them.
type AdapterRegistry struct {
	lock sync.RWMutex

	adapters map[reflect.Type]AdapterFunc
}

// NewAdapterRegistry creates an empty registry.
func NewAdapterRegistry() *AdapterRegistry {
	return &AdapterRegistry{
		adapters: make(map[reflect.Type]AdapterFunc),
	}
}

// Register binds an adapter to the type of example. Registering a type twice
// is an error.
func (r *AdapterRegistry) Register(example any, adapter AdapterFunc) error {
	if example == nil {
		return fmt.Errorf("cannot register an adapter for nil")
	}

	typ := reflect.TypeOf(example)

	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.adapters[typ]; ok {
		return fmt.Errorf("type %s already registered", typ)
	}

	r.adapters[typ] = adapter

	return nil
}

// Lookup returns the adapter registered for the dynamic type of v.
func (r *AdapterRegistry) Lookup(v any) (AdapterFunc, bool) {
	if v == nil {
		return nil, false
	}

	r.lock.RLock()
	defer r.lock.RUnlock()

	adapter, ok := r.adapters[reflect.TypeOf(v)]

	return adapter, ok
}
