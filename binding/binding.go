// Package binding provides named scopes that caller code runs against.
//
// A recording engine never runs caller code in its own scope. Code that
// defines types or values does so in the Binding the caller hands over, so
// the definitions end up where the caller expects them.
package binding

import (
	"sort"
	"sync"
)

// Type is a named type defined in a Binding.
type Type struct {
	name  string
	scope string
}

// Name returns the unqualified name of the type.
func (t *Type) Name() string {
	return t.name
}

// QualifiedName returns the name prefixed by the defining scope.
func (t *Type) QualifiedName() string {
	if t.scope == "" {
		return t.name
	}

	return t.scope + "::" + t.name
}

// A Binding is a named scope of definitions. Lookups fall back to included
// bindings in the order they were included.
type Binding struct {
	name string

	lock     sync.RWMutex
	entries  map[string]any
	includes []*Binding
}

// New creates an empty Binding.
func New(name string) *Binding {
	return &Binding{
		name:    name,
		entries: make(map[string]any),
	}
}

// Name returns the name of the scope.
func (b *Binding) Name() string {
	return b.name
}

// Define binds name to v in this scope, replacing an earlier definition.
func (b *Binding) Define(name string, v any) {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.entries[name] = v
}

// DefineType defines a type called name in this scope. Defining a type that
// already exists returns the existing one.
func (b *Binding) DefineType(name string) *Type {
	b.lock.Lock()
	defer b.lock.Unlock()

	if t, ok := b.entries[name].(*Type); ok {
		return t
	}

	t := &Type{name: name, scope: b.name}
	b.entries[name] = t

	return t
}

// Include makes the definitions of other visible through b. Including a
// binding twice or including b itself has no effect.
func (b *Binding) Include(other *Binding) {
	if other == nil || other == b {
		return
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	for _, i := range b.includes {
		if i == other {
			return
		}
	}

	b.includes = append(b.includes, other)
}

// Lookup finds name in this scope, then in the included bindings.
func (b *Binding) Lookup(name string) (any, bool) {
	return b.lookup(name, make(map[*Binding]bool))
}

func (b *Binding) lookup(name string, visited map[*Binding]bool) (any, bool) {
	if visited[b] {
		return nil, false
	}

	visited[b] = true

	b.lock.RLock()
	v, ok := b.entries[name]
	includes := b.includes
	b.lock.RUnlock()

	if ok {
		return v, true
	}

	for _, i := range includes {
		if v, ok := i.lookup(name, visited); ok {
			return v, true
		}
	}

	return nil, false
}

// Names returns the sorted names defined directly in this scope.
func (b *Binding) Names() []string {
	b.lock.RLock()
	defer b.lock.RUnlock()

	names := make([]string, 0, len(b.entries))
	for name := range b.entries {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
