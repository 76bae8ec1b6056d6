package classmap

import (
	"errors"
	"strings"
	"sync"
)

// ErrEmptyPath is returned when registering a node without a name.
var ErrEmptyPath = errors.New("classmap: empty path")

// A Builder collects nodes registered by instrumentation and merges them at
// shared prefixes. It is safe for concurrent use.
type Builder struct {
	lock  sync.Mutex
	roots map[string]*entry
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{roots: make(map[string]*entry)}
}

// Register adds the node at path with the given type and metadata. Missing
// ancestors are created as packages.
func (b *Builder) Register(path []string, kind NodeType, meta Metadata) error {
	if len(path) == 0 {
		return ErrEmptyPath
	}

	for _, name := range path {
		if name == "" {
			return ErrEmptyPath
		}
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	level := b.roots

	var e *entry

	for _, name := range path {
		e = level[name]
		if e == nil {
			e = newEntry(name)
			level[name] = e
		}

		level = e.children
	}

	e.merge(kind, meta)

	return nil
}

// RegisterFunction registers method of definedClass. The last segment of
// the class name becomes a class node, the segments before it packages.
func (b *Builder) RegisterFunction(
	definedClass, method string,
	meta Metadata,
) error {
	classPath := PathFor(definedClass, "")
	if len(classPath) == 0 || method == "" {
		return ErrEmptyPath
	}

	err := b.Register(classPath, TypeClass, Metadata{})
	if err != nil {
		return err
	}

	return b.Register(append(classPath, method), TypeFunction, meta)
}

// ApplyLabels adds labels to every function that sel matches and returns how
// many functions matched.
func (b *Builder) ApplyLabels(sel Selector, labels ...string) int {
	b.lock.Lock()
	defer b.lock.Unlock()

	count := 0

	var walk func(level map[string]*entry, packages, classes []string)
	walk = func(level map[string]*entry, packages, classes []string) {
		for _, e := range level {
			switch e.kind {
			case TypeFunction:
				if sel.matches(packages, classes, e.name) {
					e.merge(TypeFunction, Metadata{Labels: labels})
					count++
				}
			case TypeClass:
				walk(e.children, packages, append(classes[:len(classes):len(classes)], e.name))
			default:
				walk(e.children, append(packages[:len(packages):len(packages)], e.name), classes)
			}
		}
	}

	walk(b.roots, nil, nil)

	return count
}

// Snapshot returns a deep copy of the tree. Siblings are sorted by name so the
// result does not depend on registration order.
func (b *Builder) Snapshot() []*Node {
	b.lock.Lock()
	defer b.lock.Unlock()

	return snapshotAll(b.roots)
}

// Reset drops every node.
func (b *Builder) Reset() {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.roots = make(map[string]*entry)
}

// PathFor splits a qualified class name into path segments and appends
// method, if any.
//
// Without separators, names containing "::" are split on "::". Other names
// are read as Go qualified names: the package path is split on "/" and the
// part after the last "/" on ".", so "github.com/acme/shop.Cart" becomes
// "github.com", "acme", "shop", "Cart".
func PathFor(definedClass, method string, separators ...string) []string {
	var path []string

	switch {
	case len(separators) > 0:
		path = splitAll(definedClass, separators)
	case strings.Contains(definedClass, "::"):
		path = splitAll(definedClass, []string{"::"})
	default:
		pkg, name := "", definedClass
		if i := strings.LastIndex(definedClass, "/"); i >= 0 {
			pkg, name = definedClass[:i], definedClass[i+1:]
		}

		path = append(splitAll(pkg, []string{"/"}), splitAll(name, []string{"."})...)
	}

	if method != "" {
		path = append(path, method)
	}

	return path
}

func splitAll(s string, separators []string) []string {
	for _, sep := range separators {
		s = strings.ReplaceAll(s, sep, "\x00")
	}

	var segments []string

	for _, segment := range strings.Split(s, "\x00") {
		if segment != "" {
			segments = append(segments, segment)
		}
	}

	return segments
}
