// Package classmap builds the hierarchy of packages, classes and functions
// that a recording touched.
package classmap

import "sort"

// NodeType is the type of a class map node.
type NodeType string

// Node types, from the least to the most specific.
const (
	TypePackage  NodeType = "package"
	TypeClass    NodeType = "class"
	TypeFunction NodeType = "function"
)

func (t NodeType) rank() int {
	switch t {
	case TypeClass:
		return 1
	case TypeFunction:
		return 2
	default:
		return 0
	}
}

// Node is a class map node as it appears in a snapshot.
type Node struct {
	Name     string   `json:"name"`
	Type     NodeType `json:"type"`
	Location string   `json:"location,omitempty"`
	Static   bool     `json:"static,omitempty"`
	Labels   []string `json:"labels,omitempty"`
	Children []*Node  `json:"children,omitempty"`
}

// Child returns the child named name.
func (n *Node) Child(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}

	return nil
}

// Find walks path from a list of roots.
func Find(roots []*Node, path ...string) *Node {
	if len(path) == 0 {
		return nil
	}

	var node *Node

	for _, r := range roots {
		if r.Name == path[0] {
			node = r
			break
		}
	}

	for _, name := range path[1:] {
		if node == nil {
			return nil
		}

		node = node.Child(name)
	}

	return node
}

// Metadata is what registration knows about a node.
type Metadata struct {
	// Location is "file" or "file:line".
	Location string
	Static   bool
	Labels   []string
}

type entry struct {
	name     string
	kind     NodeType
	location string
	static   bool
	labels   map[string]struct{}
	children map[string]*entry
}

func newEntry(name string) *entry {
	return &entry{
		name:     name,
		kind:     TypePackage,
		labels:   make(map[string]struct{}),
		children: make(map[string]*entry),
	}
}

// merge folds kind and meta into the entry. The result does not depend on the
// order of merges and merging the same data twice changes nothing.
func (e *entry) merge(kind NodeType, meta Metadata) {
	if kind.rank() > e.kind.rank() {
		e.kind = kind
	}

	if meta.Location != "" &&
		(e.location == "" || meta.Location < e.location) {
		e.location = meta.Location
	}

	e.static = e.static || meta.Static

	for _, l := range meta.Labels {
		e.labels[l] = struct{}{}
	}
}

func (e *entry) snapshot() *Node {
	n := &Node{
		Name:     e.name,
		Type:     e.kind,
		Location: e.location,
		Static:   e.static,
		Labels:   sortedLabels(e.labels),
		Children: snapshotAll(e.children),
	}

	return n
}

func snapshotAll(entries map[string]*entry) []*Node {
	if len(entries) == 0 {
		return nil
	}

	nodes := make([]*Node, 0, len(entries))
	for _, e := range entries {
		nodes = append(nodes, e.snapshot())
	}

	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].Name < nodes[j].Name
	})

	return nodes
}

func sortedLabels(labels map[string]struct{}) []string {
	if len(labels) == 0 {
		return nil
	}

	sorted := make([]string, 0, len(labels))
	for l := range labels {
		sorted = append(sorted, l)
	}

	sort.Strings(sorted)

	return sorted
}
