// Package idgen provides the event identity source of the recording engine.
package idgen

import (
	"strconv"
	"sync/atomic"

	"github.com/rs/xid"
)

// ID is a unique event identifier. The zero ID is never generated and marks
// "no event".
type ID uint64

// String returns the decimal form of the ID.
func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Generator produces unique identifiers.
type Generator interface {
	// Generate returns the next ID. IDs are strictly increasing.
	Generate() ID

	// Peek returns the most recently generated ID, or 0 if none.
	Peek() ID

	// Reset rewinds the generator so that the next ID is 1. It must not be
	// called while events are being generated.
	Reset()
}

// New returns a sequential generator whose first emitted ID is 1.
func New() Generator {
	return &sequentialGenerator{}
}

type sequentialGenerator struct {
	next uint64
}

func (g *sequentialGenerator) Generate() ID {
	return ID(atomic.AddUint64(&g.next, 1))
}

func (g *sequentialGenerator) Peek() ID {
	return ID(atomic.LoadUint64(&g.next))
}

func (g *sequentialGenerator) Reset() {
	atomic.StoreUint64(&g.next, 0)
}

// NewSessionID returns a globally unique, sortable identifier for recording
// sessions and the files they produce.
func NewSessionID() string {
	return xid.New().String()
}
