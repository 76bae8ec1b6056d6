// Package tracing records call and return events into tracers.
package tracing

import (
	"sync"

	"github.com/ikuo/appmap/event"
	"github.com/ikuo/appmap/hooking"
	"github.com/ikuo/appmap/idgen"
)

// State is the lifecycle state of a Tracer.
type State int

// Tracer states. A deleted tracer never leaves StateDeleted.
const (
	StateCreated State = iota
	StateEnabled
	StateDisabled
	StateDeleted
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateEnabled:
		return "enabled"
	case StateDisabled:
		return "disabled"
	case StateDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// A Tracer is a recording session. It keeps the events dispatched while it is
// enabled and publishes each of them to its hooks at
// hooking.HookPosEventRecorded.
type Tracer struct {
	*hooking.HookableBase

	id string

	lock   sync.Mutex
	state  State
	events []event.Event
	open   map[idgen.ID]struct{}
}

func newTracer() *Tracer {
	return &Tracer{
		HookableBase: hooking.NewHookableBase(),
		id:           idgen.NewSessionID(),
		open:         make(map[idgen.ID]struct{}),
	}
}

// ID returns the globally unique session id of the tracer.
func (t *Tracer) ID() string {
	return t.id
}

// State returns the lifecycle state of the tracer.
func (t *Tracer) State() State {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.state
}

// IsEnabled tells if the tracer currently records.
func (t *Tracer) IsEnabled() bool {
	return t.State() == StateEnabled
}

// Events returns a copy of the recorded events in append order.
func (t *Tracer) Events() []event.Event {
	t.lock.Lock()
	defer t.lock.Unlock()

	events := make([]event.Event, len(t.events))
	copy(events, t.events)

	return events
}

// Len returns the number of recorded events.
func (t *Tracer) Len() int {
	t.lock.Lock()
	defer t.lock.Unlock()

	return len(t.events)
}

// transition moves the tracer to state to. It fails if the tracer is deleted.
func (t *Tracer) transition(to State) bool {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.state == StateDeleted {
		return false
	}

	t.state = to

	return true
}

// record appends e if the tracer is still enabled. A return is appended only
// if the tracer holds the call it closes.
func (t *Tracer) record(e event.Event) bool {
	t.lock.Lock()

	if t.state != StateEnabled {
		t.lock.Unlock()
		return false
	}

	switch e.Kind {
	case event.KindCall:
		t.open[e.ID] = struct{}{}
	case event.KindReturn:
		if _, ok := t.open[e.ParentID]; !ok {
			t.lock.Unlock()
			return false
		}

		delete(t.open, e.ParentID)
	}

	t.events = append(t.events, e)
	t.lock.Unlock()

	t.InvokeHook(hooking.HookCtx{
		Domain: t,
		Pos:    hooking.HookPosEventRecorded,
		Item:   e,
	})

	return true
}
