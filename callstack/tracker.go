// Package callstack tracks the in-flight calls of every thread to link
// returns to their calls and to measure elapsed time.
package callstack

import (
	"sync"
	"time"

	"github.com/ikuo/appmap/event"
	"github.com/ikuo/appmap/hooking"
	"github.com/ikuo/appmap/idgen"
)

// AnomalyKind classifies stack anomalies.
type AnomalyKind string

// Anomaly kinds.
const (
	// AnomalyAbandoned marks a call that was unwound by the return of an
	// outer call before its own return arrived.
	AnomalyAbandoned AnomalyKind = "abandoned"

	// AnomalyUnmatchedReturn marks a return whose call is not on the stack.
	AnomalyUnmatchedReturn AnomalyKind = "unmatched_return"

	// AnomalyNegativeElapsed marks a clock that went backwards.
	AnomalyNegativeElapsed AnomalyKind = "negative_elapsed"
)

// Anomaly is raised at hooking.HookPosAnomaly. None of them is fatal.
type Anomaly struct {
	Kind   AnomalyKind
	Thread event.ThreadID
	ID     idgen.ID
}

// Closed describes a call frame that was popped.
type Closed struct {
	ID      idgen.ID
	Elapsed float64
}

type frame struct {
	id    idgen.ID
	start time.Duration
}

// Tracker keeps one stack of open calls per thread.
type Tracker struct {
	*hooking.HookableBase

	clock Clock

	lock   sync.Mutex
	stacks map[event.ThreadID][]frame
}

// NewTracker creates a Tracker measuring time with the monotonic clock.
func NewTracker() *Tracker {
	return &Tracker{
		HookableBase: hooking.NewHookableBase(),
		clock:        NewMonotonicClock(),
		stacks:       make(map[event.ThreadID][]frame),
	}
}

// WithClock sets the clock used to measure elapsed time.
func (t *Tracker) WithClock(c Clock) *Tracker {
	t.clock = c
	return t
}

// OnCall pushes id onto the stack of thread. It returns the call that was on
// top before, if any.
func (t *Tracker) OnCall(thread event.ThreadID, id idgen.ID) (idgen.ID, bool) {
	now := t.clock.Now()

	t.lock.Lock()
	defer t.lock.Unlock()

	stack := t.stacks[thread]

	var parent idgen.ID

	hasParent := len(stack) > 0
	if hasParent {
		parent = stack[len(stack)-1].id
	}

	t.stacks[thread] = append(stack, frame{id: id, start: now})

	return parent, hasParent
}

// OnReturn pops the call id from the stack of thread and returns how long it
// took.
//
// If id is not on top, every frame above it is popped as well and reported
// back as abandoned, innermost first. If id is not on the stack at all, the
// stack is left untouched and found is false.
func (t *Tracker) OnReturn(
	thread event.ThreadID,
	id idgen.ID,
) (elapsed float64, abandoned []Closed, found bool) {
	now := t.clock.Now()

	var anomalies []Anomaly

	t.lock.Lock()

	stack := t.stacks[thread]

	idx := -1
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i].id == id {
			idx = i
			break
		}
	}

	if idx < 0 {
		t.lock.Unlock()
		t.report(Anomaly{Kind: AnomalyUnmatchedReturn, Thread: thread, ID: id})

		return 0, nil, false
	}

	for i := len(stack) - 1; i > idx; i-- {
		e, negative := measure(stack[i].start, now)
		if negative {
			anomalies = append(anomalies,
				Anomaly{Kind: AnomalyNegativeElapsed, Thread: thread, ID: stack[i].id})
		}

		abandoned = append(abandoned, Closed{ID: stack[i].id, Elapsed: e})
		anomalies = append(anomalies,
			Anomaly{Kind: AnomalyAbandoned, Thread: thread, ID: stack[i].id})
	}

	elapsed, negative := measure(stack[idx].start, now)
	if negative {
		anomalies = append(anomalies,
			Anomaly{Kind: AnomalyNegativeElapsed, Thread: thread, ID: id})
	}

	if idx == 0 {
		delete(t.stacks, thread)
	} else {
		t.stacks[thread] = stack[:idx]
	}

	t.lock.Unlock()

	for _, a := range anomalies {
		t.report(a)
	}

	return elapsed, abandoned, true
}

func measure(start, end time.Duration) (seconds float64, negative bool) {
	d := end - start
	if d < 0 {
		return 0, true
	}

	return d.Seconds(), false
}

func (t *Tracker) report(a Anomaly) {
	t.InvokeHook(hooking.HookCtx{
		Domain: t,
		Pos:    hooking.HookPosAnomaly,
		Item:   a,
	})
}

// Depth returns the number of open calls on thread.
func (t *Tracker) Depth(thread event.ThreadID) int {
	t.lock.Lock()
	defer t.lock.Unlock()

	return len(t.stacks[thread])
}

// Open returns the open calls of thread, outermost first. A call that never
// returns stays open forever.
func (t *Tracker) Open(thread event.ThreadID) []idgen.ID {
	t.lock.Lock()
	defer t.lock.Unlock()

	stack := t.stacks[thread]

	ids := make([]idgen.ID, len(stack))
	for i, f := range stack {
		ids[i] = f.id
	}

	return ids
}

// Threads returns the threads that have open calls.
func (t *Tracker) Threads() []event.ThreadID {
	t.lock.Lock()
	defer t.lock.Unlock()

	threads := make([]event.ThreadID, 0, len(t.stacks))
	for thread := range t.stacks {
		threads = append(threads, thread)
	}

	return threads
}

// Reset drops every open call.
func (t *Tracker) Reset() {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.stacks = make(map[event.ThreadID][]frame)
}
