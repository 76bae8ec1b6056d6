package tracing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/ikuo/appmap/callstack"
	"github.com/ikuo/appmap/event"
	"github.com/ikuo/appmap/hooking"
	"github.com/ikuo/appmap/idgen"
	"github.com/ikuo/appmap/metrics"
	"github.com/ikuo/appmap/serialization"
)

// A Dispatcher turns call and return notifications into events and appends
// them to every enabled Tracer.
type Dispatcher struct {
	log        *clog.Logger
	ids        idgen.Generator
	stack      *callstack.Tracker
	serializer *serialization.Serializer
	metrics    *metrics.Metrics

	lock    sync.RWMutex
	tracers []*Tracer
	enabled []*Tracer
}

// Trace creates a Tracer and enables it right away if enable is true.
func (d *Dispatcher) Trace(enable bool) *Tracer {
	t := newTracer()

	d.lock.Lock()
	d.tracers = append(d.tracers, t)
	d.lock.Unlock()

	if enable {
		d.Enable(t)
	}

	return t
}

// Enable makes t record. Enabling a deleted tracer does nothing.
func (d *Dispatcher) Enable(t *Tracer) {
	d.lock.Lock()
	defer d.lock.Unlock()

	if !t.transition(StateEnabled) {
		return
	}

	for _, e := range d.enabled {
		if e == t {
			return
		}
	}

	d.enabled = append(d.enabled, t)
	d.metrics.TracersEnabled.Set(float64(len(d.enabled)))
}

// Disable stops t from recording. Its events are kept.
func (d *Dispatcher) Disable(t *Tracer) {
	d.lock.Lock()
	defer d.lock.Unlock()

	if !t.transition(StateDisabled) {
		return
	}

	d.enabled = remove(d.enabled, t)
	d.metrics.TracersEnabled.Set(float64(len(d.enabled)))
}

// Delete removes t for good. The events it recorded stay readable.
func (d *Dispatcher) Delete(t *Tracer) {
	d.lock.Lock()
	defer d.lock.Unlock()

	if !t.transition(StateDeleted) {
		return
	}

	d.enabled = remove(d.enabled, t)
	d.tracers = remove(d.tracers, t)
	d.metrics.TracersEnabled.Set(float64(len(d.enabled)))
}

func remove(tracers []*Tracer, t *Tracer) []*Tracer {
	kept := tracers[:0:0]

	for _, e := range tracers {
		if e != t {
			kept = append(kept, e)
		}
	}

	return kept
}

// Enabled returns the enabled tracers in the order they were enabled.
func (d *Dispatcher) Enabled() []*Tracer {
	d.lock.RLock()
	defer d.lock.RUnlock()

	tracers := make([]*Tracer, len(d.enabled))
	copy(tracers, d.enabled)

	return tracers
}

// Tracers returns the tracers that are not deleted in creation order.
func (d *Dispatcher) Tracers() []*Tracer {
	d.lock.RLock()
	defer d.lock.RUnlock()

	tracers := make([]*Tracer, len(d.tracers))
	copy(tracers, d.tracers)

	return tracers
}

// Lookup finds a tracer that is not deleted by its ID.
func (d *Dispatcher) Lookup(id string) (*Tracer, bool) {
	d.lock.RLock()
	defer d.lock.RUnlock()

	for _, t := range d.tracers {
		if t.ID() == id {
			return t, true
		}
	}

	return nil, false
}

// IsEnabled tells if at least one tracer records.
func (d *Dispatcher) IsEnabled() bool {
	d.lock.RLock()
	defer d.lock.RUnlock()

	return len(d.enabled) > 0
}

// ResetIfIdle rewinds the event identity and clears the call stacks unless a
// tracer is enabled. No tracer can be enabled while it runs.
func (d *Dispatcher) ResetIfIdle() bool {
	d.lock.Lock()
	defer d.lock.Unlock()

	if len(d.enabled) > 0 {
		return false
	}

	d.ids.Reset()
	d.stack.Reset()

	return true
}

// IDs returns the identity source of the dispatcher.
func (d *Dispatcher) IDs() idgen.Generator {
	return d.ids
}

// Stack returns the call stack tracker of the dispatcher.
func (d *Dispatcher) Stack() *callstack.Tracker {
	return d.stack
}

// Serializer returns the value serializer of the dispatcher.
func (d *Dispatcher) Serializer() *serialization.Serializer {
	return d.serializer
}

// DispatchCall records a call and returns its id, which the hook passes back
// to DispatchReturn. It returns 0 without describing anything if no tracer is
// enabled.
func (d *Dispatcher) DispatchCall(info CallInfo) (id idgen.ID) {
	if !d.IsEnabled() {
		return 0
	}

	defer d.recoverDispatch(event.KindCall)

	id = d.ids.Generate()
	d.stack.OnCall(info.ThreadID, id)

	static := info.Static
	e := event.Event{
		ID:                id,
		Kind:              event.KindCall,
		ThreadID:          info.ThreadID,
		Timestamp:         time.Now(),
		DefinedClass:      info.DefinedClass,
		MethodID:          info.MethodID,
		Path:              info.Path,
		Lineno:            info.Lineno,
		Static:            &static,
		Parameters:        d.serializer.DescribeParameters(info.Parameters),
		Message:           d.serializer.DescribeMessage(info.Message),
		HTTPServerRequest: info.HTTPServerRequest,
	}

	if info.HasReceiver {
		receiver := d.serializer.Describe(info.Receiver, serialization.Context{})
		e.Receiver = &receiver
	}

	d.publish(e)

	return id
}

// DispatchReturn records the return of call id. Calls that were dispatched
// while nothing recorded have id 0 and are ignored.
func (d *Dispatcher) DispatchReturn(id idgen.ID, info ReturnInfo) {
	if id == 0 {
		return
	}

	defer d.recoverDispatch(event.KindReturn)

	elapsed, abandoned, found := d.stack.OnReturn(info.ThreadID, id)
	if !found {
		return
	}

	for _, closed := range abandoned {
		d.publishAbandoned(info.ThreadID, closed)
	}

	if !d.IsEnabled() {
		return
	}

	e := event.Event{
		ID:                 d.ids.Generate(),
		Kind:               event.KindReturn,
		ThreadID:           info.ThreadID,
		Timestamp:          time.Now(),
		ParentID:           id,
		Elapsed:            &elapsed,
		HTTPServerResponse: info.HTTPServerResponse,
	}

	switch {
	case info.Raised != nil:
		e.Exceptions = exceptionsOf(info.Raised)
	case info.HasReturnValue:
		value := d.serializer.Describe(info.ReturnValue, serialization.Context{})
		e.ReturnValue = &value
	}

	d.publish(e)
}

// publishAbandoned closes a call whose return never arrived so that the log
// stays well nested.
func (d *Dispatcher) publishAbandoned(thread event.ThreadID, closed callstack.Closed) {
	if !d.IsEnabled() {
		return
	}

	elapsed := closed.Elapsed
	d.publish(event.Event{
		ID:        d.ids.Generate(),
		Kind:      event.KindReturn,
		ThreadID:  thread,
		Timestamp: time.Now(),
		ParentID:  closed.ID,
		Elapsed:   &elapsed,
	})
}

func (d *Dispatcher) publish(e event.Event) {
	for _, t := range d.Enabled() {
		if t.record(e) {
			d.metrics.EventsRecorded.WithLabelValues(string(e.Kind)).Inc()
		}
	}
}

// exceptionsOf lists err and the errors it wraps, outermost first.
func exceptionsOf(err error) []event.Exception {
	var exceptions []event.Exception

	for ; err != nil; err = errors.Unwrap(err) {
		exceptions = append(exceptions, event.Exception{
			Class:   fmt.Sprintf("%T", err),
			Message: err.Error(),
		})
	}

	return exceptions
}

func (d *Dispatcher) recoverDispatch(kind event.Kind) {
	if r := recover(); r != nil {
		d.metrics.DispatchPanics.Inc()
		d.log.With("kind", string(kind), "panic", fmt.Sprint(r)).
			Error("Recovered from a failure while recording")
	}
}

func (d *Dispatcher) onStackAnomaly(ctx hooking.HookCtx) {
	a, ok := ctx.Item.(callstack.Anomaly)
	if !ok {
		return
	}

	d.metrics.StackAnomalies.WithLabelValues(string(a.Kind)).Inc()
	d.log.With(
		"thread", int64(a.Thread),
		"id", uint64(a.ID),
		"kind", string(a.Kind),
	).Warn("Call stack anomaly")
}

func (d *Dispatcher) onSerializationAnomaly(ctx hooking.HookCtx) {
	a, ok := ctx.Item.(serialization.Anomaly)
	if !ok {
		return
	}

	d.metrics.SerializationAnomalies.Inc()
	d.log.With("class", a.Class, "name", a.Name).
		Debugf("Could not describe value: %v", a.Cause)
}

// Builder builds Dispatchers.
type Builder struct {
	ctx        context.Context
	ids        idgen.Generator
	stack      *callstack.Tracker
	serializer *serialization.Serializer
	metrics    *metrics.Metrics
}

// MakeBuilder returns a Builder with default dependencies.
func MakeBuilder() Builder {
	return Builder{ctx: context.Background()}
}

// WithContext sets the context the dispatcher takes its logger from.
func (b Builder) WithContext(ctx context.Context) Builder {
	b.ctx = ctx
	return b
}

// WithIDGenerator sets the identity source.
func (b Builder) WithIDGenerator(ids idgen.Generator) Builder {
	b.ids = ids
	return b
}

// WithTracker sets the call stack tracker.
func (b Builder) WithTracker(stack *callstack.Tracker) Builder {
	b.stack = stack
	return b
}

// WithSerializer sets the value serializer.
func (b Builder) WithSerializer(s *serialization.Serializer) Builder {
	b.serializer = s
	return b
}

// WithMetrics sets the collectors the dispatcher reports to.
func (b Builder) WithMetrics(m *metrics.Metrics) Builder {
	b.metrics = m
	return b
}

// Build creates a Dispatcher.
func (b Builder) Build() *Dispatcher {
	d := &Dispatcher{
		log:        clog.FromContext(b.ctx),
		ids:        b.ids,
		stack:      b.stack,
		serializer: b.serializer,
		metrics:    b.metrics,
	}

	if d.ids == nil {
		d.ids = idgen.New()
	}

	if d.stack == nil {
		d.stack = callstack.NewTracker()
	}

	if d.serializer == nil {
		d.serializer = serialization.NewSerializer()
	}

	if d.metrics == nil {
		d.metrics = metrics.Discard()
	}

	d.stack.AcceptHook(hooking.HookFunc(d.onStackAnomaly))
	d.serializer.AcceptHook(hooking.HookFunc(d.onSerializationAnomaly))

	return d
}
