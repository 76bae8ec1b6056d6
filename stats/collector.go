// Package stats aggregates the time spent in each recorded function.
package stats

import (
	"sort"
	"sync"

	"github.com/ikuo/appmap/event"
	"github.com/ikuo/appmap/hooking"
	"github.com/ikuo/appmap/idgen"
)

// A Filter selects the calls a Collector counts.
type Filter func(call event.Event) bool

// Function is the aggregate of the calls of one function. If two calls
// overlap, their elapsed times are simply added together.
type Function struct {
	DefinedClass string  `json:"defined_class"`
	MethodID     string  `json:"method_id"`
	Calls        uint64  `json:"calls"`
	Raised       uint64  `json:"raised"`
	TotalTime    float64 `json:"total_time"`
	MaxTime      float64 `json:"max_time"`
}

type key struct {
	class  string
	method string
}

// Collector is a hook that aggregates the events published by tracers.
type Collector struct {
	filter Filter

	lock      sync.Mutex
	inflight  map[idgen.ID]key
	functions map[key]*Function
}

// NewCollector creates a Collector. A nil filter counts every call.
func NewCollector(filter Filter) *Collector {
	return &Collector{
		filter:    filter,
		inflight:  make(map[idgen.ID]key),
		functions: make(map[key]*Function),
	}
}

// Func counts the events published at hooking.HookPosEventRecorded.
func (c *Collector) Func(ctx hooking.HookCtx) {
	if ctx.Pos != hooking.HookPosEventRecorded {
		return
	}

	if e, ok := ctx.Item.(event.Event); ok {
		c.Observe(e)
	}
}

// Observe counts one event.
func (c *Collector) Observe(e event.Event) {
	if e.IsCall() {
		c.startCall(e)
		return
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	k, ok := c.inflight[e.ParentID]
	if !ok {
		return
	}

	delete(c.inflight, e.ParentID)

	f := c.functions[k]
	if f == nil {
		f = &Function{DefinedClass: k.class, MethodID: k.method}
		c.functions[k] = f
	}

	elapsed := e.ElapsedSeconds()

	f.Calls++
	f.TotalTime += elapsed

	if elapsed > f.MaxTime {
		f.MaxTime = elapsed
	}

	if len(e.Exceptions) > 0 {
		f.Raised++
	}
}

func (c *Collector) startCall(e event.Event) {
	if c.filter != nil && !c.filter(e) {
		return
	}

	c.lock.Lock()
	c.inflight[e.ID] = key{class: e.DefinedClass, method: e.MethodID}
	c.lock.Unlock()
}

// InFlight returns how many counted calls have not returned.
func (c *Collector) InFlight() int {
	c.lock.Lock()
	defer c.lock.Unlock()

	return len(c.inflight)
}

// Functions returns the aggregates, the most expensive first.
func (c *Collector) Functions() []Function {
	c.lock.Lock()

	functions := make([]Function, 0, len(c.functions))
	for _, f := range c.functions {
		functions = append(functions, *f)
	}

	c.lock.Unlock()

	sort.Slice(functions, func(i, j int) bool {
		a, b := functions[i], functions[j]
		if a.TotalTime != b.TotalTime {
			return a.TotalTime > b.TotalTime
		}

		if a.DefinedClass != b.DefinedClass {
			return a.DefinedClass < b.DefinedClass
		}

		return a.MethodID < b.MethodID
	})

	return functions
}

// Summarize aggregates an event log.
func Summarize(events []event.Event, filter Filter) []Function {
	c := NewCollector(filter)
	for _, e := range events {
		c.Observe(e)
	}

	return c.Functions()
}
