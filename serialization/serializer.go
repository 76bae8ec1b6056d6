// Package serialization turns arbitrary runtime values into bounded,
// redaction-aware value descriptors.
package serialization

import (
	"reflect"
	"sync/atomic"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"

	"github.com/ikuo/appmap/event"
	"github.com/ikuo/appmap/hooking"
)

// MaxValueLength is the default cap, in runes, of a descriptor's display
// value.
const MaxValueLength = 100

// TruncationMarker ends display values that were cut at the cap.
const TruncationMarker = "..."

// UnprintableValue is the display value of values that could not be
// introspected.
const UnprintableValue = "#<unprintable>"

// Context carries what the serializer knows about where a value came from.
type Context struct {
	// Name is the enclosing parameter or property name. It drives redaction.
	Name string
}

// Anomaly is raised at hooking.HookPosAnomaly when a value could not be
// introspected.
type Anomaly struct {
	Class string
	Name  string
	Cause any
}

// Serializer describes runtime values. It is safe for concurrent use.
type Serializer struct {
	*hooking.HookableBase

	registry       *AdapterRegistry
	denylist       *Denylist
	maxValueLength int
	nextToken      uint64
}

// NewSerializer creates a Serializer with the default denylist and value cap.
func NewSerializer() *Serializer {
	return &Serializer{
		HookableBase:   hooking.NewHookableBase(),
		registry:       NewAdapterRegistry(),
		denylist:       NewDefaultDenylist(),
		maxValueLength: MaxValueLength,
	}
}

// WithDenylist sets the denylist used for redaction.
func (s *Serializer) WithDenylist(d *Denylist) *Serializer {
	s.denylist = d
	return s
}

// WithMaxValueLength sets the display value cap. A non-positive cap
// disables truncation.
func (s *Serializer) WithMaxValueLength(n int) *Serializer {
	s.maxValueLength = n
	return s
}

// WithRegistry sets the adapter registry.
func (s *Serializer) WithRegistry(r *AdapterRegistry) *Serializer {
	s.registry = r
	return s
}

// Registry returns the adapter registry.
func (s *Serializer) Registry() *AdapterRegistry {
	return s.registry
}

// Denylist returns the denylist used for redaction.
func (s *Serializer) Denylist() *Denylist {
	return s.denylist
}

// Describe returns the descriptor of v. It never panics; values that fail to
// introspect degrade to their class name and UnprintableValue.
func (s *Serializer) Describe(v any, ctx Context) (d event.ValueDescriptor) {
	defer func() {
		if cause := recover(); cause != nil {
			d = s.degrade(v, ctx, cause)
		}
	}()

	describer := s.describerFor(v)

	d = event.ValueDescriptor{
		Name:     ctx.Name,
		Class:    describer.TypeName(),
		ObjectID: pointerIdentity(v),
	}

	if s.denylist.Matches(ctx.Name) {
		d.Value = event.FilteredValue
		if d.ObjectID == 0 {
			d.ObjectID = s.token()
		}

		return d
	}

	display := describer.Display()
	d.Value = Truncate(display, s.maxValueLength)

	if d.ObjectID == 0 && v != nil {
		d.ObjectID = xxhash.Sum64String(d.Class + "\x00" + display)
	}

	switch desc := describer.(type) {
	case reflectDescriber:
		if size, ok := sizeOf(v); ok {
			d.Size = &size
		}
	case Sizer:
		size := desc.Size()
		d.Size = &size
	}

	d.Properties = describer.Members()

	return d
}

func (s *Serializer) describerFor(v any) Describer {
	if describer, ok := v.(Describer); ok {
		return describer
	}

	if adapter, ok := s.registry.Lookup(v); ok {
		return adapter(v)
	}

	return reflectDescriber{v: v, maxLen: s.maxValueLength, denylist: s.denylist}
}

func (s *Serializer) degrade(
	v any,
	ctx Context,
	cause any,
) event.ValueDescriptor {
	class := "nil"
	if v != nil {
		class = reflect.TypeOf(v).String()
	}

	s.InvokeHook(hooking.HookCtx{
		Domain: s,
		Pos:    hooking.HookPosAnomaly,
		Item:   Anomaly{Class: class, Name: ctx.Name, Cause: cause},
	})

	return event.ValueDescriptor{
		Name:     ctx.Name,
		Class:    class,
		Value:    UnprintableValue,
		ObjectID: s.token(),
	}
}

func (s *Serializer) token() uint64 {
	return atomic.AddUint64(&s.nextToken, 1)
}

// Truncate caps s at maxLen runes, ending cut values with TruncationMarker.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}

	keep := maxLen - len(TruncationMarker)
	if keep <= 0 {
		return string([]rune(s)[:maxLen])
	}

	return string([]rune(s)[:keep]) + TruncationMarker
}
