// Package event defines the records that make up a recorded trace.
package event

import (
	"time"

	"github.com/ikuo/appmap/idgen"
)

// Kind tells whether an Event is a call or a return.
type Kind string

// Event kinds.
const (
	KindCall   Kind = "call"
	KindReturn Kind = "return"
)

// ThreadID identifies the logical thread of execution an event happened on.
type ThreadID int64

// ParameterKind describes how a parameter was declared.
type ParameterKind string

// Parameter kinds.
const (
	ParamReq     ParameterKind = "req"
	ParamOpt     ParameterKind = "opt"
	ParamRest    ParameterKind = "rest"
	ParamKeyReq  ParameterKind = "keyreq"
	ParamKey     ParameterKind = "key"
	ParamKeyRest ParameterKind = "keyrest"
	ParamBlock   ParameterKind = "block"
)

// FilteredValue replaces the display value of redacted values.
const FilteredValue = "[FILTERED]"

// Property is a shallow structural member of a described value.
type Property struct {
	Name  string `json:"name"`
	Class string `json:"class"`
}

// ValueDescriptor is the bounded, serialization-ready description of a
// runtime value.
type ValueDescriptor struct {
	Name       string     `json:"name,omitempty"`
	Class      string     `json:"class"`
	Value      string     `json:"value"`
	ObjectID   uint64     `json:"object_id"`
	Size       *int       `json:"size,omitempty"`
	Properties []Property `json:"properties,omitempty"`
}

// Filtered reports whether the value was redacted.
func (d ValueDescriptor) Filtered() bool {
	return d.Value == FilteredValue
}

// Parameter is a described call argument.
type Parameter struct {
	ValueDescriptor
	Kind ParameterKind `json:"kind"`
}

// Exception describes the error a call terminated with.
type Exception struct {
	Class   string `json:"class"`
	Message string `json:"message"`
}

// HTTPServerRequest is attached to calls recorded by server adapters.
type HTTPServerRequest struct {
	RequestMethod      string            `json:"request_method"`
	PathInfo           string            `json:"path_info"`
	NormalizedPathInfo string            `json:"normalized_path_info,omitempty"`
	Headers            map[string]string `json:"headers,omitempty"`
}

// HTTPServerResponse is attached to returns recorded by server adapters.
type HTTPServerResponse struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// Event is an immutable record of one call or one return.
type Event struct {
	ID        idgen.ID  `json:"id"`
	Kind      Kind      `json:"event"`
	ThreadID  ThreadID  `json:"thread_id"`
	Timestamp time.Time `json:"-"`

	// Call fields.
	DefinedClass      string             `json:"defined_class,omitempty"`
	MethodID          string             `json:"method_id,omitempty"`
	Path              string             `json:"path,omitempty"`
	Lineno            int                `json:"lineno,omitempty"`
	Static            *bool              `json:"static,omitempty"`
	Parameters        []Parameter        `json:"parameters,omitempty"`
	Receiver          *ValueDescriptor   `json:"receiver,omitempty"`
	Message           []ValueDescriptor  `json:"message,omitempty"`
	HTTPServerRequest *HTTPServerRequest `json:"http_server_request,omitempty"`

	// Return fields.
	ParentID           idgen.ID            `json:"parent_id,omitempty"`
	Elapsed            *float64            `json:"elapsed,omitempty"`
	ReturnValue        *ValueDescriptor    `json:"return_value,omitempty"`
	Exceptions         []Exception         `json:"exceptions,omitempty"`
	HTTPServerResponse *HTTPServerResponse `json:"http_server_response,omitempty"`
}

// IsCall reports whether the event is a call.
func (e Event) IsCall() bool {
	return e.Kind == KindCall
}

// IsReturn reports whether the event is a return.
func (e Event) IsReturn() bool {
	return e.Kind == KindReturn
}

// ElapsedSeconds returns the elapsed time of a return event, or 0.
func (e Event) ElapsedSeconds() float64 {
	if e.Elapsed == nil {
		return 0
	}

	return *e.Elapsed
}
