package tracing

import (
	"github.com/ikuo/appmap/event"
	"github.com/ikuo/appmap/serialization"
)

// RawParameter is a parameter or message entry as the hook sees it.
type RawParameter = serialization.RawParameter

// CallInfo is what an instrumentation hook knows when a method is entered.
type CallInfo struct {
	ThreadID event.ThreadID

	DefinedClass string
	MethodID     string
	Path         string
	Lineno       int
	Static       bool

	// Receiver is the object the method was called on. It is not described
	// when HasReceiver is false.
	Receiver    any
	HasReceiver bool

	Parameters []RawParameter
	Message    []RawParameter

	HTTPServerRequest *event.HTTPServerRequest
}

// ReturnInfo is what an instrumentation hook knows when a method exits.
type ReturnInfo struct {
	ThreadID event.ThreadID

	ReturnValue    any
	HasReturnValue bool

	// Raised is the error the call terminated with, if any.
	Raised error

	HTTPServerResponse *event.HTTPServerResponse
}
