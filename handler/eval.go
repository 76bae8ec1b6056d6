// Package handler records framework-level calls such as code evaluation and
// HTTP requests.
package handler

import (
	"fmt"

	"github.com/ikuo/appmap/binding"
	"github.com/ikuo/appmap/event"
	"github.com/ikuo/appmap/tracing"
)

// A Snippet is a piece of caller code that runs against a Binding.
type Snippet interface {
	// Source returns the code as written by the caller.
	Source() string

	// Run executes the code. Every definition it makes goes into b.
	Run(b *binding.Binding) (any, error)
}

type snippet struct {
	source string
	run    func(b *binding.Binding) (any, error)
}

func (s snippet) Source() string {
	return s.source
}

func (s snippet) Run(b *binding.Binding) (any, error) {
	return s.run(b)
}

// NewSnippet creates a Snippet from its source and the function running it.
func NewSnippet(
	source string,
	run func(b *binding.Binding) (any, error),
) Snippet {
	return snippet{source: source, run: run}
}

// arguments describes the argument list of an eval call.
type arguments []any

func (a arguments) TypeName() string { return "Array" }

func (a arguments) Display() string { return fmt.Sprint([]any(a)) }

func (a arguments) Members() []event.Property { return nil }

func (a arguments) Size() int { return len(a) }

// EvalClass is the class eval calls are recorded under.
const EvalClass = "Kernel"

// Eval runs s against the caller's binding b and records it as a call to
// Kernel#eval on thread. It returns what s returns.
func Eval(
	d *tracing.Dispatcher,
	thread event.ThreadID,
	b *binding.Binding,
	s Snippet,
) (any, error) {
	id := d.DispatchCall(tracing.CallInfo{
		ThreadID:     thread,
		DefinedClass: EvalClass,
		MethodID:     "eval",
		Parameters: []tracing.RawParameter{
			{Name: "arg", Kind: event.ParamRest, Value: arguments{s.Source()}},
		},
	})

	defer func() {
		if r := recover(); r != nil {
			d.DispatchReturn(id, tracing.ReturnInfo{
				ThreadID: thread,
				Raised:   fmt.Errorf("panic: %v", r),
			})
			panic(r)
		}
	}()

	result, err := s.Run(b)

	d.DispatchReturn(id, tracing.ReturnInfo{
		ThreadID:       thread,
		ReturnValue:    result,
		HasReturnValue: err == nil,
		Raised:         err,
	})

	return result, err
}
