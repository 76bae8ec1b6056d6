package serialization

import "github.com/ikuo/appmap/event"

// RawParameter is a parameter as seen by an instrumentation hook, before it
// is described.
type RawParameter struct {
	Name  string
	Kind  event.ParameterKind
	Value any
}

// DescribeParameters describes params in order. Each parameter name is the
// redaction context of its value.
func (s *Serializer) DescribeParameters(
	params []RawParameter,
) []event.Parameter {
	if len(params) == 0 {
		return nil
	}

	described := make([]event.Parameter, len(params))
	for i, p := range params {
		described[i] = event.Parameter{
			ValueDescriptor: s.Describe(p.Value, Context{Name: p.Name}),
			Kind:            p.Kind,
		}
	}

	return described
}

// DescribeMessage describes named values, such as request parameters.
func (s *Serializer) DescribeMessage(
	entries []RawParameter,
) []event.ValueDescriptor {
	if len(entries) == 0 {
		return nil
	}

	described := make([]event.ValueDescriptor, len(entries))
	for i, e := range entries {
		described[i] = s.Describe(e.Value, Context{Name: e.Name})
	}

	return described
}
