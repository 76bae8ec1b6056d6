package recorder

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ikuo/appmap/event"
	"github.com/ikuo/appmap/idgen"
)

const (
	sessionTable = "appmap_sessions"
	eventTable   = "appmap_events"
)

// sessionRow describes one tracer.
type sessionRow struct {
	Session string
	Name    string
	Started int64
}

// eventRow is an event flattened into columns. Nested values are stored as
// JSON.
type eventRow struct {
	Session   string
	ID        uint64
	Kind      string
	ThreadID  int64
	Timestamp int64

	DefinedClass string
	MethodID     string
	Path         string
	Lineno       int
	Static       bool
	Parameters   string
	Receiver     string
	Message      string
	Request      string

	ParentID    uint64
	Elapsed     float64
	ReturnValue string
	Exceptions  string
	Response    string
}

func encodeJSON(v any, isNil bool) (string, error) {
	if isNil {
		return "", nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}

	return string(data), nil
}

func decodeJSON(s string, v any) error {
	if s == "" {
		return nil
	}

	return json.Unmarshal([]byte(s), v)
}

func toRow(session string, e event.Event) (eventRow, error) {
	row := eventRow{
		Session:      session,
		ID:           uint64(e.ID),
		Kind:         string(e.Kind),
		ThreadID:     int64(e.ThreadID),
		Timestamp:    e.Timestamp.UnixNano(),
		DefinedClass: e.DefinedClass,
		MethodID:     e.MethodID,
		Path:         e.Path,
		Lineno:       e.Lineno,
		ParentID:     uint64(e.ParentID),
	}

	if e.Static != nil {
		row.Static = *e.Static
	}

	if e.Elapsed != nil {
		row.Elapsed = *e.Elapsed
	}

	var err error

	columns := []struct {
		dst   *string
		v     any
		isNil bool
	}{
		{&row.Parameters, e.Parameters, len(e.Parameters) == 0},
		{&row.Receiver, e.Receiver, e.Receiver == nil},
		{&row.Message, e.Message, len(e.Message) == 0},
		{&row.Request, e.HTTPServerRequest, e.HTTPServerRequest == nil},
		{&row.ReturnValue, e.ReturnValue, e.ReturnValue == nil},
		{&row.Exceptions, e.Exceptions, len(e.Exceptions) == 0},
		{&row.Response, e.HTTPServerResponse, e.HTTPServerResponse == nil},
	}

	for _, c := range columns {
		if *c.dst, err = encodeJSON(c.v, c.isNil); err != nil {
			return row, fmt.Errorf("encode event %d: %w", e.ID, err)
		}
	}

	return row, nil
}

func (row eventRow) toEvent() (event.Event, error) {
	e := event.Event{
		ID:           idgen.ID(row.ID),
		Kind:         event.Kind(row.Kind),
		ThreadID:     event.ThreadID(row.ThreadID),
		Timestamp:    time.Unix(0, row.Timestamp),
		DefinedClass: row.DefinedClass,
		MethodID:     row.MethodID,
		Path:         row.Path,
		Lineno:       row.Lineno,
		ParentID:     idgen.ID(row.ParentID),
	}

	if e.IsCall() {
		static := row.Static
		e.Static = &static
	} else {
		elapsed := row.Elapsed
		e.Elapsed = &elapsed
	}

	columns := []struct {
		src string
		dst any
	}{
		{row.Parameters, &e.Parameters},
		{row.Receiver, &e.Receiver},
		{row.Message, &e.Message},
		{row.Request, &e.HTTPServerRequest},
		{row.ReturnValue, &e.ReturnValue},
		{row.Exceptions, &e.Exceptions},
		{row.Response, &e.HTTPServerResponse},
	}

	for _, c := range columns {
		if err := decodeJSON(c.src, c.dst); err != nil {
			return e, fmt.Errorf("decode event %d: %w", row.ID, err)
		}
	}

	return e, nil
}
