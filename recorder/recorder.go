// Package recorder stores recorded events in SQLite as they are recorded.
package recorder

import (
	"context"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/ikuo/appmap/event"
	"github.com/ikuo/appmap/hooking"
	"github.com/ikuo/appmap/tracing"
)

// A Store keeps rows of named tables. Writer and ClickHouseStore are Stores.
type Store interface {
	CreateTable(tableName string, sampleEntry any) error
	InsertData(tableName string, entry any) error
	Flush() error
}

// A Recorder is a hook that writes the events of the tracers it is attached
// to into a Store.
type Recorder struct {
	log    *clog.Logger
	writer Store
}

// New creates the recorder tables in w.
func New(ctx context.Context, w Store) (*Recorder, error) {
	if err := w.CreateTable(sessionTable, sessionRow{}); err != nil {
		return nil, err
	}

	if err := w.CreateTable(eventTable, eventRow{}); err != nil {
		return nil, err
	}

	return &Recorder{
		log:    clog.FromContext(ctx),
		writer: w,
	}, nil
}

// Attach starts storing the events of t under its session id.
func (r *Recorder) Attach(t *tracing.Tracer, name string) error {
	err := r.writer.InsertData(sessionTable, sessionRow{
		Session: t.ID(),
		Name:    name,
		Started: time.Now().UnixNano(),
	})
	if err != nil {
		return err
	}

	t.AcceptHook(r)

	return nil
}

// Func stores the events published at hooking.HookPosEventRecorded.
func (r *Recorder) Func(ctx hooking.HookCtx) {
	if ctx.Pos != hooking.HookPosEventRecorded {
		return
	}

	t, ok := ctx.Domain.(*tracing.Tracer)
	if !ok {
		return
	}

	e, ok := ctx.Item.(event.Event)
	if !ok {
		return
	}

	row, err := toRow(t.ID(), e)
	if err == nil {
		err = r.writer.InsertData(eventTable, row)
	}

	if err != nil {
		r.log.With("session", t.ID(), "id", uint64(e.ID)).
			Warnf("Could not store event: %v", err)
	}
}

// Flush writes buffered events.
func (r *Recorder) Flush() error {
	return r.writer.Flush()
}
