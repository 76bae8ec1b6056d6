package handler

import (
	"context"
	"sync/atomic"

	"github.com/ikuo/appmap/event"
)

type threadKey struct{}

// requestThreadBase keeps request threads apart from the thread ids that
// instrumentation hooks assign.
const requestThreadBase = 1 << 32

var requestThreads atomic.Int64

// WithThreadID returns a context that carries thread.
func WithThreadID(ctx context.Context, thread event.ThreadID) context.Context {
	return context.WithValue(ctx, threadKey{}, thread)
}

// ThreadID returns the thread carried by ctx.
func ThreadID(ctx context.Context) (event.ThreadID, bool) {
	thread, ok := ctx.Value(threadKey{}).(event.ThreadID)
	return thread, ok
}

func nextRequestThread() event.ThreadID {
	return event.ThreadID(requestThreadBase + requestThreads.Add(1))
}
