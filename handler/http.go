package handler

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"

	"github.com/gorilla/mux"

	"github.com/ikuo/appmap/event"
	"github.com/ikuo/appmap/tracing"
)

// HTTPServer records every request served by next as a call carrying the
// request and a return carrying the response.
//
// Requests run on the thread found in their context. Requests without one
// get a fresh thread, which is stored in the context handed to next.
func HTTPServer(d *tracing.Dispatcher, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !d.IsEnabled() {
			next.ServeHTTP(w, r)
			return
		}

		thread, ok := ThreadID(r.Context())
		if !ok {
			thread = nextRequestThread()
			r = r.WithContext(WithThreadID(r.Context(), thread))
		}

		id := d.DispatchCall(tracing.CallInfo{
			ThreadID:          thread,
			Message:           requestMessage(r),
			HTTPServerRequest: describeRequest(d, r),
		})

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			if p := recover(); p != nil {
				d.DispatchReturn(id, tracing.ReturnInfo{
					ThreadID: thread,
					Raised:   fmt.Errorf("panic: %v", p),
					HTTPServerResponse: &event.HTTPServerResponse{
						StatusCode: http.StatusInternalServerError,
					},
				})
				panic(p)
			}
		}()

		next.ServeHTTP(recorder, r)

		d.DispatchReturn(id, tracing.ReturnInfo{
			ThreadID: thread,
			HTTPServerResponse: &event.HTTPServerResponse{
				StatusCode: recorder.status,
				Headers:    flattenHeaders(d, recorder.Header()),
			},
		})
	})
}

// Middleware adapts HTTPServer to a mux router, where route templates are
// known.
func Middleware(d *tracing.Dispatcher) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return HTTPServer(d, next)
	}
}

func describeRequest(d *tracing.Dispatcher, r *http.Request) *event.HTTPServerRequest {
	req := &event.HTTPServerRequest{
		RequestMethod: r.Method,
		PathInfo:      r.URL.Path,
		Headers:       flattenHeaders(d, r.Header),
	}

	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			req.NormalizedPathInfo = tpl
		}
	}

	return req
}

// requestMessage lists route variables and form values, sorted by name.
func requestMessage(r *http.Request) []tracing.RawParameter {
	values := make(map[string]any)

	if err := r.ParseForm(); err == nil {
		for name, v := range r.Form {
			if len(v) == 1 {
				values[name] = v[0]
			} else {
				values[name] = v
			}
		}
	}

	for name, v := range mux.Vars(r) {
		values[name] = v
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}

	sort.Strings(names)

	message := make([]tracing.RawParameter, len(names))
	for i, name := range names {
		message[i] = tracing.RawParameter{Name: name, Value: values[name]}
	}

	return message
}

func flattenHeaders(d *tracing.Dispatcher, h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}

	denylist := d.Serializer().Denylist()

	headers := make(map[string]string, len(h))
	for name, v := range h {
		if denylist.Matches(name) {
			headers[name] = event.FilteredValue
			continue
		}

		headers[name] = strings.Join(v, ", ")
	}

	return headers
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}

	r.ResponseWriter.WriteHeader(status)
}

// Flush forwards to the underlying writer when it can stream.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		r.wroteHeader = true
		f.Flush()
	}
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("%T cannot be hijacked: %w",
			r.ResponseWriter, http.ErrNotSupported)
	}

	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
