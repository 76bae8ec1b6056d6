package handler

import (
	"net/http"
	"net/http/httptest"

	"github.com/gorilla/mux"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ikuo/appmap/event"
	"github.com/ikuo/appmap/tracing"
)

var _ = Describe("HTTPServer", func() {
	var (
		d      *tracing.Dispatcher
		tracer *tracing.Tracer
		router *mux.Router

		threadSeen bool
	)

	BeforeEach(func() {
		d = tracing.MakeBuilder().Build()
		tracer = d.Trace(true)

		router = mux.NewRouter()
		router.Use(Middleware(d))
		router.HandleFunc("/users/{id}", func(w http.ResponseWriter, r *http.Request) {
			_, threadSeen = ThreadID(r.Context())

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{}`))
		})
	})

	It("should record requests and responses", func() {
		req := httptest.NewRequest(http.MethodGet, "/users/7?q=a&password=x", nil)
		req.Header.Set("Authorization", "Bearer token")
		req.Header.Set("Accept", "application/json")

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		Expect(rec.Code).To(Equal(http.StatusCreated))
		Expect(threadSeen).To(BeTrue())

		events := tracer.Events()
		Expect(events).To(HaveLen(2))

		call := events[0]
		Expect(call.HTTPServerRequest.RequestMethod).To(Equal(http.MethodGet))
		Expect(call.HTTPServerRequest.PathInfo).To(Equal("/users/7"))
		Expect(call.HTTPServerRequest.NormalizedPathInfo).To(Equal("/users/{id}"))
		Expect(call.HTTPServerRequest.Headers).To(HaveKeyWithValue("Accept", "application/json"))
		Expect(call.HTTPServerRequest.Headers).
			To(HaveKeyWithValue("Authorization", event.FilteredValue))

		Expect(call.Message).To(HaveLen(3))
		Expect(call.Message[0].Name).To(Equal("id"))
		Expect(call.Message[0].Value).To(Equal("7"))
		Expect(call.Message[1].Name).To(Equal("password"))
		Expect(call.Message[1].Value).To(Equal(event.FilteredValue))
		Expect(call.Message[2].Name).To(Equal("q"))

		ret := events[1]
		Expect(ret.ParentID).To(Equal(call.ID))
		Expect(ret.HTTPServerResponse.StatusCode).To(Equal(http.StatusCreated))
		Expect(ret.HTTPServerResponse.Headers).
			To(HaveKeyWithValue("Content-Type", "application/json"))
	})

	It("should keep the thread of the request context", func() {
		req := httptest.NewRequest(http.MethodGet, "/users/1", nil)
		req = req.WithContext(WithThreadID(req.Context(), 9))

		router.ServeHTTP(httptest.NewRecorder(), req)

		for _, e := range tracer.Events() {
			Expect(e.ThreadID).To(Equal(event.ThreadID(9)))
		}
	})

	It("should let handlers stream while recording", func() {
		router.HandleFunc("/stream", func(w http.ResponseWriter, _ *http.Request) {
			f, ok := w.(http.Flusher)
			Expect(ok).To(BeTrue())

			_, _ = w.Write([]byte("chunk"))
			f.Flush()
		})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream", nil))

		Expect(rec.Flushed).To(BeTrue())
		Expect(rec.Body.String()).To(Equal("chunk"))

		events := tracer.Events()
		Expect(events).To(HaveLen(2))
		Expect(events[1].HTTPServerResponse.StatusCode).To(Equal(http.StatusOK))
	})

	It("should report hijacking as unsupported by the writer", func() {
		router.HandleFunc("/ws", func(w http.ResponseWriter, _ *http.Request) {
			_, _, err := w.(http.Hijacker).Hijack()
			Expect(err).To(MatchError(http.ErrNotSupported))

			w.WriteHeader(http.StatusNotImplemented)
		})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))

		Expect(rec.Code).To(Equal(http.StatusNotImplemented))
	})

	It("should pass requests through when nothing records", func() {
		d.Disable(tracer)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/1", nil))

		Expect(rec.Code).To(Equal(http.StatusCreated))
		Expect(tracer.Events()).To(BeEmpty())
	})
})
