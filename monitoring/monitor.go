// Package monitoring serves the state of a recording engine over HTTP.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/ikuo/appmap/classmap"
	"github.com/ikuo/appmap/idgen"
	"github.com/ikuo/appmap/stats"
	"github.com/ikuo/appmap/tracing"
)

// Monitor serves the tracers, the class map and the process resources of a
// recording engine.
type Monitor struct {
	log        *clog.Logger
	dispatcher *tracing.Dispatcher
	classMap   *classmap.Builder
	gatherer   prometheus.Gatherer
	portNumber int

	progressIDs      idgen.Generator
	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// NewMonitor creates a Monitor of d and b.
func NewMonitor(
	ctx context.Context,
	d *tracing.Dispatcher,
	b *classmap.Builder,
) *Monitor {
	return &Monitor{
		log:         clog.FromContext(ctx),
		dispatcher:  d,
		classMap:    b,
		progressIDs: idgen.New(),
	}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithGatherer exposes the metrics of g at /metrics.
func (m *Monitor) WithGatherer(g prometheus.Gatherer) *Monitor {
	m.gatherer = g
	return m
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        m.progressIDs.Generate().String(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

// Router returns the HTTP routes of the monitor.
func (m *Monitor) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/tracers", m.listTracers).Methods(http.MethodGet)
	r.HandleFunc("/api/tracer/{id}", m.tracerDetails).Methods(http.MethodGet)
	r.HandleFunc("/api/tracer/{id}/events", m.tracerEvents).Methods(http.MethodGet)
	r.HandleFunc("/api/tracer/{id}/stats", m.tracerStats).Methods(http.MethodGet)
	r.HandleFunc("/api/tracer/{id}/enable", m.enableTracer).Methods(http.MethodPost)
	r.HandleFunc("/api/tracer/{id}/disable", m.disableTracer).Methods(http.MethodPost)
	r.HandleFunc("/api/field/{json}", m.listFieldValue).Methods(http.MethodGet)
	r.HandleFunc("/api/classmap", m.listClassMap).Methods(http.MethodGet)
	r.HandleFunc("/api/progress", m.listProgressBars).Methods(http.MethodGet)
	r.HandleFunc("/api/resource", m.listResources).Methods(http.MethodGet)
	r.HandleFunc("/api/profile", m.collectProfile).Methods(http.MethodGet)

	if m.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

// StartServer serves the monitor until ctx is done and returns the address
// it listens on.
func (m *Monitor) StartServer(ctx context.Context) (string, error) {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	if err != nil {
		return "", fmt.Errorf("listen on %s: %w", actualPort, err)
	}

	addr := fmt.Sprintf("http://localhost:%d", listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "Monitoring recording with %s\n", addr)

	server := &http.Server{
		Handler:           m.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()

	go func() {
		err := server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.log.Errorf("Monitoring server stopped: %v", err)
		}
	}()

	return addr, nil
}

type tracerRsp struct {
	ID     string `json:"id"`
	State  string `json:"state"`
	Events int    `json:"events"`
}

func summarize(t *tracing.Tracer) tracerRsp {
	return tracerRsp{ID: t.ID(), State: t.State().String(), Events: t.Len()}
}

func (m *Monitor) listTracers(w http.ResponseWriter, _ *http.Request) {
	tracers := m.dispatcher.Tracers()

	rsp := make([]tracerRsp, len(tracers))
	for i, t := range tracers {
		rsp[i] = summarize(t)
	}

	m.writeJSON(w, rsp)
}

func (m *Monitor) tracerDetails(w http.ResponseWriter, r *http.Request) {
	t := m.findTracerOr404(w, mux.Vars(r)["id"])
	if t == nil {
		return
	}

	rsp := summarize(t)

	serializer := goseth.NewSerializer()
	serializer.SetRoot(&rsp)
	serializer.SetMaxDepth(1)

	if err := serializer.Serialize(w); err != nil {
		m.fail(w, err)
	}
}

func (m *Monitor) tracerEvents(w http.ResponseWriter, r *http.Request) {
	t := m.findTracerOr404(w, mux.Vars(r)["id"])
	if t == nil {
		return
	}

	limit, offset, err := parsePage(r)
	if err != nil {
		http.Error(w, fmt.Sprintf("Error: %s", err), http.StatusBadRequest)
		return
	}

	events := t.Events()

	if offset > len(events) {
		offset = len(events)
	}

	events = events[offset:]

	if limit > 0 && limit < len(events) {
		events = events[:limit]
	}

	m.writeJSON(w, events)
}

func (m *Monitor) tracerStats(w http.ResponseWriter, r *http.Request) {
	t := m.findTracerOr404(w, mux.Vars(r)["id"])
	if t == nil {
		return
	}

	m.writeJSON(w, stats.Summarize(t.Events(), nil))
}

func parsePage(r *http.Request) (limit, offset int, err error) {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		limitStr = "0"
	}

	limit, err = strconv.Atoi(limitStr)
	if err != nil || limit < 0 {
		return 0, 0, fmt.Errorf("invalid limit %q", limitStr)
	}

	offsetStr := r.URL.Query().Get("offset")
	if offsetStr == "" {
		offsetStr = "0"
	}

	offset, err = strconv.Atoi(offsetStr)
	if err != nil || offset < 0 {
		return 0, 0, fmt.Errorf("invalid offset %q", offsetStr)
	}

	return limit, offset, nil
}

func (m *Monitor) enableTracer(w http.ResponseWriter, r *http.Request) {
	t := m.findTracerOr404(w, mux.Vars(r)["id"])
	if t == nil {
		return
	}

	m.dispatcher.Enable(t)
	m.writeJSON(w, summarize(t))
}

func (m *Monitor) disableTracer(w http.ResponseWriter, r *http.Request) {
	t := m.findTracerOr404(w, mux.Vars(r)["id"])
	if t == nil {
		return
	}

	m.dispatcher.Disable(t)
	m.writeJSON(w, summarize(t))
}

type fieldReq struct {
	TracerID  string `json:"tracer_id,omitempty"`
	FieldName string `json:"field_name,omitempty"`
}

func (m *Monitor) listFieldValue(w http.ResponseWriter, r *http.Request) {
	req := fieldReq{}

	err := json.Unmarshal([]byte(mux.Vars(r)["json"]), &req)
	if err != nil {
		http.Error(w, fmt.Sprintf("Error: %s", err), http.StatusBadRequest)
		return
	}

	t := m.findTracerOr404(w, req.TracerID)
	if t == nil {
		return
	}

	rsp := summarize(t)

	serializer := goseth.NewSerializer()
	serializer.SetRoot(&rsp)
	serializer.SetMaxDepth(1)

	if err := serializer.SetEntryPoint(strings.Split(req.FieldName, ".")); err != nil {
		http.Error(w, fmt.Sprintf("Error: %s", err), http.StatusBadRequest)
		return
	}

	if err := serializer.Serialize(w); err != nil {
		m.fail(w, err)
	}
}

func (m *Monitor) listClassMap(w http.ResponseWriter, _ *http.Request) {
	roots := m.classMap.Snapshot()
	if roots == nil {
		roots = []*classmap.Node{}
	}

	m.writeJSON(w, roots)
}

func (m *Monitor) findTracerOr404(w http.ResponseWriter, id string) *tracing.Tracer {
	t, ok := m.dispatcher.Lookup(id)
	if !ok {
		http.Error(w, "Tracer not found", http.StatusNotFound)
		return nil
	}

	return t
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	bars := make([]progressRsp, len(m.progressBars))
	for i, b := range m.progressBars {
		bars[i] = b.snapshot()
	}
	m.progressBarsLock.Unlock()

	m.writeJSON(w, bars)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		m.fail(w, err)
		return
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		m.fail(w, err)
		return
	}

	memory, err := proc.MemoryInfo()
	if err != nil {
		m.fail(w, err)
		return
	}

	m.writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memory.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, r *http.Request) {
	duration := time.Second
	if s := r.URL.Query().Get("seconds"); s != "" {
		seconds, err := strconv.ParseFloat(s, 64)
		if err != nil || seconds <= 0 {
			http.Error(w, fmt.Sprintf("Error: invalid seconds %q", s), http.StatusBadRequest)
			return
		}

		duration = time.Duration(seconds * float64(time.Second))
	}

	buf := bytes.NewBuffer(nil)

	if err := pprof.StartCPUProfile(buf); err != nil {
		m.fail(w, err)
		return
	}

	time.Sleep(duration)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	if err != nil {
		m.fail(w, err)
		return
	}

	m.writeJSON(w, prof)
}

func (m *Monitor) writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		m.fail(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if _, err := w.Write(data); err != nil {
		m.log.Warnf("Could not write response: %v", err)
	}
}

func (m *Monitor) fail(w http.ResponseWriter, err error) {
	m.log.Errorf("Monitoring request failed: %v", err)
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
