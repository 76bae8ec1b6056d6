// Package appmap records the runtime execution of a program as appmap
// documents.
package appmap

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chainguard-dev/clog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tebeka/atexit"
	"golang.org/x/sync/errgroup"

	"github.com/ikuo/appmap/artifact"
	"github.com/ikuo/appmap/binding"
	"github.com/ikuo/appmap/classmap"
	"github.com/ikuo/appmap/config"
	"github.com/ikuo/appmap/event"
	"github.com/ikuo/appmap/handler"
	"github.com/ikuo/appmap/metrics"
	"github.com/ikuo/appmap/monitoring"
	"github.com/ikuo/appmap/recorder"
	"github.com/ikuo/appmap/serialization"
	"github.com/ikuo/appmap/stats"
	"github.com/ikuo/appmap/tracing"
)

// teardownWorkers bounds how many recordings Teardown writes at once.
const teardownWorkers = 4

// NamespaceName is the name of the binding the engine defines its own types
// in.
const NamespaceName = "appmap"

var (
	// ErrTracersEnabled is returned by Reset while something is recording.
	ErrTracersEnabled = errors.New("tracers are enabled")

	// ErrEngineNamespace is returned when caller code is asked to run
	// against the engine's own namespace.
	ErrEngineNamespace = errors.New("cannot evaluate in the engine namespace")

	// ErrUnknownRecording is returned when stopping a recording twice.
	ErrUnknownRecording = errors.New("unknown recording")
)

// A Recording is a named tracer whose events become one appmap document.
type Recording struct {
	name   string
	tracer *tracing.Tracer
	stats  *stats.Collector
}

// Name returns the name of the recording.
func (r *Recording) Name() string {
	return r.name
}

// Tracer returns the tracer collecting the events of the recording.
func (r *Recording) Tracer() *tracing.Tracer {
	return r.tracer
}

// Stats returns the time spent in each function so far.
func (r *Recording) Stats() []stats.Function {
	return r.stats.Functions()
}

// Engine owns the identity source, the call stacks, the tracers and the class
// map of one process.
type Engine struct {
	log       *clog.Logger
	namespace *binding.Binding

	configLock sync.RWMutex
	cfg        *config.Config
	compiled   *config.Compiled

	registry   *prometheus.Registry
	metrics    *metrics.Metrics
	dispatcher *tracing.Dispatcher
	classMap   *classmap.Builder
	monitor    *monitoring.Monitor
	recorder   *recorder.Recorder

	lock       sync.Mutex
	recordings []*Recording
}

// New creates an engine configured by cfg. Open recordings are written when
// the program exits through atexit.
func New(ctx context.Context, cfg *config.Config) (*Engine, error) {
	compiled, err := cfg.Compile()
	if err != nil {
		return nil, fmt.Errorf("compile config: %w", err)
	}

	serializer := serialization.NewSerializer()
	compiled.Configure(serializer)

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	d := tracing.MakeBuilder().
		WithContext(ctx).
		WithSerializer(serializer).
		WithMetrics(m).
		Build()

	e := &Engine{
		log:        clog.FromContext(ctx),
		cfg:        cfg,
		compiled:   compiled,
		namespace:  newNamespace(),
		registry:   registry,
		metrics:    m,
		dispatcher: d,
		classMap:   classmap.NewBuilder(),
	}

	e.monitor = monitoring.NewMonitor(ctx, d, e.classMap).
		WithGatherer(registry).
		WithPortNumber(cfg.Env.MonitorPort)

	if cfg.Env.Record {
		store, err := openStore(ctx, cfg.Env.Database)
		if err != nil {
			return nil, fmt.Errorf("open recording database: %w", err)
		}

		e.recorder, err = recorder.New(ctx, store)
		if err != nil {
			return nil, fmt.Errorf("create recorder: %w", err)
		}
	}

	atexit.Register(func() {
		if err := e.Teardown(); err != nil {
			e.log.Errorf("Teardown failed: %v", err)
		}
	})

	return e, nil
}

func openStore(ctx context.Context, database string) (recorder.Store, error) {
	if recorder.IsClickHouseURL(database) {
		return recorder.NewClickHouseStore(ctx, database)
	}

	return recorder.NewWriter(database)
}

// newNamespace defines the types the engine reports events under.
func newNamespace() *binding.Binding {
	ns := binding.New(NamespaceName)
	ns.DefineType(handler.EvalClass)
	ns.DefineType("Recording")
	ns.DefineType("Dispatcher")

	return ns
}

// Namespace returns the binding the engine defines its own types in. It is
// never used to run caller code.
func (e *Engine) Namespace() *binding.Binding {
	return e.namespace
}

// Config returns the configuration of the engine.
func (e *Engine) Config() *config.Config {
	e.configLock.RLock()
	defer e.configLock.RUnlock()

	return e.cfg
}

// Reload replaces the label rules, the application name and the output
// directory with those of cfg. Redaction settings and the value cap are read
// once by New.
func (e *Engine) Reload(cfg *config.Config) error {
	compiled, err := cfg.Compile()
	if err != nil {
		return fmt.Errorf("compile config: %w", err)
	}

	e.configLock.Lock()
	defer e.configLock.Unlock()

	e.cfg = cfg
	e.compiled = compiled

	return nil
}

// WatchConfig reloads the configuration file at path whenever it changes. It
// blocks until ctx is done.
func (e *Engine) WatchConfig(ctx context.Context, path string) error {
	return config.Watch(ctx, path, func(cfg *config.Config, err error) {
		if err == nil {
			err = e.Reload(cfg)
		}

		if err != nil {
			e.log.With("path", path).Warnf("Configuration not reloaded: %v", err)
			return
		}

		e.log.With("path", path).Info("Configuration reloaded")
	})
}

// Dispatcher returns the dispatcher instrumentation hooks report to.
func (e *Engine) Dispatcher() *tracing.Dispatcher {
	return e.dispatcher
}

// ClassMap returns the class map builder.
func (e *Engine) ClassMap() *classmap.Builder {
	return e.classMap
}

// Registry returns the registry of the engine metrics.
func (e *Engine) Registry() *prometheus.Registry {
	return e.registry
}

// Monitor returns the monitoring server of the engine. It is not started.
func (e *Engine) Monitor() *monitoring.Monitor {
	return e.monitor
}

// RegisterFunction adds an instrumented function to the class map.
func (e *Engine) RegisterFunction(
	definedClass, method string,
	meta classmap.Metadata,
) error {
	return e.classMap.RegisterFunction(definedClass, method, meta)
}

// Start creates an enabled tracer for a recording called name.
func (e *Engine) Start(name string) (*Recording, error) {
	t := e.dispatcher.Trace(false)

	if e.recorder != nil {
		if err := e.recorder.Attach(t, name); err != nil {
			e.dispatcher.Delete(t)
			return nil, fmt.Errorf("attach recorder: %w", err)
		}
	}

	r := &Recording{name: name, tracer: t, stats: stats.NewCollector(nil)}
	t.AcceptHook(r.stats)

	e.dispatcher.Enable(t)

	e.lock.Lock()
	e.recordings = append(e.recordings, r)
	e.lock.Unlock()

	return r, nil
}

// Stop deletes the tracer of r and writes its events as an appmap document
// in the output directory. It returns the path of the document.
func (e *Engine) Stop(r *Recording, meta artifact.Metadata) (string, error) {
	if !e.forget(r) {
		return "", fmt.Errorf("%w: %s", ErrUnknownRecording, r.name)
	}

	e.dispatcher.Delete(r.tracer)

	if meta.Name == "" {
		meta.Name = r.name
	}

	cfg := e.Config()

	if meta.App == "" {
		meta.App = cfg.Name
	}

	doc := e.Document(meta, r.tracer.Events())

	path, err := doc.WriteFile(cfg.Env.OutputDir)
	if err != nil {
		return "", fmt.Errorf("write recording %s: %w", r.name, err)
	}

	e.log.With("recording", r.name, "events", len(doc.Events)).
		Infof("Wrote %s", path)

	return path, nil
}

func (e *Engine) forget(r *Recording) bool {
	e.lock.Lock()
	defer e.lock.Unlock()

	for i, other := range e.recordings {
		if other == r {
			e.recordings = append(e.recordings[:i], e.recordings[i+1:]...)
			return true
		}
	}

	return false
}

// Document assembles events and the labelled class map into a document.
func (e *Engine) Document(
	meta artifact.Metadata,
	events []event.Event,
) artifact.Document {
	e.configLock.RLock()
	compiled := e.compiled
	e.configLock.RUnlock()

	compiled.ApplyLabels(e.classMap)

	return artifact.Build(meta, e.classMap.Snapshot(), events)
}

// Eval runs s against the caller's binding b and records it on thread.
func (e *Engine) Eval(
	thread event.ThreadID,
	b *binding.Binding,
	s handler.Snippet,
) (any, error) {
	if b == e.namespace {
		return nil, ErrEngineNamespace
	}

	return handler.Eval(e.dispatcher, thread, b, s)
}

// Reset rewinds the event identity and clears the call stacks and the class
// map. It is meant for test fixtures and refuses to run while any tracer is
// enabled.
func (e *Engine) Reset() error {
	if !e.dispatcher.ResetIfIdle() {
		return ErrTracersEnabled
	}

	e.classMap.Reset()

	return nil
}

// Teardown writes every open recording and flushes the recording database.
// Calling it again only flushes.
func (e *Engine) Teardown() error {
	e.lock.Lock()
	open := make([]*Recording, len(e.recordings))
	copy(open, e.recordings)
	e.lock.Unlock()

	var (
		errsLock sync.Mutex
		errs     []error
	)

	if len(open) > 0 {
		bar := e.monitor.CreateProgressBar("Writing recordings", uint64(len(open)))
		defer e.monitor.CompleteProgressBar(bar)

		var g errgroup.Group
		g.SetLimit(teardownWorkers)

		for _, r := range open {
			g.Go(func() error {
				bar.IncrementInProgress(1)
				defer bar.MoveInProgressToFinished(1)

				if _, err := e.Stop(r, artifact.Metadata{}); err != nil {
					errsLock.Lock()
					errs = append(errs, err)
					errsLock.Unlock()
				}

				return nil
			})
		}

		_ = g.Wait()
	}

	if e.recorder != nil {
		if err := e.recorder.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("flush recorder: %w", err))
		}
	}

	return errors.Join(errs...)
}
