package pipeline

import (
	"log/slog"
	"sync"
	"time"

	"github.com/viant/gmetric"
	"github.com/viant/gmetric/counter"
	"github.com/viant/gmetric/provider"
)

// Outcome values counted per step.
const (
	OutcomeSuccess = "Success"
	OutcomeError   = "Error"
)

// Event describes one executed step of one resolution.
type Event struct {
	ServiceID string
	Step      string
	Depth     int
	Duration  time.Duration
	Err       error
}

// Sink receives diagnostics events. Its failures never affect resolutions.
type Sink interface {
	Record(event Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(event Event) error

func (f SinkFunc) Record(event Event) error {
	return f(event)
}

// CollectDiagnostics reports the step timings of a resolution to a sink. It
// runs for cache hits and failed resolutions too.
type CollectDiagnostics struct {
	Sink   Sink
	Logger *slog.Logger
}

func (s *CollectDiagnostics) Name() string { return "CollectDiagnostics" }

func (s *CollectDiagnostics) Finalizer() bool { return true }

func (s *CollectDiagnostics) Handle(ctx *Context) error {
	var total time.Duration
	var firstErr error

	for _, timing := range ctx.Timings() {
		total += timing.Duration
		if s.Sink == nil {
			continue
		}

		err := s.Sink.Record(Event{
			ServiceID: ctx.ServiceID,
			Step:      timing.Step,
			Depth:     ctx.Depth,
			Duration:  timing.Duration,
			Err:       timing.Err,
		})
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if s.Logger != nil {
		s.Logger.Debug("resolution finished",
			"service", ctx.ServiceID,
			"depth", ctx.Depth,
			"cached", ctx.Resolved,
			"state", ctx.State.State().String(),
			"elapsed", total,
			"error", ctx.Err)
	}

	return firstErr
}

// Counter is the part of a gmetric operation the metric sink uses.
type Counter interface {
	Begin(started time.Time) counter.OnDone
	IncrementValue(value interface{}) int64
}

// MetricSink counts step executions and their latency in gmetric operations,
// one operation per step.
type MetricSink struct {
	service  *gmetric.Service
	location string

	mu       sync.Mutex
	counters map[string]Counter
}

// NewMetricSink creates a sink registering its operations under location.
func NewMetricSink(service *gmetric.Service, location string) *MetricSink {
	return &MetricSink{
		service:  service,
		location: location,
		counters: make(map[string]Counter),
	}
}

func (m *MetricSink) Record(event Event) error {
	c := m.counter(event.Step)

	end := time.Now()
	onDone := c.Begin(end.Add(-event.Duration))
	if event.Err != nil {
		c.IncrementValue(OutcomeError)
	} else {
		c.IncrementValue(OutcomeSuccess)
	}
	onDone(end)
	return nil
}

func (m *MetricSink) counter(step string) Counter {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.counters[step]; ok {
		return c
	}

	name := "resolution." + step
	var c Counter
	if op := m.service.LookupOperation(name); op != nil {
		c = op
	} else {
		c = m.service.MultiOperationCounter(m.location, name, step+" performance", time.Microsecond, time.Minute, 2, provider.NewBasic())
	}

	m.counters[step] = c
	return c
}
