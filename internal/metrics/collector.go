package metrics

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/angeloszaimis/healthpool/internal/backend"
	"github.com/angeloszaimis/healthpool/internal/event"
	"github.com/angeloszaimis/healthpool/internal/probe"
)

type EventType string

const (
	EventProbeCompleted EventType = "probe_completed"
	EventStateChanged   EventType = "state_changed"
	EventBackendRemoved EventType = "backend_removed"
)

type MetricEvent struct {
	Type      EventType
	Timestamp time.Time
	Backend   string
	Duration  time.Duration
	Healthy   bool
	TimedOut  bool
	State     string
}

// EventSource is anything that re-emits backend transitions, e.g. a pool.
type EventSource interface {
	On(kind event.Kind, h event.Handler[*backend.Backend]) error
}

type Collector struct {
	eventCh    chan MetricEvent
	metrics    *Metrics
	prometheus *Prometheus
	logger     *slog.Logger
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh:    make(chan MetricEvent, bufferSize),
		metrics:    NewMetrics(),
		prometheus: NewPrometheus(),
		logger:     logger,
	}
}

func (c *Collector) EventChannel() chan<- MetricEvent {
	return c.eventCh
}

// Emit queues event without blocking. It is dropped if the buffer is full.
func (c *Collector) Emit(event MetricEvent) {
	select {
	case c.eventCh <- event:
	default:
		c.logger.Debug("Metrics buffer full, dropping event",
			slog.String("type", string(event.Type)),
			slog.String("backend", event.Backend))
	}
}

// ObserveProbe records a probe result. Its signature matches
// pool.WithProbeObserver.
func (c *Collector) ObserveProbe(b *backend.Backend, res probe.Result) {
	c.Emit(MetricEvent{
		Type:      EventProbeCompleted,
		Timestamp: time.Now(),
		Backend:   b.Address(),
		Duration:  res.Duration,
		Healthy:   res.Healthy,
		TimedOut:  res.TimedOut,
	})
}

// Subscribe feeds transitions from src into the collector.
func (c *Collector) Subscribe(src EventSource) error {
	for _, kind := range []event.Kind{event.Healthy, event.Unhealthy} {
		state := strings.ToUpper(string(kind))
		if err := src.On(kind, func(b *backend.Backend) {
			c.Emit(MetricEvent{
				Type:      EventStateChanged,
				Timestamp: time.Now(),
				Backend:   b.Address(),
				State:     state,
			})
		}); err != nil {
			return err
		}
	}

	return src.On(event.Remove, func(b *backend.Backend) {
		c.Emit(MetricEvent{
			Type:      EventBackendRemoved,
			Timestamp: time.Now(),
			Backend:   b.Address(),
		})
	})
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	switch event.Type {
	case EventProbeCompleted:
		c.metrics.RecordProbe(event.Backend, event.Duration, event.Healthy, event.TimedOut)
		c.prometheus.observeProbe(event)

	case EventStateChanged:
		c.metrics.UpdateState(event.Backend, event.State, strings.ToLower(event.State))
		c.prometheus.observeTransition(strings.ToLower(event.State))

	case EventBackendRemoved:
		c.metrics.RemoveBackend(event.Backend)
		c.prometheus.observeTransition("remove")
		c.prometheus.forget(event.Backend)
	}

	c.prometheus.setStateCounts(c.metrics.StateCounts())
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot() Snapshot {
	return c.metrics.Snapshot()
}

func (c *Collector) Prometheus() *Prometheus {
	return c.prometheus
}
