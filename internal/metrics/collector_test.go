package metrics_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"time"

	"github.com/oklog/ulid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angeloszaimis/healthpool/internal/backend"
	"github.com/angeloszaimis/healthpool/internal/event"
	"github.com/angeloszaimis/healthpool/internal/metrics"
	"github.com/angeloszaimis/healthpool/internal/probe"
)

func newBackend(address string) *backend.Backend {
	target := &url.URL{Scheme: "http", Host: address}
	return backend.New(ulid.ULID{}, address, target, probe.Request{URL: target}, backend.Config{})
}

func seriesCount(g prometheus.Gatherer, name string) int {
	families, err := g.Gather()
	Expect(err).NotTo(HaveOccurred())

	for _, f := range families {
		if f.GetName() == name {
			return len(f.GetMetric())
		}
	}
	return 0
}

func gaugeValue(g prometheus.Gatherer, name, state string) float64 {
	families, err := g.Gather()
	Expect(err).NotTo(HaveOccurred())

	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "state" && l.GetValue() == state {
					return m.GetGauge().GetValue()
				}
			}
		}
	}
	return -1
}

var _ = Describe("Collector", func() {
	var (
		collector *metrics.Collector
		ctx       context.Context
		cancel    context.CancelFunc
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		collector = metrics.NewCollector(100, slog.New(slog.DiscardHandler))
	})

	AfterEach(func() {
		cancel()
	})

	Describe("event processing", func() {
		It("should record completed probes", func() {
			collector.Start(ctx)

			collector.EventChannel() <- metrics.MetricEvent{
				Type:      metrics.EventProbeCompleted,
				Timestamp: time.Now(),
				Backend:   "10.0.0.1:8080",
				Duration:  20 * time.Millisecond,
				Healthy:   true,
			}

			Eventually(func() int64 {
				return collector.Snapshot().Backends["10.0.0.1:8080"].Probes
			}).Should(Equal(int64(1)))
			Expect(collector.Snapshot().Backends["10.0.0.1:8080"].AvgLatency).To(Equal(20 * time.Millisecond))
		})

		It("should record state changes", func() {
			collector.Start(ctx)

			collector.EventChannel() <- metrics.MetricEvent{
				Type:    metrics.EventStateChanged,
				Backend: "10.0.0.1:8080",
				State:   "HEALTHY",
			}

			Eventually(func() string {
				return collector.Snapshot().Backends["10.0.0.1:8080"].State
			}).Should(Equal("HEALTHY"))
			Expect(collector.Snapshot().Transitions).To(HaveKeyWithValue("healthy", int64(1)))
		})

		It("should drain queued events on context cancellation", func() {
			for i := 0; i < 5; i++ {
				collector.Emit(metrics.MetricEvent{
					Type:    metrics.EventProbeCompleted,
					Backend: "10.0.0.1:8080",
					Healthy: true,
				})
			}

			cancel()
			collector.Start(ctx)

			Eventually(func() int64 {
				return collector.Snapshot().TotalProbes
			}).Should(Equal(int64(5)))
		})
	})

	Describe("Emit", func() {
		It("should drop events when the buffer is full", func() {
			small := metrics.NewCollector(1, slog.New(slog.DiscardHandler))
			done := make(chan struct{})

			go func() {
				defer close(done)
				small.Emit(metrics.MetricEvent{Type: metrics.EventProbeCompleted, Backend: "a"})
				small.Emit(metrics.MetricEvent{Type: metrics.EventProbeCompleted, Backend: "b"})
			}()

			Eventually(done).Should(BeClosed())
		})
	})

	Describe("ObserveProbe", func() {
		It("should translate probe results into events", func() {
			collector.Start(ctx)

			b := newBackend("10.0.0.1:8080")
			collector.ObserveProbe(b, probe.Result{Duration: time.Second, TimedOut: true})

			Eventually(func() int64 {
				return collector.Snapshot().Backends["10.0.0.1:8080"].Timeouts
			}).Should(Equal(int64(1)))

			Eventually(func() int {
				return seriesCount(collector.Prometheus().Registry(), "healthpool_probe_total")
			}).Should(Equal(1))
		})
	})

	Describe("Subscribe", func() {
		var (
			bus *event.Bus[*backend.Backend]
			b   *backend.Backend
		)

		BeforeEach(func() {
			bus = &event.Bus[*backend.Backend]{}
			b = newBackend("10.0.0.1:8080")
			Expect(collector.Subscribe(bus)).To(Succeed())
			collector.Start(ctx)
		})

		It("should subscribe to every event kind", func() {
			for _, kind := range event.Kinds() {
				Expect(bus.Count(kind)).To(Equal(1))
			}
		})

		It("should track transitions emitted by the source", func() {
			bus.Emit(event.Healthy, b)
			bus.Emit(event.Unhealthy, b)

			Eventually(func() string {
				return collector.Snapshot().Backends["10.0.0.1:8080"].State
			}).Should(Equal("UNHEALTHY"))

			Eventually(func() float64 {
				return gaugeValue(collector.Prometheus().Registry(), "healthpool_backends", "UNHEALTHY")
			}).Should(Equal(1.0))
		})

		It("should forget removed backends", func() {
			collector.ObserveProbe(b, probe.Result{Healthy: true})
			bus.Emit(event.Remove, b)

			Eventually(func() map[string]int64 {
				return collector.Snapshot().Transitions
			}).Should(HaveKeyWithValue("remove", int64(1)))
			Expect(collector.Snapshot().Backends).To(BeEmpty())

			Expect(seriesCount(collector.Prometheus().Registry(), "healthpool_probe_total")).To(BeZero())
		})
	})

	Describe("Handler", func() {
		It("should serve the snapshot as JSON", func() {
			collector.Start(ctx)
			collector.Emit(metrics.MetricEvent{Type: metrics.EventProbeCompleted, Backend: "10.0.0.1:8080", Healthy: true})
			Eventually(func() int64 { return collector.Snapshot().TotalProbes }).Should(Equal(int64(1)))

			rec := httptest.NewRecorder()
			collector.Handler()(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Content-Type")).To(Equal("application/json"))

			var snap metrics.Snapshot
			Expect(json.NewDecoder(rec.Body).Decode(&snap)).To(Succeed())
			Expect(snap.TotalProbes).To(Equal(int64(1)))
		})
	})

	Describe("Prometheus", func() {
		It("should expose metrics in the text format", func() {
			collector.Start(ctx)
			collector.Emit(metrics.MetricEvent{Type: metrics.EventProbeCompleted, Backend: "10.0.0.1:8080"})
			Eventually(func() int64 { return collector.Snapshot().TotalProbes }).Should(Equal(int64(1)))

			server := httptest.NewServer(collector.Prometheus())
			defer server.Close()

			resp, err := http.Get(server.URL)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring(`healthpool_probe_total{backend="10.0.0.1:8080",outcome="fail"} 1`))
			Expect(string(body)).To(ContainSubstring("healthpool_backends"))
		})
	})
})
