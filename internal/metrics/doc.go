// Package metrics collects health check metrics for the backend pool.
//
// It uses a channel-based event pipeline to asynchronously collect:
//   - Probe counts, failures and timeouts per backend
//   - Probe latency with percentile calculations (P50, P95, P99)
//   - Current state per backend and transition counts
//
// The collector runs in a dedicated goroutine so probe goroutines never block
// on bookkeeping. Events are sent with non-blocking semantics and dropped
// when the buffer is full. Everything is mirrored into a Prometheus registry.
//
// Example usage:
//
//	collector := metrics.NewCollector(1000, logger)
//	collector.Start(ctx)
//
//	p := pool.New(opts, logger, pool.WithProbeObserver(collector.ObserveProbe))
//	collector.Subscribe(p)
//
//	snapshot := collector.Snapshot()
//
// The package provides thread-safe metrics storage using sync.RWMutex and supports
// graceful shutdown with event draining to prevent data loss.
package metrics
