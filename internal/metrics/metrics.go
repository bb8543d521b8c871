package metrics

import (
	"sort"
	"sync"
	"time"
)

const maxSamples = 1000

type Metrics struct {
	mutex       sync.RWMutex
	probes      map[string]int64
	failures    map[string]int64
	timeouts    map[string]int64
	latencies   map[string][]time.Duration
	states      map[string]string
	transitions map[string]int64
	startTime   time.Time
}

type Snapshot struct {
	TotalProbes int64                     `json:"total_probes"`
	Uptime      time.Duration             `json:"uptime"`
	Backends    map[string]BackendMetrics `json:"backends"`
	Transitions map[string]int64          `json:"transitions"`
}

type BackendMetrics struct {
	State      string        `json:"state"`
	Probes     int64         `json:"probes"`
	Failures   int64         `json:"failures"`
	Timeouts   int64         `json:"timeouts"`
	AvgLatency time.Duration `json:"avg_latency"`
	P50Latency time.Duration `json:"p50_latency"`
	P95Latency time.Duration `json:"p95_latency"`
	P99Latency time.Duration `json:"p99_latency"`
}

func (m *Metrics) RecordProbe(backend string, duration time.Duration, healthy, timedOut bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.probes[backend]++
	if !healthy {
		m.failures[backend]++
	}
	if timedOut {
		m.timeouts[backend]++
	}

	m.latencies[backend] = append(m.latencies[backend], duration)
	if len(m.latencies[backend]) > maxSamples {
		m.latencies[backend] = m.latencies[backend][1:]
	}

	if _, ok := m.states[backend]; !ok {
		m.states[backend] = "NEW"
	}
}

func (m *Metrics) UpdateState(backend, state, transition string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.states[backend] = state
	m.transitions[transition]++
}

// RemoveBackend forgets everything about backend except the transition
// count.
func (m *Metrics) RemoveBackend(backend string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	delete(m.probes, backend)
	delete(m.failures, backend)
	delete(m.timeouts, backend)
	delete(m.latencies, backend)
	delete(m.states, backend)
	m.transitions["remove"]++
}

// StateCounts returns how many known backends are in each state.
func (m *Metrics) StateCounts() map[string]int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	counts := make(map[string]int)
	for _, s := range m.states {
		counts[s]++
	}
	return counts
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Uptime:      time.Since(m.startTime),
		Backends:    make(map[string]BackendMetrics),
		Transitions: make(map[string]int64, len(m.transitions)),
	}

	for k, v := range m.transitions {
		snap.Transitions[k] = v
	}

	for backend, state := range m.states {
		snap.TotalProbes += m.probes[backend]

		bm := BackendMetrics{
			State:    state,
			Probes:   m.probes[backend],
			Failures: m.failures[backend],
			Timeouts: m.timeouts[backend],
		}

		durations := m.latencies[backend]
		if len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			bm.AvgLatency = average(sorted)
			bm.P50Latency = percentile(sorted, 0.50)
			bm.P95Latency = percentile(sorted, 0.95)
			bm.P99Latency = percentile(sorted, 0.99)
		}

		snap.Backends[backend] = bm
	}

	return snap
}

func NewMetrics() *Metrics {
	return &Metrics{
		probes:      make(map[string]int64),
		failures:    make(map[string]int64),
		timeouts:    make(map[string]int64),
		latencies:   make(map[string][]time.Duration),
		states:      make(map[string]string),
		transitions: make(map[string]int64),
		startTime:   time.Now(),
	}
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
