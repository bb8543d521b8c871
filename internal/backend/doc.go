// Package backend models one monitored backend: its address, the resolved
// health check request, the hysteresis counters and the NEW, HEALTHY,
// UNHEALTHY state machine driven by probe outcomes.
package backend
