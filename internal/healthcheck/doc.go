// Package healthcheck schedules periodic health checks. Each backend owns one
// Scheduler that fires its check at a fixed interval until stopped, with at
// most one check in flight at a time.
package healthcheck
