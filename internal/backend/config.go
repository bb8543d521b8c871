package backend

import (
	"net/http"
	"time"

	"github.com/angeloszaimis/healthpool/internal/probe"
)

// Config holds the per-backend health check tunables. Zero fields are
// filled from the pool defaults at registration.
type Config struct {
	HealthyAfter   int
	UnhealthyAfter int
	// RemoveAfter of 0 disables auto-removal.
	RemoveAfter   int
	CheckInterval time.Duration
	CheckTimeout  time.Duration
	IsHealthy     probe.Predicate
}

// WithDefaults returns c with every zero field taken from d.
func (c Config) WithDefaults(d Config) Config {
	if c.HealthyAfter <= 0 {
		c.HealthyAfter = d.HealthyAfter
	}
	if c.UnhealthyAfter <= 0 {
		c.UnhealthyAfter = d.UnhealthyAfter
	}
	if c.RemoveAfter <= 0 {
		c.RemoveAfter = d.RemoveAfter
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = d.CheckInterval
	}
	if c.CheckTimeout <= 0 {
		c.CheckTimeout = d.CheckTimeout
	}
	if c.IsHealthy == nil {
		c.IsHealthy = d.IsHealthy
	}
	return c
}

// Spec describes a backend to register.
type Spec struct {
	// Address identifies the backend in the registry. A missing scheme
	// defaults to http.
	Address string
	// Healthcheck is a path or URL resolved against the address.
	Healthcheck string
	Method      string
	Header      http.Header
	Body        []byte
	Config
}
