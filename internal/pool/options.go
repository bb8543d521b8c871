package pool

import (
	"context"
	"time"

	"github.com/angeloszaimis/healthpool/internal/backend"
	"github.com/angeloszaimis/healthpool/internal/probe"
)

const (
	DefaultHealthyAfter   = 3
	DefaultUnhealthyAfter = 1
	DefaultCheckInterval  = 10 * time.Second
	DefaultCheckTimeout   = time.Second
)

// Options are the pool-wide defaults. Every field can be overridden per
// backend in backend.Spec; zero values fall back to the package defaults.
type Options struct {
	// Healthcheck is the path or URL probed on backends that do not
	// set their own.
	Healthcheck string
	backend.Config
}

func (o Options) withDefaults() Options {
	o.Config = o.Config.WithDefaults(backend.Config{
		HealthyAfter:   DefaultHealthyAfter,
		UnhealthyAfter: DefaultUnhealthyAfter,
		CheckInterval:  DefaultCheckInterval,
		CheckTimeout:   DefaultCheckTimeout,
		IsHealthy:      probe.StatusOK,
	})
	return o
}

// Prober runs a single health check.
type Prober interface {
	Probe(ctx context.Context, req probe.Request, timeout time.Duration, isHealthy probe.Predicate) probe.Result
}

type Option func(*Pool)

// WithProber replaces the HTTP prober.
func WithProber(p Prober) Option {
	return func(pool *Pool) {
		pool.prober = p
	}
}

// WithProbeObserver registers fn to see every probe result of a backend
// that is still registered, before it is applied.
func WithProbeObserver(fn func(b *backend.Backend, res probe.Result)) Option {
	return func(pool *Pool) {
		pool.observers = append(pool.observers, fn)
	}
}
