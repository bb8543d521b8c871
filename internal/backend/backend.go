package backend

import (
	"context"
	"log/slog"
	"net/url"
	"sync"

	"github.com/oklog/ulid"

	"github.com/angeloszaimis/healthpool/internal/event"
	"github.com/angeloszaimis/healthpool/internal/healthcheck"
	"github.com/angeloszaimis/healthpool/internal/probe"
)

// Backend is one monitored address with its health state.
type Backend struct {
	id      ulid.ULID
	address string
	target  *url.URL
	request probe.Request
	config  Config

	mutex    sync.Mutex
	state    State
	passed   int
	failed   int
	detached bool
	schedule *healthcheck.Scheduler

	events event.Bus[*Backend]
}

// Transition describes what a single probe outcome did to a backend.
type Transition struct {
	From   State
	To     State
	Remove bool
}

// Changed reports whether the state moved.
func (t Transition) Changed() bool {
	return t.From != t.To
}

// Event returns the event kind for a state change.
func (t Transition) Event() (event.Kind, bool) {
	if !t.Changed() {
		return "", false
	}
	switch t.To {
	case StateHealthy:
		return event.Healthy, true
	case StateUnhealthy:
		return event.Unhealthy, true
	default:
		return "", false
	}
}

// Status is a consistent snapshot of the mutable part of a backend.
type Status struct {
	State             State
	ConsecutivePassed int
	ConsecutiveFailed int
	InFlight          bool
}

// New creates a backend in the NEW state. cfg must already carry defaults.
func New(id ulid.ULID, address string, target *url.URL, request probe.Request, cfg Config) *Backend {
	return &Backend{
		id:      id,
		address: address,
		target:  target,
		request: request,
		config:  cfg,
		state:   StateNew,
	}
}

func (b *Backend) ID() ulid.ULID {
	return b.id
}

// Address returns the identifier the backend was registered with.
func (b *Backend) Address() string {
	return b.address
}

// Target returns the normalized backend URL.
func (b *Backend) Target() *url.URL {
	return b.target
}

// Request returns the resolved health check request.
func (b *Backend) Request() probe.Request {
	return b.request
}

func (b *Backend) Config() Config {
	return b.config
}

func (b *Backend) State() State {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.state
}

func (b *Backend) Status() Status {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	return Status{
		State:             b.state,
		ConsecutivePassed: b.passed,
		ConsecutiveFailed: b.failed,
		InFlight:          b.schedule != nil && b.schedule.InFlight(),
	}
}

// InFlight reports whether a probe is outstanding.
func (b *Backend) InFlight() bool {
	return b.Status().InFlight
}

// Detached reports whether the backend has left its registry.
func (b *Backend) Detached() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.detached
}

// On subscribes to this backend's own events.
func (b *Backend) On(kind event.Kind, h event.Handler[*Backend]) error {
	return b.events.On(kind, h)
}

// Record feeds one probe outcome into the state machine and emits the
// resulting healthy or unhealthy event on the backend. It returns false
// once the backend is detached, in which case nothing changes.
//
// Reaching RemoveAfter consecutive failures sets Transition.Remove and
// leaves the state untouched; removing the backend is up to the owner.
func (b *Backend) Record(healthy bool) (Transition, bool) {
	b.mutex.Lock()

	if b.detached {
		b.mutex.Unlock()
		return Transition{}, false
	}

	t := Transition{From: b.state, To: b.state}

	if healthy {
		b.failed = 0
		if b.state != StateHealthy {
			b.passed++
			if b.passed == b.config.HealthyAfter {
				b.state = StateHealthy
			}
		}
	} else {
		b.passed = 0
		b.failed++

		switch {
		case b.config.RemoveAfter > 0 && b.failed == b.config.RemoveAfter:
			t.Remove = true
		case b.state == StateHealthy && b.failed == b.config.UnhealthyAfter:
			b.state = StateUnhealthy
		}
	}

	t.To = b.state
	b.mutex.Unlock()

	if kind, ok := t.Event(); ok {
		b.events.Emit(kind, b)
	}

	return t, true
}

// Start begins scheduled probing. check runs once per firing with a
// context that is cancelled when the backend is detached.
func (b *Backend) Start(ctx context.Context, check func(ctx context.Context, b *Backend), logger *slog.Logger) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.detached || b.schedule != nil {
		return
	}

	b.schedule = healthcheck.Start(ctx, b.address, b.config.CheckInterval, func(ctx context.Context) {
		check(ctx, b)
	}, logger)
}

// Detach stops the schedule, marks the backend as removed and emits remove
// on the backend. Only the first call has any effect.
func (b *Backend) Detach() bool {
	b.mutex.Lock()
	if b.detached {
		b.mutex.Unlock()
		return false
	}
	b.detached = true
	if b.schedule != nil {
		b.schedule.Stop()
	}
	b.mutex.Unlock()

	b.events.Emit(event.Remove, b)
	return true
}

// Wait blocks until a detached backend's schedule and probe have finished.
func (b *Backend) Wait() {
	b.mutex.Lock()
	s := b.schedule
	b.mutex.Unlock()

	if s != nil {
		s.Wait()
	}
}

// Stop ends scheduled probing without detaching or emitting anything.
func (b *Backend) Stop() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.detached = true
	if b.schedule != nil {
		b.schedule.Stop()
	}
}
