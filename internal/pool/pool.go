package pool

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid"
	pkgerrors "github.com/pkg/errors"

	"github.com/angeloszaimis/healthpool/internal/backend"
	"github.com/angeloszaimis/healthpool/internal/event"
	"github.com/angeloszaimis/healthpool/internal/probe"
)

var ErrClosed = errors.New("pool is closed")

// Pool owns the registered backends, indexed by address.
type Pool struct {
	opts      Options
	prober    Prober
	observers []func(*backend.Backend, probe.Result)
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mutex     sync.RWMutex
	all       []*backend.Backend
	byAddress map[string]*backend.Backend
	closed    bool

	events event.Bus[*backend.Backend]

	idMutex sync.Mutex
	entropy io.Reader
}

// New creates an empty pool. Nothing is probed until backends are added.
func New(opts Options, logger *slog.Logger, options ...Option) *Pool {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		opts:      opts.withDefaults(),
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		byAddress: make(map[string]*backend.Backend),
		entropy:   ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}

	for _, opt := range options {
		opt(p)
	}
	if p.prober == nil {
		p.prober = probe.New()
	}

	return p
}

// Defaults returns the resolved pool-wide options.
func (p *Pool) Defaults() Options {
	return p.opts
}

// AddAddress registers address with the pool defaults.
func (p *Pool) AddAddress(address string) (*backend.Backend, error) {
	return p.Add(backend.Spec{Address: address})
}

// Add registers a backend and schedules its first probe one check interval
// from now. It returns nil without an error when the address is already
// registered, and a *ConfigurationError when no health check can be
// resolved for it.
func (p *Pool) Add(spec backend.Spec) (*backend.Backend, error) {
	if _, ok := p.Get(spec.Address); ok {
		return nil, nil
	}

	target, req, err := p.resolve(spec)
	if err != nil {
		return nil, err
	}

	b := backend.New(p.newID(), spec.Address, target, req, spec.Config.WithDefaults(p.opts.Config))

	p.mutex.Lock()
	if p.closed {
		p.mutex.Unlock()
		return nil, ErrClosed
	}
	if _, ok := p.byAddress[spec.Address]; ok {
		p.mutex.Unlock()
		return nil, nil
	}
	p.byAddress[spec.Address] = b
	p.all = append(p.all, b)
	b.Start(p.ctx, p.check, p.logger)
	p.mutex.Unlock()

	cfg := b.Config()
	p.logger.Info("Backend added",
		slog.String("backend", b.Address()),
		slog.String("id", b.ID().String()),
		slog.String("healthcheck", req.URL.String()),
		slog.Duration("interval", cfg.CheckInterval),
		slog.Duration("timeout", cfg.CheckTimeout))

	return b, nil
}

// Remove unregisters the backend at address, stops its probes and emits
// remove on the backend and the pool.
func (p *Pool) Remove(address string) (*backend.Backend, bool) {
	return p.remove(address, nil)
}

// RemoveBackend is Remove for a backend handle. It is a no-op if b is no
// longer the backend registered under its address.
func (p *Pool) RemoveBackend(b *backend.Backend) (*backend.Backend, bool) {
	if b == nil {
		return nil, false
	}
	return p.remove(b.Address(), b)
}

func (p *Pool) remove(address string, want *backend.Backend) (*backend.Backend, bool) {
	p.mutex.Lock()
	b, ok := p.byAddress[address]
	if !ok || (want != nil && b != want) {
		p.mutex.Unlock()
		return nil, false
	}
	delete(p.byAddress, address)
	p.all = slices.DeleteFunc(p.all, func(x *backend.Backend) bool { return x == b })
	p.mutex.Unlock()

	if b.Detach() {
		p.events.Emit(event.Remove, b)
	}

	p.logger.Info("Backend removed",
		slog.String("backend", address),
		slog.String("id", b.ID().String()))

	return b, true
}

// Get returns the backend registered under address.
func (p *Pool) Get(address string) (*backend.Backend, bool) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	b, ok := p.byAddress[address]
	return b, ok
}

// All returns every registered backend in registration order.
func (p *Pool) All() []*backend.Backend {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return slices.Clone(p.all)
}

func (p *Pool) Len() int {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return len(p.all)
}

// GetByState returns the backends whose state matches name, ignoring
// case. Unknown names match nothing.
func (p *Pool) GetByState(name string) []*backend.Backend {
	state, err := backend.ParseState(name)
	if err != nil {
		return nil
	}

	var matched []*backend.Backend
	for _, b := range p.All() {
		if b.State() == state {
			matched = append(matched, b)
		}
	}
	return matched
}

func (p *Pool) GetHealthy() []*backend.Backend {
	return p.GetByState(backend.StateHealthy.String())
}

// GetHealthyAddresses returns the addresses healthy backends were
// registered with.
func (p *Pool) GetHealthyAddresses() []string {
	healthy := p.GetHealthy()
	addresses := make([]string, 0, len(healthy))
	for _, b := range healthy {
		addresses = append(addresses, b.Address())
	}
	return addresses
}

// On subscribes to healthy, unhealthy and remove events of every backend.
func (p *Pool) On(kind event.Kind, h event.Handler[*backend.Backend]) error {
	return p.events.On(kind, h)
}

// Close stops probing every backend and waits for in-flight probes. No
// events are emitted and later Add calls fail with ErrClosed.
func (p *Pool) Close() {
	p.mutex.Lock()
	if p.closed {
		p.mutex.Unlock()
		return
	}
	p.closed = true
	backends := slices.Clone(p.all)
	p.mutex.Unlock()

	p.cancel()
	for _, b := range backends {
		b.Stop()
	}
	for _, b := range backends {
		b.Wait()
	}
}

func (p *Pool) check(ctx context.Context, b *backend.Backend) {
	cfg := b.Config()
	res := p.prober.Probe(ctx, b.Request(), cfg.CheckTimeout, cfg.IsHealthy)

	// removed or closed while the probe was out
	if ctx.Err() != nil {
		return
	}

	for _, observe := range p.observers {
		observe(b, res)
	}

	if !res.Healthy {
		p.logger.Debug("Health check failed",
			slog.String("backend", b.Address()),
			slog.Int("status", res.StatusCode),
			slog.Bool("timeout", res.TimedOut),
			slog.Any("err", res.Err))
	}

	t, ok := b.Record(res.Healthy)
	if !ok {
		return
	}

	if kind, ok := t.Event(); ok {
		switch kind {
		case event.Healthy:
			p.logger.Info("Backend is healthy",
				slog.String("backend", b.Address()),
				slog.String("from", t.From.String()))
		case event.Unhealthy:
			p.logger.Warn("Backend is unhealthy",
				slog.String("backend", b.Address()),
				slog.Int("failures", cfg.UnhealthyAfter))
		}
		p.events.Emit(kind, b)
	}

	if t.Remove {
		p.logger.Warn("Backend reached removal threshold",
			slog.String("backend", b.Address()),
			slog.Int("failures", cfg.RemoveAfter))
		p.RemoveBackend(b)
	}
}

func (p *Pool) resolve(spec backend.Spec) (*url.URL, probe.Request, error) {
	if strings.TrimSpace(spec.Address) == "" {
		return nil, probe.Request{}, &ConfigurationError{Reason: "address is empty"}
	}

	raw := spec.Address
	if !hasHTTPScheme(raw) {
		raw = "http://" + raw
	}

	target, err := url.Parse(raw)
	if err != nil {
		return nil, probe.Request{}, &ConfigurationError{
			Address: spec.Address,
			Reason:  "invalid address",
			Err:     pkgerrors.Wrap(err, "parse address"),
		}
	}
	if target.Host == "" {
		return nil, probe.Request{}, &ConfigurationError{Address: spec.Address, Reason: "address has no host"}
	}

	healthcheck := spec.Healthcheck
	if healthcheck == "" {
		healthcheck = p.opts.Healthcheck
	}
	if healthcheck == "" {
		return nil, probe.Request{}, &ConfigurationError{
			Address: spec.Address,
			Reason:  "no healthcheck set on the backend or the pool",
		}
	}

	ref, err := url.Parse(healthcheck)
	if err != nil {
		return nil, probe.Request{}, &ConfigurationError{
			Address: spec.Address,
			Reason:  "invalid healthcheck",
			Err:     pkgerrors.Wrapf(err, "parse healthcheck %q", healthcheck),
		}
	}
	checkURL := target.ResolveReference(ref)

	header := spec.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	if header.Get("Host") == "" {
		header.Set("Host", checkURL.Host)
	}

	return target, probe.Request{
		URL:    checkURL,
		Method: spec.Method,
		Header: header,
		Body:   spec.Body,
	}, nil
}

func (p *Pool) newID() ulid.ULID {
	p.idMutex.Lock()
	defer p.idMutex.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), p.entropy)
}

func hasHTTPScheme(address string) bool {
	lower := strings.ToLower(address)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
