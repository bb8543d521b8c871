// Package pool implements the backend registry a router consults to decide
// which addresses may receive traffic.
//
// Every registered backend is probed on its own schedule and moves between
// NEW, HEALTHY and UNHEALTHY as consecutive outcomes cross the configured
// thresholds. Transitions are re-emitted on the pool:
//
//	p := pool.New(pool.Options{Healthcheck: "/health"}, logger)
//	defer p.Close()
//
//	p.On(event.Healthy, func(b *backend.Backend) { router.Enable(b.Address()) })
//	p.On(event.Unhealthy, func(b *backend.Backend) { router.Disable(b.Address()) })
//	p.On(event.Remove, func(b *backend.Backend) { router.Disable(b.Address()) })
//
//	if _, err := p.AddAddress("10.0.0.7:8080"); err != nil {
//	    // *pool.ConfigurationError
//	}
package pool
