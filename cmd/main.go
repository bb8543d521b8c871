package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/angeloszaimis/healthpool/config"
	"github.com/angeloszaimis/healthpool/internal/backend"
	"github.com/angeloszaimis/healthpool/internal/handler"
	"github.com/angeloszaimis/healthpool/internal/httpserver"
	"github.com/angeloszaimis/healthpool/internal/metrics"
	"github.com/angeloszaimis/healthpool/internal/pool"
	"github.com/angeloszaimis/healthpool/internal/probe"
	"github.com/angeloszaimis/healthpool/pkg/logger"
)

const metricsBufferSize = 1024

var errNoBackends = errors.New("none of the configured backends could be registered")

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	collector := metrics.NewCollector(metricsBufferSize, log)

	p := pool.New(poolOptions(cfg), log, pool.WithProbeObserver(collector.ObserveProbe))
	defer p.Close()

	if err := collector.Subscribe(p); err != nil {
		log.Error("Failed to subscribe metrics collector", slog.Any("err", err))
		os.Exit(1)
	}

	if _, err := initializeBackends(p, cfg, log); err != nil {
		log.Error("Failed to initialize backends", slog.Any("err", err))
		os.Exit(1)
	}

	admin := handler.NewAdminHandler(log, p)

	srv, err := httpserver.New(cfg.Server.Address, setupRouter(admin, collector), httpserver.WithLogger(log))
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		collector.Start(gctx)
		<-gctx.Done()
		return nil
	})
	g.Go(func() error {
		return srv.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		log.Error("Admin server failed", slog.Any("err", err))
		p.Close()
		os.Exit(1)
	}

	log.Info("Shutting down gracefully...")
}

// poolOptions maps the pool section onto pool defaults. Zero values are
// left for the pool to fill in.
func poolOptions(cfg *config.Config) pool.Options {
	return pool.Options{
		Healthcheck: cfg.Pool.Healthcheck,
		Config:      checkConfig(cfg.Pool.CheckConfig),
	}
}

func checkConfig(cc config.CheckConfig) backend.Config {
	return backend.Config{
		HealthyAfter:   cc.HealthyAfter,
		UnhealthyAfter: cc.UnhealthyAfter,
		RemoveAfter:    cc.RemoveAfter,
		CheckInterval:  config.ParseDuration(cc.CheckInterval),
		CheckTimeout:   config.ParseDuration(cc.CheckTimeout),
		IsHealthy:      probe.Match(cc.HealthyStatus, cc.BodyContains),
	}
}

func backendSpec(bc config.BackendConfig) backend.Spec {
	var header http.Header
	if len(bc.Headers) > 0 {
		header = make(http.Header, len(bc.Headers))
		for k, v := range bc.Headers {
			header.Set(k, v)
		}
	}

	var body []byte
	if bc.Body != "" {
		body = []byte(bc.Body)
	}

	return backend.Spec{
		Address:     bc.Address,
		Healthcheck: bc.Healthcheck,
		Method:      bc.Method,
		Header:      header,
		Body:        body,
		Config:      checkConfig(bc.CheckConfig),
	}
}

// initializeBackends registers the configured backends. Entries that fail
// are logged and skipped; it only fails when backends were configured and
// none could be registered.
func initializeBackends(p *pool.Pool, cfg *config.Config, log *slog.Logger) ([]*backend.Backend, error) {
	var backends []*backend.Backend

	for _, bc := range cfg.Backends {
		b, err := p.Add(backendSpec(bc))
		if err != nil {
			log.Error("Failed to register backend",
				slog.String("backend", bc.Address),
				slog.String("error", err.Error()))
			continue
		}
		if b == nil {
			log.Warn("Duplicate backend in config, ignoring", slog.String("backend", bc.Address))
			continue
		}
		backends = append(backends, b)
	}

	if len(cfg.Backends) > 0 && len(backends) == 0 {
		return nil, errNoBackends
	}

	return backends, nil
}
