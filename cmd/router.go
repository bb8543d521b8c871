package main

import (
	"net/http"

	"github.com/angeloszaimis/healthpool/internal/handler"
	"github.com/angeloszaimis/healthpool/internal/metrics"
)

func setupRouter(admin *handler.AdminHandler, collector *metrics.Collector) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /backends", admin.ListBackends)
	mux.HandleFunc("GET /backends/healthy", admin.ListHealthy)
	mux.HandleFunc("POST /backends", admin.Register)
	mux.HandleFunc("DELETE /backends", admin.Deregister)

	mux.Handle("GET /metrics", collector.Prometheus())
	mux.HandleFunc("GET /stats", collector.Handler())

	return mux
}
