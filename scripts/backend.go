// Backend is a demo HTTP server for exercising the health pool by hand.
// Its /health endpoint fails at a configurable rate and can be forced
// down with POST /toggle.
//
// Usage:
//
//	go run scripts/backend.go -port 8081 -fail-rate 0.2 -latency 50ms
//
// Register it with the pool through the admin API:
//
//	curl -X POST localhost:8080/backends -d '{"address":"localhost:8081","healthcheck":"/health"}'
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"sync/atomic"
	"time"
)

type healthResponse struct {
	Status string `json:"status"`
	Port   int    `json:"port"`
}

func main() {
	port := flag.Int("port", 8081, "port to listen on")
	failRate := flag.Float64("fail-rate", 0, "fraction of health checks answered with 503")
	latency := flag.Duration("latency", 0, "delay before answering a health check")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, nil)).With(slog.Int("port", *port))

	var forcedDown atomic.Bool

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if *latency > 0 {
			time.Sleep(*latency)
		}

		resp := healthResponse{Status: "up", Port: *port}
		status := http.StatusOK
		if forcedDown.Load() || rand.Float64() < *failRate {
			resp.Status = "down"
			status = http.StatusServiceUnavailable
		}

		log.Info("health check",
			slog.String("method", r.Method),
			slog.String("from", r.RemoteAddr),
			slog.Int("status", status))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	})

	mux.HandleFunc("POST /toggle", func(w http.ResponseWriter, r *http.Request) {
		down := !forcedDown.Load()
		forcedDown.Store(down)
		log.Info("toggled", slog.Bool("forced_down", down))
		fmt.Fprintf(w, "forced_down=%t\n", down)
	})

	addr := fmt.Sprintf(":%d", *port)
	log.Info("starting backend", slog.String("address", addr),
		slog.Float64("fail_rate", *failRate),
		slog.Duration("latency", *latency))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("server failed", slog.Any("err", err))
		os.Exit(1)
	}
}
