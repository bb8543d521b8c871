package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/angeloszaimis/healthpool/internal/backend"
	"github.com/angeloszaimis/healthpool/internal/pool"
	"github.com/angeloszaimis/healthpool/internal/probe"
)

const maxRequestBody = 1 << 20

// Registry is the part of a pool the admin API needs.
type Registry interface {
	Add(spec backend.Spec) (*backend.Backend, error)
	Remove(address string) (*backend.Backend, bool)
	All() []*backend.Backend
	GetByState(name string) []*backend.Backend
	GetHealthyAddresses() []string
}

type AdminHandler struct {
	logger   *slog.Logger
	registry Registry
}

// BackendView is the JSON representation of a registered backend.
type BackendView struct {
	ID                string `json:"id"`
	Address           string `json:"address"`
	Target            string `json:"target"`
	Healthcheck       string `json:"healthcheck"`
	State             string `json:"state"`
	ConsecutivePassed int    `json:"consecutive_passed"`
	ConsecutiveFailed int    `json:"consecutive_failed"`
	InFlight          bool   `json:"in_flight"`
}

// RegisterRequest is the body of POST /backends.
type RegisterRequest struct {
	Address        string            `json:"address"`
	Healthcheck    string            `json:"healthcheck"`
	Method         string            `json:"method"`
	Headers        map[string]string `json:"headers"`
	Body           string            `json:"body"`
	HealthyAfter   int               `json:"healthy_after"`
	UnhealthyAfter int               `json:"unhealthy_after"`
	RemoveAfter    int               `json:"remove_after"`
	CheckInterval  string            `json:"check_interval"`
	CheckTimeout   string            `json:"check_timeout"`
	HealthyStatus  []int             `json:"healthy_status"`
	BodyContains   string            `json:"body_contains"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewAdminHandler(logger *slog.Logger, registry Registry) *AdminHandler {
	return &AdminHandler{
		logger:   logger,
		registry: registry,
	}
}

// ListBackends serves GET /backends, optionally filtered by ?state=.
func (h *AdminHandler) ListBackends(w http.ResponseWriter, r *http.Request) {
	backends := h.registry.All()

	if name := r.URL.Query().Get("state"); name != "" {
		if _, err := backend.ParseState(name); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		backends = h.registry.GetByState(name)
	}

	views := make([]BackendView, 0, len(backends))
	for _, b := range backends {
		views = append(views, NewBackendView(b))
	}
	writeJSON(w, http.StatusOK, views)
}

// ListHealthy serves GET /backends/healthy.
func (h *AdminHandler) ListHealthy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.GetHealthyAddresses())
}

// Register serves POST /backends.
func (h *AdminHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	spec, err := req.Spec()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	b, err := h.registry.Add(spec)
	var cfgErr *pool.ConfigurationError
	switch {
	case errors.As(err, &cfgErr):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, pool.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		h.logger.Error("Failed to register backend",
			slog.String("backend", req.Address),
			slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	case b == nil:
		writeError(w, http.StatusConflict, "backend already registered")
		return
	}

	h.logger.Info("Backend registered via admin API",
		slog.String("backend", b.Address()),
		slog.String("from", r.RemoteAddr))
	writeJSON(w, http.StatusCreated, NewBackendView(b))
}

// Deregister serves DELETE /backends?address=.
func (h *AdminHandler) Deregister(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if address == "" {
		writeError(w, http.StatusBadRequest, "address query parameter is required")
		return
	}

	b, ok := h.registry.Remove(address)
	if !ok {
		writeError(w, http.StatusNotFound, "backend not found")
		return
	}

	h.logger.Info("Backend removed via admin API",
		slog.String("backend", b.Address()),
		slog.String("from", r.RemoteAddr))
	writeJSON(w, http.StatusOK, NewBackendView(b))
}

// Spec converts the request into a registration spec. Zero tunables are
// left for the pool to fill in.
func (req RegisterRequest) Spec() (backend.Spec, error) {
	interval, err := parseDuration("check_interval", req.CheckInterval)
	if err != nil {
		return backend.Spec{}, err
	}
	timeout, err := parseDuration("check_timeout", req.CheckTimeout)
	if err != nil {
		return backend.Spec{}, err
	}

	var header http.Header
	if len(req.Headers) > 0 {
		header = make(http.Header, len(req.Headers))
		for k, v := range req.Headers {
			header.Set(k, v)
		}
	}

	var body []byte
	if req.Body != "" {
		body = []byte(req.Body)
	}

	return backend.Spec{
		Address:     req.Address,
		Healthcheck: req.Healthcheck,
		Method:      req.Method,
		Header:      header,
		Body:        body,
		Config: backend.Config{
			HealthyAfter:   req.HealthyAfter,
			UnhealthyAfter: req.UnhealthyAfter,
			RemoveAfter:    req.RemoveAfter,
			CheckInterval:  interval,
			CheckTimeout:   timeout,
			IsHealthy:      probe.Match(req.HealthyStatus, req.BodyContains),
		},
	}, nil
}

func NewBackendView(b *backend.Backend) BackendView {
	status := b.Status()
	return BackendView{
		ID:                b.ID().String(),
		Address:           b.Address(),
		Target:            urlString(b.Target()),
		Healthcheck:       urlString(b.Request().URL),
		State:             status.State.String(),
		ConsecutivePassed: status.ConsecutivePassed,
		ConsecutiveFailed: status.ConsecutiveFailed,
		InFlight:          status.InFlight,
	}
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, errors.New(field + ": must be a valid positive duration")
	}
	return d, nil
}

func urlString(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.String()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
