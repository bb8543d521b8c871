package probe

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultMaxBodySize = 64 << 10

var ErrTimeout = errors.New("health check timed out")

// Doer sends a single HTTP request.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Result is the outcome of one probe attempt.
type Result struct {
	Healthy    bool
	StatusCode int
	Duration   time.Duration
	TimedOut   bool
	Err        error
}

// Prober sends health check requests using a client chosen by URL scheme.
type Prober struct {
	clients     map[string]Doer
	maxBodySize int64
}

type Option func(*Prober)

// WithClient registers the client used for URLs with the given scheme.
func WithClient(scheme string, client Doer) Option {
	return func(p *Prober) {
		p.clients[scheme] = client
	}
}

// WithMaxBodySize limits how much of the response body is read.
func WithMaxBodySize(n int64) Option {
	return func(p *Prober) {
		p.maxBodySize = n
	}
}

// New creates a Prober with plain http and https clients. Redirects are not
// followed so the predicate sees the backend's own answer.
func New(opts ...Option) *Prober {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	tlsTransport := http.DefaultTransport.(*http.Transport).Clone()
	tlsTransport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}

	noRedirect := func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	p := &Prober{
		clients: map[string]Doer{
			"http":  &http.Client{Transport: transport, CheckRedirect: noRedirect},
			"https": &http.Client{Transport: tlsTransport, CheckRedirect: noRedirect},
		},
		maxBodySize: defaultMaxBodySize,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Probe sends req and waits at most timeout for isHealthy to classify the
// response. Exactly one Result is returned per call: if the deadline passes
// first the request is cancelled and its eventual outcome discarded.
func (p *Prober) Probe(ctx context.Context, req Request, timeout time.Duration, isHealthy Predicate) Result {
	if isHealthy == nil {
		isHealthy = StatusOK
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// buffered so a result losing the race never blocks its sender
	done := make(chan Result, 1)
	go func() {
		done <- p.send(ctx, req, isHealthy)
	}()

	select {
	case res := <-done:
		res.Duration = time.Since(start)
		return res
	case <-ctx.Done():
		res := Result{Duration: time.Since(start), Err: ctx.Err()}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			res.TimedOut = true
			res.Err = ErrTimeout
		}
		return res
	}
}

func (p *Prober) send(ctx context.Context, req Request, isHealthy Predicate) Result {
	if req.URL == nil {
		return Result{Err: errors.New("health check URL is not set")}
	}

	client, ok := p.clients[req.URL.Scheme]
	if !ok {
		return Result{Err: fmt.Errorf("no client for scheme %q", req.URL.Scheme)}
	}

	httpReq, err := req.build(ctx)
	if err != nil {
		return Result{Err: err}
	}

	res, err := client.Do(httpReq)
	if err != nil {
		return Result{Err: err}
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, p.maxBodySize))
	if err != nil {
		return Result{StatusCode: res.StatusCode, Err: err}
	}
	// let the transport reuse the connection
	_, _ = io.Copy(io.Discard, res.Body)

	healthy := isHealthy(&Response{
		StatusCode: res.StatusCode,
		Header:     res.Header,
		Body:       body,
	})

	result := Result{Healthy: healthy, StatusCode: res.StatusCode}
	if !healthy {
		result.Err = fmt.Errorf("unhealthy response: status %d", res.StatusCode)
	}
	return result
}
