package probe

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
)

// Request is a fully resolved health check request.
type Request struct {
	URL    *url.URL
	Method string
	Header http.Header
	Body   []byte
}

// Response is what a Predicate gets to look at. Body holds at most the
// prober's body limit.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r Request) method() string {
	if r.Method != "" {
		return r.Method
	}
	if len(r.Body) > 0 {
		return http.MethodPost
	}
	return http.MethodGet
}

func (r Request) build(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if len(r.Body) > 0 {
		body = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, r.method(), r.URL.String(), body)
	if err != nil {
		return nil, err
	}

	for k, vs := range r.Header {
		if http.CanonicalHeaderKey(k) == "Host" {
			continue
		}
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	// net/http takes the host from req.Host, not the header map
	if host := r.Header.Get("Host"); host != "" {
		req.Host = host
	}

	return req, nil
}
