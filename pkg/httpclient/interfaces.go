package httpclient

import (
	"context"
	"net/http"
)

// Request describes a single outbound HTTP call.
type Request struct {
	Method  string
	URL     string
	Query   map[string]string
	Headers map[string]string
	// Body is JSON-encoded by the transport when non-nil.
	Body any
}

// Response is a minimal HTTP response contract. Body is fully read.
type Response interface {
	Body() []byte
	StatusCode() int
	Reason() string
	Header() http.Header
}

// Client abstracts HTTP calls so callers can inject mocks or different transports.
type Client interface {
	Do(ctx context.Context, req Request) (Response, error)
	Get(ctx context.Context, url string, headers map[string]string) (Response, error)
}
