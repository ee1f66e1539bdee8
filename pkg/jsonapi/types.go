// Package jsonapi calls HTTP endpoints that answer with JSON and turns every
// non-conforming answer into a typed error carrying a snapshot of the raw
// response.
package jsonapi

import (
	"encoding/json"
	"time"
)

// Request describes one outbound call. It is never retried by this package.
type Request struct {
	Method  string            `json:"method" yaml:"method"`
	URL     string            `json:"url" yaml:"url"`
	Query   map[string]string `json:"query,omitempty" yaml:"query"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers"`
	// Body is sent JSON-encoded when non-nil.
	Body any `json:"body,omitempty" yaml:"body"`
	// Timeout bounds the call on top of the caller's context. Zero keeps the
	// transport default.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout"`
	// AllowErrorStatus parses JSON bodies of non-2xx responses instead of
	// failing with KindHTTP.
	AllowErrorStatus bool `json:"allow_error_status,omitempty" yaml:"allow_error_status"`
}

// Details is a snapshot of the raw HTTP exchange.
// Network fields are only set when no response arrived.
type Details struct {
	NetworkError string `json:"network_error,omitempty"`
	Errno        int    `json:"errno,omitempty"`
	HTTPStatus   int    `json:"http_status,omitempty"`
	HTTPReason   string `json:"http_reason,omitempty"`
	ContentType  string `json:"content_type,omitempty"`
	Bytes        []byte `json:"-"`
	// Text is Bytes decoded with the response charset. Empty when Bytes
	// cannot be decoded.
	Text string `json:"text,omitempty"`
}

// Result is the success value of a call.
type Result struct {
	JSON    any     `json:"json"`
	Details Details `json:"details"`
}

// Decode unmarshals the response body into v.
func (r Result) Decode(v any) error {
	return json.Unmarshal([]byte(r.Details.Text), v)
}
