package jsonapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
)

// Kind names the reason a call did not produce a Result.
type Kind string

const (
	KindNetwork               Kind = "network_error"
	KindUnexpectedContentType Kind = "unexpected_content_type"
	KindHTTP                  Kind = "http_error"
	KindMalformedJSON         Kind = "malformed_json"
)

// Error is returned when the response does not qualify as success, or when
// the transport produced no response at all.
type Error struct {
	Kind    Kind
	Details Details
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch e.Kind {
	case KindNetwork:
		return fmt.Sprintf("jsonapi: %s: %s", e.Kind, e.Details.NetworkError)
	case KindUnexpectedContentType:
		return fmt.Sprintf("jsonapi: %s %q (status %d)", e.Kind, e.Details.ContentType, e.Details.HTTPStatus)
	default:
		return fmt.Sprintf("jsonapi: %s: %d %s", e.Kind, e.Details.HTTPStatus, e.Details.HTTPReason)
	}
}

// Unwrap returns the transport error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ParseError is returned when a successful JSON response cannot be decoded.
type ParseError struct {
	Details Details
	Err     error
}

func (e *ParseError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("jsonapi: %s: %v", KindMalformedJSON, e.Err)
}

func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// KindOf reports the Kind carried by err, or "" when err did not come from a call.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return KindMalformedJSON
	}
	return ""
}

// DetailsOf returns the response snapshot carried by err.
func DetailsOf(err error) (Details, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Details, true
	}
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return parseErr.Details, true
	}
	return Details{}, false
}

// IsRetryable reports whether err looks transient. The client itself never
// retries; this is for callers that do.
func IsRetryable(err error) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Kind == KindNetwork {
		return isTransientNetworkError(apiErr.Err)
	}
	switch apiErr.Details.HTTPStatus {
	case http.StatusRequestTimeout,
		http.StatusTooEarly,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Order matters: a net timeout is retryable even when it also satisfies
// context.DeadlineExceeded.
func isTransientNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var op *net.OpError
	if errors.As(err, &op) && op.Timeout() {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return true
	}

	return errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNABORTED)
}
