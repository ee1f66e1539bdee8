package jsonapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/samvad-hq/jsonapi-probe/pkg/httpclient"
	"golang.org/x/text/encoding/htmlindex"
)

const defaultCharset = "utf-8"

// Client issues JSON API calls over an injected transport. It keeps no state
// between calls and is safe for concurrent use.
type Client struct {
	transport httpclient.Client
	log       Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger attaches a logger that receives one debug entry per call.
func WithLogger(log Logger) Option {
	return func(c *Client) { c.log = ensureLogger(log) }
}

// NewClient wraps transport.
func NewClient(transport httpclient.Client, opts ...Option) *Client {
	c := &Client{transport: transport, log: noopLogger{}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call is shorthand for NewClient(transport).Call(ctx, req).
func Call(ctx context.Context, transport httpclient.Client, req Request) (Result, error) {
	return NewClient(transport).Call(ctx, req)
}

// Call performs exactly one HTTP request and returns the parsed JSON body.
//
// Transport failures and non-conforming responses yield *Error; a conforming
// response whose body is not valid JSON yields *ParseError.
func (c *Client) Call(ctx context.Context, req Request) (Result, error) {
	if c == nil || c.transport == nil {
		return Result{}, errors.New("jsonapi: client has no transport")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := c.call(ctx, req)
	c.log.DebugObj("json api call finished", "json_api_call", map[string]any{
		"method":      req.Method,
		"url":         req.URL,
		"http_status": statusOf(res, err),
		"kind":        string(KindOf(err)),
		"elapsed_ms":  time.Since(start).Milliseconds(),
	})
	return res, err
}

func (c *Client) call(ctx context.Context, req Request) (Result, error) {
	resp, err := c.transport.Do(ctx, httpclient.Request{
		Method:  req.Method,
		URL:     req.URL,
		Query:   req.Query,
		Headers: req.Headers,
		Body:    req.Body,
	})
	if err != nil {
		return Result{}, networkError(err)
	}

	details := Details{
		HTTPStatus:  resp.StatusCode(),
		HTTPReason:  resp.Reason(),
		ContentType: resp.Header().Get("Content-Type"),
		Bytes:       resp.Body(),
	}
	text, textErr := decodeText(details.Bytes, details.ContentType)
	if textErr == nil {
		details.Text = text
	}

	if !IsJSONContentType(details.ContentType) {
		return Result{}, &Error{Kind: KindUnexpectedContentType, Details: details}
	}
	if !req.AllowErrorStatus && !IsSuccessStatus(details.HTTPStatus) {
		return Result{}, &Error{Kind: KindHTTP, Details: details}
	}
	if textErr != nil {
		return Result{}, &ParseError{Details: details, Err: textErr}
	}

	var value any
	if err := json.Unmarshal([]byte(details.Text), &value); err != nil {
		return Result{}, &ParseError{Details: details, Err: err}
	}

	return Result{JSON: value, Details: details}, nil
}

// IsSuccessStatus reports whether code is in the 2xx range.
func IsSuccessStatus(code int) bool {
	return code >= 200 && code <= 299
}

// IsJSONContentType accepts application/json and structured-syntax
// "+json" media types. Parameters are ignored.
func IsJSONContentType(contentType string) bool {
	mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	if mediaType == "application/json" {
		return true
	}
	return strings.HasPrefix(mediaType, "application/") && strings.HasSuffix(mediaType, "+json")
}

func networkError(err error) *Error {
	details := Details{NetworkError: err.Error()}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		details.Errno = int(errno)
	}
	return &Error{Kind: KindNetwork, Details: details, Err: err}
}

// decodeText decodes body with the charset declared by contentType.
func decodeText(body []byte, contentType string) (string, error) {
	charset := defaultCharset
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		if cs := strings.TrimSpace(params["charset"]); cs != "" {
			charset = cs
		}
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return "", fmt.Errorf("unsupported charset %q: %w", charset, err)
	}
	if name, _ := htmlindex.Name(enc); name == defaultCharset {
		if !utf8.Valid(body) {
			return "", errors.New("response body is not valid utf-8")
		}
		return string(body), nil
	}

	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", fmt.Errorf("decode %s body: %w", charset, err)
	}
	return string(out), nil
}

func statusOf(res Result, err error) int {
	if err == nil {
		return res.Details.HTTPStatus
	}
	details, _ := DetailsOf(err)
	return details.HTTPStatus
}
