package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// RestyClient adapts resty.Client to the httpclient.Client interface.
type RestyClient struct {
	client *resty.Client
}

// Options tunes the underlying resty client.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	// FollowRedirects lets resty follow 3xx responses. Off by default so
	// callers observe the redirect response itself.
	FollowRedirects bool
}

// NewRestyClient creates a new RestyClient with the specified timeout.
func NewRestyClient(timeout time.Duration) *RestyClient {
	return NewRestyClientWithOptions(Options{Timeout: timeout})
}

// NewRestyClientWithOptions creates a RestyClient from the given options.
func NewRestyClientWithOptions(opts Options) *RestyClient {
	c := newRestyBaseClient(opts.Timeout)
	if ua := strings.TrimSpace(opts.UserAgent); ua != "" {
		c.SetHeader("User-Agent", ua)
	}
	if !opts.FollowRedirects {
		c.SetRedirectPolicy(keepRedirectResponse())
	}
	return &RestyClient{client: c}
}

// NewRestyHTTPClient exposes a configured resty.Client for callers needing custom verbs.
func NewRestyHTTPClient(timeout time.Duration) *resty.Client {
	return newRestyBaseClient(timeout)
}

// newRestyBaseClient creates a new resty.Client with the specified timeout.
func newRestyBaseClient(timeout time.Duration) *resty.Client {
	c := resty.New()
	// JSON APIs may take a body on any verb, GET included.
	c.SetAllowGetMethodPayload(true)
	if timeout > 0 {
		c.SetTimeout(timeout)
	}
	return c
}

// keepRedirectResponse stops at the first 3xx and hands it back unread.
func keepRedirectResponse() resty.RedirectPolicy {
	return resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	})
}

// Do performs the described request and reads the whole response body.
func (r *RestyClient) Do(ctx context.Context, req Request) (Response, error) {
	rr := r.client.R().SetContext(ctx)
	if len(req.Headers) > 0 {
		rr.SetHeaders(req.Headers)
	}
	if len(req.Query) > 0 {
		rr.SetQueryParams(req.Query)
	}
	if req.Body != nil {
		// Pre-encode so strings and byte slices are sent as JSON values too.
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		if rr.Header.Get("Content-Type") == "" {
			rr.SetHeader("Content-Type", "application/json")
		}
		rr.SetBody(payload)
	}

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}

	resp, err := rr.Execute(method, req.URL)
	if err != nil {
		return nil, err
	}
	return &restyResponseAdapter{resp: resp}, nil
}

// Get performs an HTTP GET request with the specified context, URL, and headers.
func (r *RestyClient) Get(ctx context.Context, url string, headers map[string]string) (Response, error) {
	return r.Do(ctx, Request{Method: http.MethodGet, URL: url, Headers: headers})
}

// restyResponseAdapter adapts resty.Response to the httpclient.Response interface.
type restyResponseAdapter struct {
	resp *resty.Response
}

func (r *restyResponseAdapter) Body() []byte        { return r.resp.Body() }
func (r *restyResponseAdapter) StatusCode() int     { return r.resp.StatusCode() }
func (r *restyResponseAdapter) Header() http.Header { return r.resp.Header() }
func (r *restyResponseAdapter) Reason() string {
	return ReasonPhrase(r.resp.StatusCode(), r.resp.Status())
}

// ReasonPhrase extracts the reason from a status line such as "400 Bad Request",
// falling back to the canonical text for code.
func ReasonPhrase(code int, status string) string {
	status = strings.TrimSpace(status)
	if prefix := strconv.Itoa(code); strings.HasPrefix(status, prefix) {
		if reason := strings.TrimSpace(strings.TrimPrefix(status, prefix)); reason != "" {
			return reason
		}
	}
	return http.StatusText(code)
}
