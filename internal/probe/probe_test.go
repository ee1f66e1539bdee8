package probe

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/samvad-hq/jsonapi-probe/internal/domain"
	"github.com/samvad-hq/jsonapi-probe/internal/metrics"
	"github.com/samvad-hq/jsonapi-probe/pkg/endpoints"
	"github.com/samvad-hq/jsonapi-probe/pkg/jsonapi"
	"github.com/samvad-hq/jsonapi-probe/pkg/publishers"
)

// fakeCaller returns a preset result or error per URL.
type fakeCaller struct {
	mu       sync.Mutex
	results  map[string]jsonapi.Result
	errs     map[string]error
	requests []jsonapi.Request
	onCall   func()
}

func (f *fakeCaller) Call(_ context.Context, req jsonapi.Request) (jsonapi.Result, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.onCall != nil {
		f.onCall()
	}
	if err, ok := f.errs[req.URL]; ok {
		return jsonapi.Result{}, err
	}
	return f.results[req.URL], nil
}

// fakePublisher records published events and can inject errors.
type fakePublisher struct {
	mu        sync.Mutex
	events    []publishers.Event
	err       error
	delivered int
}

func (f *fakePublisher) Publish(_ context.Context, evt publishers.Event) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
	return f.delivered, f.err
}

// fakeStore keeps fingerprints in memory.
type fakeStore struct {
	mu        sync.Mutex
	seen      map[string]string
	lookupErr error
}

func (f *fakeStore) Changed(endpointID, fingerprint string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return false, f.lookupErr
	}
	return f.seen[endpointID] != fingerprint, nil
}

func (f *fakeStore) Remember(endpointID, fingerprint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen == nil {
		f.seen = make(map[string]string)
	}
	f.seen[endpointID] = fingerprint
	return nil
}

func okResult(text string) jsonapi.Result {
	return jsonapi.Result{
		JSON: map[string]any{"status": "up"},
		Details: jsonapi.Details{
			HTTPStatus:  200,
			HTTPReason:  "OK",
			ContentType: "application/json",
			Bytes:       []byte(text),
			Text:        text,
		},
	}
}

func TestServicePublishesOnlyChangedOutcomes(t *testing.T) {
	ep := endpoints.Endpoint{ID: "health", Name: "Health", Method: "GET", URL: "https://api.test/health"}
	caller := &fakeCaller{results: map[string]jsonapi.Result{ep.URL: okResult(`{"status":"up"}`)}}
	pub := &fakePublisher{delivered: 1}
	store := &fakeStore{}

	svc := NewService(caller, pub, nil, store)
	for i := 0; i < 2; i++ {
		if err := svc.Run(context.Background(), []endpoints.Endpoint{ep}); err != nil {
			t.Fatalf("Run #%d: %v", i, err)
		}
	}

	if len(caller.requests) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(caller.requests))
	}
	if len(pub.events) != 1 {
		t.Fatalf("expected 1 published event, got %d", len(pub.events))
	}
	evt := pub.events[0]
	if evt.EndpointID != "health" || !evt.Outcome.OK || evt.Outcome.Kind != domain.OutcomeOK {
		t.Fatalf("unexpected event %+v", evt)
	}
	if store.seen["health"] != evt.Outcome.Fingerprint {
		t.Fatalf("fingerprint not remembered")
	}

	caller.results[ep.URL] = okResult(`{"status":"degraded"}`)
	if err := svc.Run(context.Background(), []endpoints.Endpoint{ep}); err != nil {
		t.Fatalf("Run after change: %v", err)
	}
	if len(pub.events) != 2 {
		t.Fatalf("expected changed outcome to be published, got %d events", len(pub.events))
	}
}

func TestServicePublishUnchangedPublishesEveryOutcome(t *testing.T) {
	ep := endpoints.Endpoint{ID: "health", URL: "https://api.test/health"}
	caller := &fakeCaller{results: map[string]jsonapi.Result{ep.URL: okResult(`{}`)}}
	pub := &fakePublisher{delivered: 1}

	svc := NewService(caller, pub, nil, &fakeStore{}, WithPublishUnchanged(true))
	for i := 0; i < 3; i++ {
		if err := svc.Run(context.Background(), []endpoints.Endpoint{ep}); err != nil {
			t.Fatalf("Run: %v", err)
		}
	}
	if len(pub.events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(pub.events))
	}
}

func TestServiceFailedPublishIsRetriedNextPass(t *testing.T) {
	ep := endpoints.Endpoint{ID: "health", URL: "https://api.test/health"}
	caller := &fakeCaller{results: map[string]jsonapi.Result{ep.URL: okResult(`{}`)}}
	pub := &fakePublisher{err: errors.New("sink down")}
	store := &fakeStore{}

	svc := NewService(caller, pub, nil, store)
	err := svc.Run(context.Background(), []endpoints.Endpoint{ep})
	if err == nil || !strings.Contains(err.Error(), "sink down") {
		t.Fatalf("expected publish error, got %v", err)
	}
	if _, ok := store.seen["health"]; ok {
		t.Fatalf("failed publish must not be remembered")
	}

	pub.err = nil
	pub.delivered = 1
	if err := svc.Run(context.Background(), []endpoints.Endpoint{ep}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(pub.events) != 2 {
		t.Fatalf("expected outcome to be published again, got %d events", len(pub.events))
	}
}

func TestServicePartialPublishRemembersOutcome(t *testing.T) {
	ep := endpoints.Endpoint{ID: "health", URL: "https://api.test/health"}
	caller := &fakeCaller{results: map[string]jsonapi.Result{ep.URL: okResult(`{}`)}}
	pub := &fakePublisher{delivered: 1, err: errors.New("one sink down")}
	store := &fakeStore{}

	svc := NewService(caller, pub, nil, store)
	if err := svc.Run(context.Background(), []endpoints.Endpoint{ep}); err == nil {
		t.Fatalf("expected partial publish error")
	}
	if _, ok := store.seen["health"]; !ok {
		t.Fatalf("partially delivered outcome should be remembered")
	}
}

func TestServiceStoreLookupErrorPublishes(t *testing.T) {
	ep := endpoints.Endpoint{ID: "health", URL: "https://api.test/health"}
	caller := &fakeCaller{results: map[string]jsonapi.Result{ep.URL: okResult(`{}`)}}
	pub := &fakePublisher{delivered: 1}

	svc := NewService(caller, pub, nil, &fakeStore{lookupErr: errors.New("db locked")})
	if err := svc.Run(context.Background(), []endpoints.Endpoint{ep}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(pub.events) != 1 {
		t.Fatalf("expected outcome published despite lookup error, got %d", len(pub.events))
	}
}

func TestServiceProbeClassifiesFailures(t *testing.T) {
	ep := endpoints.Endpoint{ID: "bad", Name: "Bad", URL: "https://api.test/bad"}
	caller := &fakeCaller{errs: map[string]error{ep.URL: &jsonapi.Error{
		Kind: jsonapi.KindHTTP,
		Details: jsonapi.Details{
			HTTPStatus:  400,
			HTTPReason:  "Bad Request",
			ContentType: "application/json",
			Bytes:       []byte(`{"message":"missing field"}`),
			Text:        `{"message":"missing field"}`,
		},
	}}}

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	svc := NewService(caller, nil, nil, nil, WithMetrics(collector))

	out := svc.Probe(context.Background(), ep)
	if out.OK || out.Kind != string(jsonapi.KindHTTP) {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if out.HTTPStatus != 400 || out.Summary != "400 Bad Request: missing field" {
		t.Fatalf("unexpected status/summary %d %q", out.HTTPStatus, out.Summary)
	}
	if out.JSON != nil {
		t.Fatalf("failed outcome must not carry JSON")
	}

	expected := `
# HELP jsonapi_probe_calls_total Total number of JSON API calls by outcome kind
# TYPE jsonapi_probe_calls_total counter
jsonapi_probe_calls_total{endpoint="bad",kind="http_error"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "jsonapi_probe_calls_total"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
}

func TestServiceRunAggregatesAndContinues(t *testing.T) {
	eps := []endpoints.Endpoint{
		{ID: "a", URL: "https://api.test/a"},
		{ID: "b", URL: "https://api.test/b"},
	}
	caller := &fakeCaller{results: map[string]jsonapi.Result{
		"https://api.test/a": okResult(`{}`),
		"https://api.test/b": okResult(`{}`),
	}}
	pub := &fakePublisher{err: errors.New("boom")}

	svc := NewService(caller, pub, nil, nil)
	err := svc.Run(context.Background(), eps)
	if err == nil {
		t.Fatalf("expected aggregated error")
	}
	if !strings.Contains(err.Error(), "endpoint a") || !strings.Contains(err.Error(), "endpoint b") {
		t.Fatalf("expected both endpoints in error, got %v", err)
	}
	if len(caller.requests) != 2 {
		t.Fatalf("expected every endpoint probed, got %d calls", len(caller.requests))
	}
}

func TestServiceRunAllCancelsEarly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	caller := &fakeCaller{}
	svc := NewService(caller, nil, nil, nil)
	errs := svc.runAll(ctx, []endpoints.Endpoint{{ID: "p", URL: "https://api.test"}})
	if len(errs) != 0 {
		t.Fatalf("expected no errors on cancelled context, got %v", errs)
	}
	if len(caller.requests) != 0 {
		t.Fatalf("expected no calls on cancelled context")
	}
}

func TestServiceSkipsPublishWhenCancelledMidCall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ep := endpoints.Endpoint{ID: "slow", URL: "https://api.test/slow"}
	caller := &fakeCaller{
		errs:   map[string]error{ep.URL: &jsonapi.Error{Kind: jsonapi.KindNetwork, Err: context.Canceled}},
		onCall: cancel,
	}
	pub := &fakePublisher{delivered: 1}

	svc := NewService(caller, pub, nil, nil)
	if err := svc.Run(ctx, []endpoints.Endpoint{ep}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(pub.events) != 0 {
		t.Fatalf("expected no publish after cancellation, got %d", len(pub.events))
	}
}

func TestRunReturnsErrorOnEmptyEndpoints(t *testing.T) {
	svc := NewService(&fakeCaller{}, nil, nil, nil)
	if err := svc.Run(context.Background(), nil); err == nil {
		t.Fatalf("expected error when endpoint list empty")
	}

	var nilSvc *Service
	if err := nilSvc.Run(context.Background(), []endpoints.Endpoint{{ID: "x"}}); err == nil {
		t.Fatalf("expected error for nil service")
	}
}
