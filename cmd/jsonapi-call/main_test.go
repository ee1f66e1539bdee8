package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRunPrintsJSONOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("X-Token") != "abc" {
			t.Errorf("missing header, got %q", r.Header.Get("X-Token"))
		}
		if r.URL.Query().Get("page") != "2" {
			t.Errorf("missing query, got %q", r.URL.RawQuery)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"name":"probe"}` {
			t.Errorf("unexpected body %s", body)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":7}`)
	}))
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"-X", "post",
		"--url", srv.URL,
		"-H", "X-Token: abc",
		"--query", "page=2",
		"--data", `{"name":"probe"}`,
	}, &stdout, &stderr)
	if code != exitOK {
		t.Fatalf("exit code %d, stderr: %s", code, stderr.String())
	}

	var got map[string]any
	if err := json.Unmarshal(stdout.Bytes(), &got); err != nil {
		t.Fatalf("stdout is not JSON: %v (%s)", err, stdout.String())
	}
	if got["id"] != float64(7) {
		t.Fatalf("unexpected output %v", got)
	}
}

func TestRunPrintsDetailsOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "<h1>bad gateway</h1>")
	}))
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{srv.URL}, &stdout, &stderr)
	if code != exitFailure {
		t.Fatalf("expected exit %d, got %d", exitFailure, code)
	}

	var got failure
	if err := json.Unmarshal(stdout.Bytes(), &got); err != nil {
		t.Fatalf("stdout is not JSON: %v (%s)", err, stdout.String())
	}
	if got.Kind != "unexpected_content_type" || got.Details.HTTPStatus != http.StatusBadGateway {
		t.Fatalf("unexpected failure %+v", got)
	}
	if got.Details.Text != "<h1>bad gateway</h1>" {
		t.Fatalf("unexpected text %q", got.Details.Text)
	}
}

func TestRunUsageErrors(t *testing.T) {
	cases := map[string][]string{
		"missing url":  {},
		"bad header":   {"--url", "http://x.test", "-H", "no-colon"},
		"bad data":     {"--url", "http://x.test", "--data", "{nope"},
		"unknown flag": {"--nope"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if code := run(context.Background(), args, &stdout, &stderr); code != exitUsage {
				t.Fatalf("expected exit %d, got %d", exitUsage, code)
			}
			if stderr.Len() == 0 {
				t.Fatalf("expected usage message on stderr")
			}
		})
	}
}

func TestBuildRequestNormalizesHeaders(t *testing.T) {
	req, err := buildRequest(options{method: " get ", url: "http://x.test", headers: []string{"Accept : application/json", "X-Empty:"}})
	if err != nil {
		t.Fatalf("buildRequest: %v", err)
	}
	if req.Method != "GET" || req.Headers["Accept"] != "application/json" {
		t.Fatalf("unexpected request %+v", req)
	}
	if v, ok := req.Headers["X-Empty"]; !ok || v != "" {
		t.Fatalf("expected empty header value to be kept")
	}
	if !strings.HasPrefix(req.URL, "http://") || req.Body != nil {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestRunSendsDataWithDefaultMethod(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if r.Method != http.MethodGet || string(body) != `{"a":1}` {
			t.Errorf("got %s with body %q", r.Method, body)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"-u", srv.URL, "-d", `{"a":1}`}, &stdout, &stderr); code != exitOK {
		t.Fatalf("exit code %d, stderr: %s", code, stderr.String())
	}
}
