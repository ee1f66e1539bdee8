package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/samvad-hq/jsonapi-probe/pkg/jsonapi"
	"gopkg.in/yaml.v3"
)

// Package endpoints loads named JSON API endpoint definitions (YAML/JSON).

// Endpoint is one probed JSON API call as declared in the endpoints file.
type Endpoint struct {
	ID               string            `json:"id" yaml:"id"`
	Name             string            `json:"name" yaml:"name"`
	Method           string            `json:"method" yaml:"method"`
	URL              string            `json:"url" yaml:"url"`
	Query            map[string]string `json:"query" yaml:"query"`
	Headers          map[string]string `json:"headers" yaml:"headers"`
	Body             any               `json:"body" yaml:"body"`
	TimeoutMs        int               `json:"timeout_ms" yaml:"timeout_ms"`
	AllowErrorStatus bool              `json:"allow_error_status" yaml:"allow_error_status"`
	Enabled          *bool             `json:"enabled" yaml:"enabled"`
}

type fileRegistry struct {
	Endpoints []Endpoint `json:"endpoints" yaml:"endpoints"`
}

// Registry holds the endpoints loaded from a file.
type Registry struct {
	mu        sync.RWMutex
	endpoints []Endpoint
	idx       map[string]Endpoint
}

// LoadRegistry loads endpoint definitions from a YAML/JSON file.
func LoadRegistry(path string) (*Registry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("endpoints file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open endpoints file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read endpoints file: %w", err)
	}

	fileReg, err := parseRegistry(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	return NewRegistry(fileReg.Endpoints)
}

// NewRegistry sanitizes and validates endpoints into a Registry.
func NewRegistry(eps []Endpoint) (*Registry, error) {
	if len(eps) == 0 {
		return nil, errors.New("endpoints file contains no endpoints entries")
	}

	reg := &Registry{
		endpoints: make([]Endpoint, len(eps)),
		idx:       make(map[string]Endpoint, len(eps)),
	}
	for i := range eps {
		ep := sanitizeEndpoint(eps[i])
		if err := validateEndpoint(ep); err != nil {
			return nil, fmt.Errorf("endpoint[%d]: %w", i, err)
		}
		if _, exists := reg.idx[ep.ID]; exists {
			return nil, fmt.Errorf("duplicate endpoint id %q", ep.ID)
		}
		reg.endpoints[i] = ep
		reg.idx[ep.ID] = ep
	}
	return reg, nil
}

func parseRegistry(data []byte, ext string) (fileRegistry, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))

	decoders := []struct {
		name string
		ext  string
		fn   unmarshalFn
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		if reg, err := unmarshalRegistry(d.name, data, d.fn); err == nil {
			return reg, nil
		}
	}

	return fileRegistry{}, errors.New("endpoints file format not recognized (expected YAML or JSON)")
}

type unmarshalFn func([]byte, any) error

func unmarshalRegistry(name string, data []byte, fn unmarshalFn) (fileRegistry, error) {
	var reg fileRegistry
	if err := fn(data, &reg); err != nil {
		return fileRegistry{}, fmt.Errorf("decode %s endpoints: %w", name, err)
	}
	return reg, nil
}

func sanitizeEndpoint(ep Endpoint) Endpoint {
	ep.ID = strings.TrimSpace(ep.ID)
	ep.Name = strings.TrimSpace(ep.Name)
	ep.URL = strings.TrimSpace(ep.URL)
	ep.Method = strings.ToUpper(strings.TrimSpace(ep.Method))
	if ep.Method == "" {
		ep.Method = http.MethodGet
	}
	if ep.Name == "" {
		ep.Name = ep.ID
	}
	ep.Headers = sanitizeMap(ep.Headers)
	ep.Query = sanitizeMap(ep.Query)
	ep.Body = normalizeYAML(ep.Body)
	if ep.TimeoutMs < 0 {
		ep.TimeoutMs = 0
	}
	if ep.Enabled == nil {
		def := true
		ep.Enabled = &def
	}
	return ep
}

// sanitizeMap trims keys and values and drops empty keys.
func sanitizeMap(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		key := strings.TrimSpace(k)
		if key == "" {
			continue
		}
		out[key] = strings.TrimSpace(v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// normalizeYAML converts map[any]any nodes (possible in nested YAML) into
// map[string]any so bodies stay JSON-encodable.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return out
	case map[string]any:
		for k, val := range t {
			t[k] = normalizeYAML(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = normalizeYAML(val)
		}
		return t
	default:
		return v
	}
}

func validateEndpoint(ep Endpoint) error {
	if ep.ID == "" {
		return errors.New("id is required")
	}
	if ep.URL == "" {
		return fmt.Errorf("url is required for endpoint %q", ep.ID)
	}
	u, err := url.Parse(ep.URL)
	if err != nil {
		return fmt.Errorf("invalid url for endpoint %q: %w", ep.ID, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url for endpoint %q must be http or https", ep.ID)
	}
	if u.Host == "" {
		return fmt.Errorf("url for endpoint %q has no host", ep.ID)
	}
	return nil
}

// ByID returns the endpoint with the given id.
func (r *Registry) ByID(id string) (Endpoint, bool) {
	if r == nil {
		return Endpoint{}, false
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return Endpoint{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	ep, ok := r.idx[id]
	return ep, ok
}

// All returns all configured endpoints.
func (r *Registry) All() []Endpoint {
	if r == nil {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Endpoint, len(r.endpoints))
	copy(out, r.endpoints)
	return out
}

// Enabled returns endpoints that are enabled.
func (r *Registry) Enabled() []Endpoint {
	all := r.All()
	if len(all) == 0 {
		return nil
	}

	out := make([]Endpoint, 0, len(all))
	for _, ep := range all {
		if ep.EnabledValue() {
			out = append(out, ep)
		}
	}
	return out
}

// EnabledValue returns enabled flag defaulting to true.
func (ep Endpoint) EnabledValue() bool {
	if ep.Enabled == nil {
		return true
	}
	return *ep.Enabled
}

// Timeout returns the per-call timeout, zero meaning the transport default.
func (ep Endpoint) Timeout() time.Duration {
	if ep.TimeoutMs <= 0 {
		return 0
	}
	return time.Duration(ep.TimeoutMs) * time.Millisecond
}

// Request builds the JSON API request for the endpoint.
func (ep Endpoint) Request() jsonapi.Request {
	return jsonapi.Request{
		Method:           ep.Method,
		URL:              ep.URL,
		Query:            ep.Query,
		Headers:          ep.Headers,
		Body:             ep.Body,
		Timeout:          ep.Timeout(),
		AllowErrorStatus: ep.AllowErrorStatus,
	}
}
