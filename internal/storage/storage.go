package storage

import (
	"fmt"
	"strings"
	"time"
)

// Package storage provides local DB/cache abstraction.

// Store remembers the last published outcome fingerprint per endpoint.
type Store interface {
	Close() error
	// Changed reports whether fingerprint differs from the remembered one
	// (or nothing unexpired is remembered) for endpointID.
	Changed(endpointID, fingerprint string) (bool, error)
	Remember(endpointID, fingerprint string) error
}

// Options controls retention characteristics for concrete store implementations.
type Options struct {
	OutcomeTTL      time.Duration
	CleanupInterval time.Duration
}

const (
	defaultOutcomeTTL      = 24 * time.Hour
	defaultCleanupInterval = 6 * time.Hour
)

// NewStore creates the configured storage backend.
func NewStore(typ, path string, opts Options) (Store, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))
	opts = normalizeOptions(opts)

	switch typ {
	case "", "none", "disabled":
		return noopStore{}, nil
	case "bbolt":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		return openBolt(path, opts)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}

func normalizeOptions(opts Options) Options {
	if opts.OutcomeTTL <= 0 {
		opts.OutcomeTTL = defaultOutcomeTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}
	return opts
}

// noopStore treats every outcome as changed.
type noopStore struct{}

func (noopStore) Close() error                         { return nil }
func (noopStore) Changed(string, string) (bool, error) { return true, nil }
func (noopStore) Remember(string, string) error        { return nil }
