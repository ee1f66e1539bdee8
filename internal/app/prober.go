package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samvad-hq/jsonapi-probe/internal/config"
	"github.com/samvad-hq/jsonapi-probe/internal/logger"
	"github.com/samvad-hq/jsonapi-probe/internal/metrics"
	"github.com/samvad-hq/jsonapi-probe/internal/probe"
	"github.com/samvad-hq/jsonapi-probe/internal/storage"
	"github.com/samvad-hq/jsonapi-probe/pkg/endpoints"
	"github.com/samvad-hq/jsonapi-probe/pkg/httpclient"
	"github.com/samvad-hq/jsonapi-probe/pkg/jsonapi"
	"github.com/samvad-hq/jsonapi-probe/pkg/publishers"
)

const metricsShutdownTimeout = 5 * time.Second

// Prober is the long-running probe runtime. It calls every enabled endpoint
// once per interval and hands outcome changes to the configured publishers.
type Prober struct {
	cfg           *config.Config
	endpointReg   *endpoints.Registry
	fanout        *publishers.Fanout
	probeService  *probe.Service
	probeInterval time.Duration
	log           logger.Logger
	store         storage.Store
	registry      *prometheus.Registry
}

// NewProber builds a prober runtime from config files.
func NewProber(ctx context.Context, cfg *config.Config, log logger.Logger) (*Prober, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if log == nil {
		log = &logger.NopLogger{}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	endpointReg, err := endpoints.LoadRegistry(cfg.EndpointsFile)
	if err != nil {
		return nil, fmt.Errorf("load endpoints registry: %w", err)
	}
	endpointIDs := make([]string, 0, len(endpointReg.All()))
	for _, ep := range endpointReg.All() {
		endpointIDs = append(endpointIDs, ep.ID)
	}
	log.InfoObj("endpoints registry loaded", "endpoints_meta", map[string]any{
		"count": len(endpointIDs),
		"ids":   endpointIDs,
	})

	fanout, err := buildFanout(ctx, cfg.PublishersFile, log)
	if err != nil {
		return nil, err
	}

	storeOpts := storage.Options{
		OutcomeTTL:      cfg.StorageTTL,
		CleanupInterval: cfg.StorageCleanupInterval,
	}
	store, err := storage.NewStore(cfg.StorageType, cfg.BBoltPath, storeOpts)
	if err != nil {
		_ = fanout.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	log.InfoObj("storage initialized", "storage_config", map[string]any{
		"type":                     cfg.StorageType,
		"path":                     cfg.BBoltPath,
		"outcome_ttl_seconds":      int(cfg.StorageTTL.Seconds()),
		"cleanup_interval_seconds": int(cfg.StorageCleanupInterval.Seconds()),
	})

	transport := httpclient.NewRestyClientWithOptions(httpclient.Options{
		Timeout:   cfg.HTTPTimeout,
		UserAgent: cfg.UserAgent,
	})
	client := jsonapi.NewClient(transport, jsonapi.WithLogger(log))

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	var pub probe.EventPublisher
	if fanout.Size() > 0 {
		pub = fanout
	}
	probeService := probe.NewService(client, pub, log, store,
		probe.WithMetrics(collector),
		probe.WithPublishUnchanged(cfg.PublishUnchanged),
	)

	return &Prober{
		cfg:           cfg,
		endpointReg:   endpointReg,
		fanout:        fanout,
		probeService:  probeService,
		probeInterval: cfg.ProbeInterval,
		log:           log,
		store:         store,
		registry:      registry,
	}, nil
}

// buildFanout loads the publishers file. An empty path runs without publishers.
func buildFanout(ctx context.Context, path string, log logger.Logger) (*publishers.Fanout, error) {
	if strings.TrimSpace(path) == "" {
		log.WarnObj("no publishers file configured; outcomes are only logged", "publishers_file", path)
		return publishers.NewFanout(nil), nil
	}

	publisherReg, err := publishers.LoadRegistry(path)
	if err != nil {
		return nil, fmt.Errorf("load publishers registry: %w", err)
	}

	enabled := publisherReg.Enabled()
	pubClients, err := publishers.BuildAll(ctx, publishers.DefaultRegistry(), enabled, log)
	if err != nil {
		return nil, fmt.Errorf("build publishers: %w", err)
	}

	summaries := make([]map[string]string, 0, len(enabled))
	for _, pubCfg := range enabled {
		summaries = append(summaries, map[string]string{
			"id":   pubCfg.ID,
			"type": pubCfg.Type,
		})
	}
	log.InfoObj("publishers registry loaded", "publishers_meta", map[string]any{
		"count":      len(summaries),
		"publishers": summaries,
	})
	return publishers.NewFanout(pubClients), nil
}

// Run starts the probe loop until the context is cancelled.
func (p *Prober) Run(ctx context.Context) error {
	if p == nil || p.probeService == nil {
		return fmt.Errorf("prober is not initialized")
	}
	defer p.closeResources()

	eps := p.endpointReg.Enabled()
	if len(eps) == 0 {
		p.log.WarnObj("no enabled endpoints; prober idle", "endpoints_file", p.cfg.EndpointsFile)
		<-ctx.Done()
		return nil
	}

	if addr := strings.TrimSpace(p.cfg.MetricsAddr); addr != "" {
		stopMetrics := p.serveMetrics(addr)
		defer stopMetrics()
	}

	p.log.InfoObj("probe loop starting", "prober_state", map[string]any{
		"endpoints_count":  len(eps),
		"publishers_count": p.fanout.Size(),
		"probe_interval":   p.probeInterval.String(),
	})

	if err := p.runOnce(ctx, eps); err != nil {
		p.log.ErrorObj("initial probe failed", "error", err.Error())
	}

	ticker := time.NewTicker(p.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.InfoObj("probe loop exiting", "reason", ctx.Err().Error())
			return nil
		case <-ticker.C:
			if err := p.runOnce(ctx, eps); err != nil {
				p.log.ErrorObj("scheduled probe failed", "error", err.Error())
			}
		}
	}
}

// runOnce performs a single probe pass across all endpoints.
func (p *Prober) runOnce(ctx context.Context, eps []endpoints.Endpoint) error {
	start := time.Now()
	p.log.DebugObj("probe pass started", "probe_meta", map[string]any{
		"endpoints_count": len(eps),
		"started_at":      start.UTC(),
	})
	if err := p.probeService.Run(ctx, eps); err != nil {
		return err
	}
	p.log.InfoObj("probe pass completed", "probe_meta", map[string]any{
		"endpoints_count": len(eps),
		"elapsed_ms":      time.Since(start).Milliseconds(),
	})
	return nil
}

// serveMetrics exposes /metrics on addr and returns a func that stops the server.
func (p *Prober) serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(p.registry))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.log.ErrorObj("metrics server failed", "error", err.Error())
		}
	}()
	p.log.InfoObj("metrics server listening", "metrics_addr", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			p.log.WarnObj("metrics server shutdown failed", "error", err.Error())
		}
	}
}

// closeResources closes the storage backend and publisher clients, logging failures.
func (p *Prober) closeResources() {
	if p == nil {
		return
	}
	if p.store != nil {
		if err := p.store.Close(); err != nil {
			p.log.ErrorObj("storage close failed", "error", err.Error())
		}
	}
	if err := p.fanout.Close(); err != nil {
		p.log.ErrorObj("publisher close failed", "error", err.Error())
	}
}
