package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samvad-hq/jsonapi-probe/internal/domain"
	"github.com/samvad-hq/jsonapi-probe/internal/logger"
	"github.com/samvad-hq/jsonapi-probe/internal/metrics"
	"github.com/samvad-hq/jsonapi-probe/pkg/endpoints"
	"github.com/samvad-hq/jsonapi-probe/pkg/publishers"
)

const (
	publishResultPublished = "published"
	publishResultFailed    = "failed"
	publishResultSkipped   = "skipped"
)

// Service probes endpoints and publishes outcome changes.
type Service struct {
	caller           Caller
	publisher        EventPublisher
	store            OutcomeStore
	metrics          *metrics.Collector
	log              logger.Logger
	publishUnchanged bool
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics records calls and publishes on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Service) { s.metrics = c }
}

// WithPublishUnchanged publishes every outcome, not only changes.
func WithPublishUnchanged(v bool) Option {
	return func(s *Service) { s.publishUnchanged = v }
}

// NewService wires a probe service. publisher and store may be nil.
func NewService(caller Caller, publisher EventPublisher, log logger.Logger, store OutcomeStore, opts ...Option) *Service {
	if log == nil {
		log = &logger.NopLogger{}
	}
	s := &Service{
		caller:    caller,
		publisher: publisher,
		store:     store,
		log:       log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes a probe pass for all given endpoints.
func (s *Service) Run(ctx context.Context, eps []endpoints.Endpoint) error {
	if s == nil || s.caller == nil {
		return fmt.Errorf("probe service is not initialized")
	}

	if len(eps) == 0 {
		return fmt.Errorf("no endpoints configured for probing")
	}

	errs := s.runAll(ctx, eps)
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

func (s *Service) runAll(ctx context.Context, eps []endpoints.Endpoint) []error {
	errs := make([]error, 0, len(eps))

	for _, ep := range eps {
		if ctx.Err() != nil {
			break
		}
		if err := s.runEndpoint(ctx, ep); err != nil {
			errs = append(errs, err)
			s.log.ErrorObj("endpoint probe failed", "endpoint_error", map[string]any{
				"endpoint_id": ep.ID,
				"error":       err.Error(),
			})
		}
	}

	return errs
}

func (s *Service) runEndpoint(ctx context.Context, ep endpoints.Endpoint) error {
	outcome := s.Probe(ctx, ep)
	if ctx.Err() != nil {
		// The call was cut short by shutdown; its outcome says nothing about the endpoint.
		return nil
	}
	return s.publish(ctx, outcome)
}

// Probe calls ep once and classifies the result.
func (s *Service) Probe(ctx context.Context, ep endpoints.Endpoint) domain.Outcome {
	start := time.Now()
	res, err := s.caller.Call(ctx, ep.Request())
	elapsed := time.Since(start)

	outcome := BuildOutcome(ep, res, err, elapsed)
	s.metrics.RecordCall(ep.ID, outcome.Kind, elapsed)

	meta := map[string]any{
		"endpoint_id": ep.ID,
		"kind":        outcome.Kind,
		"http_status": outcome.HTTPStatus,
		"elapsed_ms":  outcome.DurationMs,
	}
	if outcome.OK {
		s.log.InfoObj("endpoint probe completed", "probe_result", meta)
	} else {
		meta["summary"] = outcome.Summary
		s.log.WarnObj("endpoint probe returned failure", "probe_result", meta)
	}
	return outcome
}

func (s *Service) publish(ctx context.Context, outcome domain.Outcome) error {
	if s.publisher == nil {
		return nil
	}

	if !s.publishUnchanged && !s.changed(outcome) {
		s.metrics.RecordPublish(outcome.EndpointID, publishResultSkipped)
		s.log.DebugObj("outcome unchanged; skipping publish", "publish_skip", map[string]any{
			"endpoint_id": outcome.EndpointID,
			"fingerprint": outcome.Fingerprint,
		})
		return nil
	}

	delivered, err := s.publisher.Publish(ctx, publishers.NewEvent(outcome))
	if delivered == 0 && err != nil {
		s.metrics.RecordPublish(outcome.EndpointID, publishResultFailed)
		return fmt.Errorf("publish outcome for endpoint %s: %w", outcome.EndpointID, err)
	}
	s.metrics.RecordPublish(outcome.EndpointID, publishResultPublished)

	if s.store != nil {
		if rerr := s.store.Remember(outcome.EndpointID, outcome.Fingerprint); rerr != nil {
			s.log.WarnObj("remember outcome failed", "store_error", map[string]any{
				"endpoint_id": outcome.EndpointID,
				"error":       rerr.Error(),
			})
		}
	}

	if err != nil {
		return fmt.Errorf("publish outcome for endpoint %s (partial, %d delivered): %w", outcome.EndpointID, delivered, err)
	}
	return nil
}

// changed consults the store; lookup failures count as changed so outcomes are not lost.
func (s *Service) changed(outcome domain.Outcome) bool {
	if s.store == nil {
		return true
	}
	changed, err := s.store.Changed(outcome.EndpointID, outcome.Fingerprint)
	if err != nil {
		s.log.WarnObj("outcome lookup failed", "store_error", map[string]any{
			"endpoint_id": outcome.EndpointID,
			"error":       err.Error(),
		})
		return true
	}
	return changed
}
