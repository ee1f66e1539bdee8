package publishers

import (
	"time"

	"github.com/samvad-hq/jsonapi-probe/internal/domain"
)

// Event represents the payload published downstream.
type Event struct {
	EndpointID   string         `json:"endpoint_id"`
	EndpointName string         `json:"endpoint_name"`
	Outcome      domain.Outcome `json:"outcome"`
	ObservedAt   time.Time      `json:"observed_at"`
}

// NewEvent constructs an Event for the given probe outcome.
func NewEvent(outcome domain.Outcome) Event {
	return Event{
		EndpointID:   outcome.EndpointID,
		EndpointName: outcome.EndpointName,
		Outcome:      outcome,
		ObservedAt:   time.Now().UTC(),
	}
}

// attributes are the routing attributes attached to queue/topic messages.
func (e Event) attributes() map[string]string {
	return map[string]string{
		"endpoint_id":  e.EndpointID,
		"outcome_kind": e.Outcome.Kind,
	}
}
