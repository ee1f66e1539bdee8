package probe

import (
	"context"

	"github.com/samvad-hq/jsonapi-probe/pkg/jsonapi"
	"github.com/samvad-hq/jsonapi-probe/pkg/publishers"
)

// Caller performs one JSON API call. *jsonapi.Client satisfies it.
type Caller interface {
	Call(ctx context.Context, req jsonapi.Request) (jsonapi.Result, error)
}

// EventPublisher publishes outcome events downstream and reports how many
// sinks accepted the event.
type EventPublisher interface {
	Publish(ctx context.Context, evt publishers.Event) (int, error)
}

// OutcomeStore remembers the last published fingerprint per endpoint.
type OutcomeStore interface {
	Changed(endpointID, fingerprint string) (bool, error)
	Remember(endpointID, fingerprint string) error
}
