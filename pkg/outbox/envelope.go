package outbox

import (
	"encoding/json"
	"time"

	"github.com/angelmondragon/eventbook-backend/pkg/enums"
)

// ActorRef identifies who produced the event.
type ActorRef struct {
	UserID string          `json:"userId"`
	Role   enums.ActorRole `json:"role,omitempty"`
}

// SystemActor is used when the process itself drives a change, e.g. the expiry sweep.
func SystemActor(owner string) *ActorRef {
	return &ActorRef{UserID: owner}
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
