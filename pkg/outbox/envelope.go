package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-engine/pkg/db/models"
)

// ActorRef identifies who produced the event.
type ActorRef struct {
	ActorID uuid.UUID `json:"actorId"`
	Role    string    `json:"role,omitempty"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events and
// published verbatim.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// DecodeEnvelope parses a stored row back into its envelope and checks the
// fields consumers depend on.
func DecodeEnvelope(event models.OutboxEvent) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if len(event.Payload) == 0 {
		return env, errors.New("empty outbox payload")
	}
	if err := json.Unmarshal(event.Payload, &env); err != nil {
		return env, fmt.Errorf("decode outbox envelope: %w", err)
	}
	if env.EventID == "" {
		return env, errors.New("outbox envelope missing event id")
	}
	if env.Version <= 0 {
		return env, fmt.Errorf("unsupported envelope version %d", env.Version)
	}
	if !event.EventType.IsValid() || !event.AggregateType.IsValid() {
		return env, fmt.Errorf("unknown event %q on aggregate %q", event.EventType, event.AggregateType)
	}
	return env, nil
}
