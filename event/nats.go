package event

import (
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is the subject prefix events are published under when
// no prefix is configured. The event kind is appended as the final token,
// e.g. "castmark.events.registered".
const DefaultSubjectPrefix = "castmark.events"

// Envelope is the wire format for published events.
type Envelope struct {
	EventID string          `json:"event_id"`
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// NATSPublisher publishes events as JSON to NATS subjects. Publishing is
// fire-and-forget: failures are logged, never surfaced to the registry.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
	logger *slog.Logger
}

// NewNATSPublisher creates a publisher on the given connection. An empty
// prefix selects DefaultSubjectPrefix. A nil logger selects slog.Default.
func NewNATSPublisher(nc *nats.Conn, prefix string, logger *slog.Logger) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSPublisher{nc: nc, prefix: prefix, logger: logger.With("component", "event-publisher")}
}

// Subject returns the NATS subject events of the given kind are published on.
func (p *NATSPublisher) Subject(kind Kind) string {
	return p.prefix + "." + string(kind)
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(payload Payload) {
	if p.nc == nil {
		return
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("marshal event payload", "kind", payload.Kind(), "error", err)
		return
	}

	data, err := json.Marshal(Envelope{
		EventID: uuid.NewString(),
		Kind:    payload.Kind(),
		Payload: raw,
	})
	if err != nil {
		p.logger.Error("marshal event envelope", "kind", payload.Kind(), "error", err)
		return
	}

	if err := p.nc.Publish(p.Subject(payload.Kind()), data); err != nil {
		p.logger.Error("publish event", "subject", p.Subject(payload.Kind()), "error", err)
	}
}
