package audit

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/cascadehq/cascade/libs/events"
)

// Recorder is the persistence seam; *Repository satisfies it.
type Recorder interface {
	Record(ctx context.Context, eventType, actorID string, payload []byte) error
}

// Sink appends every consumed domain event to the audit log. Writes are
// idempotent from the domain's point of view: a redelivered event produces a
// duplicate audit row, which is acceptable for an append-only log.
type Sink struct {
	rec    Recorder
	logger *slog.Logger
}

func NewSink(rec Recorder, logger *slog.Logger) *Sink {
	return &Sink{rec: rec, logger: logger}
}

func (s *Sink) Handle(ctx context.Context, msg kafka.Message) error {
	if !events.ValidTopic(msg.Topic) {
		s.logger.Warn("event on unexpected topic ignored", "topic", msg.Topic)
		return nil
	}

	var payload map[string]any
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		s.logger.Warn("undecodable event skipped",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}

	// A failed insert is returned so the consumer loop logs it and moves on;
	// losing an audit row is preferable to stalling the partition.
	return s.rec.Record(ctx, msg.Topic, actorID(payload), msg.Value)
}

// actorID pulls the acting user out of the payload. Board events carry
// ownerId, user events carry userId; task events carry neither.
func actorID(payload map[string]any) string {
	if v, ok := payload["userId"].(string); ok {
		return v
	}
	if v, ok := payload["ownerId"].(string); ok {
		return v
	}
	return ""
}
