package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maltedev/adlibrary-sync/internal/database"
	"github.com/maltedev/adlibrary-sync/internal/models"
)

type EventType string

const (
	EventTypeNewRecordDetected EventType = "NEW_RECORD_DETECTED"

	aggregateType = "record"
)

type NewRecordDetectedPayload struct {
	EventID      string         `json:"event_id"`
	EventType    string         `json:"event_type"`
	Timestamp    time.Time      `json:"timestamp"`
	RecordID     string         `json:"record_id"`
	CollectionID string         `json:"collection_id"`
	Attributes   map[string]any `json:"attributes"`
	Source       string         `json:"source"`
}

type OutboxWriter interface {
	InsertWithTx(ctx context.Context, tx pgx.Tx, event *database.OutboxEvent) error
}

// Publisher writes events to the transactional outbox. The relay delivers
// them to Redis once the surrounding transaction commits.
type Publisher struct {
	outbox OutboxWriter
	now    func() time.Time
	logger *slog.Logger
}

func NewPublisher(outbox OutboxWriter, logger *slog.Logger) *Publisher {
	return &Publisher{
		outbox: outbox,
		now:    time.Now,
		logger: logger.With("component", "event_publisher"),
	}
}

// PublishNewRecordTx queues a NEW_RECORD_DETECTED event inside tx.
func (p *Publisher) PublishNewRecordTx(ctx context.Context, tx pgx.Tx, rec models.Record) error {
	payload := NewRecordDetectedPayload{
		EventID:      uuid.New().String(),
		EventType:    string(EventTypeNewRecordDetected),
		Timestamp:    p.now().UTC(),
		RecordID:     rec.ID,
		CollectionID: rec.CollectionID,
		Attributes:   rec.Attributes,
		Source:       "adlibrary-sync",
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to marshal event")
	}

	event := &database.OutboxEvent{
		AggregateType: aggregateType,
		AggregateID:   rec.ID,
		EventType:     payload.EventType,
		Payload:       data,
		TargetStream:  database.RecordStream,
	}

	if err := p.outbox.InsertWithTx(ctx, tx, event); err != nil {
		return errors.Wrap(err, "failed to publish event")
	}

	p.logger.Debug("event written to outbox",
		"type", payload.EventType,
		"event_id", payload.EventID,
		"record_id", rec.ID,
		"outbox_id", event.ID,
	)

	return nil
}
