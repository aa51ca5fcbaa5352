package database

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultRelaySource = "adlibrary-sync"

// RedisClient is the subset of the go-redis client the relay needs.
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
}

type OutboxRepo interface {
	GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, err error) error
}

// Relay moves committed outbox rows onto their Redis streams. A row is marked
// processed only after XAdd succeeded, so delivery is at-least-once.
type Relay struct {
	redis     RedisClient
	outbox    OutboxRepo
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
	source    string
}

type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	// Source is reported in every message's metadata.
	Source string
}

func NewRelay(outbox OutboxRepo, redisClient RedisClient, logger *slog.Logger, config RelayConfig) *Relay {
	if config.PollInterval <= 0 {
		config.PollInterval = 5 * time.Second
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.Source == "" {
		config.Source = defaultRelaySource
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Relay{
		redis:     redisClient,
		outbox:    outbox,
		logger:    logger.With("component", "relay"),
		interval:  config.PollInterval,
		batchSize: config.BatchSize,
		source:    config.Source,
	}
}

// Start drains the outbox once, then again on every tick until ctx is done.
func (r *Relay) Start(ctx context.Context) error {
	r.logger.Info("starting relay", "interval", r.interval, "batch_size", r.batchSize)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		published, failed, err := r.drain(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			r.logger.Error("failed to drain outbox", "error", err)
		case published+failed > 0:
			r.logger.Debug("outbox batch relayed", "published", published, "failed", failed)
		}

		select {
		case <-ctx.Done():
			r.logger.Info("relay stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// drain relays one batch. A failing event is marked failed and does not stop
// the rest of the batch.
func (r *Relay) drain(ctx context.Context) (published, failed int, err error) {
	batch, err := r.outbox.GetPending(ctx, r.batchSize)
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to get pending events")
	}

	for _, event := range batch {
		if err := r.relay(ctx, event); err != nil {
			failed++
			r.logger.Error("failed to relay event",
				"event_id", event.ID,
				"aggregate_id", event.AggregateID,
				"error", err)
			continue
		}
		published++
	}

	return published, failed, nil
}

func (r *Relay) relay(ctx context.Context, event *OutboxEvent) error {
	values, err := r.streamValues(event)
	if err == nil {
		err = r.redis.XAdd(ctx, &redis.XAddArgs{Stream: event.TargetStream, Values: values}).Err()
		if err != nil {
			err = errors.Wrap(err, "failed to publish to redis")
		}
	}

	if err != nil {
		if markErr := r.outbox.MarkFailed(ctx, event.ID, err); markErr != nil {
			err = errors.WithSecondaryError(err, markErr)
		}
		return err
	}

	if err := r.outbox.MarkProcessed(ctx, event.ID); err != nil {
		return errors.Wrapf(err, "event %s published but not marked processed", event.ID)
	}

	r.logger.Debug("event published",
		"event_id", event.ID,
		"event_type", event.EventType,
		"target_stream", event.TargetStream)
	return nil
}

// streamEnvelope is the JSON carried in a stream message's "data" field.
type streamEnvelope struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     string          `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
	Metadata      streamMetadata  `json:"metadata"`
}

type streamMetadata struct {
	Source       string `json:"source"`
	OutboxID     string `json:"outbox_id"`
	RetryCount   int    `json:"retry_count"`
	TargetStream string `json:"target_stream"`
}

// streamValues builds the flat field map of one stream message. Consumers
// filter on event_type and decode data.
func (r *Relay) streamValues(event *OutboxEvent) (map[string]interface{}, error) {
	if !json.Valid(event.Payload) {
		return nil, errors.Newf("event %s has an invalid payload", event.ID)
	}

	data, err := json.Marshal(streamEnvelope{
		ID:            event.ID.String(),
		Type:          event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Timestamp:     event.CreatedAt.UTC().Format(time.RFC3339),
		Payload:       event.Payload,
		Metadata: streamMetadata{
			Source:       r.source,
			OutboxID:     event.ID.String(),
			RetryCount:   event.RetryCount,
			TargetStream: event.TargetStream,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal stream envelope")
	}

	return map[string]interface{}{
		"data":           string(data),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID,
		"original_id":    event.ID.String(),
		"timestamp":      strconv.FormatInt(event.CreatedAt.UnixNano(), 10),
	}, nil
}
