package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"github.com/maltedev/adlibrary-sync/internal/database"
)

// StreamClient is the subset of go-redis the consumer needs.
type StreamClient interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

type Handler func(ctx context.Context, payload NewRecordDetectedPayload) error

type ConsumerConfig struct {
	Stream   string
	Group    string
	Consumer string
	Block    time.Duration
}

// Consumer reads NEW_RECORD_DETECTED events from a Redis stream using a
// consumer group. A message is acknowledged once the handler succeeds.
type Consumer struct {
	redis   StreamClient
	cfg     ConsumerConfig
	handler Handler
	logger  *slog.Logger
}

func NewConsumer(client StreamClient, cfg ConsumerConfig, handler Handler, logger *slog.Logger) *Consumer {
	if cfg.Stream == "" {
		cfg.Stream = database.RecordStream
	}
	if cfg.Group == "" {
		cfg.Group = "adsync-watchers"
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "watcher-1"
	}
	if cfg.Block == 0 {
		cfg.Block = 5 * time.Second
	}
	return &Consumer{
		redis:   client,
		cfg:     cfg,
		handler: handler,
		logger:  logger.With("component", "stream_consumer"),
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	err := c.redis.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return errors.Wrap(err, "failed to create consumer group")
	}

	c.logger.Info("starting consumer", "stream", c.cfg.Stream, "group", c.cfg.Group)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		streams, err := c.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.cfg.Group,
			Consumer: c.cfg.Consumer,
			Streams:  []string{c.cfg.Stream, ">"},
			Count:    10,
			Block:    c.cfg.Block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("failed to read from stream", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				c.handle(ctx, msg)
			}
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg redis.XMessage) {
	payload, ok, err := decodeMessage(msg)
	if err != nil {
		c.logger.Error("failed to decode message", "id", msg.ID, "error", err)
		return
	}

	if ok {
		if err := c.handler(ctx, payload); err != nil {
			c.logger.Error("failed to handle message", "id", msg.ID, "error", err)
			return
		}
	}

	if err := c.redis.XAck(ctx, c.cfg.Stream, c.cfg.Group, msg.ID).Err(); err != nil {
		c.logger.Error("failed to acknowledge message", "id", msg.ID, "error", err)
	}
}

// decodeMessage unwraps the relay's envelope. ok is false for other event
// types, which are acknowledged without handling.
func decodeMessage(msg redis.XMessage) (NewRecordDetectedPayload, bool, error) {
	var payload NewRecordDetectedPayload

	eventType, _ := msg.Values["event_type"].(string)
	if eventType != string(EventTypeNewRecordDetected) {
		return payload, false, nil
	}

	data, ok := msg.Values["data"].(string)
	if !ok {
		return payload, false, errors.New("missing data field")
	}

	var envelope struct {
		Payload NewRecordDetectedPayload `json:"payload"`
	}
	if err := json.Unmarshal([]byte(data), &envelope); err != nil {
		return payload, false, errors.Wrap(err, "failed to parse envelope")
	}
	if envelope.Payload.RecordID == "" {
		return payload, false, errors.New("missing record id in payload")
	}

	return envelope.Payload, true, nil
}
