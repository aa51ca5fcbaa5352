package events

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/adlibrary-sync/internal/database"
)

// memoryOutbox stands in for the outbox table: rows written by the publisher
// are handed to the relay once.
type memoryOutbox struct {
	mu        sync.Mutex
	rows      []*database.OutboxEvent
	processed []uuid.UUID
}

func (o *memoryOutbox) InsertWithTx(ctx context.Context, tx pgx.Tx, event *database.OutboxEvent) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	event.ID = uuid.New()
	event.Status = database.OutboxStatusPending
	event.CreatedAt = time.Now()
	o.rows = append(o.rows, event)
	return nil
}

func (o *memoryOutbox) GetPending(ctx context.Context, limit int) ([]*database.OutboxEvent, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	rows := o.rows
	o.rows = nil
	return rows, nil
}

func (o *memoryOutbox) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.processed = append(o.processed, id)
	return nil
}

func (o *memoryOutbox) MarkFailed(ctx context.Context, id uuid.UUID, err error) error {
	return err
}

type capturedStream struct {
	messages chan redis.XMessage
}

func (c *capturedStream) XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd {
	values := args.Values.(map[string]interface{})
	c.messages <- redis.XMessage{ID: "1-0", Values: values}

	cmd := redis.NewStringCmd(ctx)
	cmd.SetVal("1-0")
	return cmd
}

func TestNewRecordEvent_ReachesStreamConsumer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	outbox := &memoryOutbox{}
	publisher := NewPublisher(outbox, slog.Default())
	rec := testRecord()
	require.NoError(t, publisher.PublishNewRecordTx(ctx, nil, rec))

	stream := &capturedStream{messages: make(chan redis.XMessage, 1)}
	relay := database.NewRelay(outbox, stream, slog.Default(), database.RelayConfig{PollInterval: 10 * time.Millisecond})
	go func() { _ = relay.Start(ctx) }()

	var msg redis.XMessage
	select {
	case msg = <-stream.messages:
	case <-time.After(time.Second):
		t.Fatal("event was not relayed")
	}

	assert.Equal(t, "record", msg.Values["aggregate_type"])
	assert.Equal(t, rec.ID, msg.Values["aggregate_id"])

	payload, ok, err := decodeMessage(msg)
	require.NoError(t, err)
	require.True(t, ok, "NEW_RECORD_DETECTED must be handled by the consumer")

	assert.Equal(t, rec.ID, payload.RecordID)
	assert.Equal(t, rec.CollectionID, payload.CollectionID)
	assert.Equal(t, "Example", payload.Attributes["page_name"])
	assert.Equal(t, string(EventTypeNewRecordDetected), payload.EventType)
	assert.NotEmpty(t, payload.EventID)
}
