package events

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/maltedev/adlibrary-sync/internal/models"
)

type Transactor interface {
	Transaction(ctx context.Context, fn func(pgx.Tx) error) error
}

type RecordUpserter interface {
	UpsertTx(ctx context.Context, tx pgx.Tx, rec models.Record) (bool, error)
}

// RecordSink stores every record and, for records that are new to the run
// and to the table, queues a NEW_RECORD_DETECTED event in the same
// transaction.
type RecordSink struct {
	db        Transactor
	records   RecordUpserter
	publisher *Publisher
	logger    *slog.Logger
}

func NewRecordSink(db Transactor, records RecordUpserter, publisher *Publisher, logger *slog.Logger) *RecordSink {
	return &RecordSink{
		db:        db,
		records:   records,
		publisher: publisher,
		logger:    logger.With("component", "record_sink"),
	}
}

func (s *RecordSink) OnRecord(ctx context.Context, rec models.Record, isNew bool) error {
	return s.db.Transaction(ctx, func(tx pgx.Tx) error {
		inserted, err := s.records.UpsertTx(ctx, tx, rec)
		if err != nil {
			return err
		}

		if !isNew {
			return nil
		}
		if !inserted {
			s.logger.Debug("record already stored, no event", "record_id", rec.ID)
			return nil
		}

		return s.publisher.PublishNewRecordTx(ctx, tx, rec)
	})
}
