package ingest

import (
	"context"

	"github.com/maltedev/adlibrary-sync/internal/models"
)

type RecordWriter interface {
	Write(ctx context.Context, rec models.Record) error
}

// StoreSink writes every record through to a store, overwriting by id. New
// and known records are written alike so mutable fields stay current.
type StoreSink struct {
	writer RecordWriter
}

func NewStoreSink(w RecordWriter) *StoreSink {
	return &StoreSink{writer: w}
}

func (s *StoreSink) OnRecord(ctx context.Context, rec models.Record, _ bool) error {
	return s.writer.Write(ctx, rec)
}
