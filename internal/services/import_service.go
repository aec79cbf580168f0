package services

import (
	"context"
	"fmt"
	"io"

	"secureflow/internal/core"
	"secureflow/internal/ingest"
	"secureflow/internal/log"
	"secureflow/internal/workbook"
	"secureflow/internal/workbook/excel"
)

// ImportPublisher announces committed imports. *amqp.Client satisfies it.
type ImportPublisher interface {
	PublishImportCompleted(ctx context.Context, batchID, kind string, sheets, inserted int) error
}

// ImportService runs workbook imports and announces the committed ones.
type ImportService struct {
	ingestor  *ingest.Ingestor
	publisher ImportPublisher
	logger    *log.Logger
	listeners []func(core.RecordKind)
}

// NewImportService creates the service. publisher may be nil, in which case
// no events are published.
func NewImportService(ingestor *ingest.Ingestor, publisher ImportPublisher, logger *log.Logger) *ImportService {
	if logger == nil {
		logger = log.Discard()
	}
	return &ImportService{
		ingestor:  ingestor,
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentImport),
	}
}

// OnImport registers fn to run after every committed import, e.g. to
// invalidate cached counts.
func (s *ImportService) OnImport(fn func(core.RecordKind)) {
	s.listeners = append(s.listeners, fn)
}

// ImportFile reads an uploaded .xlsx stream and imports it. A nil reader
// means no file was sent.
func (s *ImportService) ImportFile(ctx context.Context, kind core.RecordKind, r io.Reader) (ingest.Result, error) {
	if r == nil {
		return ingest.Result{}, ingest.ErrMissingFile
	}
	wb, err := excel.Open(r)
	if err != nil {
		s.logger.WarnContext(ctx, "Unreadable workbook", log.FieldKind, string(kind), log.FieldError, err)
		return ingest.Result{}, &ingest.IngestError{Kind: string(kind), Err: err}
	}
	return s.Import(ctx, kind, wb)
}

// ImportSource fetches a workbook from src and imports it.
func (s *ImportService) ImportSource(ctx context.Context, kind core.RecordKind, src workbook.Source) (ingest.Result, error) {
	wb, err := src.Open(ctx)
	if err != nil {
		return ingest.Result{}, &ingest.IngestError{Kind: string(kind), Err: fmt.Errorf("open source: %w", err)}
	}
	return s.Import(ctx, kind, wb)
}

// Import stores wb. Publishing the event is best effort: the rows are
// already committed when it runs.
func (s *ImportService) Import(ctx context.Context, kind core.RecordKind, wb workbook.Workbook) (ingest.Result, error) {
	res, err := s.ingestor.Ingest(ctx, wb, kind)
	if err != nil {
		return res, err
	}

	for _, fn := range s.listeners {
		fn(kind)
	}

	if s.publisher == nil {
		return res, nil
	}
	if err := s.publisher.PublishImportCompleted(ctx, res.BatchID, string(kind), res.Sheets, res.Inserted); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish import event",
			log.FieldBatchID, res.BatchID,
			log.FieldError, err)
	}
	return res, nil
}
