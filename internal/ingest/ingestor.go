package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"secureflow/internal/core"
	"secureflow/internal/log"
	"secureflow/internal/workbook"
)

// Result summarizes a committed import.
type Result struct {
	Kind     core.RecordKind `json:"kind"`
	BatchID  string          `json:"batch_id"`
	Sheets   int             `json:"sheets"`
	Inserted int             `json:"inserted"`
	OK       bool            `json:"ok"`
	Message  string          `json:"msg"`
}

var messages = map[core.RecordKind]string{
	core.Renewals:     "Renovações importadas!",
	core.NewContracts: "Novos importados!",
	core.Installments: "Parcelas importadas!",
}

// Ingestor writes whole workbooks into the store, one transaction per call.
type Ingestor struct {
	store  core.Transactor
	now    func() time.Time
	newID  func() string
	logger *log.Logger
}

type Option func(*Ingestor)

// WithClock replaces the wall clock used for creation stamps and for the
// prior reference day of installment reconciliation.
func WithClock(now func() time.Time) Option {
	return func(i *Ingestor) { i.now = now }
}

func WithLogger(l *log.Logger) Option {
	return func(i *Ingestor) { i.logger = l }
}

func NewIngestor(store core.Transactor, opts ...Option) *Ingestor {
	i := &Ingestor{
		store:  store,
		now:    time.Now,
		newID:  uuid.NewString,
		logger: log.Discard(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// staged is a mapped row waiting for the transaction.
type staged struct {
	sheet string
	row   int
	rec   core.Record
}

// Ingest maps every data row of wb onto the kind's schema and stores them
// atomically. Header rows are skipped. Any failure rolls back the whole
// workbook and is returned as *IngestError.
func (i *Ingestor) Ingest(ctx context.Context, wb workbook.Workbook, kind core.RecordKind) (Result, error) {
	schema, err := core.SchemaFor(kind)
	if err != nil {
		return Result{}, &IngestError{Kind: string(kind), Err: err}
	}
	if wb == nil {
		return Result{}, &IngestError{Kind: string(kind), Err: ErrMissingFile}
	}

	now := i.now()
	res := Result{Kind: kind, BatchID: i.newID()}
	logger := i.logger.With(log.FieldKind, string(kind), log.FieldBatchID, res.BatchID)

	batch, err := i.stage(wb, schema, now, res.BatchID)
	if err != nil {
		logger.WarnContext(ctx, "Import rejected", log.FieldError, err)
		return Result{}, err
	}

	priorDay := PriorPeriodLabel(now)
	err = i.store.WithTx(ctx, func(tx core.Tx) error {
		resolver := NewResolver(tx)
		for _, s := range batch {
			if kind == core.Installments {
				f := s.rec.Fields
				status, due, err := resolver.Resolve(ctx, core.KeyOf(f),
					f[core.InstallmentStatusIdx], f[core.InstallmentDueLimitIdx], priorDay)
				if err != nil {
					return &IngestError{Kind: string(kind), Sheet: s.sheet, Row: s.row, Err: &StorageError{Op: "reconcile", Err: err}}
				}
				f[core.InstallmentStatusIdx] = status
				f[core.InstallmentDueLimitIdx] = due
			}
			if _, err := tx.InsertRecord(ctx, s.rec); err != nil {
				return &IngestError{Kind: string(kind), Sheet: s.sheet, Row: s.row, Err: &StorageError{Op: "insert", Err: err}}
			}
		}
		return nil
	})
	if err != nil {
		var ie *IngestError
		if !errors.As(err, &ie) {
			err = &IngestError{Kind: string(kind), Err: &StorageError{Op: "commit", Err: err}}
		}
		logger.ErrorContext(ctx, "Import rolled back", log.FieldError, err)
		return Result{}, err
	}

	res.Sheets = len(wb.Sheets())
	res.Inserted = len(batch)
	res.OK = true
	res.Message = Message(kind)
	logger.InfoContext(ctx, "Import committed", log.FieldSheets, res.Sheets, log.FieldInserted, res.Inserted)
	return res, nil
}

// stage maps every data row before the transaction opens, so a malformed
// cell rejects the workbook without touching the store. Readers keep blank
// rows in place, so n+1 is the sheet row number; blank rows are skipped here.
func (i *Ingestor) stage(wb workbook.Workbook, schema core.Schema, now time.Time, batchID string) ([]staged, error) {
	created := now.Format(core.TimestampLayout)
	importedOn := ""
	if schema.Kind == core.Installments {
		importedOn = now.Format(core.DateLayout)
	}

	skipIndex := wb.LeadingIndex()
	var batch []staged
	for _, sheet := range wb.Sheets() {
		period := Tag(sheet.Name())
		for n, cells := range sheet.Rows() {
			if n == 0 || blankRow(cells, skipIndex) {
				continue
			}
			fields := MapRow(cells, schema, skipIndex)
			for col, v := range fields {
				if v.IsInvalid() {
					return nil, &IngestError{
						Kind:  string(schema.Kind),
						Sheet: sheet.Name(),
						Row:   n + 1,
						Err:   &MalformedCellError{Sheet: sheet.Name(), Row: n + 1, Column: columnName(col), Err: v.Err()},
					}
				}
			}
			batch = append(batch, staged{
				sheet: sheet.Name(),
				row:   n + 1,
				rec: core.Record{
					Kind:       schema.Kind,
					Fields:     fields,
					Period:     period,
					ImportedOn: importedOn,
					BatchID:    batchID,
					CreatedAt:  created,
				},
			})
		}
	}
	return batch, nil
}

func blankRow(cells []core.Cell, skipIndex bool) bool {
	if skipIndex && len(cells) > 0 {
		cells = cells[1:]
	}
	for _, c := range cells {
		if !c.IsEmpty() {
			return false
		}
	}
	return true
}

// columnName is the spreadsheet letter of a schema position. A leading
// index slot is not a real column, so it does not shift letters.
func columnName(field int) string {
	n := field + 1
	name, err := excelize.ColumnNumberToName(n)
	if err != nil {
		return strconv.Itoa(n)
	}
	return name
}

// Message returns the user-facing confirmation of an import of kind.
func Message(kind core.RecordKind) string {
	if m, ok := messages[kind]; ok {
		return m
	}
	return fmt.Sprintf("%s importados!", kind)
}
