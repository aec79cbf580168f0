package services

import (
	"context"
	"fmt"
	"io"

	"secureflow/internal/core"
	"secureflow/internal/log"
	"secureflow/internal/storage"
	"secureflow/internal/workbook"
)

var sheetTitles = map[core.RecordKind]string{
	core.Renewals:     "Renovações",
	core.NewContracts: "Novos",
	core.Installments: "Parcelas",
}

var periodTitles = map[core.RecordKind]string{
	core.Renewals:     "Mês de referência",
	core.NewContracts: "Mês de referência",
	core.Installments: "Dia de referência",
}

// ExportService renders stored rows of a period range as a report workbook.
type ExportService struct {
	store  RecordStore
	writer workbook.ReportWriter
	logger *log.Logger
}

func NewExportService(store RecordStore, writer workbook.ReportWriter, logger *log.Logger) *ExportService {
	if logger == nil {
		logger = log.Discard()
	}
	return &ExportService{
		store:  store,
		writer: writer,
		logger: logger.WithComponent(log.ComponentExport),
	}
}

// Export writes the rows of kind whose period label lies in [from, to] to
// w. Either bound may be empty. It returns the number of exported rows.
func (s *ExportService) Export(ctx context.Context, kind core.RecordKind, from, to string, w io.Writer) (int, error) {
	rep, err := s.Report(ctx, kind, from, to)
	if err != nil {
		return 0, err
	}
	if err := s.writer.WriteReport(w, rep); err != nil {
		return 0, fmt.Errorf("write %s report: %w", kind, err)
	}
	s.logger.InfoContext(ctx, "Report exported",
		log.FieldKind, string(kind),
		log.FieldPeriodFrom, from,
		log.FieldPeriodTo, to,
		"rows", len(rep.Rows))
	return len(rep.Rows), nil
}

// Report builds the report without rendering it.
func (s *ExportService) Report(ctx context.Context, kind core.RecordKind, from, to string) (workbook.Report, error) {
	schema, err := core.SchemaFor(kind)
	if err != nil {
		return workbook.Report{}, err
	}
	recs, err := s.store.List(ctx, kind, storage.Filter{From: from, To: to})
	if err != nil {
		return workbook.Report{}, fmt.Errorf("list %s: %w", kind, err)
	}

	header := make([]string, 0, schema.Arity()+2)
	for _, f := range schema.Fields {
		header = append(header, f.Title)
	}
	header = append(header, periodTitles[kind])
	if kind == core.Installments {
		header = append(header, "Data de importação")
	}

	rows := make([][]string, 0, len(recs))
	for _, rec := range recs {
		row := make([]string, 0, len(header))
		for i, f := range schema.Fields {
			var v core.Value
			if i < len(rec.Fields) {
				v = rec.Fields[i]
			}
			row = append(row, formatField(f.Format, v))
		}
		row = append(row, rec.Period)
		if kind == core.Installments {
			row = append(row, rec.ImportedOn)
		}
		rows = append(rows, row)
	}

	return workbook.Report{Sheet: sheetTitles[kind], Header: header, Rows: rows}, nil
}

func formatField(format core.FieldFormat, v core.Value) string {
	switch format {
	case core.FormatMoney:
		return core.RenderMoney(v)
	case core.FormatPercent:
		return core.RenderPercent(v)
	case core.FormatFlag:
		if v.IsNull() {
			return ""
		}
		if f, ok := v.Float(); ok && f != 0 {
			return "Sim"
		}
		if v.Kind() == core.KindBool && v.String() == "true" {
			return "Sim"
		}
		return "Não"
	default:
		return v.String()
	}
}
