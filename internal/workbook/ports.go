// Package workbook defines the ports between spreadsheet readers and
// writers and the ingestion engine.
package workbook

import (
	"context"
	"io"

	"secureflow/internal/core"
)

type (
	// Sheet is one named worksheet. Rows returns every row in order,
	// header row first.
	Sheet interface {
		Name() string
		Rows() [][]core.Cell
	}

	// Workbook lists its worksheets in file order. LeadingIndex reports
	// whether the reader prepends a synthetic index slot to every row.
	Workbook interface {
		Sheets() []Sheet
		LeadingIndex() bool
	}

	// Source opens a workbook that does not come from an upload, such as
	// a hosted spreadsheet.
	Source interface {
		Open(ctx context.Context) (Workbook, error)
	}

	// ReportWriter renders tabular reports as a workbook file.
	ReportWriter interface {
		WriteReport(w io.Writer, reports ...Report) error
	}
)

// Report is one output worksheet with a header row.
type Report struct {
	Sheet  string
	Header []string
	Rows   [][]string
}
