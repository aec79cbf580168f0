package ingest

import (
	"errors"
	"fmt"
)

// ErrMissingFile is returned when an import request carries no workbook.
var ErrMissingFile = errors.New("Nenhum arquivo enviado")

// MalformedCellError reports a cell that could not be coerced to any
// storable value, not even a string. It aborts the whole batch.
type MalformedCellError struct {
	Sheet  string
	Row    int // 1-based, as shown by spreadsheet tools
	Column string
	Err    error
}

func (e *MalformedCellError) Error() string {
	return fmt.Sprintf("malformed cell %s!%s row %d: %v", e.Sheet, e.Column, e.Row, e.Err)
}

func (e *MalformedCellError) Unwrap() error { return e.Err }

// StorageError wraps a failure of the store while writing a batch.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IngestError is the single error an import surfaces. It carries the
// position of the first failing row, when there is one.
type IngestError struct {
	Kind  string
	Sheet string
	Row   int
	Err   error
}

func (e *IngestError) Error() string {
	if e.Sheet == "" {
		return fmt.Sprintf("import %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("import %s: sheet %q row %d: %v", e.Kind, e.Sheet, e.Row, e.Err)
}

func (e *IngestError) Unwrap() error { return e.Err }
