package services

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"secureflow/internal/ingest"
	"secureflow/internal/storage"
)

type sheetSpec struct {
	name string
	rows [][]any
}

// buildXLSX renders sheets as an .xlsx file.
func buildXLSX(t *testing.T, sheets ...sheetSpec) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", s.name); err != nil {
				t.Fatal(err)
			}
		} else if _, err := f.NewSheet(s.name); err != nil {
			t.Fatal(err)
		}
		for r, row := range s.rows {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			if err != nil {
				t.Fatal(err)
			}
			values := row
			if err := f.SetSheetRow(s.name, cell, &values); err != nil {
				t.Fatal(err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

var installmentHeader = []any{"Cliente", "Apólice", "Parcela", "Data", "Total", "Seguradora", "Pagamento", "Status", "Data limite"}

func newRepo(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "secureflow.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

// clock is a settable time source shared by the ingestor and services.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", s)
	if err != nil {
		panic(err)
	}
	return t
}

type published struct {
	batchID, kind    string
	sheets, inserted int
}

type fakePublisher struct {
	events []published
	err    error
}

func (p *fakePublisher) PublishImportCompleted(_ context.Context, batchID, kind string, sheets, inserted int) error {
	p.events = append(p.events, published{batchID, kind, sheets, inserted})
	return p.err
}

func newImportService(repo *storage.SQLiteRepository, c *clock, pub ImportPublisher) *ImportService {
	return NewImportService(ingest.NewIngestor(repo, ingest.WithClock(c.Now)), pub, nil)
}

func xlsxReader(b []byte) *bytes.Reader { return bytes.NewReader(b) }
