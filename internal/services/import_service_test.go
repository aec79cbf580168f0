package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"secureflow/internal/core"
	"secureflow/internal/ingest"
	"secureflow/internal/storage"
)

func TestImportFileStoresRowsAndPublishes(t *testing.T) {
	repo := newRepo(t)
	c := &clock{t: day("2024-05-01 09:00")}
	pub := &fakePublisher{}
	svc := newImportService(repo, c, pub)

	var notified []core.RecordKind
	svc.OnImport(func(k core.RecordKind) { notified = append(notified, k) })

	file := buildXLSX(t,
		sheetSpec{"2024-03", [][]any{
			{"Gestor", "Seguradora"},
			{true, "Porto"},
			{false, "Allianz"},
		}},
		sheetSpec{"2024-04", [][]any{
			{"Gestor", "Seguradora"},
			{nil, "Tokio"},
		}},
	)

	res, err := svc.ImportFile(context.Background(), core.Renewals, xlsxReader(file))
	if err != nil {
		t.Fatalf("ImportFile: %v", err)
	}
	if !res.OK || res.Message != "Renovações importadas!" || res.Inserted != 3 || res.Sheets != 2 {
		t.Errorf("unexpected result %+v", res)
	}

	recs, err := repo.List(context.Background(), core.Renewals, storage.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d rows, want 3", len(recs))
	}
	if recs[0].Period != "2024-04" || recs[1].Get("seguradora_novo").String() != "Porto" {
		t.Errorf("unexpected order %v / %v", recs[0].Period, recs[1].Get("seguradora_novo"))
	}

	if len(pub.events) != 1 || pub.events[0].batchID != res.BatchID || pub.events[0].inserted != 3 {
		t.Errorf("published %+v", pub.events)
	}
	if len(notified) != 1 || notified[0] != core.Renewals {
		t.Errorf("listeners got %v", notified)
	}
}

func TestImportFileReimportDuplicates(t *testing.T) {
	repo := newRepo(t)
	svc := newImportService(repo, &clock{t: day("2024-05-01 09:00")}, nil)
	file := buildXLSX(t, sheetSpec{"2024-05", [][]any{
		{"Gestor", "Data", "Seguradora"},
		{"Ana", "2024-05-03", "Porto"},
		{"Bia", "2024-05-04", "HDI"},
	}})

	for i := 0; i < 2; i++ {
		if _, err := svc.ImportFile(context.Background(), core.NewContracts, xlsxReader(file)); err != nil {
			t.Fatalf("import %d: %v", i+1, err)
		}
	}
	n, err := repo.Count(context.Background(), core.NewContracts)
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("count = %d, want 4", n)
	}
}

func TestImportFileErrors(t *testing.T) {
	repo := newRepo(t)
	svc := newImportService(repo, &clock{t: day("2024-05-01 09:00")}, nil)

	if _, err := svc.ImportFile(context.Background(), core.Installments, nil); !errors.Is(err, ingest.ErrMissingFile) {
		t.Errorf("nil file err = %v", err)
	}

	_, err := svc.ImportFile(context.Background(), core.Installments, strings.NewReader("not a workbook"))
	var ie *ingest.IngestError
	if !errors.As(err, &ie) {
		t.Fatalf("garbage err = %v, want *IngestError", err)
	}

	file := buildXLSX(t, sheetSpec{"x", [][]any{{"h"}, {"v"}}})
	if _, err := svc.ImportFile(context.Background(), core.RecordKind("sinistros"), xlsxReader(file)); !errors.Is(err, core.ErrUnknownKind) {
		t.Errorf("unknown kind err = %v", err)
	}

	if n, _ := repo.Count(context.Background(), core.Installments); n != 0 {
		t.Errorf("failed imports stored %d rows", n)
	}
}

func TestImportPublishFailureIsNotFatal(t *testing.T) {
	repo := newRepo(t)
	pub := &fakePublisher{err: errors.New("circuit breaker is open")}
	svc := newImportService(repo, &clock{t: day("2024-05-01 09:00")}, pub)

	file := buildXLSX(t, sheetSpec{"2024-05-01", [][]any{installmentHeader, {"ACME", "P-1", 1}}})
	res, err := svc.ImportFile(context.Background(), core.Installments, xlsxReader(file))
	if err != nil {
		t.Fatalf("ImportFile: %v", err)
	}
	if res.Inserted != 1 || len(pub.events) != 1 {
		t.Errorf("result %+v, events %+v", res, pub.events)
	}
}

// Day one imports an installment, the broker marks it paid, day two's
// export arrives without status and inherits the edit.
func TestInstallmentEditsCarryToNextDay(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	c := &clock{t: day("2024-05-01 08:00")}
	imports := newImportService(repo, c, nil)
	records := NewRecordService(repo, nil)

	day1 := buildXLSX(t, sheetSpec{"2024-05-01", [][]any{
		installmentHeader,
		{"ACME", "P-123", 1, "2024-05-05", 250.5, "Porto", "Boleto", "pendente", nil},
		{"Beta", "P-9", 2, "2024-05-07", 99, "HDI", "Pix", nil, nil},
	}})
	if _, err := imports.ImportFile(ctx, core.Installments, xlsxReader(day1)); err != nil {
		t.Fatalf("day 1: %v", err)
	}

	first, err := records.List(ctx, core.Installments, storage.Filter{Period: "2024-05-01"})
	if err != nil || len(first) != 2 {
		t.Fatalf("day 1 rows = %d, err %v", len(first), err)
	}
	if got := first[1].Get("status").String(); got != "pendente" {
		t.Errorf("missing status should default to pendente, got %q", got)
	}

	edit := core.InstallmentEdit{Status: core.Text("pago"), DueLimit: core.Text("2024-05-10")}
	if err := records.UpdateInstallment(ctx, first[0].ID, edit); err != nil {
		t.Fatalf("edit: %v", err)
	}

	c.Set(day("2024-05-02 08:00"))
	day2 := buildXLSX(t, sheetSpec{"2024-05-02", [][]any{
		installmentHeader,
		{"ACME", "P-123", 1, "2024-05-05", 250.5, "Porto", "Boleto", nil, nil},
		{"Beta", "P-9", 2, "2024-05-07", 99, "HDI", "Pix", "notificado", nil},
		{"Gamma", "P-77", 1, "2024-05-08", 120, "Allianz", "Pix", "notificado", nil},
	}})
	if _, err := imports.ImportFile(ctx, core.Installments, xlsxReader(day2)); err != nil {
		t.Fatalf("day 2: %v", err)
	}

	second, err := records.List(ctx, core.Installments, storage.Filter{Period: "2024-05-02"})
	if err != nil || len(second) != 3 {
		t.Fatalf("day 2 rows = %d, err %v", len(second), err)
	}
	if s, d := second[0].Get("status").String(), second[0].Get("data_limite").String(); s != "pago" || d != "2024-05-10" {
		t.Errorf("carried = %q/%q, want pago/2024-05-10", s, d)
	}
	if s := second[1].Get("status").String(); s != "pendente" {
		t.Errorf("stored status should win over the fresh one, got %q", s)
	}
	if s := second[2].Get("status").String(); s != "notificado" {
		t.Errorf("fresh status without a prior row = %q", s)
	}
	if second[0].ImportedOn != "2024-05-02" {
		t.Errorf("imported on = %q", second[0].ImportedOn)
	}

	again, err := records.List(ctx, core.Installments, storage.Filter{Period: "2024-05-01"})
	if err != nil {
		t.Fatal(err)
	}
	if s := again[0].Get("status").String(); s != "pago" || again[0].UpdatedAt == "" {
		t.Errorf("day-one row = %q updated %q", s, again[0].UpdatedAt)
	}
}
