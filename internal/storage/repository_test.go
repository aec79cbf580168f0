package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"secureflow/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	repo.now = func() time.Time { return time.Date(2024, 5, 2, 10, 30, 0, 0, time.UTC) }
	t.Cleanup(func() { repo.Close() })
	return repo
}

func installment(client, policy string, n float64, day, status, due string) core.Record {
	f := make([]core.Value, core.InstallmentSchema.Arity())
	f[0] = core.Text(client)
	f[1] = core.Text(policy)
	f[2] = core.Number(n)
	f[4] = core.Number(199.9)
	if status != "" {
		f[core.InstallmentStatusIdx] = core.Text(status)
	}
	if due != "" {
		f[core.InstallmentDueLimitIdx] = core.Text(due)
	}
	return core.Record{Kind: core.Installments, Fields: f, Period: day, ImportedOn: day, BatchID: "b1", CreatedAt: day + " 08:00:00"}
}

func insertAll(t *testing.T, repo *SQLiteRepository, recs ...core.Record) {
	t.Helper()
	err := repo.WithTx(context.Background(), func(tx core.Tx) error {
		for _, r := range recs {
			if _, err := tx.InsertRecord(context.Background(), r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestWithTxCommitsAndRollsBack(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	insertAll(t, repo, installment("A", "1", 1, "2024-05-01", "", ""))

	boom := errors.New("boom")
	err := repo.WithTx(ctx, func(tx core.Tx) error {
		if _, err := tx.InsertRecord(ctx, installment("B", "2", 1, "2024-05-01", "", "")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	n, err := repo.Count(ctx, core.Installments)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("count = %d, want 1 after rollback", n)
	}
}

func TestInsertAndListRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	fields := make([]core.Value, core.RenewalSchema.Arity())
	fields[1] = core.Text("Allianz")
	fields[2] = core.Number(12.5)
	fields[8] = core.Text("Cliente A")
	fields[16] = core.Number(123456)
	insertAll(t, repo,
		core.Record{Kind: core.Renewals, Fields: fields, Period: "2024-01", BatchID: "b1", CreatedAt: "2024-01-31 09:00:00"},
		core.Record{Kind: core.Renewals, Fields: fields, Period: "2024-03"},
		core.Record{Kind: core.Renewals, Fields: fields, Period: "2024-01"},
	)

	recs, err := repo.List(ctx, core.Renewals, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records", len(recs))
	}
	if recs[0].Period != "2024-03" || recs[1].ID != 1 || recs[2].ID != 3 {
		t.Errorf("unexpected order: %s/%d %s/%d %s/%d", recs[0].Period, recs[0].ID, recs[1].Period, recs[1].ID, recs[2].Period, recs[2].ID)
	}
	r := recs[1]
	if r.Get("seguradora_novo").String() != "Allianz" || !r.Get("comissao_novo").Equal(core.Number(12.5)) {
		t.Errorf("unexpected fields %v", r.Fields)
	}
	if got := r.Get("apolice"); !got.Equal(core.Text("123456")) {
		t.Errorf("policy in a text column = %v (%d)", got, got.Kind())
	}
	if !r.Get("observacao").IsNull() {
		t.Errorf("null field = %v", r.Get("observacao"))
	}
	if r.BatchID != "b1" || r.CreatedAt != "2024-01-31 09:00:00" {
		t.Errorf("stamps = %q %q", r.BatchID, r.CreatedAt)
	}
	if recs[0].CreatedAt != "2024-05-02 10:30:00" {
		t.Errorf("default creation stamp = %q", recs[0].CreatedAt)
	}
}

func TestListFilters(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	insertAll(t, repo,
		installment("A", "1", 1, "2024-04-30", "", ""),
		installment("A", "1", 1, "2024-05-01", "", ""),
		installment("A", "1", 1, "2024-05-02", "", ""),
		installment("A", "1", 1, "Planilha1", "", ""),
	)

	tests := []struct {
		name string
		f    Filter
		want []string
	}{
		{"period", Filter{Period: "2024-05-01"}, []string{"2024-05-01"}},
		{"range", Filter{From: "2024-05-01", To: "2024-05-31"}, []string{"2024-05-02", "2024-05-01"}},
		{"open end", Filter{From: "2024-05-02"}, []string{"Planilha1", "2024-05-02"}},
		{"open start", Filter{To: "2024-04-30"}, []string{"2024-04-30"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := repo.List(ctx, core.Installments, tt.f)
			if err != nil {
				t.Fatal(err)
			}
			var got []string
			for _, r := range recs {
				got = append(got, r.Period)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestListMonthLabelsInsideDayRange(t *testing.T) {
	repo := newTestRepo(t)
	fields := make([]core.Value, core.NewContractSchema.Arity())
	insertAll(t, repo,
		core.Record{Kind: core.NewContracts, Fields: fields, Period: "2024-02"},
		core.Record{Kind: core.NewContracts, Fields: fields, Period: "2024-03"},
		core.Record{Kind: core.NewContracts, Fields: fields, Period: "2024-05"},
	)
	recs, err := repo.List(context.Background(), core.NewContracts, Filter{From: "2024-02-15", To: "2024-03-10"})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || recs[0].Period != "2024-03" || recs[1].Period != "2024-02" {
		t.Fatalf("unexpected records %+v", recs)
	}
}

func TestPriorInstallmentPicksLatestOfDay(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	insertAll(t, repo,
		installment("A", "123", 1, "2024-05-01", "notificado", ""),
		installment("A", "123", 1, "2024-05-01", "pago", "2024-05-10"),
		installment("A", "123", 2, "2024-05-01", "pendente", ""),
		installment("A", "123", 1, "2024-04-30", "pendente", ""),
	)

	err := repo.WithTx(ctx, func(tx core.Tx) error {
		key := core.NaturalKey{Client: core.Text("A"), Policy: core.Number(123), Installment: core.Text("1")}
		st, found, err := tx.PriorInstallment(ctx, key, "2024-05-01")
		if err != nil {
			return err
		}
		if !found || st.Status.String() != "pago" || st.DueLimit.String() != "2024-05-10" {
			t.Errorf("prior = %+v found=%v", st, found)
		}

		_, found, err = tx.PriorInstallment(ctx, key, "2024-05-02")
		if err != nil {
			return err
		}
		if found {
			t.Error("no record should exist for 2024-05-02")
		}

		nullKey := core.NaturalKey{Client: core.Text("A"), Policy: core.Text("123")}
		_, found, err = tx.PriorInstallment(ctx, nullKey, "2024-05-01")
		if found {
			t.Error("null installment number must not match numbered rows")
		}
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestUpdates(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	insertAll(t, repo, installment("A", "1", 1, "2024-05-01", "", ""))

	if err := repo.UpdateInstallment(ctx, 1, core.InstallmentEdit{Status: core.Text("pago"), DueLimit: core.Text("2024-05-09")}); err != nil {
		t.Fatal(err)
	}
	rec, err := repo.Get(ctx, core.Installments, 1)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Get("status").String() != "pago" || rec.Get("data_limite").String() != "2024-05-09" {
		t.Errorf("unexpected record %v", rec.Fields)
	}
	if rec.UpdatedAt != "2024-05-02 10:30:00" {
		t.Errorf("updated_at = %q", rec.UpdatedAt)
	}

	if err := repo.UpdateInstallment(ctx, 99, core.InstallmentEdit{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := repo.Get(ctx, core.Installments, 99); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateRenewalStoresFlag(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	fields := make([]core.Value, core.RenewalSchema.Arity())
	fields[8] = core.Text("Cliente A")
	insertAll(t, repo, core.Record{Kind: core.Renewals, Fields: fields, Period: "2024-01"})

	edit := core.RenewalEdit{Confirmed: true, NewInsurer: core.Text("Tokio"), NewCommission: core.Number(15)}
	if err := repo.UpdateRenewal(ctx, 1, edit); err != nil {
		t.Fatal(err)
	}
	rec, err := repo.Get(ctx, core.Renewals, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !rec.Get("gestor_confirmado").Equal(core.Number(1)) || rec.Get("seguradora_novo").String() != "Tokio" {
		t.Errorf("unexpected fields %v", rec.Fields)
	}
	if rec.Get("cliente").String() != "Cliente A" {
		t.Error("edit must not touch source fields")
	}
}

func TestCreateAndUpdateNewContract(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	in := core.NewContractInput{Fields: []core.Value{core.Text("Ana"), core.Text("2024-05-02"), core.Text("Allianz")}}
	rec, err := repo.CreateNewContract(ctx, in, "2024-05")
	if err != nil {
		t.Fatal(err)
	}
	if rec.ID == 0 || rec.Period != "2024-05" || rec.Get("gestor").String() != "Ana" || len(rec.Fields) != 11 {
		t.Fatalf("unexpected record %+v", rec)
	}

	in.Fields[0] = core.Text("Bruno")
	if err := repo.UpdateNewContract(ctx, rec.ID, in); err != nil {
		t.Fatal(err)
	}
	got, err := repo.Get(ctx, core.NewContracts, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Get("gestor").String() != "Bruno" {
		t.Errorf("gestor = %q", got.Get("gestor"))
	}
}

func TestCountsAndPeriods(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	insertAll(t, repo,
		installment("A", "1", 1, "2024-05-01", "pago", ""),
		installment("B", "1", 1, "2024-05-01", "", ""),
		installment("C", "1", 1, "2024-05-02", "pendente", ""),
	)

	byStatus, err := repo.CountInstallmentsByStatus(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if byStatus["pago"] != 1 || byStatus["pendente"] != 2 {
		t.Errorf("by status = %v", byStatus)
	}
	day, err := repo.CountInstallmentsByStatus(ctx, "2024-05-02")
	if err != nil {
		t.Fatal(err)
	}
	if len(day) != 1 || day["pendente"] != 1 {
		t.Errorf("day counts = %v", day)
	}

	periods, err := repo.Periods(ctx, core.Installments)
	if err != nil {
		t.Fatal(err)
	}
	if len(periods) != 2 || periods[0] != "2024-05-02" {
		t.Errorf("periods = %v", periods)
	}
}

func TestCountCreatedOn(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	insertAll(t, repo,
		installment("A", "1", 1, "2024-05-01", "", ""),
		installment("B", "1", 1, "2024-05-01", "", ""),
		installment("C", "1", 1, "2024-05-02", "", ""),
	)

	n, err := repo.CountCreatedOn(ctx, core.Installments, "2024-05-01")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("created on 2024-05-01 = %d, want 2", n)
	}
	if n, _ := repo.CountCreatedOn(ctx, core.Renewals, "2024-05-01"); n != 0 {
		t.Errorf("renewals created = %d", n)
	}
	if _, err := repo.CountCreatedOn(ctx, core.RecordKind("x"), "2024-05-01"); !errors.Is(err, core.ErrUnknownKind) {
		t.Errorf("unknown kind err = %v", err)
	}
}
