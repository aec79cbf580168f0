package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"secureflow/internal/core"
	"secureflow/internal/log"
	"secureflow/internal/storage"
)

// RecordStore is the storage surface the record, export and dashboard
// operations need. *storage.SQLiteRepository satisfies it.
type RecordStore interface {
	List(ctx context.Context, kind core.RecordKind, f storage.Filter) ([]core.Record, error)
	Get(ctx context.Context, kind core.RecordKind, id int64) (core.Record, error)
	Periods(ctx context.Context, kind core.RecordKind) ([]string, error)
	Count(ctx context.Context, kind core.RecordKind) (int64, error)
	CountCreatedOn(ctx context.Context, kind core.RecordKind, day string) (int64, error)
	CountInstallmentsByStatus(ctx context.Context, referenceDay string) (map[string]int64, error)
	UpdateRenewal(ctx context.Context, id int64, e core.RenewalEdit) error
	UpdateInstallment(ctx context.Context, id int64, e core.InstallmentEdit) error
	UpdateNewContract(ctx context.Context, id int64, in core.NewContractInput) error
	CreateNewContract(ctx context.Context, in core.NewContractInput, period string) (core.Record, error)
}

// RecordService lists and edits stored rows.
type RecordService struct {
	store     RecordStore
	now       func() time.Time
	logger    *log.Logger
	listeners []func(core.RecordKind)
}

func NewRecordService(store RecordStore, logger *log.Logger) *RecordService {
	if logger == nil {
		logger = log.Discard()
	}
	return &RecordService{
		store:  store,
		now:    time.Now,
		logger: logger.WithComponent(log.ComponentRecords),
	}
}

// OnChange registers fn to run after every successful edit.
func (s *RecordService) OnChange(fn func(core.RecordKind)) {
	s.listeners = append(s.listeners, fn)
}

func (s *RecordService) changed(kind core.RecordKind) {
	for _, fn := range s.listeners {
		fn(kind)
	}
}

func (s *RecordService) List(ctx context.Context, kind core.RecordKind, f storage.Filter) ([]core.Record, error) {
	recs, err := s.store.List(ctx, kind, f)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	if recs == nil {
		recs = []core.Record{}
	}
	return recs, nil
}

func (s *RecordService) Periods(ctx context.Context, kind core.RecordKind) ([]string, error) {
	return s.store.Periods(ctx, kind)
}

func (s *RecordService) UpdateRenewal(ctx context.Context, id int64, e core.RenewalEdit) error {
	if err := s.store.UpdateRenewal(ctx, id, e); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Renewal updated", recordFields(core.Renewals, id, log.OpUpdate)...)
	s.changed(core.Renewals)
	return nil
}

// UpdateInstallment rejects statuses outside pendente, pago and notificado.
func (s *RecordService) UpdateInstallment(ctx context.Context, id int64, e core.InstallmentEdit) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if err := s.store.UpdateInstallment(ctx, id, e); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Installment updated",
		append(recordFields(core.Installments, id, log.OpUpdate), "status", e.Status.String())...)
	s.changed(core.Installments)
	return nil
}

func (s *RecordService) UpdateNewContract(ctx context.Context, id int64, in core.NewContractInput) error {
	if err := s.store.UpdateNewContract(ctx, id, in); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "New contract updated", recordFields(core.NewContracts, id, log.OpUpdate)...)
	s.changed(core.NewContracts)
	return nil
}

// CreateNewContract stores a hand-entered contract. An empty period files
// it under the current month.
func (s *RecordService) CreateNewContract(ctx context.Context, in core.NewContractInput, period string) (core.Record, error) {
	if period == "" {
		period = s.now().Format("2006-01")
	}
	rec, err := s.store.CreateNewContract(ctx, in, period)
	if err != nil {
		return core.Record{}, fmt.Errorf("create new contract: %w", err)
	}
	s.logger.InfoContext(ctx, "New contract created", recordFields(core.NewContracts, rec.ID, log.OpCreate)...)
	s.changed(core.NewContracts)
	return rec, nil
}

// Dashboard summarizes the three feeds.
type Dashboard struct {
	Renewals     int64            `json:"renovacoes"`
	NewContracts int64            `json:"novos"`
	Installments int64            `json:"parcelas"`
	CreatedToday int64            `json:"alteracoes_hoje"`
	ByStatus     map[string]int64 `json:"parcelas_por_status"`
}

// Dashboard runs the counts concurrently.
func (s *RecordService) Dashboard(ctx context.Context) (Dashboard, error) {
	today := s.now().Format(core.DateLayout)
	kinds := core.Kinds()
	totals := make([]int64, len(kinds))
	created := make([]int64, len(kinds))
	var byStatus map[string]int64

	g, ctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		g.Go(func() error {
			n, err := s.store.Count(ctx, kind)
			totals[i] = n
			return err
		})
		g.Go(func() error {
			n, err := s.store.CountCreatedOn(ctx, kind, today)
			created[i] = n
			return err
		})
	}
	g.Go(func() error {
		m, err := s.store.CountInstallmentsByStatus(ctx, "")
		byStatus = m
		return err
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, fmt.Errorf("dashboard counts: %w", err)
	}

	d := Dashboard{
		Renewals:     totals[0],
		NewContracts: totals[1],
		Installments: totals[2],
		ByStatus:     byStatus,
	}
	for _, n := range created {
		d.CreatedToday += n
	}
	return d, nil
}

func recordFields(kind core.RecordKind, id int64, op string) []any {
	return log.NewFields().WithRecord(string(kind), id).WithOperation(op).ToSlice()
}
