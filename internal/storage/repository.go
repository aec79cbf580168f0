package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"secureflow/internal/core"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by reads and edits of an id that does not exist.
var ErrNotFound = errors.New("record not found")

// dsnOptions make writers wait for each other instead of failing with
// SQLITE_BUSY, and take the write lock when a transaction begins.
const dsnOptions = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// Filter narrows a listing. Period matches a label exactly; From and To
// bound it inclusively. Bounds are compared as strings, truncated to the
// label's length, so month labels ("2024-03") fall inside day ranges and
// labels that are not dates never fail the query.
type Filter struct {
	Period string
	From   string
	To     string
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	dsn := dbPath + "?" + dsnOptions

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// WithTx runs fn inside one write transaction. The transaction commits
// when fn returns nil and rolls back otherwise, including on panic.
func (r *SQLiteRepository) WithTx(ctx context.Context, fn func(core.Tx) error) (err error) {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&Tx{tx: sqlTx, now: r.now}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Rollback failed", "error", rbErr)
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Tx is the write side of one import batch.
type Tx struct {
	tx  *sql.Tx
	now func() time.Time
}

var _ core.Tx = (*Tx)(nil)

func (t *Tx) InsertRecord(ctx context.Context, rec core.Record) (int64, error) {
	return insertRecord(ctx, t.tx, rec, t.now)
}

func (t *Tx) PriorInstallment(ctx context.Context, key core.NaturalKey, referenceDay string) (core.InstallmentState, bool, error) {
	const q = `SELECT status, data_limite FROM parcelas_diarias
		WHERE cliente IS ? AND apolice IS ? AND parcela IS ? AND referencia_dia = ?
		ORDER BY id DESC LIMIT 1`

	var status, due any
	err := t.tx.QueryRowContext(ctx, q,
		key.Client.Any(), key.Policy.Any(), key.Installment.Any(), referenceDay,
	).Scan(&status, &due)
	if errors.Is(err, sql.ErrNoRows) {
		return core.InstallmentState{}, false, nil
	}
	if err != nil {
		return core.InstallmentState{}, false, fmt.Errorf("select prior installment: %w", err)
	}
	return core.InstallmentState{Status: core.FromAny(status), DueLimit: core.FromAny(due)}, true, nil
}

func insertRecord(ctx context.Context, q querier, rec core.Record, now func() time.Time) (int64, error) {
	schema, err := core.SchemaFor(rec.Kind)
	if err != nil {
		return 0, err
	}
	cols, args := recordColumns(schema, rec)
	if rec.CreatedAt == "" {
		args[len(args)-1] = now().Format(core.TimestampLayout)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		schema.Table, strings.Join(cols, ", "), placeholders(len(cols)))
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", schema.Table, err)
	}
	return res.LastInsertId()
}

// recordColumns lists the stored columns of rec with their bind values.
// data_criacao is always last.
func recordColumns(schema core.Schema, rec core.Record) ([]string, []any) {
	cols := append(schema.Columns(), schema.PeriodColumn)
	args := make([]any, 0, len(cols)+3)
	for i := range schema.Fields {
		v := core.Null
		if i < len(rec.Fields) {
			v = rec.Fields[i]
		}
		args = append(args, v.Any())
	}
	args = append(args, rec.Period)
	if schema.Kind == core.Installments {
		cols = append(cols, "data_importacao")
		args = append(args, nullString(rec.ImportedOn))
	}
	cols = append(cols, "lote_id", "data_criacao")
	args = append(args, nullString(rec.BatchID), rec.CreatedAt)
	return cols, args
}

func selectColumns(schema core.Schema) []string {
	cols := append([]string{"id"}, schema.Columns()...)
	cols = append(cols, schema.PeriodColumn)
	if schema.Kind == core.Installments {
		cols = append(cols, "data_importacao")
	}
	return append(cols, "lote_id", "data_criacao", "updated_at")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner, schema core.Schema) (core.Record, error) {
	cols := selectColumns(schema)
	raw := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range raw {
		dest[i] = &raw[i]
	}
	if err := s.Scan(dest...); err != nil {
		return core.Record{}, err
	}

	rec := core.Record{Kind: schema.Kind, Fields: make([]core.Value, schema.Arity())}
	id, _ := raw[0].(int64)
	rec.ID = id
	for i := range schema.Fields {
		rec.Fields[i] = core.FromAny(raw[1+i])
	}
	n := 1 + schema.Arity()
	rec.Period = asString(raw[n])
	n++
	if schema.Kind == core.Installments {
		rec.ImportedOn = asString(raw[n])
		n++
	}
	rec.BatchID = asString(raw[n])
	rec.CreatedAt = asString(raw[n+1])
	rec.UpdatedAt = asString(raw[n+2])
	return rec, nil
}

// List returns the records of a feed ordered by period label descending,
// rows of the same period in import order.
func (r *SQLiteRepository) List(ctx context.Context, kind core.RecordKind, f Filter) ([]core.Record, error) {
	schema, err := core.SchemaFor(kind)
	if err != nil {
		return nil, err
	}
	p := schema.PeriodColumn

	var (
		where []string
		args  []any
	)
	if f.Period != "" {
		where = append(where, p+" = ?")
		args = append(args, f.Period)
	}
	if f.From != "" {
		where = append(where, fmt.Sprintf("%s >= substr(?, 1, length(%s))", p, p))
		args = append(args, f.From)
	}
	if f.To != "" {
		where = append(where, fmt.Sprintf("%s <= substr(?, 1, length(%s))", p, p))
		args = append(args, f.To)
	}

	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(selectColumns(schema), ", "), schema.Table)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY %s DESC, id ASC", p)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", schema.Table, err)
	}
	defer rows.Close()

	var out []core.Record
	for rows.Next() {
		rec, err := scanRecord(rows, schema)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", schema.Table, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", schema.Table, err)
	}
	return out, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, kind core.RecordKind, id int64) (core.Record, error) {
	schema, err := core.SchemaFor(kind)
	if err != nil {
		return core.Record{}, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", strings.Join(selectColumns(schema), ", "), schema.Table)
	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, id), schema)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Record{}, fmt.Errorf("%s %d: %w", kind, id, ErrNotFound)
	}
	if err != nil {
		return core.Record{}, fmt.Errorf("get %s %d: %w", kind, id, err)
	}
	return rec, nil
}

// Periods returns the distinct period labels of a feed, newest first.
func (r *SQLiteRepository) Periods(ctx context.Context, kind core.RecordKind) ([]string, error) {
	schema, err := core.SchemaFor(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL ORDER BY 1 DESC",
		schema.PeriodColumn, schema.Table, schema.PeriodColumn)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list %s periods: %w", kind, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) Count(ctx context.Context, kind core.RecordKind) (int64, error) {
	schema, err := core.SchemaFor(kind)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+schema.Table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", schema.Table, err)
	}
	return n, nil
}

// CountInstallmentsByStatus groups the installments of one reference day,
// or of every day when referenceDay is empty. A null status counts as
// pendente.
func (r *SQLiteRepository) CountInstallmentsByStatus(ctx context.Context, referenceDay string) (map[string]int64, error) {
	query := `SELECT COALESCE(status, 'pendente'), COUNT(*) FROM parcelas_diarias`
	var args []any
	if referenceDay != "" {
		query += ` WHERE referencia_dia = ?`
		args = append(args, referenceDay)
	}
	query += ` GROUP BY 1`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count installments by status: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] += n
	}
	return out, rows.Err()
}

// CountCreatedOn counts the records of a feed created on day (YYYY-MM-DD).
func (r *SQLiteRepository) CountCreatedOn(ctx context.Context, kind core.RecordKind, day string) (int64, error) {
	schema, err := core.SchemaFor(kind)
	if err != nil {
		return 0, err
	}
	var n int64
	query := "SELECT COUNT(*) FROM " + schema.Table + " WHERE substr(data_criacao, 1, 10) = ?"
	if err := r.db.QueryRowContext(ctx, query, day).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s created on %s: %w", schema.Table, day, err)
	}
	return n, nil
}

func (r *SQLiteRepository) UpdateRenewal(ctx context.Context, id int64, e core.RenewalEdit) error {
	return r.update(ctx, core.RenewalSchema.Table, core.RenewalEditColumns, e.Values(), id)
}

func (r *SQLiteRepository) UpdateInstallment(ctx context.Context, id int64, e core.InstallmentEdit) error {
	return r.update(ctx, core.InstallmentSchema.Table, []string{"status", "data_limite"},
		[]core.Value{e.Status, e.DueLimit}, id)
}

func (r *SQLiteRepository) UpdateNewContract(ctx context.Context, id int64, in core.NewContractInput) error {
	return r.update(ctx, core.NewContractSchema.Table, core.NewContractSchema.Columns(), in.Values(), id)
}

// CreateNewContract stores a contract entered by hand under period.
func (r *SQLiteRepository) CreateNewContract(ctx context.Context, in core.NewContractInput, period string) (core.Record, error) {
	id, err := insertRecord(ctx, r.db, core.Record{
		Kind:   core.NewContracts,
		Fields: in.Values(),
		Period: period,
	}, r.now)
	if err != nil {
		return core.Record{}, err
	}
	return r.Get(ctx, core.NewContracts, id)
}

func (r *SQLiteRepository) update(ctx context.Context, table string, cols []string, vals []core.Value, id int64) error {
	set := make([]string, len(cols))
	args := make([]any, 0, len(cols)+2)
	for i, c := range cols {
		set[i] = c + " = ?"
		args = append(args, vals[i].Any())
	}
	args = append(args, r.now().Format(core.TimestampLayout), id)

	query := fmt.Sprintf("UPDATE %s SET %s, updated_at = ? WHERE id = ?", table, strings.Join(set, ", "))
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s %d: %w", table, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s %d: %w", table, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", table, id, ErrNotFound)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}
