package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// TimestampLayout is how creation and update stamps are stored.
const TimestampLayout = "2006-01-02 15:04:05"

// InstallmentStatus is the closed set of installment payment states.
type InstallmentStatus string

const (
	StatusPending  InstallmentStatus = "pendente"
	StatusPaid     InstallmentStatus = "pago"
	StatusNotified InstallmentStatus = "notificado"
)

var ErrInvalidStatus = errors.New("invalid installment status")

// ParseInstallmentStatus accepts one of the known states, case-insensitively.
func ParseInstallmentStatus(s string) (InstallmentStatus, error) {
	switch st := InstallmentStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusPaid, StatusNotified:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
}

// Record is one stored row of any feed. Fields follow the kind's schema.
type Record struct {
	ID         int64
	Kind       RecordKind
	Fields     []Value
	Period     string // sheet name: reporting month or reference day
	ImportedOn string // installments only
	BatchID    string
	CreatedAt  string
	UpdatedAt  string
}

// Get returns the named field, or Null when the schema has no such field.
func (r Record) Get(name string) Value {
	s, err := SchemaFor(r.Kind)
	if err != nil {
		return Null
	}
	i := s.Index(name)
	if i < 0 || i >= len(r.Fields) {
		return Null
	}
	return r.Fields[i]
}

// MarshalJSON emits a flat object keyed by storage column names, the shape
// the dashboard UI reads.
func (r Record) MarshalJSON() ([]byte, error) {
	s, err := SchemaFor(r.Kind)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(s.Fields)+6)
	out["id"] = r.ID
	for i, f := range s.Fields {
		if i < len(r.Fields) {
			out[f.Name] = r.Fields[i]
		} else {
			out[f.Name] = nil
		}
	}
	out[s.PeriodColumn] = r.Period
	if r.Kind == Installments {
		out["data_importacao"] = nullable(r.ImportedOn)
	}
	out["lote_id"] = nullable(r.BatchID)
	out["data_criacao"] = nullable(r.CreatedAt)
	out["updated_at"] = nullable(r.UpdatedAt)
	return json.Marshal(out)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// NaturalKey identifies one installment across import cycles.
type NaturalKey struct {
	Client      Value
	Policy      Value
	Installment Value
}

// KeyOf extracts the natural key from a mapped installment row.
func KeyOf(fields []Value) NaturalKey {
	at := func(i int) Value {
		if i < len(fields) {
			return fields[i]
		}
		return Null
	}
	return NaturalKey{
		Client:      at(InstallmentClientIdx),
		Policy:      at(InstallmentPolicyIdx),
		Installment: at(InstallmentNumberIdx),
	}
}

func (k NaturalKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Client, k.Policy, k.Installment)
}

// RenewalEdit carries the renewal-management fields a broker edits by hand.
type RenewalEdit struct {
	Confirmed        bool
	NewInsurer       Value
	NewCommission    Value
	NewTotalPremium  Value
	PaymentPlan      Value
	InstallmentCount Value
	Inspection       Value
	Remark           Value
}

// RenewalEditColumns lists the columns a RenewalEdit writes, in order.
var RenewalEditColumns = RenewalSchema.Columns()[:8]

// Values binds the edit in RenewalEditColumns order. The flag is stored as 1/0.
func (e RenewalEdit) Values() []Value {
	flag := Number(0)
	if e.Confirmed {
		flag = Number(1)
	}
	return []Value{
		flag, e.NewInsurer, e.NewCommission, e.NewTotalPremium,
		e.PaymentPlan, e.InstallmentCount, e.Inspection, e.Remark,
	}
}

// RenewalEditFromMap reads an edit from a decoded JSON body. Missing keys
// become null; the flag follows JSON truthiness.
func RenewalEditFromMap(m map[string]any) RenewalEdit {
	get := func(k string) Value { return FromAny(m[k]) }
	return RenewalEdit{
		Confirmed:        truthy(m["gestor_confirmado"]),
		NewInsurer:       get("seguradora_novo"),
		NewCommission:    get("comissao_novo"),
		NewTotalPremium:  get("premio_total_novo"),
		PaymentPlan:      get("forma_pagamento"),
		InstallmentCount: get("parcelas_qtd"),
		Inspection:       get("vistoria"),
		Remark:           get("observacao"),
	}
}

// InstallmentEdit carries the two mutable installment fields.
type InstallmentEdit struct {
	Status   Value
	DueLimit Value
}

// Validate rejects a status outside the closed set. Null is accepted.
func (e InstallmentEdit) Validate() error {
	if e.Status.IsNull() {
		return nil
	}
	_, err := ParseInstallmentStatus(e.Status.String())
	return err
}

func InstallmentEditFromMap(m map[string]any) InstallmentEdit {
	return InstallmentEdit{
		Status:   FromAny(m["status"]),
		DueLimit: FromAny(m["data_limite"]),
	}
}

// NewContractInput is the full field vector of a new contract, used both
// for direct creation and for edits.
type NewContractInput struct {
	Fields []Value
}

func NewContractInputFromMap(m map[string]any) NewContractInput {
	fields := make([]Value, NewContractSchema.Arity())
	for i, name := range NewContractSchema.Columns() {
		fields[i] = FromAny(m[name])
	}
	return NewContractInput{Fields: fields}
}

// Values returns exactly Arity values, null-padded.
func (in NewContractInput) Values() []Value {
	out := make([]Value, NewContractSchema.Arity())
	copy(out, in.Fields)
	return out
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case int:
		return x != 0
	case int64:
		return x != 0
	case string:
		return x != ""
	default:
		return true
	}
}
