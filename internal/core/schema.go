package core

import (
	"errors"
	"fmt"
	"strings"
)

// RecordKind names one of the three spreadsheet feeds.
type RecordKind string

const (
	Renewals     RecordKind = "renovacoes"
	NewContracts RecordKind = "novos"
	Installments RecordKind = "parcelas"
)

var ErrUnknownKind = errors.New("unknown record kind")

// ParseRecordKind accepts the route names used by the API, including the
// short "ren" alias of the export form.
func ParseRecordKind(s string) (RecordKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "renovacoes", "ren", "renovacao":
		return Renewals, nil
	case "novos", "novo":
		return NewContracts, nil
	case "parcelas", "parcela", "parcelas_diarias":
		return Installments, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

func (k RecordKind) String() string { return string(k) }

// FieldFormat tells report writers how to render a column.
type FieldFormat int

const (
	FormatText FieldFormat = iota
	FormatMoney
	FormatPercent
	FormatInteger
	FormatFlag
)

// Field is one positional column of a feed.
type Field struct {
	Name   string // storage column and JSON key
	Title  string // report header
	Format FieldFormat
}

// Schema describes the fixed positional layout of a feed. The row mapper
// pads or truncates every data row to Arity.
type Schema struct {
	Kind         RecordKind
	Table        string
	PeriodColumn string
	Fields       []Field
}

// Arity returns the number of positional fields.
func (s Schema) Arity() int { return len(s.Fields) }

// Columns returns the field names in positional order.
func (s Schema) Columns() []string {
	cols := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		cols[i] = f.Name
	}
	return cols
}

// Index returns the position of the named field, or -1.
func (s Schema) Index(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

var RenewalSchema = Schema{
	Kind:         Renewals,
	Table:        "renovacoes",
	PeriodColumn: "mes_referencia",
	Fields: []Field{
		{"gestor_confirmado", "Gestor confirmado", FormatFlag},
		{"seguradora_novo", "Seguradora (novo)", FormatText},
		{"comissao_novo", "Comissão (novo)", FormatPercent},
		{"premio_total_novo", "Prêmio total (novo)", FormatMoney},
		{"forma_pagamento", "Forma de pagamento", FormatText},
		{"parcelas_qtd", "Parcelas", FormatInteger},
		{"vistoria", "Vistoria", FormatText},
		{"observacao", "Observação", FormatText},
		{"cliente", "Cliente", FormatText},
		{"cpf", "CPF/CNPJ", FormatText},
		{"seguradora_antiga", "Seguradora (anterior)", FormatText},
		{"ramo", "Ramo", FormatText},
		{"produto", "Produto", FormatText},
		{"premio_liquido", "Prêmio líquido", FormatMoney},
		{"premio_total", "Prêmio total", FormatMoney},
		{"comissao_antiga", "Comissão (anterior)", FormatPercent},
		{"apolice", "Apólice", FormatText},
		{"sinistro", "Sinistro", FormatText},
		{"sinistros_ativos", "Sinistros ativos", FormatText},
		{"item", "Item", FormatText},
		{"vigencia_final", "Vigência final", FormatText},
		{"tipo", "Tipo", FormatText},
		{"tipo_renovacao", "Tipo de renovação", FormatText},
		{"vendedores", "Vendedores", FormatText},
		{"contato", "Contato", FormatText},
		{"status", "Status", FormatText},
		{"estipulante", "Estipulante", FormatText},
	},
}

var NewContractSchema = Schema{
	Kind:         NewContracts,
	Table:        "novos",
	PeriodColumn: "mes_referencia",
	Fields: []Field{
		{"gestor", "Gestor", FormatText},
		{"data", "Data", FormatText},
		{"seguradora", "Seguradora", FormatText},
		{"comissao", "Comissão", FormatPercent},
		{"premio", "Prêmio", FormatMoney},
		{"tipo", "Tipo", FormatText},
		{"cliente", "Cliente", FormatText},
		{"forma_pagamento", "Forma de pagamento", FormatText},
		{"parcelas_qtd", "Parcelas", FormatInteger},
		{"vistoria", "Vistoria", FormatText},
		{"observacao", "Observação", FormatText},
	},
}

var InstallmentSchema = Schema{
	Kind:         Installments,
	Table:        "parcelas_diarias",
	PeriodColumn: "referencia_dia",
	Fields: []Field{
		{"cliente", "Cliente", FormatText},
		{"apolice", "Apólice", FormatText},
		{"parcela", "Parcela", FormatInteger},
		{"data", "Vencimento", FormatText},
		{"total", "Total", FormatMoney},
		{"seguradora", "Seguradora", FormatText},
		{"pagamento", "Pagamento", FormatText},
		{"status", "Status", FormatText},
		{"data_limite", "Data limite", FormatText},
	},
}

// Positions of the installment fields the reconciliation touches.
const (
	InstallmentClientIdx   = 0
	InstallmentPolicyIdx   = 1
	InstallmentNumberIdx   = 2
	InstallmentStatusIdx   = 7
	InstallmentDueLimitIdx = 8
)

// SchemaFor returns the layout of a feed.
func SchemaFor(kind RecordKind) (Schema, error) {
	switch kind {
	case Renewals:
		return RenewalSchema, nil
	case NewContracts:
		return NewContractSchema, nil
	case Installments:
		return InstallmentSchema, nil
	default:
		return Schema{}, fmt.Errorf("%w: %q", ErrUnknownKind, string(kind))
	}
}

// Kinds lists every feed in a stable order.
func Kinds() []RecordKind {
	return []RecordKind{Renewals, NewContracts, Installments}
}
