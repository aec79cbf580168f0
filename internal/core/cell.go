package core

import "time"

// CellKind identifies how a spreadsheet reader typed a cell.
type CellKind int

const (
	CellEmpty CellKind = iota
	CellString
	CellNumber
	CellBool
	CellDate
	CellFormula
	CellRaw
)

func (k CellKind) String() string {
	switch k {
	case CellEmpty:
		return "empty"
	case CellString:
		return "string"
	case CellNumber:
		return "number"
	case CellBool:
		return "bool"
	case CellDate:
		return "date"
	case CellFormula:
		return "formula"
	case CellRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// Cell is a raw cell value as produced by a workbook reader.
// Only the field matching Kind is meaningful.
type Cell struct {
	Kind    CellKind
	Str     string
	Num     float64
	Bool    bool
	Time    time.Time
	Formula string
	Result  *Cell // cached formula result, may be nil
	Raw     any
}

func EmptyCell() Cell { return Cell{Kind: CellEmpty} }
func StringCell(s string) Cell { return Cell{Kind: CellString, Str: s} }
func NumberCell(f float64) Cell { return Cell{Kind: CellNumber, Num: f} }
func BoolCell(b bool) Cell { return Cell{Kind: CellBool, Bool: b} }
func DateCell(t time.Time) Cell { return Cell{Kind: CellDate, Time: t} }
func RawCell(v any) Cell { return Cell{Kind: CellRaw, Raw: v} }

// FormulaCell wraps a formula and the result the workbook cached for it.
func FormulaCell(formula string, result Cell) Cell {
	return Cell{Kind: CellFormula, Formula: formula, Result: &result}
}

// IsEmpty reports whether the cell carries no value at all.
func (c Cell) IsEmpty() bool {
	return c.Kind == CellEmpty
}
