// Package excel reads uploaded .xlsx workbooks and writes report workbooks
// with excelize.
package excel

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"secureflow/internal/core"
	"secureflow/internal/workbook"
)

// Workbook is a fully read .xlsx file. excelize lays rows out without an
// index slot, so LeadingIndex is always false.
type Workbook struct {
	sheets []*Sheet
}

type Sheet struct {
	name string
	rows [][]core.Cell
}

func (s *Sheet) Name() string        { return s.name }
func (s *Sheet) Rows() [][]core.Cell { return s.rows }

func (w *Workbook) Sheets() []workbook.Sheet {
	out := make([]workbook.Sheet, len(w.sheets))
	for i, s := range w.sheets {
		out[i] = s
	}
	return out
}

func (w *Workbook) LeadingIndex() bool { return false }

var _ workbook.Workbook = (*Workbook)(nil)

// Open reads every worksheet of an .xlsx stream in file order.
func Open(r io.Reader) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	rd := &reader{f: f, dateStyles: make(map[int]bool)}
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		rd.date1904 = *props.Date1904
	}

	wb := &Workbook{}
	for _, name := range f.GetSheetList() {
		rows, err := rd.readSheet(name)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", name, err)
		}
		wb.sheets = append(wb.sheets, &Sheet{name: name, rows: rows})
	}
	return wb, nil
}

type reader struct {
	f          *excelize.File
	date1904   bool
	dateStyles map[int]bool
}

// readSheet returns every row up to the last non-blank one. Blank rows are
// kept in place so a row's position is its sheet row number.
func (rd *reader) readSheet(sheet string) ([][]core.Cell, error) {
	raw, err := rd.f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, err
	}

	var rows [][]core.Cell
	for r, values := range raw {
		row := make([]core.Cell, len(values))
		for c, v := range values {
			addr, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return nil, err
			}
			cell, err := rd.cell(sheet, addr, v)
			if err != nil {
				return nil, fmt.Errorf("cell %s: %w", addr, err)
			}
			row[c] = cell
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (rd *reader) cell(sheet, addr, raw string) (core.Cell, error) {
	formula, err := rd.f.GetCellFormula(sheet, addr)
	if err != nil {
		return core.Cell{}, err
	}
	value, err := rd.value(sheet, addr, raw)
	if err != nil {
		return core.Cell{}, err
	}
	if formula != "" {
		return core.FormulaCell(formula, value), nil
	}
	return value, nil
}

func (rd *reader) value(sheet, addr, raw string) (core.Cell, error) {
	if raw == "" {
		return core.EmptyCell(), nil
	}
	typ, err := rd.f.GetCellType(sheet, addr)
	if err != nil {
		return core.Cell{}, err
	}

	switch typ {
	case excelize.CellTypeBool:
		return core.BoolCell(raw == "1" || strings.EqualFold(raw, "true")), nil
	case excelize.CellTypeDate:
		if t, ok := parseISODate(raw); ok {
			return core.DateCell(t), nil
		}
		return core.StringCell(raw), nil
	case excelize.CellTypeUnset, excelize.CellTypeNumber:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return core.StringCell(raw), nil
		}
		isDate, err := rd.isDateStyled(sheet, addr)
		if err != nil {
			return core.Cell{}, err
		}
		if isDate {
			if t, err := excelize.ExcelDateToTime(n, rd.date1904); err == nil {
				return core.DateCell(t), nil
			}
		}
		return core.NumberCell(n), nil
	default:
		return core.StringCell(raw), nil
	}
}

// isoDateLayouts are the forms of an ISO 8601 date cell (t="d"). Most
// writers omit the zone.
var isoDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	core.DateLayout,
}

func parseISODate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range isoDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (rd *reader) isDateStyled(sheet, addr string) (bool, error) {
	idx, err := rd.f.GetCellStyle(sheet, addr)
	if err != nil {
		return false, err
	}
	if v, ok := rd.dateStyles[idx]; ok {
		return v, nil
	}
	style, err := rd.f.GetStyle(idx)
	if err != nil {
		return false, err
	}
	isDate := isDateNumFmt(style.NumFmt)
	if style.CustomNumFmt != nil {
		isDate = isDateFormatCode(*style.CustomNumFmt)
	}
	rd.dateStyles[idx] = isDate
	return isDate, nil
}

// isDateNumFmt reports whether a built-in number format id renders dates.
func isDateNumFmt(id int) bool {
	switch {
	case id >= 14 && id <= 22:
		return true
	case id >= 27 && id <= 36:
		return true
	case id >= 45 && id <= 47:
		return true
	case id >= 50 && id <= 58:
		return true
	}
	return false
}

// isDateFormatCode recognizes custom formats such as "dd/mm/yyyy". Quoted
// literals and bracketed sections (colors, locales) are ignored.
func isDateFormatCode(code string) bool {
	var b strings.Builder
	inQuote, inBracket := false, false
	for _, r := range strings.ToLower(code) {
		switch {
		case r == '"':
			inQuote = !inQuote
		case inQuote:
		case r == '[':
			inBracket = true
		case r == ']':
			inBracket = false
		case inBracket:
		default:
			b.WriteRune(r)
		}
	}
	s := b.String()
	return strings.ContainsAny(s, "dy") || (strings.Contains(s, "m") && !strings.ContainsAny(s, "0#"))
}
