// Package memory holds workbooks built in code, for tests and fixtures.
package memory

import (
	"bufio"
	"strconv"
	"strings"
	"sync"
	"time"

	"secureflow/internal/core"
	"secureflow/internal/workbook"
)

type Sheet struct {
	name string
	rows [][]core.Cell
}

func (s *Sheet) Name() string { return s.name }
func (s *Sheet) Rows() [][]core.Cell { return s.rows }

type Workbook struct {
	mu           sync.Mutex
	sheets       []*Sheet
	leadingIndex bool
}

// New returns an empty workbook whose rows carry no index slot.
func New() *Workbook {
	return &Workbook{}
}

// WithLeadingIndex marks every row as starting with a synthetic index
// slot, the way some readers lay rows out.
func (w *Workbook) WithLeadingIndex() *Workbook {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.leadingIndex = true
	return w
}

// AddSheet appends a worksheet. The first row is the header.
func (w *Workbook) AddSheet(name string, rows ...[]core.Cell) *Workbook {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sheets = append(w.sheets, &Sheet{name: name, rows: rows})
	return w
}

func (w *Workbook) Sheets() []workbook.Sheet {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]workbook.Sheet, len(w.sheets))
	for i, s := range w.sheets {
		out[i] = s
	}
	return out
}

func (w *Workbook) LeadingIndex() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.leadingIndex
}

// Row converts Go values to cells: nil is empty, strings, numbers, bools
// and times map to their cell kinds, cells pass through, anything else is
// kept raw.
func Row(values ...any) []core.Cell {
	out := make([]core.Cell, len(values))
	for i, v := range values {
		out[i] = cellOf(v)
	}
	return out
}

func cellOf(v any) core.Cell {
	switch x := v.(type) {
	case nil:
		return core.EmptyCell()
	case core.Cell:
		return x
	case string:
		return core.StringCell(x)
	case float64:
		return core.NumberCell(x)
	case int:
		return core.NumberCell(float64(x))
	case int64:
		return core.NumberCell(float64(x))
	case bool:
		return core.BoolCell(x)
	case time.Time:
		return core.DateCell(x)
	default:
		return core.RawCell(x)
	}
}

// ParseTSV builds the rows of a sheet from tab-separated text. Blank lines
// and lines starting with "#" are skipped; numeric fields become numbers
// and empty fields empty cells.
func ParseTSV(text string) [][]core.Cell {
	var rows [][]core.Cell
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		row := make([]core.Cell, len(fields))
		for i, f := range fields {
			f = strings.TrimSpace(f)
			switch n, err := strconv.ParseFloat(f, 64); {
			case f == "":
				row[i] = core.EmptyCell()
			case err == nil:
				row[i] = core.NumberCell(n)
			default:
				row[i] = core.StringCell(f)
			}
		}
		rows = append(rows, row)
	}
	return rows
}
