// Package google reads every worksheet of a Google Spreadsheet as an
// import workbook.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"secureflow/internal/core"
	"secureflow/internal/log"
	"secureflow/internal/workbook"
)

// Source fetches a spreadsheet through the Sheets API. Values are requested
// unformatted with dates as serial numbers; the cell formats tell which
// serials are dates.
type Source struct {
	svc           *gsheet.Service
	spreadsheetID string
	logger        *log.Logger
}

var _ workbook.Source = (*Source)(nil)

// New creates a Source using Service Account credentials from
// GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS.
func New(ctx context.Context, spreadsheetID string, logger *log.Logger) (*Source, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentWorkbook)

	creds, err := credentialsFromEnv()
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsReadonlyScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Source{svc: svc, spreadsheetID: spreadsheetID, logger: logger}, nil
}

func credentialsFromEnv() ([]byte, error) {
	if inline := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")); inline != "" {
		return []byte(inline), nil
	}
	path := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if path == "" {
		path = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if path == "" {
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return b, nil
}

// gridFormats limits the grid data of the metadata call to the number
// format type of each cell.
const gridFormats = "sheets(properties(title),data(rowData(values(effectiveFormat(numberFormat(type))))))"

func (s *Source) Open(ctx context.Context) (workbook.Workbook, error) {
	meta, err := s.svc.Spreadsheets.Get(s.spreadsheetID).
		IncludeGridData(true).
		Fields(gridFormats).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get spreadsheet %s: %w", s.spreadsheetID, err)
	}

	var titles []string
	var dates []dateMask
	for _, sh := range meta.Sheets {
		if sh.Properties != nil {
			titles = append(titles, sh.Properties.Title)
			dates = append(dates, dateMaskOf(sh.Data))
		}
	}
	if len(titles) == 0 {
		return &Workbook{}, nil
	}

	ranges := make([]string, len(titles))
	for i, t := range titles {
		ranges[i] = quoteTitle(t)
	}
	resp, err := s.svc.Spreadsheets.Values.BatchGet(s.spreadsheetID).
		Ranges(ranges...).
		ValueRenderOption("UNFORMATTED_VALUE").
		DateTimeRenderOption("SERIAL_NUMBER").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read values of %s: %w", s.spreadsheetID, err)
	}

	values := make([][][]any, len(titles))
	for i, vr := range resp.ValueRanges {
		if i < len(values) && vr != nil {
			values[i] = vr.Values
		}
	}
	s.logger.InfoContext(ctx, "Spreadsheet fetched",
		log.FieldSheets, len(titles))
	return convert(titles, values, dates), nil
}

// dateMask marks the cells of one sheet whose number format is a date,
// indexed by row then column from A1.
type dateMask [][]bool

func (m dateMask) at(row, col int) bool {
	return row < len(m) && col < len(m[row]) && m[row][col]
}

func dateMaskOf(grids []*gsheet.GridData) dateMask {
	var m dateMask
	for _, g := range grids {
		if g == nil {
			continue
		}
		for r, rd := range g.RowData {
			if rd == nil {
				continue
			}
			row := int(g.StartRow) + r
			for c, cd := range rd.Values {
				if cd == nil || cd.EffectiveFormat == nil || cd.EffectiveFormat.NumberFormat == nil {
					continue
				}
				switch cd.EffectiveFormat.NumberFormat.Type {
				case "DATE", "DATE_TIME":
				default:
					continue
				}
				col := int(g.StartColumn) + c
				for len(m) <= row {
					m = append(m, nil)
				}
				for len(m[row]) <= col {
					m[row] = append(m[row], false)
				}
				m[row][col] = true
			}
		}
	}
	return m
}

// quoteTitle builds an A1 range covering a whole sheet.
func quoteTitle(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

// Workbook is a fetched spreadsheet. The API returns plain row slices,
// so there is no leading index slot.
type Workbook struct {
	sheets []workbook.Sheet
}

func (w *Workbook) Sheets() []workbook.Sheet { return w.sheets }
func (w *Workbook) LeadingIndex() bool       { return false }

type sheet struct {
	name string
	rows [][]core.Cell
}

func (s *sheet) Name() string        { return s.name }
func (s *sheet) Rows() [][]core.Cell { return s.rows }

// convert keeps every row the API returns, blank ones included, so row
// positions match the sheet.
func convert(titles []string, values [][][]any, dates []dateMask) *Workbook {
	wb := &Workbook{}
	for i, title := range titles {
		var mask dateMask
		if i < len(dates) {
			mask = dates[i]
		}
		var rows [][]core.Cell
		if i < len(values) {
			for r, raw := range values[i] {
				row := make([]core.Cell, len(raw))
				for c, v := range raw {
					row[c] = cellOf(v, mask.at(r, c))
				}
				rows = append(rows, row)
			}
		}
		wb.sheets = append(wb.sheets, &sheet{name: title, rows: rows})
	}
	return wb
}

func cellOf(v any, date bool) core.Cell {
	switch x := v.(type) {
	case nil:
		return core.EmptyCell()
	case string:
		if x == "" {
			return core.EmptyCell()
		}
		return core.StringCell(x)
	case float64:
		if date {
			if t, err := excelize.ExcelDateToTime(x, false); err == nil {
				return core.DateCell(t)
			}
		}
		return core.NumberCell(x)
	case bool:
		return core.BoolCell(x)
	default:
		return core.RawCell(x)
	}
}
