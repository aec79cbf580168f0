package excel

import (
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"secureflow/internal/workbook"
)

// maxSheetName is the longest worksheet name Excel accepts.
const maxSheetName = 31

// Writer renders reports as .xlsx workbooks, one worksheet per report,
// with a bold frozen header row.
type Writer struct{}

var _ workbook.ReportWriter = Writer{}

func (Writer) WriteReport(w io.Writer, reports ...workbook.Report) error {
	if len(reports) == 0 {
		return errors.New("no reports to write")
	}

	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"1F4E78"}},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	first := f.GetSheetName(0)
	for i, rep := range reports {
		name := sheetName(rep.Sheet, i)
		if i == 0 {
			if err := f.SetSheetName(first, name); err != nil {
				return fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %q: %w", name, err)
		}
		if err := writeSheet(f, name, rep, header); err != nil {
			return fmt.Errorf("write sheet %q: %w", name, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, rep workbook.Report, headerStyle int) error {
	header := make([]any, len(rep.Header))
	for i, h := range rep.Header {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	if len(rep.Header) > 0 {
		last, err := excelize.ColumnNumberToName(len(rep.Header))
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, "A1", last+"1", headerStyle); err != nil {
			return err
		}
	}
	for r, row := range rep.Rows {
		values := make([]any, len(row))
		for i, v := range row {
			values[i] = v
		}
		addr, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, addr, &values); err != nil {
			return err
		}
	}
	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func sheetName(name string, i int) string {
	if name == "" {
		name = fmt.Sprintf("Planilha%d", i+1)
	}
	if r := []rune(name); len(r) > maxSheetName {
		name = string(r[:maxSheetName])
	}
	return name
}
