package ingest

import (
	"time"

	"secureflow/internal/core"
)

// Tag returns the period label of every row of a worksheet: the sheet's
// display name, verbatim. Labels are not validated.
func Tag(sheetName string) string {
	return sheetName
}

// PriorPeriodLabel is the reference day whose installments are carried
// forward by an import running at now: the previous calendar day on the
// wall clock, regardless of the labels present in the workbook.
func PriorPeriodLabel(now time.Time) string {
	return now.AddDate(0, 0, -1).Format(core.DateLayout)
}
