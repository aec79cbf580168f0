package ingest

import "secureflow/internal/core"

// MapRow builds the fixed-arity field vector of one data row. The leading
// index slot is dropped when the reader produced one, short rows are padded
// with nulls and extra trailing columns are discarded.
func MapRow(cells []core.Cell, schema core.Schema, skipLeadingIndex bool) []core.Value {
	if skipLeadingIndex && len(cells) > 0 {
		cells = cells[1:]
	}
	out := make([]core.Value, schema.Arity())
	for i := range out {
		if i < len(cells) {
			out[i] = Normalize(cells[i])
		} else {
			out[i] = core.Null
		}
	}
	return out
}
