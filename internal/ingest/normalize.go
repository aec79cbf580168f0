// Package ingest turns spreadsheet workbooks into stored records: cells are
// normalized, rows mapped onto a fixed schema, tagged with their sheet's
// period and, for installments, reconciled with the previous day's state.
package ingest

import (
	"encoding/json"
	"math"
	"time"

	"secureflow/internal/core"
)

// Normalize converts a raw cell into a canonical value. It never fails:
// content that cannot be represented at all comes back as an invalid value
// and is rejected later by the ingestor.
func Normalize(c core.Cell) core.Value {
	switch c.Kind {
	case core.CellEmpty:
		return core.Null
	case core.CellString:
		return core.Text(c.Str)
	case core.CellNumber:
		return number(c.Num)
	case core.CellBool:
		return core.Bool(c.Bool)
	case core.CellDate:
		return core.Date(c.Time)
	case core.CellFormula:
		return formula(c)
	default:
		return normalizeRaw(c.Raw)
	}
}

// NormalizeValue applies the same rules to an already canonical value.
func NormalizeValue(v core.Value) core.Value {
	if f, ok := v.Float(); ok {
		return number(f)
	}
	return v
}

// number keeps non-finite floats as the text spreadsheet tools show for them.
func number(f float64) core.Value {
	switch {
	case math.IsNaN(f):
		return core.Text("NaN")
	case math.IsInf(f, 1):
		return core.Text("Infinity")
	case math.IsInf(f, -1):
		return core.Text("-Infinity")
	}
	return core.Number(f)
}

type formulaJSON struct {
	Formula string      `json:"formula"`
	Result  *core.Value `json:"result,omitempty"`
}

// formula keeps the whole formula wrapper, serialized, so neither the
// expression nor its cached result is lost.
func formula(c core.Cell) core.Value {
	out := formulaJSON{Formula: c.Formula}
	if c.Result != nil && !c.Result.IsEmpty() {
		r := Normalize(*c.Result)
		if r.IsInvalid() {
			return core.Invalid(c, r.Err())
		}
		out.Result = &r
	}
	data, err := json.Marshal(out)
	if err != nil {
		return core.Invalid(c, err)
	}
	return core.Text(string(data))
}

func normalizeRaw(raw any) core.Value {
	switch x := raw.(type) {
	case nil:
		return core.Null
	case string:
		return core.Text(x)
	case bool:
		return core.Bool(x)
	case float64:
		return number(x)
	case float32:
		return number(float64(x))
	case int:
		return core.Number(float64(x))
	case int64:
		return core.Number(float64(x))
	case time.Time:
		return core.Date(x)
	case core.Cell:
		return Normalize(x)
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return core.Invalid(raw, err)
		}
		return core.Text(string(data))
	}
}
