package core

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// ValueKind identifies a canonical scalar kind.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindText
	KindNumber
	KindBool
	KindDate
	// KindInvalid marks a cell that could not be coerced, not even to a
	// string. It is produced instead of failing so normalization stays
	// total; the ingestor rejects the batch when it meets one.
	KindInvalid
)

// DateLayout is the canonical day-precision layout for date values.
const DateLayout = "2006-01-02"

// maxExactInt is the largest integer a float64 represents exactly.
const maxExactInt = 1 << 53

// Value is a canonical scalar: null, text, number, bool or ISO date string.
type Value struct {
	kind ValueKind
	text string
	num  float64
	b    bool
	raw  any
	err  error
}

var Null = Value{}

func Text(s string) Value { return Value{kind: KindText, text: s} }
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Date truncates t to day precision using t's own wall clock, so a
// value never crosses a day boundary because of a time zone offset.
func Date(t time.Time) Value {
	return Value{kind: KindDate, text: t.Format(DateLayout)}
}

// Invalid builds a value for a raw cell that failed coercion.
func Invalid(raw any, err error) Value {
	return Value{kind: KindInvalid, raw: raw, err: err}
}

// FromAny builds a Value from a database/sql driver value.
func FromAny(v any) Value {
	switch x := v.(type) {
	case nil:
		return Null
	case int64:
		return Number(float64(x))
	case float64:
		return Number(x)
	case bool:
		return Bool(x)
	case []byte:
		return Text(string(x))
	case string:
		return Text(x)
	case time.Time:
		return Date(x)
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return Invalid(x, err)
		}
		return Text(string(data))
	}
}

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }
func (v Value) IsInvalid() bool { return v.kind == KindInvalid }

// Err returns the coercion failure of an invalid value.
func (v Value) Err() error { return v.err }

// Raw returns the original cell content of an invalid value.
func (v Value) Raw() any { return v.raw }

// Float returns the numeric content and whether the value is a number.
func (v Value) Float() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

// String renders the value the way it is shown in listings. Null is "".
func (v Value) String() string {
	switch v.kind {
	case KindText, KindDate:
		return v.text
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInvalid:
		if v.err != nil {
			return "invalid: " + v.err.Error()
		}
		return "invalid"
	default:
		return ""
	}
}

// Any returns the value in a form database/sql can bind. Integral
// numbers are returned as int64 so text columns do not store "123.0".
func (v Value) Any() any {
	switch v.kind {
	case KindText, KindDate:
		return v.text
	case KindNumber:
		if v.num == math.Trunc(v.num) && math.Abs(v.num) < maxExactInt {
			return int64(v.num)
		}
		return v.num
	case KindBool:
		if v.b {
			return int64(1)
		}
		return int64(0)
	default:
		return nil
	}
}

// Equal reports whether two values are the same canonical scalar.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindText, KindDate:
		return v.text == o.text
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	default:
		return errString(v.err) == errString(o.err)
	}
}

// Cell converts the value back into a cell that normalizes to itself.
func (v Value) Cell() Cell {
	switch v.kind {
	case KindText:
		return StringCell(v.text)
	case KindNumber:
		return NumberCell(v.num)
	case KindBool:
		return BoolCell(v.b)
	case KindDate:
		t, err := time.Parse(DateLayout, v.text)
		if err != nil {
			return StringCell(v.text)
		}
		return DateCell(t)
	case KindInvalid:
		return RawCell(v.raw)
	default:
		return EmptyCell()
	}
}

// MarshalJSON renders the value as its natural JSON scalar.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindText, KindDate:
		return json.Marshal(v.text)
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return json.Marshal(v.String())
		}
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	default:
		return []byte("null"), nil
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
