package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount reads a monetary amount written either in Brazilian notation
// ("R$ 1.234,56") or with a dot decimal separator ("1234.56").
//
// When both separators appear the last one is the decimal separator. A
// single comma is decimal; repeated dots are thousands separators.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "R$")
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			return decimal.Zero, ErrInvalidAmount
		}
		s = strings.Replace(s, ",", ".", 1)
	case strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// AmountOf converts a numeric or textual value to a decimal amount.
func AmountOf(v Value) (decimal.Decimal, bool) {
	switch v.Kind() {
	case KindNumber:
		f, _ := v.Float()
		d := decimal.NewFromFloat(f)
		return d, true
	case KindText:
		d, err := ParseAmount(v.String())
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}

// FormatBRL renders an amount as "R$ 1.234,56", rounding half away from zero.
func FormatBRL(d decimal.Decimal) string {
	neg := d.IsNegative()
	digits := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(digits, ".")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteString("R$ ")
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	b.WriteByte(',')
	b.WriteString(frac)
	return b.String()
}

// RenderMoney renders a value as currency. Values that are not amounts are
// returned as their plain string, and null stays empty.
func RenderMoney(v Value) string {
	if v.IsNull() {
		return ""
	}
	d, ok := AmountOf(v)
	if !ok {
		return v.String()
	}
	return FormatBRL(d)
}

// RenderPercent appends a "%" suffix using a decimal comma.
func RenderPercent(v Value) string {
	if v.IsNull() {
		return ""
	}
	s := v.String()
	if v.Kind() == KindNumber {
		s = strings.Replace(s, ".", ",", 1)
	}
	if strings.HasSuffix(s, "%") {
		return s
	}
	return s + "%"
}
