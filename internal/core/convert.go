package core

// convert.go turns raw workbook cells into typed values and typed values into
// pgtype parameters.
//
// Cells are read raw, so dates arrive either as Excel serial numbers
// ("43586") or as text typed by hand ("3/05/2019", "2019-05-03").
// Text dates are day-first.

import (
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// TwoDigitYearPivot: two-digit years that land more than this many years in
// the future belong to the previous century.
var TwoDigitYearPivot = 1

var (
	fourDigitYearLayouts = []string{
		"2/1/2006", "02/01/2006", "2-1-2006", "02-01-2006", "2.1.2006", "02.01.2006",
		"2006-01-02", "2006/01/02", "2006-01-02 15:04:05", "2006-01-02T15:04:05",
		"02/01/2006 15:04:05", "2 Jan 2006",
	}
	twoDigitYearLayouts = []string{
		"2/1/06", "02/01/06", "2-1-06", "02-01-06",
	}
)

// maxExcelSerial is 9999-12-31.
const maxExcelSerial = 2958465

// maxCellExponent bounds the exponent of numeric cells. Wider values are
// rejected before any arithmetic expands them.
const maxCellExponent = 30

func boundedExponent(d decimal.Decimal) bool {
	e := d.Exponent()
	return e <= maxCellExponent && e >= -maxCellExponent
}

// ParseBirthDate parses a birth date cell. Numeric cells are Excel serial
// dates; anything else is parsed as a day-first date. Unparseable or
// out-of-range values yield nil.
func ParseBirthDate(value string) *time.Time {
	v := strings.TrimSpace(value)
	if isBlank(v) {
		return nil
	}

	if d, err := decimal.NewFromString(v); err == nil {
		if !boundedExponent(d) || d.LessThan(decimal.NewFromInt(1)) || d.GreaterThan(decimal.NewFromInt(maxExcelSerial)) {
			return nil
		}
		serial, _ := d.Float64()
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return nil
		}
		t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		return &t
	}

	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return &t
		}
	}

	pivot := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			if t.Year() > pivot {
				t = t.AddDate(-100, 0, 0)
			}
			return &t
		}
	}
	return nil
}

// parseCount reads a declared visit count, truncating fractions and capping
// at maxVisitOccurrences. Non-numeric and non-positive values are ignored.
func parseCount(value string) (int, bool) {
	v := strings.TrimSpace(value)
	if isBlank(v) {
		return 0, false
	}
	d, err := decimal.NewFromString(v)
	if err != nil || !boundedExponent(d) {
		return 0, false
	}
	if d.GreaterThan(decimal.NewFromInt(maxVisitOccurrences)) {
		return maxVisitOccurrences, true
	}
	n := d.IntPart()
	if n <= 0 {
		return 0, false
	}
	return int(n), true
}

// cleanText trims a cell, maps blank markers to "" and truncates to n runes.
func cleanText(value string, n int) string {
	if isBlank(value) {
		return ""
	}
	return truncateRunes(strings.TrimSpace(value), n)
}

// ToPgText converts a string to pgtype.Text, NULL when empty.
func ToPgText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

// ToPgDate converts an optional date to pgtype.Date.
func ToPgDate(t *time.Time) pgtype.Date {
	if t == nil {
		return pgtype.Date{Valid: false}
	}
	return pgtype.Date{Time: *t, Valid: true}
}

// FromPgDate is the inverse of ToPgDate.
func FromPgDate(d pgtype.Date) *time.Time {
	if !d.Valid {
		return nil
	}
	t := time.Date(d.Time.Year(), d.Time.Month(), d.Time.Day(), 0, 0, 0, 0, time.UTC)
	return &t
}

// FromPgText returns the string or "" for NULL.
func FromPgText(t pgtype.Text) string {
	if !t.Valid {
		return ""
	}
	return t.String
}

func sameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
