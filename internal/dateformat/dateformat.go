// Package dateformat recognizes the date format families that appear in
// curated tabular data and normalizes values to ISO 8601.
package dateformat

import (
	"fmt"
	"strings"
	"time"
)

// Format identifies a recognized date format family.
type Format string

const (
	ISO       Format = "iso"        // 2024-01-15
	YearSlash Format = "year_slash" // 2024/01/25
	USSlash   Format = "us_slash"   // 01/17/2024
	USDash    Format = "us_dash"    // 01-17-2024
	MonthName Format = "month_name" // Jan 20 2024, January 15, 2024
)

// Description returns the human-readable family name.
func (f Format) Description() string {
	switch f {
	case ISO:
		return "ISO (YYYY-MM-DD)"
	case YearSlash:
		return "Year first (YYYY/MM/DD)"
	case USSlash:
		return "US (MM/DD/YYYY)"
	case USDash:
		return "US (MM-DD-YYYY)"
	case MonthName:
		return "Month name (Mon DD YYYY)"
	default:
		return "Unknown"
	}
}

var layoutsByFormat = map[Format][]string{
	ISO:       {"2006-01-02"},
	YearSlash: {"2006/01/02"},
	USSlash:   {"01/02/2006", "1/2/2006"},
	USDash:    {"01-02-2006", "1-2-2006"},
	MonthName: {"Jan 2 2006", "Jan 2, 2006", "January 2 2006", "January 2, 2006", "2 Jan 2006"},
}

// Families is the detection order; more specific families first.
var Families = []Format{ISO, YearSlash, USSlash, USDash, MonthName}

var dateTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// Detect returns the format family of a value, or "" when unrecognized.
func Detect(value string) Format {
	trimmed := strings.TrimSpace(value)
	for _, f := range Families {
		for _, layout := range layoutsByFormat[f] {
			if _, err := time.Parse(layout, trimmed); err == nil {
				return f
			}
		}
	}
	return ""
}

// IsDate reports whether the value parses as a date in any known family.
func IsDate(value string) bool {
	return Detect(value) != ""
}

// IsDateTime reports whether the value parses as a date with time component.
func IsDateTime(value string) bool {
	trimmed := strings.TrimSpace(value)
	for _, layout := range dateTimeLayouts {
		if _, err := time.Parse(layout, trimmed); err == nil {
			return true
		}
	}
	return false
}

// ToISO converts a recognized date value to YYYY-MM-DD. Unrecognized values
// come back unchanged with ok=false.
func ToISO(value string) (string, bool) {
	trimmed := strings.TrimSpace(value)
	f := Detect(trimmed)
	if f == "" {
		return value, false
	}
	for _, layout := range layoutsByFormat[f] {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return fmt.Sprintf("%04d-%02d-%02d", t.Year(), t.Month(), t.Day()), true
		}
	}
	return value, false
}

// Comparable returns a sortable YYYY-MM-DD rendering when possible, falling
// back to the raw value for string comparison.
func Comparable(value string) string {
	if iso, ok := ToISO(value); ok {
		return iso
	}
	return strings.TrimSpace(value)
}
