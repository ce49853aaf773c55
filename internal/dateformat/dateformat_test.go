package dateformat

import "testing"

func TestDetectFamilies(t *testing.T) {
	cases := []struct {
		value  string
		format Format
	}{
		{"2024-01-15", ISO},
		{"2024/01/25", YearSlash},
		{"01/17/2024", USSlash},
		{"01-17-2024", USDash},
		{"Jan 20 2024", MonthName},
		{"January 15, 2024", MonthName},
		{"banana", ""},
		{"2024-13-45", ""},
	}
	for _, c := range cases {
		if got := Detect(c.value); got != c.format {
			t.Errorf("%q: expected %q, got %q", c.value, c.format, got)
		}
	}
}

func TestToISO(t *testing.T) {
	cases := []struct {
		value string
		iso   string
	}{
		{"2024-01-15", "2024-01-15"},
		{"01/17/2024", "2024-01-17"},
		{"Jan 20 2024", "2024-01-20"},
		{"2024/01/25", "2024-01-25"},
	}
	for _, c := range cases {
		got, ok := ToISO(c.value)
		if !ok || got != c.iso {
			t.Errorf("%q: expected %s, got %s (ok=%v)", c.value, c.iso, got, ok)
		}
	}

	if _, ok := ToISO("not a date"); ok {
		t.Error("unrecognized values must not convert")
	}
}

func TestIsDateTime(t *testing.T) {
	if !IsDateTime("2024-01-15T10:30:00Z") {
		t.Error("RFC3339 should parse as datetime")
	}
	if !IsDateTime("2024-01-15 10:30:00") {
		t.Error("space-separated datetime should parse")
	}
	if IsDateTime("2024-01-15") {
		t.Error("a bare date is not a datetime")
	}
}
