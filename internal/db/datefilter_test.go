package db

import (
	"testing"
	"time"

	"github.com/openmeld/meld/internal/meld"
)

func TestParseDateFilterOperators(t *testing.T) {
	tests := []struct {
		expr string
		want func(*DateFilter) bool
	}{
		{"<2020-01-01", func(f *DateFilter) bool { return f.Lt != nil && f.Lt.Year() == 2020 }},
		{"<=2020-01-01", func(f *DateFilter) bool { return f.Lte != nil }},
		{">2020-01-01", func(f *DateFilter) bool { return f.Gt != nil }},
		{">=2020-01-01", func(f *DateFilter) bool { return f.Gte != nil }},
	}
	for _, tc := range tests {
		f, err := ParseDateFilter(tc.expr)
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", tc.expr, err)
		}
		if !tc.want(f) {
			t.Errorf("%q: wrong filter shape: %+v", tc.expr, f)
		}
	}
}

func TestParseDateFilterRange(t *testing.T) {
	f, err := ParseDateFilter("2020-01-01..2021-06-01T12:00:00Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Gte == nil || f.Lte == nil {
		t.Fatalf("expected both bounds set: %+v", f)
	}
	if !f.Gte.Before(*f.Lte) {
		t.Errorf("bounds out of order: %v .. %v", f.Gte, f.Lte)
	}
}

func TestParseDateFilterFractionalAndZone(t *testing.T) {
	for _, expr := range []string{
		">=2020-01-01T10:20:30.123Z",
		">2020-01-01T10:20:30+02:00",
	} {
		if _, err := ParseDateFilter(expr); err != nil {
			t.Errorf("%q: unexpected error: %v", expr, err)
		}
	}
}

func TestParseDateFilterInvalid(t *testing.T) {
	for _, expr := range []string{
		"",
		"2020-01-01",          // bare date, no operator
		"~2020-01-01",         // unknown operator
		"<not-a-date",         //
		"2021-01-01..2020-01-01", // reversed range
	} {
		if _, err := ParseDateFilter(expr); !meld.IsInvalidValue(err) {
			t.Errorf("%q: expected invalid value error, got %v", expr, err)
		}
	}
}

func TestParseDateNormalizesToUTC(t *testing.T) {
	f, err := ParseDateFilter(">2020-06-01T12:00:00+02:00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Gt.Location() != time.UTC {
		t.Errorf("expected UTC normalization, got %v", f.Gt.Location())
	}
}
