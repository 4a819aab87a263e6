package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/openmeld/meld/internal/meld"
)

// DateFilter is a parsed date predicate from the filter grammar:
// `<date`, `<=date`, `>date`, `>=date` or `date1..date2`.
type DateFilter struct {
	Gt  *time.Time
	Gte *time.Time
	Lt  *time.Time
	Lte *time.Time
}

// dateLayouts are the accepted ISO-8601 shapes, with optional
// fractional seconds and timezone.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, meld.InvalidValuef("invalid date %q: expected ISO-8601", s)
}

// ParseDateFilter parses an expression of the date filter grammar.
func ParseDateFilter(expr string) (*DateFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, meld.InvalidValuef("empty date filter")
	}

	if i := strings.Index(expr, ".."); i >= 0 {
		from, err := parseDate(expr[:i])
		if err != nil {
			return nil, err
		}
		to, err := parseDate(expr[i+2:])
		if err != nil {
			return nil, err
		}
		if from.After(to) {
			return nil, meld.InvalidValuef("invalid date range %q: %s is later than %s",
				expr, from.Format(time.RFC3339), to.Format(time.RFC3339))
		}
		return &DateFilter{Gte: &from, Lte: &to}, nil
	}

	switch {
	case strings.HasPrefix(expr, "<="):
		t, err := parseDate(expr[2:])
		if err != nil {
			return nil, err
		}
		return &DateFilter{Lte: &t}, nil
	case strings.HasPrefix(expr, ">="):
		t, err := parseDate(expr[2:])
		if err != nil {
			return nil, err
		}
		return &DateFilter{Gte: &t}, nil
	case strings.HasPrefix(expr, "<"):
		t, err := parseDate(expr[1:])
		if err != nil {
			return nil, err
		}
		return &DateFilter{Lt: &t}, nil
	case strings.HasPrefix(expr, ">"):
		t, err := parseDate(expr[1:])
		if err != nil {
			return nil, err
		}
		return &DateFilter{Gt: &t}, nil
	}
	return nil, meld.InvalidValuef("invalid date filter %q: expected <, <=, >, >= or a date range", expr)
}

// appendSQL appends the filter's conditions on column to conds and
// args; placeholders are numbered from the current length of args.
func (f *DateFilter) appendSQL(column string, conds *[]string, args *[]any) {
	add := func(op string, t *time.Time) {
		if t == nil {
			return
		}
		*args = append(*args, *t)
		*conds = append(*conds, fmt.Sprintf("%s %s $%d", column, op, len(*args)))
	}
	add(">", f.Gt)
	add(">=", f.Gte)
	add("<", f.Lt)
	add("<=", f.Lte)
}
