package daterange

import (
	"testing"
	"time"

	"github.com/openmeld/meld/internal/meld"
)

func date(year int) time.Time {
	return time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
}

func TestMergeEmpty(t *testing.T) {
	got, err := Merge(nil, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty output, got %v", got)
	}
}

func TestMergeInvalidRange(t *testing.T) {
	_, err := Merge([]Range{{Start: date(2005), End: date(2001)}}, false)
	if !meld.IsInvalidValue(err) {
		t.Errorf("expected invalid value error, got %v", err)
	}
}

func TestMergeCoalescesOverlaps(t *testing.T) {
	ranges := []Range{
		{Start: date(1999), End: date(2000)},
		{Start: date(2004), End: date(2006)},
		{Start: date(1998), End: date(2009)},
	}
	got, err := Merge(ranges, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected a single range, got %v", got)
	}
	if !got[0].Start.Equal(date(1998)) || !got[0].End.Equal(date(2009)) {
		t.Errorf("expected [1998, 2009], got [%v, %v]", got[0].Start, got[0].End)
	}
}

func TestMergeKeepsDisjointRanges(t *testing.T) {
	ranges := []Range{
		{Start: date(2010), End: date(2012)},
		{Start: date(2000), End: date(2002)},
	}
	got, err := Merge(ranges, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected two ranges, got %v", got)
	}
	if !got[0].Start.Equal(date(2000)) || !got[1].Start.Equal(date(2010)) {
		t.Errorf("ranges not sorted: %v", got)
	}
}

func TestMergeCoalescesTouchingRanges(t *testing.T) {
	ranges := []Range{
		{Start: date(2000), End: date(2005)},
		{Start: date(2005), End: date(2010)},
	}
	got, err := Merge(ranges, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("touching ranges must coalesce, got %v", got)
	}
}

func TestMergeExcludeLimits(t *testing.T) {
	// A sentinel-bounded range overlapping a concrete one is replaced
	// by the concrete bounds.
	ranges := []Range{
		{Start: MinPeriodDate, End: MaxPeriodDate},
		{Start: date(2010), End: date(2012)},
	}
	got, err := Merge(ranges, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected a single range, got %v", got)
	}
	if !got[0].Start.Equal(date(2010)) || !got[0].End.Equal(date(2012)) {
		t.Errorf("sentinel bounds must lose to concrete dates, got [%v, %v]", got[0].Start, got[0].End)
	}
}

func TestMergeKeepLimits(t *testing.T) {
	ranges := []Range{
		{Start: MinPeriodDate, End: MaxPeriodDate},
		{Start: date(2010), End: date(2012)},
	}
	got, err := Merge(ranges, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected a single range, got %v", got)
	}
	if !got[0].Start.Equal(MinPeriodDate) || !got[0].End.Equal(MaxPeriodDate) {
		t.Errorf("without excludeLimits sentinels win, got [%v, %v]", got[0].Start, got[0].End)
	}
}

func TestMergeIdempotent(t *testing.T) {
	ranges := []Range{
		{Start: date(1999), End: date(2001)},
		{Start: date(2000), End: date(2004)},
		{Start: date(2010), End: date(2011)},
	}
	once, err := Merge(ranges, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	twice, err := Merge(once, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(once) != len(twice) {
		t.Fatalf("merge not idempotent: %v vs %v", once, twice)
	}
	for i := range once {
		if !once[i].Start.Equal(twice[i].Start) || !once[i].End.Equal(twice[i].End) {
			t.Errorf("merge not idempotent at %d: %v vs %v", i, once[i], twice[i])
		}
	}
}

func TestRangeContains(t *testing.T) {
	outer := Range{Start: date(2000), End: date(2010)}
	if !outer.Contains(Range{Start: date(2002), End: date(2008)}) {
		t.Error("expected containment")
	}
	if outer.Contains(Range{Start: date(1999), End: date(2005)}) {
		t.Error("unexpected containment")
	}
}
