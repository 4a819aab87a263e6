// Package daterange implements the interval algebra used by the
// enrollment model: merging, splitting and clamping of date ranges
// bounded by the period sentinels.
package daterange

import (
	"sort"
	"time"

	"github.com/openmeld/meld/internal/meld"
)

// MinPeriodDate and MaxPeriodDate bound every enrollment range. They
// double as "unknown" markers: a sentinel bound is treated as less
// specific than any real date when merging with limits excluded.
var (
	MinPeriodDate = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)
	MaxPeriodDate = time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)
)

// Range is a date interval with Start <= End.
type Range struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether r fully encloses other.
func (r Range) Contains(other Range) bool {
	return !r.Start.After(other.Start) && !r.End.Before(other.End)
}

// Overlaps reports whether r and other share at least one point,
// touching endpoints included.
func (r Range) Overlaps(other Range) bool {
	return !r.Start.After(other.End) && !other.Start.After(r.End)
}

// Validate checks the range ordering and sentinel bounds.
func (r Range) Validate() error {
	if r.Start.After(r.End) {
		return meld.InvalidValuef("start date %s cannot be later than end date %s",
			r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339))
	}
	if r.Start.Before(MinPeriodDate) || r.End.After(MaxPeriodDate) {
		return meld.InvalidValuef("range [%s, %s] is out of bounds [%s, %s]",
			r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339),
			MinPeriodDate.Format(time.RFC3339), MaxPeriodDate.Format(time.RFC3339))
	}
	return nil
}

// Merge produces the minimal sorted pairwise-disjoint list of ranges
// covering the same point set as the input. Touching ranges are
// coalesced. With excludeLimits, a sentinel bound of an overlapping
// range is treated as unknown and loses to any non-sentinel bound.
//
// An empty input yields an empty output. A range with start after end
// yields an InvalidValue error. Merge is idempotent.
func Merge(ranges []Range, excludeLimits bool) ([]Range, error) {
	if len(ranges) == 0 {
		return nil, nil
	}
	for _, r := range ranges {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}

	sorted := make([]Range, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start.Equal(sorted[j].Start) {
			return sorted[i].End.Before(sorted[j].End)
		}
		return sorted[i].Start.Before(sorted[j].Start)
	})

	merged := []Range{sorted[0]}
	for _, next := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !last.Overlaps(next) {
			merged = append(merged, next)
			continue
		}
		last.Start = mergeStart(last.Start, next.Start, excludeLimits)
		last.End = mergeEnd(last.End, next.End, excludeLimits)
	}
	return merged, nil
}

// mergeStart picks the start of two overlapping ranges: the earlier
// one, except that with excludeLimits the minimum-date sentinel loses
// to a real date.
func mergeStart(a, b time.Time, excludeLimits bool) time.Time {
	if excludeLimits {
		aMin, bMin := a.Equal(MinPeriodDate), b.Equal(MinPeriodDate)
		if aMin && !bMin {
			return b
		}
		if bMin && !aMin {
			return a
		}
	}
	if b.Before(a) {
		return b
	}
	return a
}

// mergeEnd picks the end of two overlapping ranges: the later one,
// except that with excludeLimits the maximum-date sentinel loses to a
// real date.
func mergeEnd(a, b time.Time, excludeLimits bool) time.Time {
	if excludeLimits {
		aMax, bMax := a.Equal(MaxPeriodDate), b.Equal(MaxPeriodDate)
		if aMax && !bMax {
			return b
		}
		if bMax && !aMax {
			return a
		}
	}
	if b.After(a) {
		return b
	}
	return a
}
