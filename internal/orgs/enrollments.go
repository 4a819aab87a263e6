package orgs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/openmeld/meld/internal/daterange"
	"github.com/openmeld/meld/internal/meld"
	"github.com/openmeld/meld/internal/models"
	"github.com/openmeld/meld/internal/txlog"
)

// normalizePeriod fills open bounds with the sentinel dates and
// validates the resulting range.
func normalizePeriod(from, to time.Time) (daterange.Range, error) {
	if from.IsZero() {
		from = daterange.MinPeriodDate
	}
	if to.IsZero() {
		to = daterange.MaxPeriodDate
	}
	r := daterange.Range{Start: from.UTC(), End: to.UTC()}
	if err := r.Validate(); err != nil {
		return daterange.Range{}, err
	}
	return r, nil
}

// Enroll adds an enrollment of the individual owning uuid in a group,
// coalescing it with overlapping or touching periods already stored.
// Re-enrolling inside an already covered period fails with
// DuplicateRange; force allows shrinking default sentinel-bounded
// periods instead.
func (s *Service) Enroll(ctx context.Context, uuid, groupName, parentOrg string, from, to time.Time, force bool) (*models.Individual, error) {
	period, err := normalizePeriod(from, to)
	if err != nil {
		return nil, err
	}

	store, err := s.store(ctx)
	if err != nil {
		return nil, err
	}

	var result *models.Individual
	err = store.Atomic(ctx, func(tx Store) error {
		trail, err := txlog.Open(ctx, tx, "enroll")
		if err != nil {
			return err
		}
		ind, err := tx.FindIndividualByIdentity(ctx, uuid)
		if err != nil {
			return err
		}
		if err := checkUnlocked(ind); err != nil {
			return err
		}
		group, err := resolveGroup(ctx, tx, groupName, parentOrg)
		if err != nil {
			return err
		}
		if err := s.enrollTx(ctx, tx, trail, ind.MK, group, period, force); err != nil {
			return err
		}
		if err := trail.Close(ctx); err != nil {
			return err
		}
		result, err = tx.GetIndividual(ctx, ind.MK)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("individual", result.MK).
		Str("group", groupName).
		Msg("individual enrolled")
	return result, nil
}

func (s *Service) enrollTx(ctx context.Context, tx Store, trail *txlog.Trail, mk string, group *models.Group, period daterange.Range, force bool) error {
	existing, err := tx.GetEnrollments(ctx, mk, group.ID)
	if err != nil {
		return err
	}

	ranges := make([]daterange.Range, 0, len(existing)+1)
	stale := make([]uuid.UUID, 0, len(existing))
	for _, e := range existing {
		r := daterange.Range{Start: e.Start, End: e.End}
		if r.Contains(period) {
			sentinels := r.Start.Equal(daterange.MinPeriodDate) && r.End.Equal(daterange.MaxPeriodDate)
			if !force || !sentinels {
				return meld.DuplicateRangef("range [%s, %s] is already covered for group %q",
					period.Start.Format(time.DateOnly), period.End.Format(time.DateOnly), group.Name)
			}
		}
		ranges = append(ranges, r)
		stale = append(stale, e.ID)
	}
	ranges = append(ranges, period)

	merged, err := daterange.Merge(ranges, force)
	if err != nil {
		return err
	}
	if len(stale) > 0 {
		if err := tx.DeleteEnrollments(ctx, stale); err != nil {
			return err
		}
	}
	for _, r := range merged {
		if err := tx.CreateEnrollment(ctx, models.NewEnrollment(mk, group.ID, r.Start, r.End)); err != nil {
			return err
		}
	}
	if err := tx.TouchIndividual(ctx, mk); err != nil {
		return err
	}

	args := map[string]any{
		"group": group.Name,
		"from":  period.Start.Format(time.RFC3339),
		"to":    period.End.Format(time.RFC3339),
	}
	return trail.Log(ctx, models.OpAdd, "enrollment", mk, args)
}

// Withdraw removes the enrollments of the individual owning uuid in a
// group within a period. Periods partially covered by the withdrawal
// keep their uncovered edges.
func (s *Service) Withdraw(ctx context.Context, uuid, groupName, parentOrg string, from, to time.Time) (*models.Individual, error) {
	period, err := normalizePeriod(from, to)
	if err != nil {
		return nil, err
	}

	store, err := s.store(ctx)
	if err != nil {
		return nil, err
	}

	var result *models.Individual
	err = store.Atomic(ctx, func(tx Store) error {
		trail, err := txlog.Open(ctx, tx, "withdraw")
		if err != nil {
			return err
		}
		ind, err := tx.FindIndividualByIdentity(ctx, uuid)
		if err != nil {
			return err
		}
		if err := checkUnlocked(ind); err != nil {
			return err
		}
		group, err := resolveGroup(ctx, tx, groupName, parentOrg)
		if err != nil {
			return err
		}
		if err := s.withdrawTx(ctx, tx, trail, ind.MK, group, period); err != nil {
			return err
		}
		if err := trail.Close(ctx); err != nil {
			return err
		}
		result, err = tx.GetIndividual(ctx, ind.MK)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("individual", result.MK).
		Str("group", groupName).
		Msg("individual withdrawn")
	return result, nil
}

func (s *Service) withdrawTx(ctx context.Context, tx Store, trail *txlog.Trail, mk string, group *models.Group, period daterange.Range) error {
	overlapping, err := tx.GetEnrollmentsInRange(ctx, mk, group.ID, period.Start, period.End)
	if err != nil {
		return err
	}
	if len(overlapping) == 0 {
		return meld.NotFoundf("individual %q has no enrollments in group %q within [%s, %s]",
			mk, group.Name, period.Start.Format(time.DateOnly), period.End.Format(time.DateOnly))
	}

	minStart := overlapping[0].Start
	maxEnd := overlapping[0].End
	stale := make([]uuid.UUID, 0, len(overlapping))
	for _, e := range overlapping {
		if e.Start.Before(minStart) {
			minStart = e.Start
		}
		if e.End.After(maxEnd) {
			maxEnd = e.End
		}
		stale = append(stale, e.ID)
	}
	if err := tx.DeleteEnrollments(ctx, stale); err != nil {
		return err
	}
	if minStart.Before(period.Start) {
		if err := tx.CreateEnrollment(ctx, models.NewEnrollment(mk, group.ID, minStart, period.Start)); err != nil {
			return err
		}
	}
	if maxEnd.After(period.End) {
		if err := tx.CreateEnrollment(ctx, models.NewEnrollment(mk, group.ID, period.End, maxEnd)); err != nil {
			return err
		}
	}
	if err := tx.TouchIndividual(ctx, mk); err != nil {
		return err
	}

	args := map[string]any{
		"group": group.Name,
		"from":  period.Start.Format(time.RFC3339),
		"to":    period.End.Format(time.RFC3339),
	}
	return trail.Log(ctx, models.OpDelete, "enrollment", mk, args)
}

// UpdateEnrollment replaces one enrollment period with another, as a
// withdrawal of the old period followed by an enrollment in the new
// one.
func (s *Service) UpdateEnrollment(ctx context.Context, uuid, groupName, parentOrg string, from, to, newFrom, newTo time.Time, force bool) (*models.Individual, error) {
	oldPeriod, err := normalizePeriod(from, to)
	if err != nil {
		return nil, err
	}
	if newFrom.IsZero() || newTo.IsZero() {
		return nil, meld.InvalidValuef("new enrollment dates cannot be empty")
	}
	newPeriod, err := normalizePeriod(newFrom, newTo)
	if err != nil {
		return nil, err
	}

	store, err := s.store(ctx)
	if err != nil {
		return nil, err
	}

	var result *models.Individual
	err = store.Atomic(ctx, func(tx Store) error {
		trail, err := txlog.Open(ctx, tx, "update_enrollment")
		if err != nil {
			return err
		}
		ind, err := tx.FindIndividualByIdentity(ctx, uuid)
		if err != nil {
			return err
		}
		if err := checkUnlocked(ind); err != nil {
			return err
		}
		group, err := resolveGroup(ctx, tx, groupName, parentOrg)
		if err != nil {
			return err
		}
		if err := s.withdrawTx(ctx, tx, trail, ind.MK, group, oldPeriod); err != nil {
			return err
		}
		if err := s.enrollTx(ctx, tx, trail, ind.MK, group, newPeriod, force); err != nil {
			return err
		}
		if err := trail.Close(ctx); err != nil {
			return err
		}
		result, err = tx.GetIndividual(ctx, ind.MK)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("individual", result.MK).
		Str("group", groupName).
		Msg("enrollment updated")
	return result, nil
}
