package orgs

import (
	"context"

	"github.com/google/uuid"
	"github.com/openmeld/meld/internal/daterange"
	"github.com/openmeld/meld/internal/meld"
	"github.com/openmeld/meld/internal/models"
	"github.com/openmeld/meld/internal/txlog"
)

// MergeOrganizations absorbs one organization into another. Domains,
// aliases and teams move to the target, enrollments are rebuilt under
// it coalescing overlaps, and the source name survives as an alias.
func (s *Service) MergeOrganizations(ctx context.Context, fromName, toName string) (*models.Group, error) {
	if fromName == toName {
		return nil, meld.InvalidValuef("cannot merge organization %q into itself", fromName)
	}

	store, err := s.store(ctx)
	if err != nil {
		return nil, err
	}

	var target *models.Group
	err = store.Atomic(ctx, func(tx Store) error {
		trail, err := txlog.Open(ctx, tx, "merge_organizations")
		if err != nil {
			return err
		}

		from, err := tx.GetOrganization(ctx, fromName)
		if err != nil {
			return err
		}
		to, err := tx.GetOrganization(ctx, toName)
		if err != nil {
			return err
		}

		if err := tx.ReparentDomains(ctx, from.ID, to.ID); err != nil {
			return err
		}
		if err := tx.ReparentAliases(ctx, from.ID, to.ID); err != nil {
			return err
		}
		if err := tx.ReparentTeams(ctx, from.ID, to.ID); err != nil {
			return err
		}
		if err := moveEnrollments(ctx, tx, from, to); err != nil {
			return err
		}
		if err := tx.DeleteGroup(ctx, from.ID); err != nil {
			return err
		}
		if err := tx.CreateAlias(ctx, models.NewAlias(to.ID, from.Name)); err != nil {
			return err
		}

		args := map[string]any{"from": fromName, "to": toName}
		if err := trail.Log(ctx, models.OpUpdate, "organization", toName, args); err != nil {
			return err
		}
		if err := trail.Close(ctx); err != nil {
			return err
		}

		target, err = tx.GetOrganization(ctx, toName)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("from", fromName).Str("to", toName).Msg("organizations merged")
	return target, nil
}

// moveEnrollments rebuilds the source organization's enrollments under
// the target, coalescing with any the individual already has there.
func moveEnrollments(ctx context.Context, tx Store, from, to *models.Group) error {
	moving, err := tx.GetEnrollmentsByGroup(ctx, from.ID)
	if err != nil {
		return err
	}
	if len(moving) == 0 {
		return nil
	}

	byMK := make(map[string][]daterange.Range)
	var order []string
	for _, e := range moving {
		if _, ok := byMK[e.IndividualMK]; !ok {
			order = append(order, e.IndividualMK)
		}
		byMK[e.IndividualMK] = append(byMK[e.IndividualMK], daterange.Range{Start: e.Start, End: e.End})
	}

	for _, mk := range order {
		existing, err := tx.GetEnrollments(ctx, mk, to.ID)
		if err != nil {
			return err
		}
		ranges := byMK[mk]
		var stale []uuid.UUID
		for _, e := range existing {
			ranges = append(ranges, daterange.Range{Start: e.Start, End: e.End})
			stale = append(stale, e.ID)
		}
		merged, err := daterange.Merge(ranges, false)
		if err != nil {
			return err
		}
		if len(stale) > 0 {
			if err := tx.DeleteEnrollments(ctx, stale); err != nil {
				return err
			}
		}
		for _, r := range merged {
			if err := tx.CreateEnrollment(ctx, models.NewEnrollment(mk, to.ID, r.Start, r.End)); err != nil {
				return err
			}
		}
		if err := tx.TouchIndividual(ctx, mk); err != nil {
			return err
		}
	}
	return nil
}
