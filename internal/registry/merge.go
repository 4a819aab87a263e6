package registry

import (
	"context"

	"github.com/google/uuid"
	"github.com/openmeld/meld/internal/daterange"
	"github.com/openmeld/meld/internal/meld"
	"github.com/openmeld/meld/internal/models"
	"github.com/openmeld/meld/internal/txlog"
)

// Merge joins the individuals owning fromUUIDs into the individual
// owning toUUID. Identities and enrollments move to the target, the
// target profile keeps its own values and fills gaps from the sources,
// and the source individuals are removed.
func (s *Service) Merge(ctx context.Context, fromUUIDs []string, toUUID string) (*models.Individual, error) {
	if len(fromUUIDs) == 0 {
		return nil, meld.InvalidValuef("from_uuids cannot be empty")
	}

	store, err := s.store(ctx)
	if err != nil {
		return nil, err
	}

	var result *models.Individual
	err = store.Atomic(ctx, func(tx Store) error {
		trail, err := txlog.Open(ctx, tx, "merge")
		if err != nil {
			return err
		}

		target, err := tx.FindIndividualByIdentity(ctx, toUUID)
		if err != nil {
			return err
		}
		if err := checkUnlocked(target); err != nil {
			return err
		}

		var sources []*models.Individual
		seen := map[string]bool{target.MK: true}
		for _, from := range fromUUIDs {
			ind, err := tx.FindIndividualByIdentity(ctx, from)
			if err != nil {
				return err
			}
			if ind.MK == target.MK {
				return meld.Errorf(meld.KindEqualIndividual,
					"%q resolves to the same individual as %q", from, toUUID)
			}
			if seen[ind.MK] {
				continue
			}
			seen[ind.MK] = true
			if err := checkUnlocked(ind); err != nil {
				return err
			}
			sources = append(sources, ind)
		}

		for _, src := range sources {
			for _, idn := range src.Identities {
				if err := tx.MoveIdentity(ctx, idn.UUID, target.MK); err != nil {
					return err
				}
			}
		}

		if err := mergeEnrollments(ctx, tx, target, sources); err != nil {
			return err
		}
		if err := mergeProfiles(ctx, tx, target, sources); err != nil {
			return err
		}

		mks := make([]string, 0, len(sources))
		for _, src := range sources {
			if err := tx.DeleteRecommendationsByIndividual(ctx, src.MK); err != nil {
				return err
			}
			if err := tx.DeleteIndividual(ctx, src.MK); err != nil {
				return err
			}
			mks = append(mks, src.MK)
		}
		if err := tx.TouchIndividual(ctx, target.MK); err != nil {
			return err
		}

		args := map[string]any{"from": mks, "to": target.MK}
		if err := trail.Log(ctx, models.OpUpdate, "individual", target.MK, args); err != nil {
			return err
		}
		if err := trail.Close(ctx); err != nil {
			return err
		}

		result, err = tx.GetIndividual(ctx, target.MK)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Strs("from", fromUUIDs).
		Str("individual", result.MK).
		Msg("individuals merged")
	return result, nil
}

// mergeEnrollments rebuilds the target's enrollments from the union of
// all participants, coalescing overlapping periods per group.
func mergeEnrollments(ctx context.Context, tx Store, target *models.Individual, sources []*models.Individual) error {
	byGroup := make(map[uuid.UUID][]daterange.Range)
	var stale []uuid.UUID

	collect := func(ind *models.Individual) {
		for _, e := range ind.Enrollments {
			byGroup[e.GroupID] = append(byGroup[e.GroupID], daterange.Range{Start: e.Start, End: e.End})
			stale = append(stale, e.ID)
		}
	}
	collect(target)
	for _, src := range sources {
		collect(src)
	}
	if len(stale) == 0 {
		return nil
	}

	if err := tx.DeleteEnrollments(ctx, stale); err != nil {
		return err
	}
	for groupID, ranges := range byGroup {
		merged, err := daterange.Merge(ranges, true)
		if err != nil {
			return err
		}
		for _, r := range merged {
			e := models.NewEnrollment(target.MK, groupID, r.Start, r.End)
			if err := tx.CreateEnrollment(ctx, e); err != nil {
				return err
			}
		}
	}
	return nil
}

// mergeProfiles keeps the target's profile values and fills empty
// fields from the sources in order. Bot status is sticky across all
// participants.
func mergeProfiles(ctx context.Context, tx Store, target *models.Individual, sources []*models.Individual) error {
	profile, err := tx.GetProfile(ctx, target.MK)
	if err != nil {
		return err
	}
	for _, src := range sources {
		p, err := tx.GetProfile(ctx, src.MK)
		if err != nil {
			return err
		}
		if profile.Name == nil {
			profile.Name = p.Name
		}
		if profile.Email == nil {
			profile.Email = p.Email
		}
		if profile.Gender == nil {
			profile.Gender = p.Gender
			profile.GenderAcc = p.GenderAcc
		}
		if profile.CountryCode == nil {
			profile.CountryCode = p.CountryCode
		}
		if p.IsBot {
			profile.IsBot = true
		}
	}
	return tx.UpdateProfile(ctx, profile)
}

// UnmergeIdentities splits each identity out into its own individual,
// anchored on the identity and with a profile seeded from it.
// Identities that already anchor their individual are left in place.
func (s *Service) UnmergeIdentities(ctx context.Context, uuids []string) ([]*models.Individual, error) {
	if len(uuids) == 0 {
		return nil, meld.InvalidValuef("uuids cannot be empty")
	}

	store, err := s.store(ctx)
	if err != nil {
		return nil, err
	}

	var results []*models.Individual
	err = store.Atomic(ctx, func(tx Store) error {
		trail, err := txlog.Open(ctx, tx, "unmerge_identities")
		if err != nil {
			return err
		}

		for _, id := range uuids {
			identity, err := tx.GetIdentity(ctx, id)
			if err != nil {
				return err
			}
			parent, err := tx.FindIndividualByIdentity(ctx, id)
			if err != nil {
				return err
			}
			if identity.UUID == parent.MK {
				results = append(results, parent)
				continue
			}
			if err := checkUnlocked(parent); err != nil {
				return err
			}

			if err := tx.CreateIndividual(ctx, models.NewIndividual(identity.UUID)); err != nil {
				return err
			}
			profile, err := tx.GetProfile(ctx, identity.UUID)
			if err != nil {
				return err
			}
			profile.Name = optStr(identity.Name)
			if profile.Name == nil {
				profile.Name = optStr(identity.Username)
			}
			profile.Email = optStr(identity.Email)
			if err := tx.UpdateProfile(ctx, profile); err != nil {
				return err
			}
			if err := tx.MoveIdentity(ctx, identity.UUID, identity.UUID); err != nil {
				return err
			}
			if err := tx.TouchIndividual(ctx, parent.MK, identity.UUID); err != nil {
				return err
			}

			args := map[string]any{"from": parent.MK, "to": identity.UUID}
			if err := trail.Log(ctx, models.OpUpdate, "identity", identity.UUID, args); err != nil {
				return err
			}

			split, err := tx.GetIndividual(ctx, identity.UUID)
			if err != nil {
				return err
			}
			results = append(results, split)
		}
		return trail.Close(ctx)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Strs("uuids", uuids).Msg("identities unmerged")
	return results, nil
}
