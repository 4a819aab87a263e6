package registry

import (
	"context"
	"time"

	"github.com/openmeld/meld/internal/meld"
	"github.com/openmeld/meld/internal/models"
	"github.com/openmeld/meld/internal/txlog"
)

// ProfileUpdate carries the profile fields to change. Nil pointers
// leave the field untouched; an empty string clears it.
type ProfileUpdate struct {
	Name        *string
	Email       *string
	Gender      *string
	GenderAcc   *int
	IsBot       *bool
	CountryCode *string
}

func applyOpt(dst **string, src *string) {
	if src == nil {
		return
	}
	if *src == "" {
		*dst = nil
		return
	}
	v := *src
	*dst = &v
}

// UpdateProfile modifies the unified profile of the individual owning
// the given identity.
func (s *Service) UpdateProfile(ctx context.Context, uuid string, update ProfileUpdate) (*models.Individual, error) {
	store, err := s.store(ctx)
	if err != nil {
		return nil, err
	}

	var result *models.Individual
	err = store.Atomic(ctx, func(tx Store) error {
		trail, err := txlog.Open(ctx, tx, "update_profile")
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

		profile, err := tx.GetProfile(ctx, ind.MK)
		if err != nil {
			return err
		}

		applyOpt(&profile.Name, update.Name)
		applyOpt(&profile.Email, update.Email)
		applyOpt(&profile.Gender, update.Gender)
		if update.Gender != nil && *update.Gender == "" {
			profile.GenderAcc = nil
		}
		if update.GenderAcc != nil {
			if profile.Gender == nil {
				return meld.InvalidValuef("gender_acc requires a gender")
			}
			if *update.GenderAcc < 1 || *update.GenderAcc > 100 {
				return meld.InvalidValuef("gender_acc must be within [1, 100], got %d", *update.GenderAcc)
			}
			acc := *update.GenderAcc
			profile.GenderAcc = &acc
		}
		if update.IsBot != nil {
			profile.IsBot = *update.IsBot
		}
		if update.CountryCode != nil {
			if *update.CountryCode == "" {
				profile.CountryCode = nil
			} else {
				if _, err := tx.GetCountry(ctx, *update.CountryCode); err != nil {
					return err
				}
				code := *update.CountryCode
				profile.CountryCode = &code
			}
		}

		if err := tx.UpdateProfile(ctx, profile); err != nil {
			return err
		}
		if err := tx.TouchIndividual(ctx, ind.MK); err != nil {
			return err
		}

		args := map[string]any{"individual": ind.MK}
		if update.Name != nil {
			args["name"] = *update.Name
		}
		if update.Email != nil {
			args["email"] = *update.Email
		}
		if update.Gender != nil {
			args["gender"] = *update.Gender
		}
		if update.GenderAcc != nil {
			args["gender_acc"] = *update.GenderAcc
		}
		if update.IsBot != nil {
			args["is_bot"] = *update.IsBot
		}
		if update.CountryCode != nil {
			args["country_code"] = *update.CountryCode
		}
		if err := trail.Log(ctx, models.OpUpdate, "profile", ind.MK, args); err != nil {
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

	s.logger.Info().Str("individual", result.MK).Msg("profile updated")
	return result, nil
}

func (s *Service) setLock(ctx context.Context, uuid string, locked bool, verb string) (*models.Individual, error) {
	store, err := s.store(ctx)
	if err != nil {
		return nil, err
	}

	var result *models.Individual
	err = store.Atomic(ctx, func(tx Store) error {
		trail, err := txlog.Open(ctx, tx, verb)
		if err != nil {
			return err
		}

		ind, err := tx.FindIndividualByIdentity(ctx, uuid)
		if err != nil {
			return err
		}
		if err := tx.SetIndividualLock(ctx, ind.MK, locked); err != nil {
			return err
		}
		args := map[string]any{"is_locked": locked}
		if err := trail.Log(ctx, models.OpUpdate, "individual", ind.MK, args); err != nil {
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

	s.logger.Info().Str("individual", result.MK).Bool("locked", locked).Msg("lock changed")
	return result, nil
}

// Lock protects an individual from further mutation.
func (s *Service) Lock(ctx context.Context, uuid string) (*models.Individual, error) {
	return s.setLock(ctx, uuid, true, "lock")
}

// Unlock lifts the mutation protection of an individual.
func (s *Service) Unlock(ctx context.Context, uuid string) (*models.Individual, error) {
	return s.setLock(ctx, uuid, false, "unlock")
}

// Review marks an individual as reviewed at the given time, or now
// when the time is zero.
func (s *Service) Review(ctx context.Context, uuid string, at time.Time) (*models.Individual, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	store, err := s.store(ctx)
	if err != nil {
		return nil, err
	}

	var result *models.Individual
	err = store.Atomic(ctx, func(tx Store) error {
		trail, err := txlog.Open(ctx, tx, "review")
		if err != nil {
			return err
		}

		ind, err := tx.FindIndividualByIdentity(ctx, uuid)
		if err != nil {
			return err
		}
		if err := tx.ReviewIndividual(ctx, ind.MK, at); err != nil {
			return err
		}
		args := map[string]any{"last_reviewed": at.Format(time.RFC3339)}
		if err := trail.Log(ctx, models.OpUpdate, "individual", ind.MK, args); err != nil {
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

	s.logger.Info().Str("individual", result.MK).Time("at", at).Msg("individual reviewed")
	return result, nil
}
