package registry

import (
	"context"
	"time"

	"github.com/openmeld/meld/internal/meld"
	"github.com/openmeld/meld/internal/models"
	"github.com/openmeld/meld/internal/txlog"
	"github.com/openmeld/meld/internal/uuidgen"
)

func optStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// AddIdentity registers a new identity. When parentUUID is empty a new
// individual is created, anchored on the identity and with a profile
// seeded from its name and email. Otherwise the identity is attached
// to the individual owning parentUUID.
func (s *Service) AddIdentity(ctx context.Context, source, name, email, username, parentUUID string) (*models.Identity, error) {
	id, err := uuidgen.UUID(source, email, name, username)
	if err != nil {
		return nil, err
	}

	store, err := s.store(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	identity := &models.Identity{
		UUID:         id,
		Source:       source,
		Name:         name,
		Email:        email,
		Username:     username,
		LastModified: now,
		CreatedAt:    now,
	}

	err = store.Atomic(ctx, func(tx Store) error {
		trail, err := txlog.Open(ctx, tx, "add_identity")
		if err != nil {
			return err
		}

		if parentUUID == "" {
			if err := tx.CreateIndividual(ctx, models.NewIndividual(id)); err != nil {
				return err
			}
			if err := trail.Log(ctx, models.OpAdd, "individual", id, nil); err != nil {
				return err
			}

			profile, err := tx.GetProfile(ctx, id)
			if err != nil {
				return err
			}
			profile.Name = optStr(name)
			if name == "" {
				profile.Name = optStr(username)
			}
			profile.Email = optStr(email)
			if err := tx.UpdateProfile(ctx, profile); err != nil {
				return err
			}
			identity.IndividualMK = id
		} else {
			parent, err := tx.FindIndividualByIdentity(ctx, parentUUID)
			if err != nil {
				return err
			}
			if err := checkUnlocked(parent); err != nil {
				return err
			}
			identity.IndividualMK = parent.MK
		}

		if err := tx.CreateIdentity(ctx, identity); err != nil {
			return err
		}
		if err := tx.TouchIndividual(ctx, identity.IndividualMK); err != nil {
			return err
		}

		args := map[string]any{
			"uuid":       id,
			"source":     source,
			"name":       name,
			"email":      email,
			"username":   username,
			"individual": identity.IndividualMK,
		}
		if err := trail.Log(ctx, models.OpAdd, "identity", id, args); err != nil {
			return err
		}
		return trail.Close(ctx)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("uuid", id).
		Str("source", source).
		Str("individual", identity.IndividualMK).
		Msg("identity added")
	return identity, nil
}

// DeleteIdentity removes an identity. Deleting the anchor identity of
// an individual removes the whole individual, in which case the
// returned individual is nil.
func (s *Service) DeleteIdentity(ctx context.Context, uuid string) (*models.Individual, error) {
	store, err := s.store(ctx)
	if err != nil {
		return nil, err
	}

	var result *models.Individual
	err = store.Atomic(ctx, func(tx Store) error {
		trail, err := txlog.Open(ctx, tx, "delete_identity")
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

		if uuid == ind.MK {
			if err := tx.DeleteRecommendationsByIndividual(ctx, ind.MK); err != nil {
				return err
			}
			if err := tx.DeleteIndividual(ctx, ind.MK); err != nil {
				return err
			}
			if err := trail.Log(ctx, models.OpDelete, "individual", ind.MK, nil); err != nil {
				return err
			}
			return trail.Close(ctx)
		}

		if err := tx.DeleteIdentity(ctx, uuid); err != nil {
			return err
		}
		if err := tx.TouchIndividual(ctx, ind.MK); err != nil {
			return err
		}
		if err := trail.Log(ctx, models.OpDelete, "identity", uuid, map[string]any{"individual": ind.MK}); err != nil {
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

	if result == nil {
		s.logger.Info().Str("uuid", uuid).Msg("individual deleted")
	} else {
		s.logger.Info().Str("uuid", uuid).Str("individual", result.MK).Msg("identity deleted")
	}
	return result, nil
}

// MoveIdentity attaches an identity to another individual. Moving an
// identity onto its own UUID splits it out into a fresh individual
// when none with that main key exists yet.
func (s *Service) MoveIdentity(ctx context.Context, fromUUID, toUUID string) (*models.Individual, error) {
	store, err := s.store(ctx)
	if err != nil {
		return nil, err
	}

	var result *models.Individual
	err = store.Atomic(ctx, func(tx Store) error {
		trail, err := txlog.Open(ctx, tx, "move_identity")
		if err != nil {
			return err
		}

		identity, err := tx.GetIdentity(ctx, fromUUID)
		if err != nil {
			return err
		}
		source, err := tx.FindIndividualByIdentity(ctx, fromUUID)
		if err != nil {
			return err
		}
		if fromUUID == source.MK {
			return meld.InvalidValuef("identity %q is the anchor of its individual and cannot be moved", fromUUID)
		}
		if err := checkUnlocked(source); err != nil {
			return err
		}

		var target *models.Individual
		if fromUUID == toUUID {
			target, err = tx.GetIndividual(ctx, toUUID)
			if err != nil {
				if !meld.IsNotFound(err) {
					return err
				}
				target = models.NewIndividual(toUUID)
				if err := tx.CreateIndividual(ctx, target); err != nil {
					return err
				}
				profile, err := tx.GetProfile(ctx, toUUID)
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
				if err := trail.Log(ctx, models.OpAdd, "individual", toUUID, nil); err != nil {
					return err
				}
			}
		} else {
			target, err = tx.FindIndividualByIdentity(ctx, toUUID)
			if err != nil {
				return err
			}
		}
		if err := checkUnlocked(target); err != nil {
			return err
		}

		if source.MK != target.MK {
			if err := tx.MoveIdentity(ctx, fromUUID, target.MK); err != nil {
				return err
			}
			if err := tx.TouchIndividual(ctx, source.MK, target.MK); err != nil {
				return err
			}
			args := map[string]any{"from": source.MK, "to": target.MK}
			if err := trail.Log(ctx, models.OpUpdate, "identity", fromUUID, args); err != nil {
				return err
			}
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
		Str("uuid", fromUUID).
		Str("individual", result.MK).
		Msg("identity moved")
	return result, nil
}
