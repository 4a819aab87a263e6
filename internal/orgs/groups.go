package orgs

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/openmeld/meld/internal/meld"
	"github.com/openmeld/meld/internal/models"
	"github.com/openmeld/meld/internal/txlog"
)

// AddOrganization registers a new organization.
func (s *Service) AddOrganization(ctx context.Context, name string) (*models.Group, error) {
	if name = strings.TrimSpace(name); name == "" {
		return nil, meld.InvalidValuef("organization name cannot be empty")
	}

	store, err := s.store(ctx)
	if err != nil {
		return nil, err
	}

	org := models.NewOrganization(name)
	err = store.Atomic(ctx, func(tx Store) error {
		trail, err := txlog.Open(ctx, tx, "add_organization")
		if err != nil {
			return err
		}
		if err := tx.CreateGroup(ctx, org); err != nil {
			return err
		}
		if err := trail.Log(ctx, models.OpAdd, "organization", name, nil); err != nil {
			return err
		}
		return trail.Close(ctx)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("organization", name).Msg("organization added")
	return org, nil
}

// DeleteOrganization removes an organization with its domains, aliases,
// teams and enrollments.
func (s *Service) DeleteOrganization(ctx context.Context, name string) error {
	store, err := s.store(ctx)
	if err != nil {
		return err
	}

	err = store.Atomic(ctx, func(tx Store) error {
		trail, err := txlog.Open(ctx, tx, "delete_organization")
		if err != nil {
			return err
		}
		org, err := tx.GetOrganization(ctx, name)
		if err != nil {
			return err
		}
		affected, err := enrolledMKs(ctx, tx, org)
		if err != nil {
			return err
		}
		if err := tx.DeleteGroup(ctx, org.ID); err != nil {
			return err
		}
		if len(affected) > 0 {
			if err := tx.TouchIndividual(ctx, affected...); err != nil {
				return err
			}
		}
		if err := trail.Log(ctx, models.OpDelete, "organization", name, nil); err != nil {
			return err
		}
		return trail.Close(ctx)
	})
	if err != nil {
		return err
	}

	s.logger.Info().Str("organization", name).Msg("organization deleted")
	return nil
}

// enrolledMKs returns the main keys of individuals enrolled in the
// group.
func enrolledMKs(ctx context.Context, tx Store, group *models.Group) ([]string, error) {
	enrollments, err := tx.GetEnrollmentsByGroup(ctx, group.ID)
	if err != nil {
		return nil, err
	}
	var mks []string
	seen := make(map[string]bool)
	for _, e := range enrollments {
		if !seen[e.IndividualMK] {
			seen[e.IndividualMK] = true
			mks = append(mks, e.IndividualMK)
		}
	}
	return mks, nil
}

// AddTeam creates a team, optionally owned by an organization and/or
// nested under a parent team of the same organization.
func (s *Service) AddTeam(ctx context.Context, name, orgName, parentName string) (*models.Group, error) {
	if name = strings.TrimSpace(name); name == "" {
		return nil, meld.InvalidValuef("team name cannot be empty")
	}

	store, err := s.store(ctx)
	if err != nil {
		return nil, err
	}

	var team *models.Group
	err = store.Atomic(ctx, func(tx Store) error {
		trail, err := txlog.Open(ctx, tx, "add_team")
		if err != nil {
			return err
		}

		team = models.NewTeam(name, nil, nil)
		if orgName != "" {
			org, err := tx.GetOrganization(ctx, orgName)
			if err != nil {
				return err
			}
			team.ParentOrgID = &org.ID
		}
		if parentName != "" {
			parent, err := tx.GetTeam(ctx, parentName, team.ParentOrgID)
			if err != nil {
				return err
			}
			team.ParentTeamID = &parent.ID
		}
		if err := tx.CreateGroup(ctx, team); err != nil {
			return err
		}

		args := map[string]any{"organization": orgName, "parent": parentName}
		if err := trail.Log(ctx, models.OpAdd, "team", name, args); err != nil {
			return err
		}
		return trail.Close(ctx)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("team", name).Str("organization", orgName).Msg("team added")
	return team, nil
}

// DeleteTeam removes a team and its whole subteam tree.
func (s *Service) DeleteTeam(ctx context.Context, name, orgName string) error {
	store, err := s.store(ctx)
	if err != nil {
		return err
	}

	err = store.Atomic(ctx, func(tx Store) error {
		trail, err := txlog.Open(ctx, tx, "delete_team")
		if err != nil {
			return err
		}

		var orgID *uuid.UUID
		if orgName != "" {
			org, err := tx.GetOrganization(ctx, orgName)
			if err != nil {
				return err
			}
			orgID = &org.ID
		}
		team, err := tx.GetTeam(ctx, name, orgID)
		if err != nil {
			return err
		}
		affected, err := enrolledMKs(ctx, tx, team)
		if err != nil {
			return err
		}
		if err := tx.DeleteGroup(ctx, team.ID); err != nil {
			return err
		}
		if len(affected) > 0 {
			if err := tx.TouchIndividual(ctx, affected...); err != nil {
				return err
			}
		}
		if err := trail.Log(ctx, models.OpDelete, "team", name, nil); err != nil {
			return err
		}
		return trail.Close(ctx)
	})
	if err != nil {
		return err
	}

	s.logger.Info().Str("team", name).Str("organization", orgName).Msg("team deleted")
	return nil
}

// AddDomain registers an email domain owned by an organization. A top
// domain also claims its subdomains during affiliation.
func (s *Service) AddDomain(ctx context.Context, orgName, domain string, isTopDomain bool) (*models.Domain, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return nil, meld.InvalidValuef("domain cannot be empty")
	}
	if strings.ContainsAny(domain, "@ ") || strings.HasPrefix(domain, ".") {
		return nil, meld.InvalidValuef("invalid domain %q", domain)
	}

	store, err := s.store(ctx)
	if err != nil {
		return nil, err
	}

	var d *models.Domain
	err = store.Atomic(ctx, func(tx Store) error {
		trail, err := txlog.Open(ctx, tx, "add_domain")
		if err != nil {
			return err
		}
		org, err := tx.GetOrganization(ctx, orgName)
		if err != nil {
			return err
		}
		d = models.NewDomain(org.ID, domain, isTopDomain)
		if err := tx.CreateDomain(ctx, d); err != nil {
			return err
		}
		args := map[string]any{"organization": orgName, "is_top_domain": isTopDomain}
		if err := trail.Log(ctx, models.OpAdd, "domain", domain, args); err != nil {
			return err
		}
		return trail.Close(ctx)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("domain", domain).Str("organization", orgName).Msg("domain added")
	return d, nil
}

// DeleteDomain removes an email domain.
func (s *Service) DeleteDomain(ctx context.Context, domain string) error {
	store, err := s.store(ctx)
	if err != nil {
		return err
	}

	err = store.Atomic(ctx, func(tx Store) error {
		trail, err := txlog.Open(ctx, tx, "delete_domain")
		if err != nil {
			return err
		}
		if err := tx.DeleteDomain(ctx, domain); err != nil {
			return err
		}
		if err := trail.Log(ctx, models.OpDelete, "domain", domain, nil); err != nil {
			return err
		}
		return trail.Close(ctx)
	})
	if err != nil {
		return err
	}

	s.logger.Info().Str("domain", domain).Msg("domain deleted")
	return nil
}

// AddAlias registers an alternative name for an organization.
func (s *Service) AddAlias(ctx context.Context, orgName, alias string) (*models.Alias, error) {
	if alias = strings.TrimSpace(alias); alias == "" {
		return nil, meld.InvalidValuef("alias cannot be empty")
	}

	store, err := s.store(ctx)
	if err != nil {
		return nil, err
	}

	var a *models.Alias
	err = store.Atomic(ctx, func(tx Store) error {
		trail, err := txlog.Open(ctx, tx, "add_alias")
		if err != nil {
			return err
		}
		org, err := tx.GetOrganization(ctx, orgName)
		if err != nil {
			return err
		}
		if alias == org.Name {
			return meld.InvalidValuef("alias %q cannot equal the organization name", alias)
		}
		if _, err := tx.GetOrganization(ctx, alias); err == nil {
			return meld.AlreadyExistsf("", "organization %q already exists", alias)
		} else if !meld.IsNotFound(err) {
			return err
		}
		a = models.NewAlias(org.ID, alias)
		if err := tx.CreateAlias(ctx, a); err != nil {
			return err
		}
		args := map[string]any{"organization": orgName}
		if err := trail.Log(ctx, models.OpAdd, "alias", alias, args); err != nil {
			return err
		}
		return trail.Close(ctx)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("alias", alias).Str("organization", orgName).Msg("alias added")
	return a, nil
}

// DeleteAlias removes an organization alias.
func (s *Service) DeleteAlias(ctx context.Context, alias string) error {
	store, err := s.store(ctx)
	if err != nil {
		return err
	}

	err = store.Atomic(ctx, func(tx Store) error {
		trail, err := txlog.Open(ctx, tx, "delete_alias")
		if err != nil {
			return err
		}
		if err := tx.DeleteAlias(ctx, alias); err != nil {
			return err
		}
		if err := trail.Log(ctx, models.OpDelete, "alias", alias, nil); err != nil {
			return err
		}
		return trail.Close(ctx)
	})
	if err != nil {
		return err
	}

	s.logger.Info().Str("alias", alias).Msg("alias deleted")
	return nil
}
