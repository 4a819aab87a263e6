package recommend

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/openmeld/meld/internal/meld"
	"github.com/openmeld/meld/internal/models"
	"github.com/openmeld/meld/internal/registry"
)

// Affiliate computes affiliation recommendations and enrolls the
// individuals right away. Failed enrollments are reported per item
// without aborting the run. The returned map lists the organizations
// each individual was enrolled in.
func (s *Service) Affiliate(ctx context.Context, mks []string, lastModified *time.Time) (map[string][]string, []string, error) {
	recommended, err := s.RecommendAffiliations(ctx, mks, lastModified)
	if err != nil {
		return nil, nil, err
	}

	store, err := s.store(ctx)
	if err != nil {
		return nil, nil, err
	}

	results := make(map[string][]string)
	var failures []string
	order := make([]string, 0, len(recommended))
	for mk := range recommended {
		order = append(order, mk)
	}
	sort.Strings(order)

	for _, mk := range order {
		for _, org := range recommended[mk] {
			_, err := s.orgs.Enroll(ctx, mk, org, "", time.Time{}, time.Time{}, false)
			if err != nil {
				failures = append(failures, fmt.Sprintf("%s: %v", mk, err))
				continue
			}
			// The upsert resolves the id of the recommendation just
			// produced so it can be closed out.
			rec := models.NewAffiliationRecommendation(mk, org)
			if err := store.CreateRecommendation(ctx, rec); err != nil {
				return nil, nil, err
			}
			if err := store.SetRecommendationApplied(ctx, rec.ID, true); err != nil {
				return nil, nil, err
			}
			results[mk] = append(results[mk], org)
		}
	}

	s.logger.Info().
		Int("individuals", len(results)).
		Int("failures", len(failures)).
		Msg("individuals affiliated")
	return results, failures, nil
}

// Unify computes match recommendations and merges each component into
// its smallest main key. Locked or vanished individuals are reported
// per component without aborting the run. The returned list holds the
// main keys that absorbed a merge.
func (s *Service) Unify(ctx context.Context, mks []string, opts MatchOptions) ([]string, []string, error) {
	opts.Verbose = false
	matches, err := s.RecommendMatches(ctx, mks, opts)
	if err != nil {
		return nil, nil, err
	}

	order := make([]string, 0, len(matches))
	for root := range matches {
		order = append(order, root)
	}
	sort.Strings(order)

	var merged []string
	var failures []string
	for _, root := range order {
		if _, err := s.registry.Merge(ctx, matches[root], root); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", root, err))
			continue
		}
		merged = append(merged, root)
	}

	s.logger.Info().
		Int("merged", len(merged)).
		Int("failures", len(failures)).
		Msg("individuals unified")
	return merged, failures, nil
}

// Genderize computes gender recommendations and applies them to the
// profiles right away.
func (s *Service) Genderize(ctx context.Context, mks []string, noStrictName bool) (map[string]*models.Recommendation, []string, error) {
	recommended, failures, err := s.RecommendGender(ctx, mks, noStrictName)
	if err != nil {
		return nil, nil, err
	}

	store, err := s.store(ctx)
	if err != nil {
		return nil, nil, err
	}

	results := make(map[string]*models.Recommendation)
	order := make([]string, 0, len(recommended))
	for mk := range recommended {
		order = append(order, mk)
	}
	sort.Strings(order)

	for _, mk := range order {
		rec := recommended[mk]
		if err := s.applyGender(ctx, store, rec); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", mk, err))
			continue
		}
		results[mk] = rec
	}

	s.logger.Info().
		Int("individuals", len(results)).
		Int("failures", len(failures)).
		Msg("profiles genderized")
	return results, failures, nil
}

func (s *Service) applyGender(ctx context.Context, store Store, rec *models.Recommendation) error {
	acc := rec.GenderAcc
	_, err := s.registry.UpdateProfile(ctx, rec.IndividualMK, registry.ProfileUpdate{
		Gender:    &rec.Gender,
		GenderAcc: &acc,
	})
	if err != nil {
		return err
	}
	return store.SetRecommendationApplied(ctx, rec.ID, true)
}

// ApplyRecommendation accepts a pending recommendation, performing the
// change it proposes.
func (s *Service) ApplyRecommendation(ctx context.Context, id int64) error {
	store, err := s.store(ctx)
	if err != nil {
		return err
	}
	rec, err := store.GetRecommendation(ctx, id)
	if err != nil {
		return err
	}
	if rec.Applied != nil {
		return meld.InvalidValuef("recommendation %d has already been managed", id)
	}

	switch rec.Kind {
	case models.RecommendationAffiliation:
		if _, err := s.orgs.Enroll(ctx, rec.IndividualMK, rec.OrganizationName, "", time.Time{}, time.Time{}, false); err != nil {
			return err
		}
		return store.SetRecommendationApplied(ctx, id, true)
	case models.RecommendationMerge:
		// The merge prunes every recommendation referencing the
		// absorbed individual, this one included.
		_, err := s.registry.Merge(ctx, []string{rec.MatchMK}, rec.IndividualMK)
		return err
	case models.RecommendationGender:
		return s.applyGender(ctx, store, rec)
	default:
		return meld.InvalidValuef("unknown recommendation kind %q", rec.Kind)
	}
}

// DismissRecommendation rejects a pending recommendation. The record
// is kept so the same proposal is not produced again.
func (s *Service) DismissRecommendation(ctx context.Context, id int64) error {
	store, err := s.store(ctx)
	if err != nil {
		return err
	}
	rec, err := store.GetRecommendation(ctx, id)
	if err != nil {
		return err
	}
	if rec.Applied != nil {
		return meld.InvalidValuef("recommendation %d has already been managed", id)
	}
	return store.SetRecommendationApplied(ctx, id, false)
}

// AddExclusionTerms registers terms whose identities are ignored by
// the matching recommender.
func (s *Service) AddExclusionTerms(ctx context.Context, terms []string) error {
	if len(terms) == 0 {
		return meld.InvalidValuef("terms cannot be empty")
	}
	store, err := s.store(ctx)
	if err != nil {
		return err
	}
	for _, term := range terms {
		if term == "" {
			return meld.InvalidValuef("terms cannot be empty")
		}
		err := store.CreateExclusionTerm(ctx, &models.ExclusionTerm{Term: term, CreatedAt: time.Now().UTC()})
		if err != nil && !meld.IsAlreadyExists(err) {
			return err
		}
	}
	return nil
}

// DeleteExclusionTerms removes terms from the exclusion list.
func (s *Service) DeleteExclusionTerms(ctx context.Context, terms []string) error {
	store, err := s.store(ctx)
	if err != nil {
		return err
	}
	for _, term := range terms {
		if err := store.DeleteExclusionTerm(ctx, term); err != nil {
			return err
		}
	}
	return nil
}

// ExclusionTerms lists the stored exclusion terms.
func (s *Service) ExclusionTerms(ctx context.Context) ([]*models.ExclusionTerm, error) {
	store, err := s.store(ctx)
	if err != nil {
		return nil, err
	}
	return store.GetExclusionTerms(ctx)
}
