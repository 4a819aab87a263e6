package recommend

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/openmeld/meld/internal/meld"
	"github.com/openmeld/meld/internal/models"
)

// RecommendAffiliations proposes organizations for individuals based
// on the domains of their identity emails. With no main keys given all
// individuals are considered, optionally narrowed to those modified at
// or after lastModified. Proposals are persisted and returned as a map
// of main key to organization names.
func (s *Service) RecommendAffiliations(ctx context.Context, mks []string, lastModified *time.Time) (map[string][]string, error) {
	store, err := s.store(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := store.GetIdentitiesForMatching(ctx, mks, lastModified)
	if err != nil {
		return nil, err
	}

	emailsByMK := make(map[string]map[string]bool)
	var order []string
	for _, row := range rows {
		if !wellFormedEmail(row.Email) {
			continue
		}
		if _, ok := emailsByMK[row.IndividualMK]; !ok {
			emailsByMK[row.IndividualMK] = make(map[string]bool)
			order = append(order, row.IndividualMK)
		}
		emailsByMK[row.IndividualMK][strings.ToLower(row.Email)] = true
	}
	sort.Strings(order)

	results := make(map[string][]string)
	for _, mk := range order {
		enrolled, err := store.EnrolledOrganizationNames(ctx, mk)
		if err != nil {
			return nil, err
		}
		known := make(map[string]bool, len(enrolled))
		for _, name := range enrolled {
			known[name] = true
		}

		var recommended []string
		for email := range emailsByMK[mk] {
			domain := email[strings.LastIndex(email, "@")+1:]
			match, err := store.FindMatchingDomain(ctx, domain)
			if err != nil {
				if meld.IsNotFound(err) {
					continue
				}
				return nil, err
			}
			org, err := store.GetGroupByID(ctx, match.OrganizationID)
			if err != nil {
				return nil, err
			}
			if known[org.Name] {
				continue
			}
			known[org.Name] = true
			rec := models.NewAffiliationRecommendation(mk, org.Name)
			if err := store.CreateRecommendation(ctx, rec); err != nil {
				return nil, err
			}
			recommended = append(recommended, org.Name)
		}
		sort.Strings(recommended)
		results[mk] = recommended
	}

	s.logger.Info().
		Int("individuals", len(results)).
		Msg("affiliation recommendations computed")
	return results, nil
}
