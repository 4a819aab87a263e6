package recommend

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/openmeld/meld/internal/db"
	"github.com/openmeld/meld/internal/meld"
	"github.com/openmeld/meld/internal/models"
)

// Matching criteria accepted by RecommendMatches.
const (
	CriterionName     = "name"
	CriterionEmail    = "email"
	CriterionUsername = "username"
)

// MatchOptions tunes the duplicate-individual matcher.
type MatchOptions struct {
	// Criteria selects which identity fields are compared. Defaults to
	// name, email and username.
	Criteria []string
	// Exclude drops identities matching the stored exclusion terms.
	Exclude bool
	// Strict requires well-formed emails and full names.
	Strict bool
	// MatchSource only matches identities coming from the same source.
	MatchSource bool
	// TargetMKs restricts the match counterparts to these individuals.
	// Empty means any individual is a candidate.
	TargetMKs []string
	// LastModified narrows the matched individuals to those modified
	// at or after it.
	LastModified *time.Time
	// Verbose lists the matched identity uuids instead of main keys.
	Verbose bool
}

func (o *MatchOptions) normalize() error {
	if len(o.Criteria) == 0 {
		o.Criteria = []string{CriterionName, CriterionEmail, CriterionUsername}
	}
	for _, c := range o.Criteria {
		switch c {
		case CriterionName, CriterionEmail, CriterionUsername:
		default:
			return meld.InvalidValuef("unknown matching criterion %q", c)
		}
	}
	return nil
}

// unionFind tracks connected components over main keys.
type unionFind struct {
	parent map[string]string
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[string]string)}
}

func (u *unionFind) find(x string) string {
	root, ok := u.parent[x]
	if !ok {
		u.parent[x] = x
		return x
	}
	if root == x {
		return x
	}
	root = u.find(root)
	u.parent[x] = root
	return root
}

func (u *unionFind) union(a, b string) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		// The smaller key roots the component so it is the one kept
		// when the component is merged.
		if rb < ra {
			ra, rb = rb, ra
		}
		u.parent[rb] = ra
	}
}

func (u *unionFind) components() map[string][]string {
	out := make(map[string][]string)
	for x := range u.parent {
		root := u.find(x)
		out[root] = append(out[root], x)
	}
	for root, members := range out {
		if len(members) < 2 {
			delete(out, root)
			continue
		}
		sort.Strings(members)
	}
	return out
}

// RecommendMatches finds individuals that look like the same person
// and proposes merging them. With no main keys given all individuals
// are candidates; TargetMKs narrows who they may pair with. Components
// are keyed by their smallest main key, the one kept on merge;
// proposals are persisted pairing each member with it.
func (s *Service) RecommendMatches(ctx context.Context, mks []string, opts MatchOptions) (map[string][]string, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}

	store, err := s.store(ctx)
	if err != nil {
		return nil, err
	}

	var targets map[string]bool
	if len(opts.TargetMKs) > 0 {
		targets = make(map[string]bool, len(opts.TargetMKs))
		for _, mk := range opts.TargetMKs {
			targets[mk] = true
		}
	}

	// With both sides bounded only their identities need fetching.
	var candidates []string
	if targets != nil && len(mks) > 0 {
		seen := make(map[string]bool, len(mks)+len(opts.TargetMKs))
		for _, mk := range mks {
			if !seen[mk] {
				seen[mk] = true
				candidates = append(candidates, mk)
			}
		}
		for _, mk := range opts.TargetMKs {
			if !seen[mk] {
				seen[mk] = true
				candidates = append(candidates, mk)
			}
		}
	}

	rows, err := store.GetIdentitiesForMatching(ctx, candidates, nil)
	if err != nil {
		return nil, err
	}
	rows, err = s.filterExcluded(ctx, store, rows, opts.Exclude)
	if err != nil {
		return nil, err
	}

	// Individuals whose matches are reported.
	wanted, err := s.wantedMKs(ctx, store, mks, opts.LastModified)
	if err != nil {
		return nil, err
	}

	uf := newUnionFind()
	buckets := make(map[string][]string)
	for _, row := range rows {
		uf.find(row.IndividualMK)
		for _, key := range bucketKeys(row, opts) {
			buckets[key] = append(buckets[key], row.IndividualMK)
		}
	}
	// A shared value links a bucket's members. When targets are bounded
	// every link must touch a target, so buckets without one contribute
	// nothing.
	for _, members := range buckets {
		anchor := members[0]
		if targets != nil {
			anchor = ""
			for _, mk := range members {
				if targets[mk] {
					anchor = mk
					break
				}
			}
			if anchor == "" {
				continue
			}
		}
		for _, mk := range members {
			if mk != anchor {
				uf.union(anchor, mk)
			}
		}
	}

	uuidsByMK := make(map[string][]string)
	if opts.Verbose {
		for _, row := range rows {
			uuidsByMK[row.IndividualMK] = append(uuidsByMK[row.IndividualMK], row.UUID)
		}
	}

	results := make(map[string][]string)
	for root, members := range uf.components() {
		report := false
		for _, mk := range members {
			if wanted == nil || wanted[mk] {
				report = true
				break
			}
		}
		if !report {
			continue
		}
		for _, mk := range members {
			if mk == root {
				continue
			}
			rec := models.NewMergeRecommendation(root, mk)
			if err := store.CreateRecommendation(ctx, rec); err != nil {
				return nil, err
			}
			if opts.Verbose {
				results[root] = append(results[root], uuidsByMK[mk]...)
			} else {
				results[root] = append(results[root], mk)
			}
		}
		sort.Strings(results[root])
	}

	s.logger.Info().
		Int("components", len(results)).
		Msg("match recommendations computed")
	return results, nil
}

// wantedMKs resolves the set of individuals to report matches for. A
// nil set means all.
func (s *Service) wantedMKs(ctx context.Context, store Store, mks []string, lastModified *time.Time) (map[string]bool, error) {
	if len(mks) == 0 && lastModified == nil {
		return nil, nil
	}
	if len(mks) == 0 {
		all, err := store.IndividualMKs(ctx, lastModified)
		if err != nil {
			return nil, err
		}
		mks = all
	}
	wanted := make(map[string]bool, len(mks))
	for _, mk := range mks {
		wanted[mk] = true
	}
	return wanted, nil
}

// filterExcluded drops identity rows matching a stored exclusion term
// on name, email or username.
func (s *Service) filterExcluded(ctx context.Context, store Store, rows []db.IdentityMatch, exclude bool) ([]db.IdentityMatch, error) {
	if !exclude {
		return rows, nil
	}
	terms, err := store.GetExclusionTerms(ctx)
	if err != nil {
		return nil, err
	}
	if len(terms) == 0 {
		return rows, nil
	}
	excluded := make(map[string]bool, len(terms))
	for _, t := range terms {
		excluded[strings.ToLower(t.Term)] = true
	}
	kept := rows[:0]
	for _, row := range rows {
		if excluded[strings.ToLower(row.Name)] ||
			excluded[strings.ToLower(row.Email)] ||
			excluded[strings.ToLower(row.Username)] {
			continue
		}
		kept = append(kept, row)
	}
	return kept, nil
}

// bucketKeys returns the matching keys one identity row contributes
// to, one per satisfied criterion.
func bucketKeys(row db.IdentityMatch, opts MatchOptions) []string {
	var keys []string
	prefix := ""
	if opts.MatchSource {
		prefix = strings.ToLower(row.Source) + "\x00"
	}
	for _, c := range opts.Criteria {
		var value string
		switch c {
		case CriterionName:
			if row.Name == "" || (opts.Strict && !fullName(row.Name)) {
				continue
			}
			value = row.Name
		case CriterionEmail:
			if row.Email == "" || (opts.Strict && !wellFormedEmail(row.Email)) {
				continue
			}
			value = row.Email
		case CriterionUsername:
			if row.Username == "" {
				continue
			}
			value = row.Username
		}
		keys = append(keys, c+"\x00"+prefix+strings.ToLower(value))
	}
	return keys
}
