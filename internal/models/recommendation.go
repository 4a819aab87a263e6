package models

import "time"

// RecommendationKind discriminates the three recommendation kinds.
type RecommendationKind string

const (
	// RecommendationAffiliation proposes enrolling an individual in an
	// organization inferred from an email domain.
	RecommendationAffiliation RecommendationKind = "affiliation"
	// RecommendationMerge proposes merging two individuals believed to
	// be the same person.
	RecommendationMerge RecommendationKind = "merge"
	// RecommendationGender proposes a gender for an individual's profile.
	RecommendationGender RecommendationKind = "gender"
)

// Recommendation is a proposed change pending review. Applied is nil
// while pending, true once accepted and false once dismissed; dismissed
// records are kept so the same suggestion is not produced again.
type Recommendation struct {
	ID   int64              `json:"id"`
	Kind RecommendationKind `json:"kind"`

	// IndividualMK is the subject of the recommendation. For merge
	// recommendations it is the lexicographically smaller main key.
	IndividualMK string `json:"individual_mk"`

	// OrganizationName is set for affiliation recommendations.
	OrganizationName string `json:"organization_name,omitempty"`

	// MatchMK is the other individual of a merge recommendation;
	// canonical ordering guarantees IndividualMK < MatchMK.
	MatchMK string `json:"match_mk,omitempty"`

	// Gender and GenderAcc are set for gender recommendations.
	Gender    string `json:"gender,omitempty"`
	GenderAcc int    `json:"gender_acc,omitempty"`

	Applied   *bool     `json:"applied,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewAffiliationRecommendation proposes enrolling mk in org.
func NewAffiliationRecommendation(mk, org string) *Recommendation {
	return &Recommendation{
		Kind:             RecommendationAffiliation,
		IndividualMK:     mk,
		OrganizationName: org,
		CreatedAt:        time.Now().UTC(),
	}
}

// NewMergeRecommendation proposes merging two individuals. The pair is
// canonicalized so the smaller main key is the subject.
func NewMergeRecommendation(mk1, mk2 string) *Recommendation {
	if mk2 < mk1 {
		mk1, mk2 = mk2, mk1
	}
	return &Recommendation{
		Kind:         RecommendationMerge,
		IndividualMK: mk1,
		MatchMK:      mk2,
		CreatedAt:    time.Now().UTC(),
	}
}

// NewGenderRecommendation proposes a gender with the oracle's accuracy.
func NewGenderRecommendation(mk, gender string, acc int) *Recommendation {
	return &Recommendation{
		Kind:         RecommendationGender,
		IndividualMK: mk,
		Gender:       gender,
		GenderAcc:    acc,
		CreatedAt:    time.Now().UTC(),
	}
}

// ExclusionTerm excludes identities whose name, email or username
// matches the term from the matching recommender.
type ExclusionTerm struct {
	Term      string    `json:"term"`
	CreatedAt time.Time `json:"created_at"`
}
