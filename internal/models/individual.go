// Package models defines the entities persisted by the identity
// consolidation engine.
package models

import "time"

// Individual is the canonical record of one real-world contributor. Its
// main key equals the UUID of one of its owned identities (the anchor).
type Individual struct {
	MK           string     `json:"mk"`
	IsLocked     bool       `json:"is_locked"`
	LastReviewed *time.Time `json:"last_reviewed,omitempty"`
	LastModified time.Time  `json:"last_modified"`
	CreatedAt    time.Time  `json:"created_at"`

	Profile     *Profile      `json:"profile,omitempty"`
	Identities  []*Identity   `json:"identities,omitempty"`
	Enrollments []*Enrollment `json:"enrollments,omitempty"`
}

// NewIndividual creates an unlocked individual anchored at mk.
func NewIndividual(mk string) *Individual {
	now := time.Now().UTC()
	return &Individual{
		MK:           mk,
		LastModified: now,
		CreatedAt:    now,
	}
}

// Profile holds the descriptive attributes attached to an individual.
// Nullable fields are pointers so an unset value is distinguishable from
// an explicit empty one.
type Profile struct {
	IndividualMK string  `json:"-"`
	Name         *string `json:"name,omitempty"`
	Email        *string `json:"email,omitempty"`
	Gender       *string `json:"gender,omitempty"`
	GenderAcc    *int    `json:"gender_acc,omitempty"`
	IsBot        bool    `json:"is_bot"`
	CountryCode  *string `json:"country_code,omitempty"`
}

// HasName reports whether the profile carries a non-empty name.
func (p *Profile) HasName() bool { return p.Name != nil && *p.Name != "" }

// HasEmail reports whether the profile carries a non-empty email.
func (p *Profile) HasEmail() bool { return p.Email != nil && *p.Email != "" }
