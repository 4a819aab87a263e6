package models

import "time"

// Identity is a single contributor alias harvested from a data source.
// Its UUID is the deterministic hash of (source, email, name, username)
// and is unique within a tenant. An identity belongs to exactly one
// individual.
type Identity struct {
	UUID         string    `json:"uuid"`
	IndividualMK string    `json:"individual_mk"`
	Source       string    `json:"source"`
	Name         string    `json:"name,omitempty"`
	Email        string    `json:"email,omitempty"`
	Username     string    `json:"username,omitempty"`
	LastModified time.Time `json:"last_modified"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewIdentity creates an identity owned by the individual with the
// given main key.
func NewIdentity(uuid, mk, source, name, email, username string) *Identity {
	now := time.Now().UTC()
	return &Identity{
		UUID:         uuid,
		IndividualMK: mk,
		Source:       source,
		Name:         name,
		Email:        email,
		Username:     username,
		LastModified: now,
		CreatedAt:    now,
	}
}
