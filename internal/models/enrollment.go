package models

import (
	"time"

	"github.com/google/uuid"
)

// Enrollment states that an individual belonged to a group during
// [Start, End]. For a given (individual, group) pair the stored ranges
// are pairwise disjoint and non-touching.
type Enrollment struct {
	ID           uuid.UUID `json:"id"`
	IndividualMK string    `json:"individual_mk"`
	GroupID      uuid.UUID `json:"group_id"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	CreatedAt    time.Time `json:"created_at"`

	// Group is populated on reads for display purposes.
	Group *Group `json:"group,omitempty"`
}

// NewEnrollment creates an enrollment of an individual in a group.
func NewEnrollment(mk string, groupID uuid.UUID, start, end time.Time) *Enrollment {
	return &Enrollment{
		ID:           uuid.New(),
		IndividualMK: mk,
		GroupID:      groupID,
		Start:        start.UTC(),
		End:          end.UTC(),
		CreatedAt:    time.Now().UTC(),
	}
}
