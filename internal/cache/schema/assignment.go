package schema

import (
	"fmt"
	"time"
)

// Assignment is the learner's progress record for one subject.
// A nil StartedAt means the subject has not been studied yet; a nil
// AvailableAt means no review is scheduled.
type Assignment struct {
	ID          int64      `json:"id"`
	SubjectID   int64      `json:"subject_id"`
	SubjectKind Kind       `json:"subject_kind"`
	Level       int        `json:"level"`
	AvailableAt *time.Time `json:"available_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Validate checks if the Assignment has valid field values.
func (a *Assignment) Validate() error {
	if a.ID <= 0 {
		return fmt.Errorf("id must be positive (got %d)", a.ID)
	}
	if a.SubjectID <= 0 {
		return fmt.Errorf("subject_id must be positive (got %d)", a.SubjectID)
	}
	if !a.SubjectKind.Valid() {
		return fmt.Errorf("invalid subject kind %q", a.SubjectKind)
	}
	if a.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}
	return nil
}

// Started reports whether the learner has begun studying the subject.
func (a *Assignment) Started() bool {
	return a != nil && a.StartedAt != nil
}

// DueBy reports whether a review is scheduled at or before t.
func (a *Assignment) DueBy(t time.Time) bool {
	return a != nil && a.AvailableAt != nil && !a.AvailableAt.After(t)
}
