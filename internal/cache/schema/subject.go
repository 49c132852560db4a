package schema

import (
	"fmt"
	"time"
)

// ReadingType is the sub-type of a kanji reading.
type ReadingType string

const (
	ReadingOnyomi  ReadingType = "onyomi"
	ReadingKunyomi ReadingType = "kunyomi"
	ReadingNanori  ReadingType = "nanori"
)

// Reading is one pronunciation of a subject.
// Type is only set for kanji readings.
type Reading struct {
	Reading        string      `json:"reading"`
	Primary        bool        `json:"primary"`
	AcceptedAnswer bool        `json:"accepted_answer"`
	Type           ReadingType `json:"type,omitempty"`
}

// Meaning is one English gloss of a subject.
type Meaning struct {
	Meaning        string `json:"meaning"`
	Primary        bool   `json:"primary"`
	AcceptedAnswer bool   `json:"accepted_answer"`
}

// Subject is a kanji or vocabulary entry.
type Subject struct {
	ID              int64     `json:"id"`
	Kind            Kind      `json:"kind"`
	Level           int       `json:"level"`
	Characters      string    `json:"characters"`
	Readings        []Reading `json:"readings,omitempty"`
	Meanings        []Meaning `json:"meanings,omitempty"`
	MeaningMnemonic string    `json:"meaning_mnemonic,omitempty"`
	ReadingMnemonic string    `json:"reading_mnemonic,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Validate checks if the Subject has valid field values.
func (s *Subject) Validate() error {
	if s.ID <= 0 {
		return fmt.Errorf("id must be positive (got %d)", s.ID)
	}
	if !s.Kind.Valid() {
		return fmt.Errorf("invalid kind %q", s.Kind)
	}
	if s.Level <= 0 {
		return fmt.Errorf("level must be positive (got %d)", s.Level)
	}
	if s.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}
	return nil
}

// PrimaryMeaning returns the primary meaning, or the first one when none is flagged.
func (s *Subject) PrimaryMeaning() string {
	for _, m := range s.Meanings {
		if m.Primary {
			return m.Meaning
		}
	}
	if len(s.Meanings) > 0 {
		return s.Meanings[0].Meaning
	}
	return ""
}

// PrimaryReading returns the primary reading. Kana vocabulary has no
// readings, so its characters are returned instead.
func (s *Subject) PrimaryReading() string {
	switch s.Kind {
	case KindKanaVocabulary:
		return s.Characters
	case KindKanji, KindVocabulary:
		for _, r := range s.Readings {
			if r.Primary {
				return r.Reading
			}
		}
		if len(s.Readings) > 0 {
			return s.Readings[0].Reading
		}
		return ""
	default:
		return ""
	}
}

// ReadingsOfType returns the readings with the given sub-type.
func (s *Subject) ReadingsOfType(typ ReadingType) []Reading {
	var out []Reading
	for _, r := range s.Readings {
		if r.Type == typ {
			out = append(out, r)
		}
	}
	return out
}
