package wanikani

import (
	"time"

	"github.com/kanjideck/kanjideck/internal/cache/schema"
)

// Page is one decoded page of a collection.
type Page[T any] struct {
	// Number is 1 for the first page of a walk.
	Number     int
	TotalCount int
	Items      []T
	// Skipped counts records of kinds the cache does not store, such as
	// radicals. They are left out of Items.
	Skipped int
	// NextURL is empty on the last page.
	NextURL string
}

// User is the subset of /user the app needs.
type User struct {
	Username             string    `json:"username"`
	Level                int       `json:"level"`
	ProfileURL           string    `json:"profile_url"`
	StartedAt            time.Time `json:"started_at"`
	SubscriptionMaxLevel int       `json:"-"`
}

type pages struct {
	NextURL     *string `json:"next_url"`
	PreviousURL *string `json:"previous_url"`
	PerPage     int     `json:"per_page"`
}

type collection[T any] struct {
	Object        string        `json:"object"`
	URL           string        `json:"url"`
	Pages         pages         `json:"pages"`
	TotalCount    int           `json:"total_count"`
	DataUpdatedAt *time.Time    `json:"data_updated_at"`
	Data          []resource[T] `json:"data"`
}

type resource[T any] struct {
	ID            int64     `json:"id"`
	Object        string    `json:"object"`
	URL           string    `json:"url"`
	DataUpdatedAt time.Time `json:"data_updated_at"`
	Data          T         `json:"data"`
}

type readingData struct {
	Reading        string `json:"reading"`
	Primary        bool   `json:"primary"`
	AcceptedAnswer bool   `json:"accepted_answer"`
	Type           string `json:"type"`
}

type meaningData struct {
	Meaning        string `json:"meaning"`
	Primary        bool   `json:"primary"`
	AcceptedAnswer bool   `json:"accepted_answer"`
}

type subjectData struct {
	Level           int           `json:"level"`
	Characters      *string       `json:"characters"`
	Slug            string        `json:"slug"`
	Readings        []readingData `json:"readings"`
	Meanings        []meaningData `json:"meanings"`
	MeaningMnemonic string        `json:"meaning_mnemonic"`
	ReadingMnemonic string        `json:"reading_mnemonic"`
}

type assignmentData struct {
	SubjectID   int64      `json:"subject_id"`
	SubjectType string     `json:"subject_type"`
	Level       int        `json:"level"`
	AvailableAt *time.Time `json:"available_at"`
	StartedAt   *time.Time `json:"started_at"`
}

type userData struct {
	Username     string    `json:"username"`
	Level        int       `json:"level"`
	ProfileURL   string    `json:"profile_url"`
	StartedAt    time.Time `json:"started_at"`
	Subscription struct {
		MaxLevelGranted int `json:"max_level_granted"`
	} `json:"subscription"`
}

// subjectFromResource converts an API subject resource into a cache record.
// The object name selects the kind; anything other than kanji, vocabulary or
// kana_vocabulary wraps ErrUnsupported.
func subjectFromResource(r resource[subjectData]) (schema.Subject, error) {
	kind := schema.Kind(r.Object)
	if !kind.Valid() {
		return schema.Subject{}, unsupported("subject %d has object %q", r.ID, r.Object)
	}

	s := schema.Subject{
		ID:              r.ID,
		Kind:            kind,
		Level:           r.Data.Level,
		MeaningMnemonic: r.Data.MeaningMnemonic,
		ReadingMnemonic: r.Data.ReadingMnemonic,
		UpdatedAt:       r.DataUpdatedAt.UTC(),
	}
	if r.Data.Characters != nil {
		s.Characters = *r.Data.Characters
	} else {
		s.Characters = r.Data.Slug
	}

	switch kind {
	case schema.KindKanji, schema.KindVocabulary:
		for _, rd := range r.Data.Readings {
			s.Readings = append(s.Readings, schema.Reading{
				Reading:        rd.Reading,
				Primary:        rd.Primary,
				AcceptedAnswer: rd.AcceptedAnswer,
				Type:           schema.ReadingType(rd.Type),
			})
		}
	case schema.KindKanaVocabulary:
		// no readings
	}

	for _, m := range r.Data.Meanings {
		s.Meanings = append(s.Meanings, schema.Meaning(m))
	}

	if err := s.Validate(); err != nil {
		return schema.Subject{}, malformed("subject %d: %v", r.ID, err)
	}
	return s, nil
}

func assignmentFromResource(r resource[assignmentData]) (schema.Assignment, error) {
	kind := schema.Kind(r.Data.SubjectType)
	if !kind.Valid() {
		return schema.Assignment{}, unsupported("assignment %d has subject_type %q", r.ID, r.Data.SubjectType)
	}

	a := schema.Assignment{
		ID:          r.ID,
		SubjectID:   r.Data.SubjectID,
		SubjectKind: kind,
		Level:       r.Data.Level,
		AvailableAt: utcPtr(r.Data.AvailableAt),
		StartedAt:   utcPtr(r.Data.StartedAt),
		UpdatedAt:   r.DataUpdatedAt.UTC(),
	}
	if err := a.Validate(); err != nil {
		return schema.Assignment{}, malformed("assignment %d: %v", r.ID, err)
	}
	return a, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
