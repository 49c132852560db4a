package study

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/kanjideck/kanjideck/internal/cache/schema"
)

// Source is the read side of the local cache.
type Source interface {
	SubjectsByKindAndLevel(ctx context.Context, kinds []schema.Kind, level int) ([]schema.Subject, error)
	SubjectsByIDs(ctx context.Context, ids []int64) ([]schema.Subject, error)
	AssignmentsBySubjectIDs(ctx context.Context, subjectIDs []int64) ([]schema.Assignment, error)
}

// Query describes the deck to select.
type Query struct {
	Section        Section
	Level          int
	LimitToLearned bool
	Sort           SortMode
	// MarkedIDs are the bookmarked subject ids, used by SectionMarked only.
	MarkedIDs []int64
}

// Item is a subject joined with the learner's assignment, if any.
type Item struct {
	Subject    schema.Subject
	Assignment *schema.Assignment
}

// ID returns the subject id.
func (it Item) ID() int64 {
	return it.Subject.ID
}

// AvailableAt returns the next review time, or nil when none is scheduled.
func (it Item) AvailableAt() *time.Time {
	if it.Assignment == nil {
		return nil
	}
	return it.Assignment.AvailableAt
}

// Learned reports whether the learner has started the subject.
func (it Item) Learned() bool {
	return it.Assignment.Started()
}

// Selector runs queries against a Source.
type Selector struct {
	src Source

	mu  sync.Mutex
	rng *rand.Rand
}

// SelectorOption configures a Selector.
type SelectorOption func(*Selector)

// WithRand sets the random source used by SortRandom.
func WithRand(r *rand.Rand) SelectorOption {
	return func(s *Selector) {
		s.rng = r
	}
}

// NewSelector creates a Selector reading from src.
func NewSelector(src Source, opts ...SelectorOption) *Selector {
	s := &Selector{src: src}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15))
	}
	return s
}

// Select returns the ordered items for q.
//
// An empty result is not an error. Marked ids that are no longer cached are
// dropped silently.
func (s *Selector) Select(ctx context.Context, q Query) ([]Item, error) {
	subjects, err := s.candidates(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(subjects) == 0 {
		return []Item{}, nil
	}

	ids := lo.Map(subjects, func(sub schema.Subject, _ int) int64 { return sub.ID })
	assignments, err := s.src.AssignmentsBySubjectIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load assignments: %w", err)
	}
	bySubject := make(map[int64]*schema.Assignment, len(assignments))
	for i := range assignments {
		a := &assignments[i]
		// Keep the most recently updated assignment if the API ever sends two.
		if prev, ok := bySubject[a.SubjectID]; !ok || a.UpdatedAt.After(prev.UpdatedAt) {
			bySubject[a.SubjectID] = a
		}
	}

	items := make([]Item, 0, len(subjects))
	for _, sub := range subjects {
		item := Item{Subject: sub, Assignment: bySubject[sub.ID]}
		if q.LimitToLearned && !item.Learned() {
			continue
		}
		items = append(items, item)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	SortItems(items, q.Sort, s.rng)
	return items, nil
}

func (s *Selector) candidates(ctx context.Context, q Query) ([]schema.Subject, error) {
	switch q.Section {
	case SectionKanji, SectionVocabulary:
		subjects, err := s.src.SubjectsByKindAndLevel(ctx, q.Section.Kinds(), q.Level)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s for level %d: %w", q.Section, q.Level, err)
		}
		return subjects, nil
	case SectionMarked:
		if len(q.MarkedIDs) == 0 {
			return nil, nil
		}
		subjects, err := s.src.SubjectsByIDs(ctx, q.MarkedIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve marked items: %w", err)
		}
		return subjects, nil
	default:
		return nil, fmt.Errorf("unknown section %q", q.Section)
	}
}
