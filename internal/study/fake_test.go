package study

import (
	"context"
	"errors"
	"time"

	"github.com/samber/lo"

	"github.com/kanjideck/kanjideck/internal/cache/schema"
)

// fakeSource is an in-memory Source.
type fakeSource struct {
	subjects    []schema.Subject
	assignments []schema.Assignment
	err         error
	calls       int
}

func (f *fakeSource) SubjectsByKindAndLevel(_ context.Context, kinds []schema.Kind, level int) ([]schema.Subject, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return lo.Filter(f.subjects, func(s schema.Subject, _ int) bool {
		return s.Level == level && lo.Contains(kinds, s.Kind)
	}), nil
}

func (f *fakeSource) SubjectsByIDs(_ context.Context, ids []int64) ([]schema.Subject, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	byID := lo.KeyBy(f.subjects, func(s schema.Subject) int64 { return s.ID })
	var out []schema.Subject
	for _, id := range ids {
		if s, ok := byID[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSource) AssignmentsBySubjectIDs(_ context.Context, ids []int64) ([]schema.Assignment, error) {
	if f.err != nil {
		return nil, f.err
	}
	return lo.Filter(f.assignments, func(a schema.Assignment, _ int) bool {
		return lo.Contains(ids, a.SubjectID)
	}), nil
}

var errStorage = errors.New("storage unavailable")

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func at(h int) *time.Time {
	t := t0.Add(time.Duration(h) * time.Hour)
	return &t
}

func subj(id int64, kind schema.Kind, level int) schema.Subject {
	return schema.Subject{ID: id, Kind: kind, Level: level, Characters: "字", UpdatedAt: t0}
}

func assign(subjectID int64, available, started *time.Time) schema.Assignment {
	return schema.Assignment{
		ID:          subjectID + 1000,
		SubjectID:   subjectID,
		SubjectKind: schema.KindKanji,
		AvailableAt: available,
		StartedAt:   started,
		UpdatedAt:   t0,
	}
}

func ids(items []Item) []int64 {
	return lo.Map(items, func(it Item, _ int) int64 { return it.ID() })
}
