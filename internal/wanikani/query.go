package wanikani

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/kanjideck/kanjideck/internal/cache/schema"
)

// SubjectsQuery filters the /subjects collection.
type SubjectsQuery struct {
	Types []schema.Kind
	// UpdatedAfter limits results to subjects changed strictly after this time.
	UpdatedAfter *time.Time
	Levels       []int
}

// Values encodes the query string.
func (q SubjectsQuery) Values() url.Values {
	v := url.Values{}
	if len(q.Types) > 0 {
		v.Set("types", joinKinds(q.Types))
	}
	if q.UpdatedAfter != nil {
		v.Set("updated_after", formatTime(*q.UpdatedAfter))
	}
	if len(q.Levels) > 0 {
		v.Set("levels", joinInts(q.Levels))
	}
	return v
}

// AssignmentsQuery filters the /assignments collection.
type AssignmentsQuery struct {
	Started      *bool
	Levels       []int
	SubjectTypes []schema.Kind
	UpdatedAfter *time.Time
}

// Values encodes the query string.
func (q AssignmentsQuery) Values() url.Values {
	v := url.Values{}
	if q.Started != nil {
		v.Set("started", strconv.FormatBool(*q.Started))
	}
	if len(q.Levels) > 0 {
		v.Set("levels", joinInts(q.Levels))
	}
	if len(q.SubjectTypes) > 0 {
		v.Set("subject_types", joinKinds(q.SubjectTypes))
	}
	if q.UpdatedAfter != nil {
		v.Set("updated_after", formatTime(*q.UpdatedAfter))
	}
	return v
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func joinKinds(kinds []schema.Kind) string {
	return strings.Join(lo.Map(kinds, func(k schema.Kind, _ int) string { return string(k) }), ",")
}

func joinInts(ns []int) string {
	return strings.Join(lo.Map(ns, func(n int, _ int) string { return strconv.Itoa(n) }), ",")
}
