package study

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"testing"

	"github.com/kanjideck/kanjideck/internal/cache/db"
	"github.com/kanjideck/kanjideck/internal/cache/schema"
)

func TestSelect_Sections(t *testing.T) {
	src := &fakeSource{subjects: []schema.Subject{
		subj(3, schema.KindKanji, 1),
		subj(1, schema.KindKanji, 1),
		subj(2, schema.KindKanji, 2),
		subj(10, schema.KindVocabulary, 1),
		subj(11, schema.KindKanaVocabulary, 1),
	}}
	sel := NewSelector(src)

	tests := []struct {
		name string
		q    Query
		want []int64
	}{
		{"kanji level 1", Query{Section: SectionKanji, Level: 1}, []int64{1, 3}},
		{"vocabulary includes kana vocabulary", Query{Section: SectionVocabulary, Level: 1}, []int64{10, 11}},
		{"marked ignores level", Query{Section: SectionMarked, Level: 1, MarkedIDs: []int64{2, 11}}, []int64{2, 11}},
		{"empty level", Query{Section: SectionKanji, Level: 42}, []int64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sel.Select(context.Background(), tt.q)
			if err != nil {
				t.Fatalf("Select() failed: %v", err)
			}
			if fmt.Sprint(ids(got)) != fmt.Sprint(tt.want) {
				t.Errorf("Select() ids = %v, want %v", ids(got), tt.want)
			}
		})
	}
}

func TestSelect_LimitToLearned(t *testing.T) {
	src := &fakeSource{
		subjects: []schema.Subject{
			subj(1, schema.KindKanji, 1),
			subj(2, schema.KindKanji, 1),
			subj(3, schema.KindKanji, 1),
		},
		assignments: []schema.Assignment{
			assign(1, at(1), at(0)),
			assign(2, nil, nil),
		},
	}

	got, err := NewSelector(src).Select(context.Background(), Query{Section: SectionKanji, Level: 1, LimitToLearned: true})
	if err != nil {
		t.Fatalf("Select() failed: %v", err)
	}
	if fmt.Sprint(ids(got)) != "[1]" {
		t.Errorf("Select() ids = %v, want [1]", ids(got))
	}
	if got[0].Assignment == nil || got[0].AvailableAt() == nil {
		t.Errorf("item 1 should carry its assignment, got %+v", got[0])
	}
}

func TestSelect_StorageErrorIsReturned(t *testing.T) {
	src := &fakeSource{err: errStorage}

	_, err := NewSelector(src).Select(context.Background(), Query{Section: SectionKanji, Level: 1})
	if !errors.Is(err, errStorage) {
		t.Errorf("Select() error = %v, want %v", err, errStorage)
	}
}

func TestSelect_UnknownSection(t *testing.T) {
	_, err := NewSelector(&fakeSource{}).Select(context.Background(), Query{Section: "radicals"})
	if err == nil {
		t.Error("Select() should reject an unknown section")
	}
}

func TestSelect_RandomIsFreshEachCall(t *testing.T) {
	src := &fakeSource{}
	for i := int64(1); i <= 20; i++ {
		src.subjects = append(src.subjects, subj(i, schema.KindKanji, 1))
	}
	sel := NewSelector(src, WithRand(rand.New(rand.NewPCG(1, 2))))
	q := Query{Section: SectionKanji, Level: 1, Sort: SortRandom}

	first, err := sel.Select(context.Background(), q)
	if err != nil {
		t.Fatalf("Select() failed: %v", err)
	}
	second, err := sel.Select(context.Background(), q)
	if err != nil {
		t.Fatalf("Select() failed: %v", err)
	}

	if len(first) != 20 || len(second) != 20 {
		t.Fatalf("Select() returned %d and %d items, want 20", len(first), len(second))
	}
	if fmt.Sprint(ids(first)) == fmt.Sprint(ids(second)) {
		t.Error("two random selections produced the same order")
	}
}

func TestSelect_MarkedAgainstEmptyStore(t *testing.T) {
	store, err := db.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer store.Close()
	if err := store.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}

	got, err := NewSelector(store).Select(context.Background(), Query{
		Section:   SectionMarked,
		MarkedIDs: []int64{440, 2467},
	})
	if err != nil {
		t.Fatalf("Select() against empty store failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Select() returned %d items, want 0", len(got))
	}
}

func TestSortItems_NextReviewStable(t *testing.T) {
	// 1 has no assignment and 3 has no review scheduled; both go last in input order.
	items := []Item{
		{Subject: subj(1, schema.KindKanji, 1)},
		{Subject: subj(2, schema.KindKanji, 1), Assignment: ptr(assign(2, at(5), at(0)))},
		{Subject: subj(3, schema.KindKanji, 1), Assignment: ptr(assign(3, nil, at(0)))},
		{Subject: subj(4, schema.KindKanji, 1), Assignment: ptr(assign(4, at(2), at(0)))},
		{Subject: subj(5, schema.KindKanji, 1), Assignment: ptr(assign(5, at(2), at(0)))},
	}

	SortItems(items, SortByNextReview, nil)

	want := "[4 5 2 1 3]"
	if got := fmt.Sprint(ids(items)); got != want {
		t.Errorf("SortItems(next_review) = %s, want %s", got, want)
	}
}

func TestSortItems_ByID(t *testing.T) {
	items := []Item{
		{Subject: subj(9, schema.KindKanji, 1)},
		{Subject: subj(2, schema.KindKanji, 1)},
		{Subject: subj(5, schema.KindKanji, 1)},
	}
	SortItems(items, SortByID, nil)
	if got := fmt.Sprint(ids(items)); got != "[2 5 9]" {
		t.Errorf("SortItems(id) = %s, want [2 5 9]", got)
	}
}

func TestParseSortMode(t *testing.T) {
	cases := map[string]SortMode{
		"id":          SortByID,
		"next-review": SortByNextReview,
		"NEXT_REVIEW": SortByNextReview,
		"random":      SortRandom,
	}
	for in, want := range cases {
		got, err := ParseSortMode(in)
		if err != nil || got != want {
			t.Errorf("ParseSortMode(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseSortMode("alphabetical"); err == nil {
		t.Error("ParseSortMode(alphabetical) should fail")
	}
}

func ptr[T any](v T) *T {
	return &v
}
