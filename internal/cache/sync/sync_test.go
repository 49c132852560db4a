package sync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	stdsync "sync"
	"testing"
	"time"

	"github.com/kanjideck/kanjideck/internal/cache/db"
	"github.com/kanjideck/kanjideck/internal/cache/schema"
	"github.com/kanjideck/kanjideck/internal/wanikani"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *db.DB {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	if err := database.InitSchema(); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}
	return database
}

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func subject(id int64, kind schema.Kind, level int, updated time.Time) schema.Subject {
	return schema.Subject{
		ID:         id,
		Kind:       kind,
		Level:      level,
		Characters: fmt.Sprintf("s%d", id),
		UpdatedAt:  updated,
	}
}

// fakeFetcher serves pages from memory and records every query.
type fakeFetcher struct {
	mu stdsync.Mutex

	subjects    map[schema.Kind][][]schema.Subject
	assignments [][]schema.Assignment

	// failAssignmentsAfter makes the assignment walk fail once this many
	// pages have been delivered (0 disables).
	failAssignmentsAfter int
	failSubjects         error

	subjectQueries    []wanikani.SubjectsQuery
	assignmentQueries []wanikani.AssignmentsQuery
	tokens            []string
	// onPage runs before each subject page is delivered.
	onPage func()
}

func (f *fakeFetcher) factory() FetcherFactory {
	return func(token string) Fetcher {
		f.mu.Lock()
		f.tokens = append(f.tokens, token)
		f.mu.Unlock()
		return f
	}
}

func (f *fakeFetcher) WalkSubjects(ctx context.Context, q wanikani.SubjectsQuery, fn func(wanikani.Page[schema.Subject]) error) error {
	f.mu.Lock()
	f.subjectQueries = append(f.subjectQueries, q)
	f.mu.Unlock()

	if f.failSubjects != nil {
		return f.failSubjects
	}

	// Pages are per requested kind set; merge them page by page.
	var pages [][]schema.Subject
	for _, kind := range q.Types {
		for i, page := range f.subjects[kind] {
			if len(pages) <= i {
				pages = append(pages, nil)
			}
			pages[i] = append(pages[i], page...)
		}
	}

	for i, page := range pages {
		var items []schema.Subject
		for _, s := range page {
			if q.UpdatedAfter == nil || s.UpdatedAt.After(*q.UpdatedAfter) {
				items = append(items, s)
			}
		}
		if f.onPage != nil {
			f.onPage()
		}
		if err := fn(wanikani.Page[schema.Subject]{Number: i + 1, Items: items}); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeFetcher) WalkAssignments(ctx context.Context, q wanikani.AssignmentsQuery, fn func(wanikani.Page[schema.Assignment]) error) error {
	f.mu.Lock()
	f.assignmentQueries = append(f.assignmentQueries, q)
	f.mu.Unlock()

	for i, page := range f.assignments {
		if f.failAssignmentsAfter > 0 && i == f.failAssignmentsAfter {
			return errors.New("connection reset by peer")
		}
		var items []schema.Assignment
		for _, a := range page {
			if q.UpdatedAfter == nil || a.UpdatedAt.After(*q.UpdatedAfter) {
				items = append(items, a)
			}
		}
		if err := fn(wanikani.Page[schema.Assignment]{Number: i + 1, Items: items}); err != nil {
			return err
		}
	}
	return nil
}

func key(k string) func() string { return func() string { return k } }

func TestSyncKanji_FullThenIncremental(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	f := &fakeFetcher{subjects: map[schema.Kind][][]schema.Subject{
		schema.KindKanji: {
			{subject(1, schema.KindKanji, 1, t0), subject(2, schema.KindKanji, 1, t0.Add(time.Hour))},
			{subject(3, schema.KindKanji, 2, t0.Add(2 * time.Hour))},
		},
	}}
	s := New(database, f.factory(), key("secret"), nil)

	res, err := s.SyncKanji(ctx)
	if err != nil {
		t.Fatalf("SyncKanji() failed: %v", err)
	}
	if res.Pages != 2 || res.Records != 3 || res.Since != nil {
		t.Errorf("first SyncKanji() = %+v, want 2 pages, 3 records, no cursor", res)
	}
	if f.subjectQueries[0].UpdatedAfter != nil {
		t.Errorf("first query UpdatedAfter = %v, want nil (full fetch)", f.subjectQueries[0].UpdatedAfter)
	}

	res, err = s.SyncKanji(ctx)
	if err != nil {
		t.Fatalf("second SyncKanji() failed: %v", err)
	}
	want := t0.Add(2 * time.Hour)
	got := f.subjectQueries[1].UpdatedAfter
	if got == nil || !got.Equal(want) {
		t.Fatalf("second query UpdatedAfter = %v, want %v", got, want)
	}
	if res.Records != 0 {
		t.Errorf("second SyncKanji() stored %d records, want 0", res.Records)
	}

	counts, err := database.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts() failed: %v", err)
	}
	if counts.Kanji != 3 {
		t.Errorf("kanji count = %d, want 3", counts.Kanji)
	}
	if f.tokens[0] != "secret" {
		t.Errorf("fetcher token = %q, want secret", f.tokens[0])
	}
}

func TestSyncVocabulary_CursorSpansBothKinds(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	// Kanji updated later than any vocabulary must not move the vocabulary cursor.
	if err := database.PutSubjects(ctx, []schema.Subject{
		subject(1, schema.KindKanji, 1, t0.Add(10*time.Hour)),
		subject(2, schema.KindVocabulary, 1, t0),
		subject(3, schema.KindKanaVocabulary, 1, t0.Add(time.Hour)),
	}); err != nil {
		t.Fatalf("PutSubjects() failed: %v", err)
	}

	f := &fakeFetcher{}
	s := New(database, f.factory(), key("secret"), nil)
	if _, err := s.SyncVocabulary(ctx); err != nil {
		t.Fatalf("SyncVocabulary() failed: %v", err)
	}

	q := f.subjectQueries[0]
	if len(q.Types) != 2 || q.Types[0] != schema.KindVocabulary || q.Types[1] != schema.KindKanaVocabulary {
		t.Errorf("query types = %v, want [vocabulary kana_vocabulary]", q.Types)
	}
	if q.UpdatedAfter == nil || !q.UpdatedAfter.Equal(t0.Add(time.Hour)) {
		t.Errorf("query UpdatedAfter = %v, want %v", q.UpdatedAfter, t0.Add(time.Hour))
	}
}

func TestSync_WritesEachPageBeforeNextRequest(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	f := &fakeFetcher{subjects: map[schema.Kind][][]schema.Subject{
		schema.KindKanji: {
			{subject(1, schema.KindKanji, 1, t0)},
			{subject(2, schema.KindKanji, 1, t0)},
			{subject(3, schema.KindKanji, 1, t0)},
		},
	}}

	var seen []int
	f.onPage = func() {
		c, err := database.Counts(ctx)
		if err != nil {
			t.Errorf("Counts() failed: %v", err)
			return
		}
		seen = append(seen, c.Kanji)
	}

	s := New(database, f.factory(), key("secret"), nil)
	if _, err := s.SyncKanji(ctx); err != nil {
		t.Fatalf("SyncKanji() failed: %v", err)
	}

	want := []int{0, 1, 2}
	if fmt.Sprint(seen) != fmt.Sprint(want) {
		t.Errorf("cached counts before each page = %v, want %v", seen, want)
	}
}

func TestSync_NoCredentialIsNoOp(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	f := &fakeFetcher{}
	s := New(database, f.factory(), key(""), nil)

	results, err := s.SyncAll(ctx)
	if err != nil {
		t.Fatalf("SyncAll() without credential returned error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("SyncAll() returned %d results, want 3", len(results))
	}
	for _, r := range results {
		if !r.Skipped {
			t.Errorf("result %s Skipped = false, want true", r.Chain)
		}
	}
	if len(f.tokens) != 0 || len(f.subjectQueries) != 0 {
		t.Error("no request should be made without a credential")
	}
}

func TestSyncAll_PartialFailureKeepsWrittenPages(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	f := &fakeFetcher{
		subjects: map[schema.Kind][][]schema.Subject{
			schema.KindKanji:      {{subject(1, schema.KindKanji, 1, t0)}},
			schema.KindVocabulary: {{subject(2, schema.KindVocabulary, 1, t0)}},
		},
		assignments: [][]schema.Assignment{
			{{ID: 10, SubjectID: 1, SubjectKind: schema.KindKanji, UpdatedAt: t0}},
			{{ID: 11, SubjectID: 2, SubjectKind: schema.KindVocabulary, UpdatedAt: t0.Add(time.Hour)}},
		},
		failAssignmentsAfter: 1,
	}
	s := New(database, f.factory(), key("secret"), nil)

	results, err := s.SyncAll(ctx)
	if err == nil {
		t.Fatal("SyncAll() should report the failed assignment chain")
	}
	if results[0].Err != nil || results[1].Err != nil {
		t.Errorf("subject chains failed: %v / %v", results[0].Err, results[1].Err)
	}
	if results[2].Err == nil || results[2].Chain != ChainAssignments {
		t.Errorf("assignment result = %+v, want failure", results[2])
	}

	counts, err := database.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts() failed: %v", err)
	}
	if counts.Subjects() != 2 {
		t.Errorf("subjects cached = %d, want 2", counts.Subjects())
	}
	if counts.Assignments != 1 {
		t.Errorf("assignments cached = %d, want the first page (1)", counts.Assignments)
	}

	// The retry resumes from the cursor the first page advanced.
	f.failAssignmentsAfter = 0
	res, err := s.SyncAssignments(ctx)
	if err != nil {
		t.Fatalf("retry SyncAssignments() failed: %v", err)
	}
	if res.Since == nil || !res.Since.Equal(t0) {
		t.Errorf("retry Since = %v, want %v", res.Since, t0)
	}
	if res.Records != 1 {
		t.Errorf("retry stored %d records, want 1", res.Records)
	}
}

func TestSyncAssignments_FillsLevelFromCachedSubject(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	if err := database.PutSubjects(ctx, []schema.Subject{subject(5, schema.KindKanji, 4, t0)}); err != nil {
		t.Fatalf("PutSubjects() failed: %v", err)
	}

	f := &fakeFetcher{assignments: [][]schema.Assignment{{
		{ID: 50, SubjectID: 5, SubjectKind: schema.KindKanji, UpdatedAt: t0},
		{ID: 51, SubjectID: 6, SubjectKind: schema.KindKanji, UpdatedAt: t0},
	}}}
	s := New(database, f.factory(), key("secret"), nil)
	if _, err := s.SyncAssignments(ctx); err != nil {
		t.Fatalf("SyncAssignments() failed: %v", err)
	}

	got, err := database.AssignmentsBySubjectIDs(ctx, []int64{5, 6})
	if err != nil {
		t.Fatalf("AssignmentsBySubjectIDs() failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d assignments, want 2", len(got))
	}
	if got[0].Level != 4 {
		t.Errorf("assignment for cached subject level = %d, want 4", got[0].Level)
	}
	if got[1].Level != 0 {
		t.Errorf("assignment for unknown subject level = %d, want 0", got[1].Level)
	}
}

func TestSync_FetchErrorIsReturned(t *testing.T) {
	database := setupTestDB(t)

	boom := errors.New("service unavailable")
	f := &fakeFetcher{failSubjects: boom}
	s := New(database, f.factory(), key("secret"), nil)

	res, err := s.SyncKanji(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("SyncKanji() error = %v, want %v", err, boom)
	}
	if res.Err == nil {
		t.Error("Result.Err should carry the failure")
	}

	// Preload swallows the same failure.
	s.Preload(context.Background())
}

func TestSyncAssignments_RequestsStoredKindsOnly(t *testing.T) {
	database := setupTestDB(t)

	f := &fakeFetcher{}
	s := New(database, f.factory(), key("secret"), nil)
	if _, err := s.SyncAssignments(context.Background()); err != nil {
		t.Fatalf("SyncAssignments() failed: %v", err)
	}

	if len(f.assignmentQueries) != 1 {
		t.Fatalf("got %d assignment queries, want 1", len(f.assignmentQueries))
	}
	if got := f.assignmentQueries[0].SubjectTypes; !slices.Equal(got, schema.Kinds) {
		t.Errorf("SubjectTypes = %v, want %v", got, schema.Kinds)
	}
}

func TestSyncAssignments_RadicalInPageIsIgnored(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	gotTypes := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case gotTypes <- r.URL.Query().Get("subject_types"):
		default:
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
		  "object": "collection",
		  "pages": {"next_url": null},
		  "total_count": 2,
		  "data": [
		    {"id": 10, "object": "assignment", "data_updated_at": "2024-03-01T10:00:00Z",
		     "data": {"subject_id": 1, "subject_type": "radical", "available_at": null, "started_at": null}},
		    {"id": 11, "object": "assignment", "data_updated_at": "2024-03-01T10:00:00Z",
		     "data": {"subject_id": 440, "subject_type": "kanji", "available_at": null, "started_at": "2024-03-01T09:00:00Z"}}
		  ]
		}`))
	}))
	t.Cleanup(srv.Close)

	client := wanikani.New(wanikani.Options{BaseURL: srv.URL})
	s := New(database, ClientFactory(client), key("secret"), nil)

	res, err := s.SyncAssignments(ctx)
	if err != nil {
		t.Fatalf("SyncAssignments() failed: %v", err)
	}
	if res.Records != 1 || res.Ignored != 1 {
		t.Errorf("Records = %d, Ignored = %d, want 1 and 1", res.Records, res.Ignored)
	}
	if got := <-gotTypes; got != "kanji,vocabulary,kana_vocabulary" {
		t.Errorf("subject_types = %q", got)
	}

	got, err := database.AssignmentsBySubjectIDs(ctx, []int64{1, 440})
	if err != nil {
		t.Fatalf("AssignmentsBySubjectIDs() failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != 11 {
		t.Errorf("stored %+v, want only assignment 11", got)
	}
}
