package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/kanjideck/kanjideck/internal/cache/schema"
)

// testDBPath returns a temporary path for test databases
func testDBPath(t *testing.T) string {
	tmpDir := t.TempDir()
	return filepath.Join(tmpDir, "cache.db")
}

// openTestDB opens a database with the schema initialized
func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(testDBPath(t))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return db
}

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func kanji(id int64, level int, chars string, updated time.Time) schema.Subject {
	return schema.Subject{
		ID:         id,
		Kind:       schema.KindKanji,
		Level:      level,
		Characters: chars,
		Readings: []schema.Reading{
			{Reading: "いち", Primary: true, AcceptedAnswer: true, Type: schema.ReadingOnyomi},
		},
		Meanings:  []schema.Meaning{{Meaning: "One", Primary: true, AcceptedAnswer: true}},
		UpdatedAt: updated,
	}
}

func vocab(id int64, kind schema.Kind, level int, chars string, updated time.Time) schema.Subject {
	return schema.Subject{ID: id, Kind: kind, Level: level, Characters: chars, UpdatedAt: updated}
}

func TestOpen_Success(t *testing.T) {
	path := testDBPath(t)
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer db.Close()

	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}
}

func TestOpen_AcceptsFilePrefix(t *testing.T) {
	path := testDBPath(t)
	db, err := Open("file:" + path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer db.Close()

	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}
}

func TestInitSchema_CreatesTables(t *testing.T) {
	db := openTestDB(t)

	for _, table := range []string{"subjects", "assignments"} {
		var count int
		query := `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`
		if err := db.RawDB().QueryRow(query, table).Scan(&count); err != nil {
			t.Fatalf("Failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("Table %s does not exist", table)
		}
	}

	if err := db.InitSchema(); err != nil {
		t.Errorf("Second InitSchema() failed: %v", err)
	}
}

func TestPutSubjects_RoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	in := kanji(440, 1, "一", baseTime)
	in.MeaningMnemonic = "Lying on the ground."
	if err := db.PutSubjects(ctx, []schema.Subject{in}); err != nil {
		t.Fatalf("PutSubjects() failed: %v", err)
	}

	got, err := db.SubjectByID(ctx, 440)
	if err != nil {
		t.Fatalf("SubjectByID() failed: %v", err)
	}
	if got.Characters != "一" || got.Kind != schema.KindKanji || got.Level != 1 {
		t.Errorf("SubjectByID() = %+v, want kanji 一 level 1", got)
	}
	if len(got.Readings) != 1 || got.Readings[0].Type != schema.ReadingOnyomi || !got.Readings[0].AcceptedAnswer {
		t.Errorf("Readings = %+v, want one accepted onyomi", got.Readings)
	}
	if got.PrimaryMeaning() != "One" {
		t.Errorf("PrimaryMeaning() = %q, want One", got.PrimaryMeaning())
	}
	if got.MeaningMnemonic != in.MeaningMnemonic {
		t.Errorf("MeaningMnemonic = %q, want %q", got.MeaningMnemonic, in.MeaningMnemonic)
	}
	if !got.UpdatedAt.Equal(baseTime) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, baseTime)
	}
}

func TestPutSubjects_LastWriteWins(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	first := kanji(440, 1, "一", baseTime)
	second := kanji(440, 2, "壱", baseTime.Add(time.Hour))

	if err := db.PutSubjects(ctx, []schema.Subject{first}); err != nil {
		t.Fatalf("first PutSubjects() failed: %v", err)
	}
	if err := db.PutSubjects(ctx, []schema.Subject{second}); err != nil {
		t.Fatalf("second PutSubjects() failed: %v", err)
	}
	// Writing the same record again is a no-op.
	if err := db.PutSubjects(ctx, []schema.Subject{second}); err != nil {
		t.Fatalf("repeated PutSubjects() failed: %v", err)
	}

	all, err := db.AllSubjects(ctx)
	if err != nil {
		t.Fatalf("AllSubjects() failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("AllSubjects() returned %d subjects, want 1", len(all))
	}
	if all[0].Characters != "壱" || all[0].Level != 2 {
		t.Errorf("stored subject = %+v, want the second write", all[0])
	}
}

func TestPutSubjects_InvalidBatchWritesNothing(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	batch := []schema.Subject{
		kanji(1, 1, "一", baseTime),
		{ID: 2, Kind: "radical", Level: 1, UpdatedAt: baseTime},
	}
	if err := db.PutSubjects(ctx, batch); err == nil {
		t.Fatal("PutSubjects() should reject a batch with an invalid subject")
	}

	counts, err := db.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts() failed: %v", err)
	}
	if counts.Subjects() != 0 {
		t.Errorf("Subjects() = %d after rejected batch, want 0", counts.Subjects())
	}
}

func TestSubjectsByIDs_OmitsMissingAndKeepsOrder(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.PutSubjects(ctx, []schema.Subject{
		kanji(1, 1, "一", baseTime),
		kanji(2, 1, "二", baseTime),
		kanji(3, 1, "三", baseTime),
	}); err != nil {
		t.Fatalf("PutSubjects() failed: %v", err)
	}

	got, err := db.SubjectsByIDs(ctx, []int64{3, 99, 1, 3})
	if err != nil {
		t.Fatalf("SubjectsByIDs() failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("SubjectsByIDs() returned %d subjects, want 2", len(got))
	}
	if got[0].ID != 3 || got[1].ID != 1 {
		t.Errorf("SubjectsByIDs() order = [%d %d], want [3 1]", got[0].ID, got[1].ID)
	}

	empty, err := db.SubjectsByIDs(ctx, nil)
	if err != nil {
		t.Fatalf("SubjectsByIDs(nil) failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("SubjectsByIDs(nil) returned %d subjects, want 0", len(empty))
	}
}

func TestSubjectByID_NotFound(t *testing.T) {
	db := openTestDB(t)

	_, err := db.SubjectByID(context.Background(), 42)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("SubjectByID() error = %v, want ErrNotFound", err)
	}
}

func TestSubjectsByKindAndLevel(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.PutSubjects(ctx, []schema.Subject{
		kanji(10, 1, "一", baseTime),
		kanji(11, 2, "力", baseTime),
		vocab(20, schema.KindVocabulary, 1, "一つ", baseTime),
		vocab(21, schema.KindKanaVocabulary, 1, "ソフト", baseTime),
		vocab(22, schema.KindVocabulary, 2, "力", baseTime),
	}); err != nil {
		t.Fatalf("PutSubjects() failed: %v", err)
	}

	tests := []struct {
		name    string
		kinds   []schema.Kind
		level   int
		wantIDs []int64
	}{
		{"kanji level 1", []schema.Kind{schema.KindKanji}, 1, []int64{10}},
		{"vocabulary level 1", schema.VocabularyKinds, 1, []int64{20, 21}},
		{"vocabulary level 2", schema.VocabularyKinds, 2, []int64{22}},
		{"empty level", []schema.Kind{schema.KindKanji}, 60, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.SubjectsByKindAndLevel(ctx, tt.kinds, tt.level)
			if err != nil {
				t.Fatalf("SubjectsByKindAndLevel() failed: %v", err)
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("SubjectsByKindAndLevel() returned %d subjects, want %d", len(got), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if got[i].ID != id {
					t.Errorf("subject[%d].ID = %d, want %d", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestLatestSubjectUpdate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	cursor, err := db.LatestSubjectUpdate(ctx, schema.KindKanji)
	if err != nil {
		t.Fatalf("LatestSubjectUpdate() failed: %v", err)
	}
	if cursor != nil {
		t.Fatalf("LatestSubjectUpdate() on empty store = %v, want nil", cursor)
	}

	newest := baseTime.Add(48 * time.Hour)
	if err := db.PutSubjects(ctx, []schema.Subject{
		kanji(1, 1, "一", baseTime),
		kanji(2, 1, "二", newest),
		kanji(3, 1, "三", baseTime.Add(time.Hour)),
		vocab(4, schema.KindKanaVocabulary, 1, "ソフト", newest.Add(time.Hour)),
		vocab(5, schema.KindVocabulary, 1, "一つ", baseTime.Add(time.Nanosecond)),
	}); err != nil {
		t.Fatalf("PutSubjects() failed: %v", err)
	}

	cursor, err = db.LatestSubjectUpdate(ctx, schema.KindKanji)
	if err != nil {
		t.Fatalf("LatestSubjectUpdate(kanji) failed: %v", err)
	}
	if cursor == nil || !cursor.Equal(newest) {
		t.Errorf("LatestSubjectUpdate(kanji) = %v, want %v", cursor, newest)
	}

	cursor, err = db.LatestSubjectUpdate(ctx, schema.VocabularyKinds...)
	if err != nil {
		t.Fatalf("LatestSubjectUpdate(vocabulary) failed: %v", err)
	}
	if cursor == nil || !cursor.Equal(newest.Add(time.Hour)) {
		t.Errorf("LatestSubjectUpdate(vocabulary) = %v, want %v", cursor, newest.Add(time.Hour))
	}
}

func TestAssignments_PutQueryAndCursor(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	available := baseTime.Add(4 * time.Hour)
	started := baseTime
	if err := db.PutAssignments(ctx, []schema.Assignment{
		{ID: 100, SubjectID: 1, SubjectKind: schema.KindKanji, Level: 1, AvailableAt: &available, StartedAt: &started, UpdatedAt: baseTime},
		{ID: 101, SubjectID: 2, SubjectKind: schema.KindKanji, Level: 1, UpdatedAt: baseTime.Add(time.Minute)},
		{ID: 102, SubjectID: 3, SubjectKind: schema.KindVocabulary, Level: 2, UpdatedAt: baseTime},
	}); err != nil {
		t.Fatalf("PutAssignments() failed: %v", err)
	}

	got, err := db.AssignmentsBySubjectIDs(ctx, []int64{2, 1, 404})
	if err != nil {
		t.Fatalf("AssignmentsBySubjectIDs() failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("AssignmentsBySubjectIDs() returned %d assignments, want 2", len(got))
	}
	if got[0].SubjectID != 1 || !got[0].Started() || got[0].AvailableAt == nil || !got[0].AvailableAt.Equal(available) {
		t.Errorf("assignment for subject 1 = %+v, want started with available_at", got[0])
	}
	if got[1].Started() || got[1].AvailableAt != nil {
		t.Errorf("assignment for subject 2 = %+v, want unstarted without available_at", got[1])
	}

	byLevel, err := db.AssignmentsByLevel(ctx, 2)
	if err != nil {
		t.Fatalf("AssignmentsByLevel() failed: %v", err)
	}
	if len(byLevel) != 1 || byLevel[0].ID != 102 {
		t.Errorf("AssignmentsByLevel(2) = %+v, want assignment 102", byLevel)
	}

	cursor, err := db.LatestAssignmentUpdate(ctx)
	if err != nil {
		t.Fatalf("LatestAssignmentUpdate() failed: %v", err)
	}
	if cursor == nil || !cursor.Equal(baseTime.Add(time.Minute)) {
		t.Errorf("LatestAssignmentUpdate() = %v, want %v", cursor, baseTime.Add(time.Minute))
	}

	counts, err := db.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts() failed: %v", err)
	}
	if counts.Assignments != 3 || counts.Started != 1 {
		t.Errorf("Counts() = %+v, want 3 assignments with 1 started", counts)
	}
}

func TestAssignments_CorruptTimeIsAnError(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	available := baseTime.Add(time.Hour)
	if err := db.PutAssignments(ctx, []schema.Assignment{
		{ID: 100, SubjectID: 1, SubjectKind: schema.KindKanji, Level: 1, AvailableAt: &available, UpdatedAt: baseTime},
	}); err != nil {
		t.Fatalf("PutAssignments() failed: %v", err)
	}
	if _, err := db.RawDB().Exec(`UPDATE assignments SET available_at = 'next tuesday' WHERE id = 100`); err != nil {
		t.Fatalf("failed to corrupt row: %v", err)
	}

	got, err := db.AssignmentsBySubjectIDs(ctx, []int64{1})
	if err == nil {
		t.Fatalf("AssignmentsBySubjectIDs() = %+v, want a parse error", got)
	}
}

func TestClear(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.PutSubjects(ctx, []schema.Subject{kanji(1, 1, "一", baseTime)}); err != nil {
		t.Fatalf("PutSubjects() failed: %v", err)
	}
	if err := db.PutAssignments(ctx, []schema.Assignment{
		{ID: 7, SubjectID: 1, SubjectKind: schema.KindKanji, Level: 1, UpdatedAt: baseTime},
	}); err != nil {
		t.Fatalf("PutAssignments() failed: %v", err)
	}

	if err := db.ClearSubjects(ctx); err != nil {
		t.Fatalf("ClearSubjects() failed: %v", err)
	}
	counts, _ := db.Counts(ctx)
	if counts.Subjects() != 0 || counts.Assignments != 1 {
		t.Errorf("after ClearSubjects() counts = %+v, want 0 subjects and 1 assignment", counts)
	}

	if err := db.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll() failed: %v", err)
	}
	counts, _ = db.Counts(ctx)
	if counts.Assignments != 0 {
		t.Errorf("after ClearAll() assignments = %d, want 0", counts.Assignments)
	}

	cursor, err := db.LatestAssignmentUpdate(ctx)
	if err != nil {
		t.Fatalf("LatestAssignmentUpdate() failed: %v", err)
	}
	if cursor != nil {
		t.Errorf("cursor after clear = %v, want nil", cursor)
	}
}

func TestSubscribe_ReceivesChanges(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	changes, unsubscribe := db.Subscribe()
	defer unsubscribe()

	if err := db.PutSubjects(ctx, []schema.Subject{kanji(1, 1, "一", baseTime), kanji(2, 1, "二", baseTime)}); err != nil {
		t.Fatalf("PutSubjects() failed: %v", err)
	}
	if err := db.ClearAssignments(ctx); err != nil {
		t.Fatalf("ClearAssignments() failed: %v", err)
	}

	select {
	case c := <-changes:
		if c.Collection != CollectionSubjects || c.Op != OpPut || len(c.IDs) != 2 {
			t.Errorf("first change = %+v, want put of 2 subjects", c)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subject change")
	}

	select {
	case c := <-changes:
		if c.Collection != CollectionAssignments || c.Op != OpClear {
			t.Errorf("second change = %+v, want clear of assignments", c)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for clear change")
	}
}

func TestSubscribe_SlowSubscriberDoesNotBlock(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, unsubscribe := db.Subscribe()
	defer unsubscribe()

	done := make(chan error, 1)
	go func() {
		for i := 0; i < subscriberBuffer*3; i++ {
			if err := db.PutSubjects(ctx, []schema.Subject{kanji(int64(i+1), 1, "一", baseTime)}); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("PutSubjects() failed: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("writers blocked on an undrained subscriber")
	}
}

func TestSubscribe_UnsubscribeClosesChannel(t *testing.T) {
	db := openTestDB(t)

	changes, unsubscribe := db.Subscribe()
	unsubscribe()
	unsubscribe()

	if _, ok := <-changes; ok {
		t.Error("channel should be closed after unsubscribe")
	}
}
