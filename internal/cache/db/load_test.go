package db

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/kanjideck/kanjideck/internal/cache/schema"
)

const (
	loadPageSize = 50
	loadPages    = 20
)

func loadPage(level int) []schema.Subject {
	page := make([]schema.Subject, loadPageSize)
	for i := range page {
		id := int64(level*1000 + i)
		page[i] = kanji(id, level, fmt.Sprintf("字%d", id), baseTime.Add(time.Duration(id)*time.Second))
	}
	return page
}

// latency summarizes query durations.
type latency struct {
	p50, p95, max time.Duration
	queries       int
}

func summarize(durations []time.Duration) latency {
	if len(durations) == 0 {
		return latency{}
	}
	sorted := slices.Clone(durations)
	slices.Sort(sorted)
	return latency{
		p50:     sorted[len(sorted)*50/100],
		p95:     sorted[len(sorted)*95/100],
		max:     sorted[len(sorted)-1],
		queries: len(sorted),
	}
}

// Readers running during a sync must see each page either fully or not at
// all.
func TestConcurrentReadersDuringSync(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping load test in short mode")
	}
	db := openTestDB(t)
	ctx := context.Background()

	const readers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		durations []time.Duration
		errs      []error
	)
	done := make(chan struct{})

	for r := 0; r < readers; r++ {
		wg.Add(1)
		go func(seed uint64) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(seed, 0))
			var local []time.Duration
			for {
				select {
				case <-done:
					mu.Lock()
					durations = append(durations, local...)
					mu.Unlock()
					return
				default:
				}

				level := rng.IntN(loadPages) + 1
				start := time.Now()
				got, err := db.SubjectsByKindAndLevel(ctx, []schema.Kind{schema.KindKanji}, level)
				local = append(local, time.Since(start))
				if err == nil && len(got) != 0 && len(got) != loadPageSize {
					err = fmt.Errorf("level %d: saw %d subjects, a partial page", level, len(got))
				}
				if err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
					return
				}
			}
		}(uint64(r))
	}

	for level := 1; level <= loadPages; level++ {
		if err := db.PutSubjects(ctx, loadPage(level)); err != nil {
			t.Fatalf("PutSubjects(level %d) failed: %v", level, err)
		}
	}
	close(done)
	wg.Wait()

	for _, err := range errs {
		t.Error(err)
	}

	counts, err := db.Counts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts.Kanji != loadPages*loadPageSize {
		t.Errorf("Kanji = %d, want %d", counts.Kanji, loadPages*loadPageSize)
	}

	stats := summarize(durations)
	t.Logf("%d queries: p50=%v p95=%v max=%v", stats.queries, stats.p50, stats.p95, stats.max)
}

func BenchmarkSubjectsByKindAndLevel(b *testing.B) {
	db, err := Open(b.TempDir() + "/bench.db")
	if err != nil {
		b.Fatal(err)
	}
	defer db.Close()
	if err := db.InitSchema(); err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()
	for level := 1; level <= loadPages; level++ {
		if err := db.PutSubjects(ctx, loadPage(level)); err != nil {
			b.Fatal(err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := db.SubjectsByKindAndLevel(ctx, []schema.Kind{schema.KindKanji}, i%loadPages+1); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkPutSubjects(b *testing.B) {
	db, err := Open(b.TempDir() + "/bench.db")
	if err != nil {
		b.Fatal(err)
	}
	defer db.Close()
	if err := db.InitSchema(); err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := db.PutSubjects(ctx, loadPage(i%loadPages+1)); err != nil {
			b.Fatal(err)
		}
	}
}
