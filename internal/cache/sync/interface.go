// Package sync provides the routine that fills the local cache from the
// WaniKani API.
package sync

import (
	"context"
	"time"

	"github.com/kanjideck/kanjideck/internal/cache/schema"
	"github.com/kanjideck/kanjideck/internal/wanikani"
)

// Syncer keeps the local cache in step with the remote collections.
//
// Each chain (kanji, vocabulary, assignments) is independent: it reads its own
// cursor from the store, asks the API for records updated strictly after it,
// and writes every page before requesting the next one. A chain that fails
// part-way keeps the pages it already wrote, and the next run resumes from
// the cursor those pages advanced.
type Syncer interface {
	// SyncKanji fetches kanji subjects.
	SyncKanji(ctx context.Context) (Result, error)

	// SyncVocabulary fetches vocabulary and kana-only vocabulary subjects.
	// Both kinds share one cursor.
	SyncVocabulary(ctx context.Context) (Result, error)

	// SyncAssignments fetches the learner's assignments.
	SyncAssignments(ctx context.Context) (Result, error)

	// SyncAll runs the three chains concurrently.
	//
	// A failing chain does not stop the others. The returned error joins the
	// errors of every chain that failed; results are returned for all chains
	// in kanji, vocabulary, assignments order.
	SyncAll(ctx context.Context) ([]Result, error)

	// Preload runs SyncAll and only logs failures. It is meant for startup
	// warm-up where a failed sync must not block the user.
	Preload(ctx context.Context)
}

// Store is the part of the local cache the syncer writes to.
type Store interface {
	PutSubjects(ctx context.Context, subjects []schema.Subject) error
	PutAssignments(ctx context.Context, assignments []schema.Assignment) error
	LatestSubjectUpdate(ctx context.Context, kinds ...schema.Kind) (*time.Time, error)
	LatestAssignmentUpdate(ctx context.Context) (*time.Time, error)
	SubjectsByIDs(ctx context.Context, ids []int64) ([]schema.Subject, error)
}

// Fetcher pages through the remote collections.
type Fetcher interface {
	WalkSubjects(ctx context.Context, q wanikani.SubjectsQuery, fn func(wanikani.Page[schema.Subject]) error) error
	WalkAssignments(ctx context.Context, q wanikani.AssignmentsQuery, fn func(wanikani.Page[schema.Assignment]) error) error
}

// FetcherFactory returns a Fetcher authenticated with token.
type FetcherFactory func(token string) Fetcher

// ClientFactory adapts a wanikani.Client so each sync run uses the
// credential current at that moment.
func ClientFactory(c *wanikani.Client) FetcherFactory {
	return func(token string) Fetcher {
		return c.WithToken(token)
	}
}

// Chain names one independent sync routine.
type Chain string

const (
	ChainKanji       Chain = "kanji"
	ChainVocabulary  Chain = "vocabulary"
	ChainAssignments Chain = "assignments"
)

// Result summarizes one chain run.
type Result struct {
	Chain   Chain `json:"chain"`
	Pages   int   `json:"pages"`
	Records int   `json:"records"`
	// Ignored counts records of kinds the cache does not store.
	Ignored int `json:"ignored,omitempty"`
	// Since is the cursor the run started from; nil means a full fetch.
	Since *time.Time `json:"since,omitempty"`
	// Skipped is set when no credential was configured.
	Skipped  bool          `json:"skipped"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}
