package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdsync "sync"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/kanjideck/kanjideck/internal/cache/schema"
	"github.com/kanjideck/kanjideck/internal/wanikani"
)

// syncer implements the Syncer interface.
type syncer struct {
	store      Store
	newFetcher FetcherFactory
	credential func() string
	logger     logrus.FieldLogger

	// mu serializes runs of the same chain so two overlapping triggers do not
	// fetch the same pages twice.
	mu map[Chain]*stdsync.Mutex
}

// New creates a new Syncer instance.
//
// The store must have its schema created before passing it here. credential
// is read at the start of every chain so a key entered after startup is
// picked up on the next run.
//
// If logger is nil, logging is discarded.
//
// Example:
//
//	store, err := db.Open(filepath.Join(dataDir, "cache.db"))
//	if err != nil {
//	    return err
//	}
//	if err := store.InitSchema(); err != nil {
//	    return err
//	}
//	client := wanikani.New(wanikani.Options{})
//	s := sync.New(store, sync.ClientFactory(client), settings.APIKey, logger)
func New(store Store, newFetcher FetcherFactory, credential func() string, logger logrus.FieldLogger) Syncer {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	if credential == nil {
		credential = func() string { return "" }
	}
	return &syncer{
		store:      store,
		newFetcher: newFetcher,
		credential: credential,
		logger:     logger.WithField("component", "sync"),
		mu: map[Chain]*stdsync.Mutex{
			ChainKanji:       {},
			ChainVocabulary:  {},
			ChainAssignments: {},
		},
	}
}

// SyncKanji implements Syncer.SyncKanji.
func (s *syncer) SyncKanji(ctx context.Context) (Result, error) {
	return s.syncSubjects(ctx, ChainKanji, []schema.Kind{schema.KindKanji})
}

// SyncVocabulary implements Syncer.SyncVocabulary.
func (s *syncer) SyncVocabulary(ctx context.Context) (Result, error) {
	return s.syncSubjects(ctx, ChainVocabulary, schema.VocabularyKinds)
}

// SyncAssignments implements Syncer.SyncAssignments.
func (s *syncer) SyncAssignments(ctx context.Context) (Result, error) {
	return s.run(ctx, ChainAssignments, func(fetcher Fetcher, res *Result) error {
		since, err := s.store.LatestAssignmentUpdate(ctx)
		if err != nil {
			return fmt.Errorf("failed to read assignment cursor: %w", err)
		}
		res.Since = since

		q := wanikani.AssignmentsQuery{UpdatedAfter: since, SubjectTypes: schema.Kinds}
		return fetcher.WalkAssignments(ctx, q, func(page wanikani.Page[schema.Assignment]) error {
			items := page.Items
			if err := s.fillLevels(ctx, items); err != nil {
				s.logger.WithError(err).Warn("could not resolve assignment levels")
			}
			if err := s.store.PutAssignments(ctx, items); err != nil {
				return fmt.Errorf("failed to store assignment page %d: %w", page.Number, err)
			}
			res.Pages++
			res.Records += len(items)
			res.Ignored += page.Skipped
			return nil
		})
	})
}

func (s *syncer) syncSubjects(ctx context.Context, chain Chain, kinds []schema.Kind) (Result, error) {
	return s.run(ctx, chain, func(fetcher Fetcher, res *Result) error {
		since, err := s.store.LatestSubjectUpdate(ctx, kinds...)
		if err != nil {
			return fmt.Errorf("failed to read %s cursor: %w", chain, err)
		}
		res.Since = since

		q := wanikani.SubjectsQuery{Types: kinds, UpdatedAfter: since}
		return fetcher.WalkSubjects(ctx, q, func(page wanikani.Page[schema.Subject]) error {
			if err := s.store.PutSubjects(ctx, page.Items); err != nil {
				return fmt.Errorf("failed to store %s page %d: %w", chain, page.Number, err)
			}
			res.Pages++
			res.Records += len(page.Items)
			res.Ignored += page.Skipped
			return nil
		})
	})
}

// run wraps one chain with credential lookup, locking and logging.
func (s *syncer) run(ctx context.Context, chain Chain, body func(Fetcher, *Result) error) (Result, error) {
	res := Result{Chain: chain}
	log := s.logger.WithField("chain", chain)

	token := s.credential()
	if token == "" {
		log.Info("no API key configured, skipping sync")
		res.Skipped = true
		return res, nil
	}

	mu := s.mu[chain]
	mu.Lock()
	defer mu.Unlock()

	start := time.Now()
	err := body(s.newFetcher(token), &res)
	res.Duration = time.Since(start)

	fields := logrus.Fields{
		"pages":    res.Pages,
		"records":  res.Records,
		"ignored":  res.Ignored,
		"duration": res.Duration.Round(time.Millisecond),
	}
	if res.Since != nil {
		fields["since"] = res.Since.Format(time.RFC3339)
	}

	if err != nil {
		res.Err = fmt.Errorf("%s sync failed: %w", chain, err)
		log.WithFields(fields).WithError(err).Error("sync failed")
		return res, res.Err
	}

	log.WithFields(fields).Info("sync complete")
	return res, nil
}

// fillLevels sets the level of assignments that arrive without one, using the
// locally cached subject.
func (s *syncer) fillLevels(ctx context.Context, items []schema.Assignment) error {
	missing := lo.FilterMap(items, func(a schema.Assignment, _ int) (int64, bool) {
		return a.SubjectID, a.Level == 0
	})
	if len(missing) == 0 {
		return nil
	}

	subjects, err := s.store.SubjectsByIDs(ctx, missing)
	if err != nil {
		return err
	}
	levels := lo.Associate(subjects, func(sub schema.Subject) (int64, int) {
		return sub.ID, sub.Level
	})
	for i := range items {
		if items[i].Level == 0 {
			items[i].Level = levels[items[i].SubjectID]
		}
	}
	return nil
}

// SyncAll implements Syncer.SyncAll.
func (s *syncer) SyncAll(ctx context.Context) ([]Result, error) {
	chains := []func(context.Context) (Result, error){
		s.SyncKanji,
		s.SyncVocabulary,
		s.SyncAssignments,
	}

	results := make([]Result, len(chains))
	errs := make([]error, len(chains))

	// Plain group: a failing chain must not cancel the others.
	var g errgroup.Group
	for i, fn := range chains {
		g.Go(func() error {
			results[i], errs[i] = fn(ctx)
			return nil
		})
	}
	_ = g.Wait()

	return results, errors.Join(errs...)
}

// Preload implements Syncer.Preload.
func (s *syncer) Preload(ctx context.Context) {
	if _, err := s.SyncAll(ctx); err != nil {
		s.logger.WithError(err).Warn("preload sync failed, continuing with cached data")
	}
}
