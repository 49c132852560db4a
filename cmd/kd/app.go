package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kanjideck/kanjideck/internal/cache/db"
	cachesync "github.com/kanjideck/kanjideck/internal/cache/sync"
	"github.com/kanjideck/kanjideck/internal/marks"
	"github.com/kanjideck/kanjideck/internal/settings"
	"github.com/kanjideck/kanjideck/internal/study"
	"github.com/kanjideck/kanjideck/internal/wanikani"
)

// closers are released after the command finishes, in reverse order.
var closers []io.Closer

// Stores opened by the current command. bbolt holds an exclusive file lock,
// so each store is opened at most once per process.
var (
	cacheDB    *db.DB
	marksStore *marks.Store
)

func closeAll() {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil && log != nil {
			log.WithError(err).Warn("close failed")
		}
	}
	closers = nil
	cacheDB, marksStore = nil, nil
}

func openCache(ctx context.Context) (*db.DB, error) {
	if cacheDB != nil {
		return cacheDB, nil
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	store, err := db.Open(cfg.CachePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	if err := store.InitSchemaContext(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}
	closers = append(closers, store)
	cacheDB = store
	return store, nil
}

func openSettings() (*settings.Store, error) {
	s, err := settings.Open(cfg.SettingsPath(), log)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	return s, nil
}

func openMarks() (*marks.Store, error) {
	if marksStore != nil {
		return marksStore, nil
	}
	m, err := marks.Open(cfg.MarksPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open marks: %w", err)
	}
	closers = append(closers, m)
	marksStore = m
	return m, nil
}

// credential prefers the configured key over the one in settings, so
// KD_API_KEY works without touching the settings file.
func credential(prefs *settings.Store) func() string {
	return func() string {
		if cfg.API.Key != "" {
			return cfg.API.Key
		}
		return prefs.Get().APIKey
	}
}

func newClient() *wanikani.Client {
	return wanikani.New(wanikani.Options{
		BaseURL:  cfg.API.BaseURL,
		Revision: cfg.API.Revision,
		Timeout:  cfg.API.Timeout,
		Logger:   log,
	})
}

func newSyncer(store *db.DB, prefs *settings.Store) cachesync.Syncer {
	return cachesync.New(store, cachesync.ClientFactory(newClient()), credential(prefs), log)
}

// selectionOverrides are the list/study/export flags that override settings
// for a single run.
type selectionOverrides struct {
	section string
	level   int
	learned bool
	sort    string
}

func (o *selectionOverrides) query(cmd flagChanges, prefs settings.Settings, markedIDs []int64) (study.Query, error) {
	section, err := study.ParseSection(o.section)
	if err != nil {
		return study.Query{}, err
	}
	q := prefs.Query(section, markedIDs)
	if cmd.Changed("level") {
		if o.level < 1 || o.level > settings.MaxLevel {
			return study.Query{}, fmt.Errorf("%w: %d", settings.ErrInvalidLevel, o.level)
		}
		q.Level = o.level
	}
	if cmd.Changed("learned") {
		q.LimitToLearned = o.learned
	}
	if cmd.Changed("sort") {
		mode, err := study.ParseSortMode(o.sort)
		if err != nil {
			return study.Query{}, err
		}
		q.Sort = mode
	}
	return q, nil
}

func addSelectionFlags(cmd *cobra.Command, o *selectionOverrides) {
	cmd.Flags().StringVarP(&o.section, "section", "s", string(study.SectionKanji), "section: kanji, vocabulary or marked")
	cmd.Flags().IntVarP(&o.level, "level", "l", 0, "level (default from settings)")
	cmd.Flags().BoolVar(&o.learned, "learned", false, "only items you have started (default from settings)")
	cmd.Flags().StringVar(&o.sort, "sort", "", "sort: id, next_review or random (default from settings)")
}

// flagChanges is the part of *pflag.FlagSet used to detect overrides.
type flagChanges interface {
	Changed(name string) bool
}

// markedIDs loads bookmark ids only when the marked section needs them.
func markedIDs(section string) ([]int64, error) {
	if s, err := study.ParseSection(section); err != nil || s != study.SectionMarked {
		return nil, nil
	}
	m, err := openMarks()
	if err != nil {
		return nil, err
	}
	return m.IDs()
}

var errNoCredential = errors.New("no API key configured (run: kd settings set api_key <token>)")
