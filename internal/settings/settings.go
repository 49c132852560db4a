// Package settings holds the learner's preferences in a TOML file.
//
// A Store is the single configuration object shared by the syncer, the deck
// and the CLI. Readers take a snapshot with Get; the one writer goes through
// Update, which validates, persists and then notifies subscribers.
package settings

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"

	"github.com/kanjideck/kanjideck/internal/study"
)

// MaxLevel is the highest WaniKani level.
const MaxLevel = 60

var (
	// ErrInvalidSort is returned when a sort mode is not one of study.SortModes.
	ErrInvalidSort = errors.New("invalid sort mode")
	// ErrInvalidLevel is returned for levels outside 1..MaxLevel.
	ErrInvalidLevel = errors.New("invalid level")
)

// Settings are the learner's preferences.
type Settings struct {
	APIKey         string         `toml:"api_key"`
	Level          int            `toml:"level"`
	LimitToLearned bool           `toml:"limit_to_learned"`
	Sort           study.SortMode `toml:"sort"`
	MarkedSort     study.SortMode `toml:"marked_sort"`
}

// Default returns the settings used before the learner changes anything.
func Default() Settings {
	return Settings{
		Level:      1,
		Sort:       study.SortByID,
		MarkedSort: study.SortByID,
	}
}

// SortFor returns the sort mode used for section.
func (s Settings) SortFor(section study.Section) study.SortMode {
	if section == study.SectionMarked {
		return s.MarkedSort
	}
	return s.Sort
}

// Query builds the deck query for section.
func (s Settings) Query(section study.Section, markedIDs []int64) study.Query {
	q := study.Query{
		Section:        section,
		Level:          s.Level,
		LimitToLearned: s.LimitToLearned,
		Sort:           s.SortFor(section),
	}
	if section == study.SectionMarked {
		q.MarkedIDs = markedIDs
	}
	return q
}

// Validate checks the level and sort modes.
func (s *Settings) Validate() error {
	if s.Level < 1 || s.Level > MaxLevel {
		return fmt.Errorf("%w: %d (want 1-%d)", ErrInvalidLevel, s.Level, MaxLevel)
	}
	for _, mode := range []study.SortMode{s.Sort, s.MarkedSort} {
		if !validSort(mode) {
			return fmt.Errorf("%w: %q", ErrInvalidSort, mode)
		}
	}
	return nil
}

func validSort(mode study.SortMode) bool {
	for _, m := range study.SortModes {
		if m == mode {
			return true
		}
	}
	return false
}

func (s *Settings) fillDefaults() {
	d := Default()
	if s.Level == 0 {
		s.Level = d.Level
	}
	if s.Sort == "" {
		s.Sort = d.Sort
	}
	if s.MarkedSort == "" {
		s.MarkedSort = d.MarkedSort
	}
}

// Store is the settings file plus its in-memory snapshot.
type Store struct {
	path string
	log  logrus.FieldLogger

	mu  sync.RWMutex
	cur Settings

	subsMu sync.Mutex
	subs   map[int]chan Settings
	next   int
}

// Open loads the settings at path. A missing file yields the defaults; the
// file is created on the first Update.
func Open(path string, logger logrus.FieldLogger) (*Store, error) {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}

	cur, err := load(path)
	if err != nil {
		return nil, err
	}

	return &Store{
		path: path,
		log:  logger.WithField("component", "settings"),
		cur:  cur,
		subs: make(map[int]chan Settings),
	}, nil
}

// Path returns the settings file path.
func (s *Store) Path() string {
	return s.path
}

// Get returns a snapshot of the current settings.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Update applies fn to a copy of the current settings, validates the result,
// writes it to disk and notifies subscribers. On any error the current
// settings are left unchanged.
func (s *Store) Update(fn func(*Settings)) error {
	s.mu.Lock()
	next := s.cur
	fn(&next)
	next.fillDefaults()
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := write(s.path, next); err != nil {
		s.mu.Unlock()
		return err
	}
	changed := next != s.cur
	s.cur = next
	s.mu.Unlock()

	if changed {
		s.publish(next)
	}
	return nil
}

// Subscribe returns a channel that receives the new settings after every
// change. Only the latest value is buffered.
func (s *Store) Subscribe() (<-chan Settings, func()) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	ch := make(chan Settings, 1)
	id := s.next
	s.next++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subsMu.Lock()
			defer s.subsMu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
}

func (s *Store) publish(v Settings) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		// Replace a value the subscriber has not read yet.
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}

func load(path string) (Settings, error) {
	st := Default()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return st, nil
	}

	var fromFile Settings
	if _, err := toml.DecodeFile(path, &fromFile); err != nil {
		return Settings{}, fmt.Errorf("failed to read settings %s: %w", path, err)
	}
	fromFile.fillDefaults()
	if err := fromFile.Validate(); err != nil {
		return Settings{}, fmt.Errorf("settings %s: %w", path, err)
	}
	return fromFile, nil
}

// write replaces the file atomically so a concurrent reader never sees a
// partial document.
func write(path string, st Settings) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.toml")
	if err != nil {
		return fmt.Errorf("failed to create temp settings file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod settings file: %w", err)
	}
	if err := toml.NewEncoder(tmp).Encode(st); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace settings file: %w", err)
	}
	return nil
}
