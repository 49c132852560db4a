// Package marks stores the learner's bookmarks ("marked for review").
//
// Marks live in their own bbolt file, separate from the record cache, so
// clearing or rebuilding the cache never touches them. A mark whose subject
// is no longer cached simply resolves to nothing.
package marks

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/kanjideck/kanjideck/internal/cache/schema"
)

var bucketMarks = []byte("marks")

// ErrInvalidMark is returned for marks without a subject id or with an
// unknown kind.
var ErrInvalidMark = errors.New("invalid mark")

// Mark is a bookmark on one subject.
type Mark struct {
	SubjectID int64       `json:"subject_id" yaml:"subject_id"`
	Kind      schema.Kind `json:"kind" yaml:"kind"`
	Level     int         `json:"level" yaml:"level"`
	MarkedAt  time.Time   `json:"marked_at" yaml:"marked_at"`
}

// FromSubject builds a mark for s.
func FromSubject(s schema.Subject) Mark {
	return Mark{SubjectID: s.ID, Kind: s.Kind, Level: s.Level}
}

func (m Mark) validate() error {
	if m.SubjectID <= 0 {
		return fmt.Errorf("%w: subject_id must be positive (got %d)", ErrInvalidMark, m.SubjectID)
	}
	if !m.Kind.Valid() {
		return fmt.Errorf("%w: kind %q", ErrInvalidMark, m.Kind)
	}
	return nil
}

// Store is the bookmark database.
type Store struct {
	db  *bbolt.DB
	now func() time.Time

	mu   sync.Mutex
	subs map[int]chan struct{}
	next int
}

// Open opens (or creates) the marks file at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create marks directory: %w", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open marks database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketMarks)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create marks bucket: %w", err)
	}

	return &Store{db: db, now: time.Now, subs: make(map[int]chan struct{})}, nil
}

// Close closes the marks file.
func (s *Store) Close() error {
	s.mu.Lock()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.mu.Unlock()
	return s.db.Close()
}

func key(id int64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(id))
	return k
}

// Add stores m, replacing an existing mark for the same subject.
// A zero MarkedAt is set to the current time.
func (s *Store) Add(m Mark) error {
	if err := m.validate(); err != nil {
		return err
	}
	if m.MarkedAt.IsZero() {
		m.MarkedAt = s.now().UTC()
	}

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode mark: %w", err)
	}

	if err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMarks).Put(key(m.SubjectID), data)
	}); err != nil {
		return fmt.Errorf("failed to save mark %d: %w", m.SubjectID, err)
	}

	s.publish()
	return nil
}

// Remove deletes the mark on subjectID. It reports whether a mark existed.
func (s *Store) Remove(subjectID int64) (bool, error) {
	var existed bool
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMarks)
		existed = b.Get(key(subjectID)) != nil
		if !existed {
			return nil
		}
		return b.Delete(key(subjectID))
	})
	if err != nil {
		return false, fmt.Errorf("failed to remove mark %d: %w", subjectID, err)
	}

	if existed {
		s.publish()
	}
	return existed, nil
}

// Toggle marks the subject if it is unmarked and unmarks it otherwise.
// It reports whether the subject is marked afterwards.
func (s *Store) Toggle(m Mark) (bool, error) {
	has, err := s.Has(m.SubjectID)
	if err != nil {
		return false, err
	}
	if has {
		_, err := s.Remove(m.SubjectID)
		return false, err
	}
	return true, s.Add(m)
}

// Has reports whether subjectID is marked.
func (s *Store) Has(subjectID int64) (bool, error) {
	var has bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		has = tx.Bucket(bucketMarks).Get(key(subjectID)) != nil
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to read mark %d: %w", subjectID, err)
	}
	return has, nil
}

// List returns every mark ordered by subject id.
func (s *Store) List() ([]Mark, error) {
	var marks []Mark
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMarks).ForEach(func(k, v []byte) error {
			var m Mark
			if err := json.Unmarshal(v, &m); err != nil {
				return fmt.Errorf("mark %d: %w", binary.BigEndian.Uint64(k), err)
			}
			marks = append(marks, m)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list marks: %w", err)
	}
	return marks, nil
}

// IDs returns the marked subject ids in ascending order.
func (s *Store) IDs() ([]int64, error) {
	var ids []int64
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMarks).ForEach(func(k, _ []byte) error {
			ids = append(ids, int64(binary.BigEndian.Uint64(k)))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list marked ids: %w", err)
	}
	return ids, nil
}

// Clear removes every mark.
func (s *Store) Clear() error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketMarks); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return err
		}
		_, err := tx.CreateBucket(bucketMarks)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to clear marks: %w", err)
	}
	s.publish()
	return nil
}

// Subscribe returns a channel that receives a value after every change.
// Notifications are coalesced: a pending one is not duplicated.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan struct{}, 1)
	id := s.next
	s.next++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
}

func (s *Store) publish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
