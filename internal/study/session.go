package study

import (
	"slices"
	"sync"

	"github.com/kanjideck/kanjideck/internal/cache/schema"
)

// State is the answer state of one item within a session.
type State int

const (
	Unanswered State = iota
	Incorrect
	Correct
)

func (s State) String() string {
	switch s {
	case Unanswered:
		return "unanswered"
	case Incorrect:
		return "incorrect"
	case Correct:
		return "correct"
	default:
		return "unknown"
	}
}

// Result is the outcome of one Check.
type Result struct {
	SubjectID  int64  `json:"subject_id"`
	Input      string `json:"input"`
	Normalized string `json:"normalized"`
	Correct    bool   `json:"correct"`
}

// Session tracks the correct-set for the current deck.
//
// A correct answer adds the item to the set. A wrong answer removes it, so an
// item counts as correct only while its latest attempt was right. The set
// lives in memory and is cleared whenever the deck reloads.
type Session struct {
	mu     sync.RWMutex
	states map[int64]State
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{states: make(map[int64]State)}
}

// Check validates raw input for sub and updates the correct-set.
func (s *Session) Check(sub schema.Subject, raw string) Result {
	normalized := Normalize(raw)
	ok := IsAccepted(sub, normalized)

	s.mu.Lock()
	if ok {
		s.states[sub.ID] = Correct
	} else {
		s.states[sub.ID] = Incorrect
	}
	s.mu.Unlock()

	return Result{
		SubjectID:  sub.ID,
		Input:      raw,
		Normalized: normalized,
		Correct:    ok,
	}
}

// State returns the answer state of an item.
func (s *Session) State(id int64) State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.states[id]
}

// IsCorrect reports whether id is in the correct-set.
func (s *Session) IsCorrect(id int64) bool {
	return s.State(id) == Correct
}

// Correct returns the correct-set in ascending id order.
func (s *Session) Correct() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []int64
	for id, st := range s.states {
		if st == Correct {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Reset forgets every answer.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.states)
}
