package study

import (
	"fmt"
	"testing"
)

func TestSession_StateMachine(t *testing.T) {
	s := NewSession()
	sub := kanjiWithKatakanaOnyomi()

	if got := s.State(sub.ID); got != Unanswered {
		t.Fatalf("initial state = %v, want unanswered", got)
	}

	res := s.Check(sub, "ko")
	if res.Correct || res.Normalized != "こ" {
		t.Errorf("Check(ko) = %+v, want incorrect with normalized こ", res)
	}
	if got := s.State(sub.ID); got != Incorrect {
		t.Errorf("state after wrong answer = %v, want incorrect", got)
	}

	res = s.Check(sub, "kou")
	if !res.Correct {
		t.Errorf("Check(kou) = %+v, want correct", res)
	}
	if !s.IsCorrect(sub.ID) {
		t.Error("item should be in the correct-set")
	}

	// Answering correctly again does not duplicate the id.
	s.Check(sub, "kou")
	if got := fmt.Sprint(s.Correct()); got != "[700]" {
		t.Errorf("Correct() = %s, want [700]", got)
	}

	// A later wrong answer revokes the mark.
	s.Check(sub, "ka")
	if s.IsCorrect(sub.ID) {
		t.Error("wrong answer should remove the item from the correct-set")
	}
	if len(s.Correct()) != 0 {
		t.Errorf("Correct() = %v, want empty", s.Correct())
	}
}

func TestSession_Reset(t *testing.T) {
	s := NewSession()
	sub := kanjiWithKatakanaOnyomi()
	s.Check(sub, "kou")

	s.Reset()
	if s.IsCorrect(sub.ID) || s.State(sub.ID) != Unanswered {
		t.Error("Reset() should forget every answer")
	}
}
