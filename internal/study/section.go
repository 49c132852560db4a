package study

import (
	"fmt"
	"strings"

	"github.com/kanjideck/kanjideck/internal/cache/schema"
)

// Section is a study area.
type Section string

const (
	SectionKanji      Section = "kanji"
	SectionVocabulary Section = "vocabulary"
	SectionMarked     Section = "marked"
)

// Sections lists every section in menu order.
var Sections = []Section{SectionKanji, SectionVocabulary, SectionMarked}

// ParseSection converts user input into a Section.
func ParseSection(s string) (Section, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "kanji", "k":
		return SectionKanji, nil
	case "vocabulary", "vocab", "v":
		return SectionVocabulary, nil
	case "marked", "marks", "m":
		return SectionMarked, nil
	default:
		return "", fmt.Errorf("unknown section %q (want kanji, vocabulary or marked)", s)
	}
}

// Kinds returns the subject kinds shown in a level-based section.
// The marked section is resolved by id and has no kinds.
func (s Section) Kinds() []schema.Kind {
	switch s {
	case SectionKanji:
		return []schema.Kind{schema.KindKanji}
	case SectionVocabulary:
		return schema.VocabularyKinds
	case SectionMarked:
		return nil
	default:
		return nil
	}
}

// SortMode orders a deck.
type SortMode string

const (
	SortByID         SortMode = "id"
	SortByNextReview SortMode = "next_review"
	SortRandom       SortMode = "random"
)

// SortModes lists the accepted sort modes.
var SortModes = []SortMode{SortByID, SortByNextReview, SortRandom}

// ParseSortMode converts user input into a SortMode.
func ParseSortMode(s string) (SortMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "id", "":
		return SortByID, nil
	case "next_review", "next-review", "review", "next":
		return SortByNextReview, nil
	case "random", "shuffle":
		return SortRandom, nil
	default:
		return "", fmt.Errorf("unknown sort mode %q (want id, next_review or random)", s)
	}
}
