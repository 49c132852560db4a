package schema

import (
	"fmt"
	"strings"
)

// Kind identifies the type of a subject.
type Kind string

const (
	KindKanji          Kind = "kanji"
	KindVocabulary     Kind = "vocabulary"
	KindKanaVocabulary Kind = "kana_vocabulary"
)

// Kinds lists every supported kind in a stable order.
var Kinds = []Kind{KindKanji, KindVocabulary, KindKanaVocabulary}

// VocabularyKinds are the kinds studied in the vocabulary section.
var VocabularyKinds = []Kind{KindVocabulary, KindKanaVocabulary}

// Valid reports whether k is one of the supported kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindKanji, KindVocabulary, KindKanaVocabulary:
		return true
	default:
		return false
	}
}

// Label returns a short human-readable name.
func (k Kind) Label() string {
	switch k {
	case KindKanji:
		return "kanji"
	case KindVocabulary:
		return "vocab"
	case KindKanaVocabulary:
		return "kana vocab"
	default:
		return "unknown"
	}
}

// ParseKind converts an API object name or user input into a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "kanji":
		return KindKanji, nil
	case "vocabulary", "vocab":
		return KindVocabulary, nil
	case "kana_vocabulary", "kana-vocabulary", "kana":
		return KindKanaVocabulary, nil
	default:
		return "", fmt.Errorf("unknown subject kind %q", s)
	}
}
