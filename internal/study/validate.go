package study

import (
	"strings"

	"github.com/samber/lo"

	"github.com/kanjideck/kanjideck/internal/cache/schema"
	"github.com/kanjideck/kanjideck/internal/kana"
)

// Normalize converts typed input to hiragana for display and comparison.
//
// A trailing bare "n" or "ny" is left unconverted because it is still
// ambiguous: it may become ん or start a syllable such as な or にゃ. A
// trailing "nn" is unambiguous and becomes ん.
//
//	"ke"    -> "け"
//	"ken"   -> "けn"
//	"kenka" -> "けんか"
//	"kenn"  -> "けん"
func Normalize(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))

	var pending string
	switch {
	case strings.HasSuffix(s, "ny"):
		pending = "ny"
	case strings.HasSuffix(s, "n") && !strings.HasSuffix(s, "nn"):
		pending = "n"
	}

	head := strings.TrimSuffix(s, pending)
	return kana.KatakanaToHiragana(kana.RomajiToHiragana(head)) + pending
}

// AcceptedAnswers returns the normalized readings that count as correct.
//
// Kanji accept every reading flagged as an accepted answer, of any type.
// Vocabulary accepts the same plus the hiragana form of each, so a katakana
// loanword reading can be typed in hiragana. Kana-only vocabulary accepts the
// hiragana form of its characters.
func AcceptedAnswers(sub schema.Subject) []string {
	var out []string

	switch sub.Kind {
	case schema.KindKanji, schema.KindVocabulary:
		for _, r := range sub.Readings {
			if !r.AcceptedAnswer {
				continue
			}
			out = append(out, r.Reading, kana.KatakanaToHiragana(r.Reading))
		}
	case schema.KindKanaVocabulary:
		out = append(out, kana.KatakanaToHiragana(sub.Characters))
	}

	return lo.Uniq(out)
}

// IsAccepted reports whether normalized input matches an accepted answer.
func IsAccepted(sub schema.Subject, normalized string) bool {
	if normalized == "" {
		return false
	}
	return lo.Contains(AcceptedAnswers(sub), normalized)
}
