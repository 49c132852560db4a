// Package kana converts typed romaji and katakana into hiragana.
//
// Conversion follows the conventions of Japanese input methods: Hepburn and
// wāpuro spellings are both accepted (shi/si, tsu/tu, ji/zi), a doubled
// consonant produces a small っ, and x or l prefixes type small kana.
// Characters that are not part of a romaji syllable pass through unchanged.
package kana

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxSyllable is the longest romaji key in the table ("xtsu").
const maxSyllable = 4

var syllables = map[string]string{
	"a": "あ", "i": "い", "u": "う", "e": "え", "o": "お",

	"ka": "か", "ki": "き", "ku": "く", "ke": "け", "ko": "こ",
	"kya": "きゃ", "kyu": "きゅ", "kyo": "きょ",
	"ga": "が", "gi": "ぎ", "gu": "ぐ", "ge": "げ", "go": "ご",
	"gya": "ぎゃ", "gyu": "ぎゅ", "gyo": "ぎょ",

	"sa": "さ", "shi": "し", "si": "し", "su": "す", "se": "せ", "so": "そ",
	"sha": "しゃ", "shu": "しゅ", "sho": "しょ", "she": "しぇ",
	"sya": "しゃ", "syu": "しゅ", "syo": "しょ",
	"za": "ざ", "ji": "じ", "zi": "じ", "zu": "ず", "ze": "ぜ", "zo": "ぞ",
	"ja": "じゃ", "ju": "じゅ", "jo": "じょ", "je": "じぇ",
	"jya": "じゃ", "jyu": "じゅ", "jyo": "じょ",
	"zya": "じゃ", "zyu": "じゅ", "zyo": "じょ",

	"ta": "た", "chi": "ち", "ti": "ち", "tsu": "つ", "tu": "つ", "te": "て", "to": "と",
	"cha": "ちゃ", "chu": "ちゅ", "cho": "ちょ", "che": "ちぇ",
	"tya": "ちゃ", "tyu": "ちゅ", "tyo": "ちょ",
	"cya": "ちゃ", "cyu": "ちゅ", "cyo": "ちょ",
	"da": "だ", "di": "ぢ", "du": "づ", "de": "で", "do": "ど",
	"dya": "ぢゃ", "dyu": "ぢゅ", "dyo": "ぢょ",

	"na": "な", "ni": "に", "nu": "ぬ", "ne": "ね", "no": "の",
	"nya": "にゃ", "nyu": "にゅ", "nyo": "にょ",

	"ha": "は", "hi": "ひ", "fu": "ふ", "hu": "ふ", "he": "へ", "ho": "ほ",
	"hya": "ひゃ", "hyu": "ひゅ", "hyo": "ひょ",
	"fa": "ふぁ", "fi": "ふぃ", "fe": "ふぇ", "fo": "ふぉ",
	"ba": "ば", "bi": "び", "bu": "ぶ", "be": "べ", "bo": "ぼ",
	"bya": "びゃ", "byu": "びゅ", "byo": "びょ",
	"pa": "ぱ", "pi": "ぴ", "pu": "ぷ", "pe": "ぺ", "po": "ぽ",
	"pya": "ぴゃ", "pyu": "ぴゅ", "pyo": "ぴょ",

	"ma": "ま", "mi": "み", "mu": "む", "me": "め", "mo": "も",
	"mya": "みゃ", "myu": "みゅ", "myo": "みょ",

	"ya": "や", "yu": "ゆ", "yo": "よ",

	"ra": "ら", "ri": "り", "ru": "る", "re": "れ", "ro": "ろ",
	"rya": "りゃ", "ryu": "りゅ", "ryo": "りょ",

	"wa": "わ", "wi": "うぃ", "we": "うぇ", "wo": "を",

	"va": "ゔぁ", "vi": "ゔぃ", "vu": "ゔ", "ve": "ゔぇ", "vo": "ゔぉ",

	"xa": "ぁ", "xi": "ぃ", "xu": "ぅ", "xe": "ぇ", "xo": "ぉ",
	"la": "ぁ", "li": "ぃ", "lu": "ぅ", "le": "ぇ", "lo": "ぉ",
	"xya": "ゃ", "xyu": "ゅ", "xyo": "ょ",
	"lya": "ゃ", "lyu": "ゅ", "lyo": "ょ",
	"xtu": "っ", "xtsu": "っ", "ltu": "っ", "ltsu": "っ",
	"xwa": "ゎ", "lwa": "ゎ",

	"-": "ー",
}

func isVowel(b byte) bool {
	switch b {
	case 'a', 'i', 'u', 'e', 'o':
		return true
	}
	return false
}

func isConsonant(b byte) bool {
	return b >= 'a' && b <= 'z' && !isVowel(b)
}

// RomajiToHiragana converts romaji to hiragana. Input is lower-cased first.
//
//	"kanji"      -> "かんじ"
//	"konnichiha" -> "こんにちは"
//	"kitte"      -> "きって"
//	"hon"        -> "ほん"
//
// Kana already present in s is kept as is.
func RomajiToHiragana(s string) string {
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s) * 2)

	for i := 0; i < len(s); {
		c := s[i]

		if c == 'n' {
			if n, out := convertN(s[i:]); n > 0 {
				b.WriteString(out)
				i += n
				continue
			}
		}

		// Doubled consonant, or t before ch: small tsu.
		if isConsonant(c) && c != 'n' && i+1 < len(s) {
			if s[i+1] == c || (c == 't' && strings.HasPrefix(s[i+1:], "ch")) {
				b.WriteString("っ")
				i++
				continue
			}
		}

		if n, out := lookup(s[i:]); n > 0 {
			b.WriteString(out)
			i += n
			continue
		}

		// Not romaji: copy one whole rune through.
		r, size := utf8.DecodeRuneInString(s[i:])
		b.WriteRune(r)
		i += size
	}

	return b.String()
}

// convertN handles the syllabic n. It returns the number of bytes consumed,
// or 0 when s starts an ordinary n syllable (na, nya, ...).
func convertN(s string) (int, string) {
	if len(s) == 1 {
		return 1, "ん"
	}
	next := s[1]
	switch {
	case next == '\'':
		return 2, "ん"
	case next == 'n':
		// "nn" before a vowel or y is ん followed by an n syllable (konnichiha).
		if len(s) > 2 && (isVowel(s[2]) || s[2] == 'y') {
			return 1, "ん"
		}
		return 2, "ん"
	case isVowel(next) || next == 'y':
		return 0, ""
	default:
		return 1, "ん"
	}
}

func lookup(s string) (int, string) {
	for n := min(maxSyllable, len(s)); n > 0; n-- {
		if out, ok := syllables[s[:n]]; ok {
			return n, out
		}
	}
	return 0, ""
}

// KatakanaToHiragana shifts katakana into the hiragana block.
// The prolonged sound mark ー has no hiragana form and is kept.
func KatakanaToHiragana(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'ァ' && r <= 'ヶ':
			return r - 0x60
		case r == 'ヽ' || r == 'ヾ':
			return r - 0x60
		default:
			return r
		}
	}, s)
}

// IsKana reports whether s is non-empty and consists only of hiragana,
// katakana and the prolonged sound mark.
func IsKana(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.In(r, unicode.Hiragana, unicode.Katakana) && r != 'ー' {
			return false
		}
	}
	return true
}
