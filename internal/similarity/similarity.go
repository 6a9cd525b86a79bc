// Package similarity scores approximate textual overlap between question
// texts using character trigram sets, and provides an inverted trigram
// index for finding near-duplicates in a corpus.
//
// Trigrams are computed pg_trgm style: text is case-folded, punctuation is
// replaced by spaces, whitespace is collapsed, and each word is padded with
// two leading spaces and one trailing space before the 3-rune windows are
// taken. Similarity is the Dice coefficient over the two trigram sets.
// Lookups against an Index only score records sharing at least one trigram
// with the probe, so cost is proportional to the posting lists touched
// rather than to the corpus size. Very low thresholds (well under 0.5)
// degrade toward a full scan; callers should keep detection thresholds at
// or above 0.5.
package similarity

import (
	"strings"
	"unicode"
)

// Normalize case-folds text, replaces punctuation with spaces and collapses
// whitespace so that "statements." and "statements!" produce the same
// trigram set.
func Normalize(text string) string {
	lowered := strings.ToLower(strings.TrimSpace(text))
	if lowered == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(lowered))
	lastSpace := false
	for _, r := range lowered {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			b.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace {
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

// TrigramSet returns the padded word trigrams of the normalized text.
func TrigramSet(text string) map[string]struct{} {
	normalized := Normalize(text)
	if normalized == "" {
		return nil
	}

	set := make(map[string]struct{}, len(normalized))
	for _, word := range strings.Fields(normalized) {
		padded := []rune("  " + word + " ")
		for i := 0; i+3 <= len(padded); i++ {
			set[string(padded[i:i+3])] = struct{}{}
		}
	}
	return set
}

// Score returns the trigram Dice coefficient of a and b in [0,1]. It is
// symmetric and reflexive. Strings whose normalized form is shorter than
// three runes score 0 against everything except an identical normalized
// string, which scores 1.
func Score(a, b string) float64 {
	normA := Normalize(a)
	normB := Normalize(b)

	if len([]rune(normA)) < 3 || len([]rune(normB)) < 3 {
		if normA == normB && normA != "" {
			return 1
		}
		return 0
	}

	setA := TrigramSet(a)
	setB := TrigramSet(b)
	return dice(setA, setB)
}

func dice(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}

	shared := 0
	for gram := range small {
		if _, ok := large[gram]; ok {
			shared++
		}
	}
	if shared == 0 {
		return 0
	}
	return (2 * float64(shared)) / float64(len(a)+len(b))
}
