// Package idgen builds semantic question identifiers of the form
// {TOPIC}-{SUBTOPIC}-{DIFFICULTY}-{TYPE}-{SEQ}, for example
// "DCF-WACC-B-D-001". Sequence numbers are allocated by the caller against
// the production corpus; this package only derives the base code.
package idgen

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	maxTopicCodeLength    = 10
	maxSubtopicCodeLength = 8
)

var typeCodes = map[string]string{
	"GenConcept":  "G",
	"Problem":     "P",
	"Definition":  "D",
	"Calculation": "C",
	"Analysis":    "A",
}

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "of": {}, "for": {}, "to": {},
	"in": {}, "on": {}, "at": {}, "by": {},
}

var (
	parenPattern    = regexp.MustCompile(`\(([^)]+)\)`)
	nonAlnumPattern = regexp.MustCompile(`[^A-Za-z0-9]`)
	nonWordPattern  = regexp.MustCompile(`[^A-Za-z0-9\s]`)
	spacePattern    = regexp.MustCompile(`\s+`)
)

// BaseID derives the base identifier (without sequence) from the question's
// classification fields.
func BaseID(topic, subtopic, difficulty, questionType string) string {
	return fmt.Sprintf("%s-%s-%s-%s",
		NormalizeTopic(topic),
		NormalizeSubtopic(subtopic),
		difficultyCode(difficulty),
		TypeCode(questionType),
	)
}

// FormatID appends a zero-padded sequence number to a base identifier.
func FormatID(baseID string, sequence int) string {
	return fmt.Sprintf("%s-%03d", baseID, sequence)
}

// TypeCode maps a question type to its single-letter code. Unknown types
// fall back to the general-concept code.
func TypeCode(questionType string) string {
	if code, ok := typeCodes[questionType]; ok {
		return code
	}
	return "G"
}

// NormalizeTopic reduces a topic name to a short upper-case code. An
// abbreviation in parentheses wins ("Discounted Cash Flow (DCF)" -> "DCF");
// otherwise initials of the significant words are used.
func NormalizeTopic(topic string) string {
	if match := parenPattern.FindStringSubmatch(topic); match != nil {
		abbrev := nonAlnumPattern.ReplaceAllString(match[1], "")
		if abbrev != "" && len(abbrev) <= maxTopicCodeLength {
			return strings.ToUpper(abbrev)
		}
	}

	clean := parenPattern.ReplaceAllString(topic, "")
	clean = nonWordPattern.ReplaceAllString(clean, "")
	words := strings.Fields(clean)

	significant := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) <= 2 {
			continue
		}
		if _, stop := stopWords[strings.ToLower(w)]; stop {
			continue
		}
		significant = append(significant, w)
	}
	if len(significant) == 0 {
		significant = words
	}
	if len(significant) == 0 {
		return "UNKNOWN"
	}

	if len(significant) == 1 {
		return strings.ToUpper(truncate(significant[0], maxTopicCodeLength))
	}

	var b strings.Builder
	for i, w := range significant {
		if i == 4 {
			break
		}
		b.WriteString(upperInitial(w))
	}
	abbrev := b.String()
	if len(abbrev) < 3 {
		abbrev = strings.ToUpper(truncate(significant[0], 4))
	}
	return truncate(abbrev, maxTopicCodeLength)
}

// NormalizeSubtopic reduces a subtopic name to a short upper-case code.
func NormalizeSubtopic(subtopic string) string {
	clean := nonWordPattern.ReplaceAllString(subtopic, "")
	clean = strings.TrimSpace(spacePattern.ReplaceAllString(clean, " "))
	words := strings.Fields(clean)

	if len(words) == 0 {
		return "UNKNOWN"
	}
	if len(words) == 1 {
		return strings.ToUpper(truncate(words[0], maxSubtopicCodeLength))
	}

	// An embedded abbreviation ("WACC Calculation") wins.
	for _, w := range words {
		if isAbbreviation(w) {
			return truncate(w, maxSubtopicCodeLength)
		}
	}

	var initials strings.Builder
	for _, w := range words {
		initials.WriteString(upperInitial(w))
	}
	if initials.Len() <= maxSubtopicCodeLength {
		return initials.String()
	}

	if len(words[0]) <= 4 {
		var b strings.Builder
		b.WriteString(strings.ToUpper(words[0]))
		for _, w := range words[1:] {
			b.WriteString(upperInitial(w))
		}
		return truncate(b.String(), maxSubtopicCodeLength)
	}

	return strings.ToUpper(truncate(words[0], maxSubtopicCodeLength))
}

func difficultyCode(difficulty string) string {
	trimmed := strings.TrimSpace(difficulty)
	if trimmed == "" {
		return "B"
	}
	return upperInitial(trimmed)
}

// upperInitial extracts the first rune, not the first byte, so multi-byte
// letters survive intact.
func upperInitial(s string) string {
	r, _ := utf8.DecodeRuneInString(s)
	return strings.ToUpper(string(r))
}

func isAbbreviation(word string) bool {
	if len(word) < 2 {
		return false
	}
	hasLetter := false
	for _, r := range word {
		if r >= 'a' && r <= 'z' {
			return false
		}
		if r >= 'A' && r <= 'Z' {
			hasLetter = true
		}
	}
	return hasLetter
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
