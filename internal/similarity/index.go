package similarity

import "sort"

// Candidate is one corpus record scoring at or above the lookup threshold.
type Candidate struct {
	RecordID string
	Score    float64
}

type indexEntry struct {
	recordID string
	gramSize int
	shortKey string // normalized text for records too short to trigram
}

// Index is an inverted trigram posting structure over a read-only corpus.
// Build it once per detection pass; concurrent lookups are safe after
// construction.
type Index struct {
	postings map[string][]int
	entries  []indexEntry
	short    map[string][]int
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		postings: make(map[string][]int),
		short:    make(map[string][]int),
	}
}

// Add registers a corpus record under its identifier. Adding the same
// identifier twice indexes both copies; callers are expected to feed each
// record once.
func (ix *Index) Add(recordID, text string) {
	normalized := Normalize(text)
	if normalized == "" {
		return
	}

	pos := len(ix.entries)
	if len([]rune(normalized)) < 3 {
		ix.entries = append(ix.entries, indexEntry{recordID: recordID, shortKey: normalized})
		ix.short[normalized] = append(ix.short[normalized], pos)
		return
	}

	set := TrigramSet(text)
	ix.entries = append(ix.entries, indexEntry{recordID: recordID, gramSize: len(set)})
	for gram := range set {
		ix.postings[gram] = append(ix.postings[gram], pos)
	}
}

// Len reports the number of indexed records.
func (ix *Index) Len() int {
	return len(ix.entries)
}

// FindCandidates returns every indexed record scoring >= threshold against
// text, ordered by score descending with ties broken by ascending record
// identifier. Only records sharing at least one trigram with the probe are
// scored.
func (ix *Index) FindCandidates(text string, threshold float64) []Candidate {
	normalized := Normalize(text)
	if normalized == "" {
		return nil
	}

	if len([]rune(normalized)) < 3 {
		// Short probe: only identical short records can match.
		if threshold > 1 {
			return nil
		}
		positions := ix.short[normalized]
		candidates := make([]Candidate, 0, len(positions))
		for _, pos := range positions {
			candidates = append(candidates, Candidate{RecordID: ix.entries[pos].recordID, Score: 1})
		}
		sortCandidates(candidates)
		return candidates
	}

	probe := TrigramSet(text)
	shared := make(map[int]int, 64)
	for gram := range probe {
		for _, pos := range ix.postings[gram] {
			shared[pos]++
		}
	}

	candidates := make([]Candidate, 0, len(shared))
	for pos, overlap := range shared {
		entry := ix.entries[pos]
		score := (2 * float64(overlap)) / float64(len(probe)+entry.gramSize)
		if score >= threshold {
			candidates = append(candidates, Candidate{RecordID: entry.recordID, Score: score})
		}
	}

	sortCandidates(candidates)
	return candidates
}

func sortCandidates(candidates []Candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].RecordID < candidates[j].RecordID
	})
}
