// Package staging implements the upload-batch review workflow: candidate
// questions are staged per batch, scored against the production corpus for
// near-duplicates, routed through human resolution and finally promoted
// into production in one atomic import.
//
// Operations on a single batch are serialized by the service; detection
// scoring fans out across records against a read-only corpus snapshot. A
// detection pass started before an import commits may miss records that
// import adds to the corpus; the next pass picks them up.
package staging

import "time"

// BatchStatus is the lifecycle state of an upload batch.
type BatchStatus string

const (
	BatchPending   BatchStatus = "pending"
	BatchReviewing BatchStatus = "reviewing"
	BatchCompleted BatchStatus = "completed"
	BatchCancelled BatchStatus = "cancelled"
)

// Terminal reports whether no transition may leave the status.
func (s BatchStatus) Terminal() bool {
	return s == BatchCompleted || s == BatchCancelled
}

// RecordStatus is the lifecycle state of a staged question.
type RecordStatus string

const (
	RecordPending   RecordStatus = "pending"
	RecordApproved  RecordStatus = "approved"
	RecordRejected  RecordStatus = "rejected"
	RecordDuplicate RecordStatus = "duplicate"
	// RecordImported is the terminal sub-state of approved reached by a
	// successful import commit.
	RecordImported RecordStatus = "imported"
)

// Resolution is the reviewer decision on one duplicate match.
type Resolution string

const (
	ResolutionPending     Resolution = "pending"
	ResolutionKeepBoth    Resolution = "keep_both"
	ResolutionUseExisting Resolution = "use_existing"
	ResolutionUseNew      Resolution = "use_new"
	ResolutionMerge       Resolution = "merge"
)

// ImportPolicy selects what a use_new resolution does to the existing
// production record at import time.
type ImportPolicy string

const (
	// PolicyReplace overwrites the existing production row with the staged
	// content, keeping the existing identifier.
	PolicyReplace ImportPolicy = "replace"
	// PolicyShadow inserts the staged record alongside the existing one.
	PolicyShadow ImportPolicy = "shadow"
)

// QuestionContent is the payload of a staged or production question. The
// classification fields are opaque to the dedup core; only the combined
// search text feeds the similarity engine.
type QuestionContent struct {
	Topic         string
	Subtopic      string
	Difficulty    string
	Type          string
	Question      string
	Answer        string
	NotesForTutor *string
}

// SearchText is the text the similarity engine scores, mirroring the
// topic+subtopic+question concatenation used for corpus lookups.
func (c QuestionContent) SearchText() string {
	return c.Topic + " " + c.Subtopic + " " + c.Question
}

// Batch is one upload attempt. Counts are always derived from current
// record statuses, never incremented in place.
type Batch struct {
	BatchUUID          string
	UploadedBy         string
	FileName           string
	TotalQuestions     int
	QuestionsPending   int
	QuestionsApproved  int
	QuestionsRejected  int
	QuestionsDuplicate int
	Status             BatchStatus
	Notes              *string
	UploadedAt         time.Time
	ReviewStartedAt    *time.Time
	ReviewCompletedAt  *time.Time
	ReviewedBy         *string
	ImportStartedAt    *time.Time
	ImportCompletedAt  *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Record is one staged question inside a batch.
type Record struct {
	QuestionID      string
	BatchUUID       string
	Content         QuestionContent
	Status          RecordStatus
	DuplicateOf     *string
	SimilarityScore *float64
	ReviewNotes     *string
	ReviewedBy      *string
	ReviewedAt      *time.Time
	UploadedBy      string
	UploadNotes     *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Match records one above-threshold similarity between a staged question
// and an existing production question. A staged question may carry several
// matches, resolved independently.
type Match struct {
	MatchUUID          string
	StagedQuestionID   string
	ExistingQuestionID string
	SimilarityScore    float64
	Resolution         Resolution
	ResolutionNotes    *string
	ResolvedBy         *string
	ResolvedAt         *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ProductionQuestion is a committed corpus entry.
type ProductionQuestion struct {
	QuestionID string
	Content    QuestionContent
	UploadedBy string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Counts is the per-status tally of a batch, derived by scanning records.
// Imported records count toward the approved bucket, keeping the
// total = pending+approved+rejected+duplicate invariant.
type Counts struct {
	Total     int
	Pending   int
	Approved  int
	Rejected  int
	Duplicate int
}

func countRecords(records []Record) Counts {
	var counts Counts
	counts.Total = len(records)
	for _, r := range records {
		switch r.Status {
		case RecordPending:
			counts.Pending++
		case RecordApproved, RecordImported:
			counts.Approved++
		case RecordRejected:
			counts.Rejected++
		case RecordDuplicate:
			counts.Duplicate++
		}
	}
	return counts
}

func canTransitionBatch(from, to BatchStatus) bool {
	switch from {
	case BatchPending:
		return to == BatchReviewing || to == BatchCancelled
	case BatchReviewing:
		return to == BatchCompleted || to == BatchCancelled
	default:
		return false
	}
}

// approvalBlocker returns the reason a record cannot be approved given its
// matches, or "" when approval is allowed. A pending resolution blocks, a
// use_existing resolution blocks permanently, and a merge resolution blocks
// until the record is re-staged with merged content.
func approvalBlocker(matches []Match) string {
	for _, m := range matches {
		switch m.Resolution {
		case ResolutionPending:
			return "match " + m.MatchUUID + " is unresolved"
		case ResolutionUseExisting:
			return "match " + m.MatchUUID + " resolved to use_existing"
		case ResolutionMerge:
			return "match " + m.MatchUUID + " awaits merged content"
		}
	}
	return ""
}

func validResolution(r Resolution) bool {
	switch r {
	case ResolutionKeepBoth, ResolutionUseExisting, ResolutionUseNew, ResolutionMerge:
		return true
	default:
		return false
	}
}
