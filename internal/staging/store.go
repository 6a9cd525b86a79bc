package staging

import "context"

// CorpusEntry is the portion of a production question the similarity index
// needs: the identifier and the text it is scored on.
type CorpusEntry struct {
	QuestionID string
	SearchText string
}

// Stats is an aggregate snapshot across all batches and staged records.
type Stats struct {
	BatchesByStatus     map[BatchStatus]int
	RecordsByStatus     map[RecordStatus]int
	MatchesByResolution map[Resolution]int
	PendingMatches      int
	ProductionTotal     int
}

// Store is the persistence boundary of the staging workflow. Implementations
// must return ErrNotFound for missing rows and ErrDuplicateID for production
// identifier collisions.
type Store interface {
	// WithTx runs fn against a transactional view of the store. An error
	// from fn rolls back every write made through the transactional view.
	WithTx(ctx context.Context, fn func(tx Store) error) error

	InsertBatch(ctx context.Context, batch *Batch) error
	GetBatch(ctx context.Context, batchUUID string) (*Batch, error)
	// ListBatches returns batches newest first. An empty status matches all.
	ListBatches(ctx context.Context, status BatchStatus, limit, offset int) ([]Batch, error)
	UpdateBatch(ctx context.Context, batch *Batch) error

	InsertRecords(ctx context.Context, records []Record) error
	GetRecord(ctx context.Context, questionID string) (*Record, error)
	// ListRecords returns a batch's records ordered by question id. An empty
	// status matches all.
	ListRecords(ctx context.Context, batchUUID string, status RecordStatus) ([]Record, error)
	UpdateRecord(ctx context.Context, record *Record) error

	InsertMatch(ctx context.Context, match *Match) error
	GetMatch(ctx context.Context, matchUUID string) (*Match, error)
	// FindMatchPair looks a match up by its (staged, existing) pair so a
	// re-run of detection refreshes scores instead of duplicating rows.
	FindMatchPair(ctx context.Context, stagedID, existingID string) (*Match, error)
	ListMatchesByRecord(ctx context.Context, questionID string) ([]Match, error)
	ListMatchesByBatch(ctx context.Context, batchUUID string) ([]Match, error)
	UpdateMatch(ctx context.Context, match *Match) error

	// LoadCorpus returns every production question as index input.
	LoadCorpus(ctx context.Context) ([]CorpusEntry, error)
	GetProduction(ctx context.Context, questionID string) (*ProductionQuestion, error)
	InsertProduction(ctx context.Context, q *ProductionQuestion) error
	UpdateProduction(ctx context.Context, q *ProductionQuestion) error
	// MaxSequence returns the highest issued sequence for a base identifier
	// across staged and production questions, or 0 when none exist.
	MaxSequence(ctx context.Context, baseID string) (int, error)

	Stats(ctx context.Context) (*Stats, error)
}
