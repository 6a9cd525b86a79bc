package staging

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// memStore is an in-memory Store for exercising the service without a
// database. WithTx clones the maps and swaps them back only on success,
// matching the rollback behavior of a real transaction.
type memStore struct {
	batches    map[string]Batch
	records    map[string]Record
	matches    map[string]Match
	production map[string]ProductionQuestion
}

func newMemStore() *memStore {
	return &memStore{
		batches:    make(map[string]Batch),
		records:    make(map[string]Record),
		matches:    make(map[string]Match),
		production: make(map[string]ProductionQuestion),
	}
}

func cloneMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (m *memStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	tx := &memStore{
		batches:    cloneMap(m.batches),
		records:    cloneMap(m.records),
		matches:    cloneMap(m.matches),
		production: cloneMap(m.production),
	}
	if err := fn(tx); err != nil {
		return err
	}
	*m = *tx
	return nil
}

func (m *memStore) InsertBatch(ctx context.Context, batch *Batch) error {
	if _, ok := m.batches[batch.BatchUUID]; ok {
		return fmt.Errorf("batch %s exists", batch.BatchUUID)
	}
	m.batches[batch.BatchUUID] = *batch
	return nil
}

func (m *memStore) GetBatch(ctx context.Context, batchUUID string) (*Batch, error) {
	b, ok := m.batches[batchUUID]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (m *memStore) ListBatches(ctx context.Context, status BatchStatus, limit, offset int) ([]Batch, error) {
	var out []Batch
	for _, b := range m.batches {
		if status != "" && b.Status != status {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].BatchUUID < out[j].BatchUUID
	})
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) UpdateBatch(ctx context.Context, batch *Batch) error {
	if _, ok := m.batches[batch.BatchUUID]; !ok {
		return ErrNotFound
	}
	m.batches[batch.BatchUUID] = *batch
	return nil
}

func (m *memStore) InsertRecords(ctx context.Context, records []Record) error {
	for _, r := range records {
		if _, ok := m.records[r.QuestionID]; ok {
			return fmt.Errorf("record %s exists", r.QuestionID)
		}
	}
	for _, r := range records {
		m.records[r.QuestionID] = r
	}
	return nil
}

func (m *memStore) GetRecord(ctx context.Context, questionID string) (*Record, error) {
	r, ok := m.records[questionID]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *memStore) ListRecords(ctx context.Context, batchUUID string, status RecordStatus) ([]Record, error) {
	var out []Record
	for _, r := range m.records {
		if r.BatchUUID != batchUUID {
			continue
		}
		if status != "" && r.Status != status {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out, nil
}

func (m *memStore) UpdateRecord(ctx context.Context, record *Record) error {
	if _, ok := m.records[record.QuestionID]; !ok {
		return ErrNotFound
	}
	m.records[record.QuestionID] = *record
	return nil
}

func (m *memStore) InsertMatch(ctx context.Context, match *Match) error {
	if _, ok := m.matches[match.MatchUUID]; ok {
		return fmt.Errorf("match %s exists", match.MatchUUID)
	}
	m.matches[match.MatchUUID] = *match
	return nil
}

func (m *memStore) GetMatch(ctx context.Context, matchUUID string) (*Match, error) {
	mt, ok := m.matches[matchUUID]
	if !ok {
		return nil, ErrNotFound
	}
	return &mt, nil
}

func (m *memStore) FindMatchPair(ctx context.Context, stagedID, existingID string) (*Match, error) {
	for _, mt := range m.matches {
		if mt.StagedQuestionID == stagedID && mt.ExistingQuestionID == existingID {
			return &mt, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) ListMatchesByRecord(ctx context.Context, questionID string) ([]Match, error) {
	var out []Match
	for _, mt := range m.matches {
		if mt.StagedQuestionID == questionID {
			out = append(out, mt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MatchUUID < out[j].MatchUUID })
	return out, nil
}

func (m *memStore) ListMatchesByBatch(ctx context.Context, batchUUID string) ([]Match, error) {
	var out []Match
	for _, mt := range m.matches {
		r, ok := m.records[mt.StagedQuestionID]
		if ok && r.BatchUUID == batchUUID {
			out = append(out, mt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MatchUUID < out[j].MatchUUID })
	return out, nil
}

func (m *memStore) UpdateMatch(ctx context.Context, match *Match) error {
	if _, ok := m.matches[match.MatchUUID]; !ok {
		return ErrNotFound
	}
	m.matches[match.MatchUUID] = *match
	return nil
}

func (m *memStore) LoadCorpus(ctx context.Context) ([]CorpusEntry, error) {
	var out []CorpusEntry
	for _, q := range m.production {
		out = append(out, CorpusEntry{QuestionID: q.QuestionID, SearchText: q.Content.SearchText()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out, nil
}

func (m *memStore) GetProduction(ctx context.Context, questionID string) (*ProductionQuestion, error) {
	q, ok := m.production[questionID]
	if !ok {
		return nil, ErrNotFound
	}
	return &q, nil
}

func (m *memStore) InsertProduction(ctx context.Context, q *ProductionQuestion) error {
	if _, ok := m.production[q.QuestionID]; ok {
		return ErrDuplicateID
	}
	m.production[q.QuestionID] = *q
	return nil
}

func (m *memStore) UpdateProduction(ctx context.Context, q *ProductionQuestion) error {
	if _, ok := m.production[q.QuestionID]; !ok {
		return ErrNotFound
	}
	m.production[q.QuestionID] = *q
	return nil
}

func (m *memStore) MaxSequence(ctx context.Context, baseID string) (int, error) {
	max := 0
	scan := func(id string) {
		rest, ok := strings.CutPrefix(id, baseID+"-")
		if !ok {
			return
		}
		n, err := strconv.Atoi(rest)
		if err == nil && n > max {
			max = n
		}
	}
	for id := range m.records {
		scan(id)
	}
	for id := range m.production {
		scan(id)
	}
	return max, nil
}

func (m *memStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{
		BatchesByStatus:     make(map[BatchStatus]int),
		RecordsByStatus:     make(map[RecordStatus]int),
		MatchesByResolution: make(map[Resolution]int),
		ProductionTotal:     len(m.production),
	}
	for _, b := range m.batches {
		st.BatchesByStatus[b.Status]++
	}
	for _, r := range m.records {
		st.RecordsByStatus[r.Status]++
	}
	for _, mt := range m.matches {
		st.MatchesByResolution[mt.Resolution]++
	}
	st.PendingMatches = st.MatchesByResolution[ResolutionPending]
	return st, nil
}
