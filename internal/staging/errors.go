package staging

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNotFound is returned by stores and the service when a batch, record,
// match or production question does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateID is returned by stores when inserting a production question
// whose identifier already exists.
var ErrDuplicateID = errors.New("question id already exists")

// ValidationError reports malformed input on an inbound payload. Fields maps
// each offending field to a human-readable message.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func newValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// StateError reports an operation attempted against an entity whose current
// lifecycle state forbids it.
type StateError struct {
	Op     string
	Reason string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// DetectionFailure reports that the similarity corpus could not be loaded or
// scored. The batch is left untouched when detection fails.
type DetectionFailure struct {
	Err error
}

func (e *DetectionFailure) Error() string {
	return "duplicate detection failed: " + e.Err.Error()
}

func (e *DetectionFailure) Unwrap() error { return e.Err }

// PartialFailureError reports an import commit aborted by identifier
// collisions. The transaction is rolled back, so no records from the batch
// were promoted.
type PartialFailureError struct {
	RecordIDs []string
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("import aborted, %d record(s) collide with existing ids: %s",
		len(e.RecordIDs), strings.Join(e.RecordIDs, ", "))
}
