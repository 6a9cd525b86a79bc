package payloadschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed question_batch.schema.json
var questionBatchSchemaJSON string

// BatchUpload is a validated question batch upload payload.
type BatchUpload struct {
	PayloadVersion string           `json:"payload_version"`
	UploadedBy     string           `json:"uploaded_by"`
	FileName       string           `json:"file_name"`
	Notes          *string          `json:"notes,omitempty"`
	Questions      []QuestionUpload `json:"questions"`
}

// QuestionUpload is one candidate question inside a batch upload.
type QuestionUpload struct {
	Topic         string  `json:"topic"`
	Subtopic      string  `json:"subtopic"`
	Difficulty    string  `json:"difficulty"`
	Type          string  `json:"type"`
	Question      string  `json:"question"`
	Answer        string  `json:"answer"`
	NotesForTutor *string `json:"notes_for_tutor,omitempty"`
	UploadNotes   *string `json:"upload_notes,omitempty"`
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// ValidateBatchUploadPayload checks a raw upload body against the embedded
// JSON schema plus semantic rules the schema cannot express, and returns the
// decoded payload.
func ValidateBatchUploadPayload(payload json.RawMessage) (*BatchUpload, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize payload JSON: %w", err)
	}

	var upload BatchUpload
	if err := json.Unmarshal(normalized, &upload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}

	if err := validateSemantics(&upload); err != nil {
		return nil, err
	}

	return &upload, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		if err := compiler.AddResource("question_batch.schema.json", strings.NewReader(questionBatchSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("question_batch.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("payload contains trailing content")
	}

	return value, nil
}

// validateSemantics rejects whitespace-only fields, which the schema's
// minLength cannot catch.
func validateSemantics(upload *BatchUpload) error {
	if upload == nil {
		return fmt.Errorf("payload is nil")
	}

	if strings.TrimSpace(upload.PayloadVersion) != "v1" {
		return fmt.Errorf("payload_version must be v1")
	}
	if strings.TrimSpace(upload.UploadedBy) == "" {
		return fmt.Errorf("uploaded_by must not be empty")
	}
	if strings.TrimSpace(upload.FileName) == "" {
		return fmt.Errorf("file_name must not be empty")
	}

	for i, q := range upload.Questions {
		fields := map[string]string{
			"topic":      q.Topic,
			"subtopic":   q.Subtopic,
			"difficulty": q.Difficulty,
			"type":       q.Type,
			"question":   q.Question,
			"answer":     q.Answer,
		}
		for name, value := range fields {
			if strings.TrimSpace(value) == "" {
				return fmt.Errorf("questions[%d].%s must not be empty", i, name)
			}
		}
	}

	return nil
}
