package db

import "time"

// UploadBatch maps qb.upload_batches.
type UploadBatch struct {
	BatchID            int64      `gorm:"column:batch_id;primaryKey;autoIncrement"`
	BatchUUID          string     `gorm:"column:batch_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	UploadedBy         string     `gorm:"column:uploaded_by;type:text;not null"`
	FileName           string     `gorm:"column:file_name;type:text;not null"`
	TotalQuestions     int        `gorm:"column:total_questions;type:integer;not null;default:0"`
	QuestionsPending   int        `gorm:"column:questions_pending;type:integer;not null;default:0"`
	QuestionsApproved  int        `gorm:"column:questions_approved;type:integer;not null;default:0"`
	QuestionsRejected  int        `gorm:"column:questions_rejected;type:integer;not null;default:0"`
	QuestionsDuplicate int        `gorm:"column:questions_duplicate;type:integer;not null;default:0"`
	Status             string     `gorm:"column:status;type:qb.batch_status;not null;default:pending"`
	Notes              *string    `gorm:"column:notes;type:text"`
	UploadedAt         time.Time  `gorm:"column:uploaded_at;type:timestamptz;not null;default:now()"`
	ReviewStartedAt    *time.Time `gorm:"column:review_started_at;type:timestamptz"`
	ReviewCompletedAt  *time.Time `gorm:"column:review_completed_at;type:timestamptz"`
	ReviewedBy         *string    `gorm:"column:reviewed_by;type:text"`
	ImportStartedAt    *time.Time `gorm:"column:import_started_at;type:timestamptz"`
	ImportCompletedAt  *time.Time `gorm:"column:import_completed_at;type:timestamptz"`
	CreatedAt          time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt          time.Time  `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (UploadBatch) TableName() string { return "qb.upload_batches" }

// StagedQuestion maps qb.staged_questions. The batch uuid is denormalized so
// review queries never join through upload_batches.
type StagedQuestion struct {
	StagedQuestionID int64      `gorm:"column:staged_question_id;primaryKey;autoIncrement"`
	QuestionID       string     `gorm:"column:question_id;type:text;not null;unique"`
	BatchUUID        string     `gorm:"column:batch_uuid;type:uuid;not null"`
	Topic            string     `gorm:"column:topic;type:text;not null"`
	Subtopic         string     `gorm:"column:subtopic;type:text;not null"`
	Difficulty       string     `gorm:"column:difficulty;type:text;not null"`
	QuestionType     string     `gorm:"column:question_type;type:text;not null"`
	QuestionText     string     `gorm:"column:question_text;type:text;not null"`
	AnswerText       string     `gorm:"column:answer_text;type:text;not null"`
	NotesForTutor    *string    `gorm:"column:notes_for_tutor;type:text"`
	Status           string     `gorm:"column:status;type:qb.staged_status;not null;default:pending"`
	DuplicateOf      *string    `gorm:"column:duplicate_of;type:text"`
	SimilarityScore  *float64   `gorm:"column:similarity_score;type:double precision"`
	ReviewNotes      *string    `gorm:"column:review_notes;type:text"`
	ReviewedBy       *string    `gorm:"column:reviewed_by;type:text"`
	ReviewedAt       *time.Time `gorm:"column:reviewed_at;type:timestamptz"`
	UploadedBy       string     `gorm:"column:uploaded_by;type:text;not null"`
	UploadNotes      *string    `gorm:"column:upload_notes;type:text"`
	CreatedAt        time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (StagedQuestion) TableName() string { return "qb.staged_questions" }

// StagingDuplicate maps qb.staging_duplicates, one row per flagged
// (staged, existing) pair.
type StagingDuplicate struct {
	StagingDuplicateID int64      `gorm:"column:staging_duplicate_id;primaryKey;autoIncrement"`
	MatchUUID          string     `gorm:"column:match_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	StagedQuestionID   string     `gorm:"column:staged_question_id;type:text;not null;index:idx_staging_duplicates_pair,unique,priority:1"`
	ExistingQuestionID string     `gorm:"column:existing_question_id;type:text;not null;index:idx_staging_duplicates_pair,unique,priority:2"`
	SimilarityScore    float64    `gorm:"column:similarity_score;type:double precision;not null"`
	Resolution         string     `gorm:"column:resolution;type:qb.match_resolution;not null;default:pending"`
	ResolutionNotes    *string    `gorm:"column:resolution_notes;type:text"`
	ResolvedBy         *string    `gorm:"column:resolved_by;type:text"`
	ResolvedAt         *time.Time `gorm:"column:resolved_at;type:timestamptz"`
	CreatedAt          time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt          time.Time  `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (StagingDuplicate) TableName() string { return "qb.staging_duplicates" }

// Question maps qb.all_questions, the production corpus.
type Question struct {
	QuestionID    string    `gorm:"column:question_id;type:text;primaryKey"`
	Topic         string    `gorm:"column:topic;type:text;not null"`
	Subtopic      string    `gorm:"column:subtopic;type:text;not null"`
	Difficulty    string    `gorm:"column:difficulty;type:text;not null"`
	QuestionType  string    `gorm:"column:question_type;type:text;not null"`
	QuestionText  string    `gorm:"column:question_text;type:text;not null"`
	AnswerText    string    `gorm:"column:answer_text;type:text;not null"`
	NotesForTutor *string   `gorm:"column:notes_for_tutor;type:text"`
	UploadedBy    string    `gorm:"column:uploaded_by;type:text;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt     time.Time `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Question) TableName() string { return "qb.all_questions" }

func autoMigrateModels() []any {
	return []any{
		&UploadBatch{},
		&StagedQuestion{},
		&StagingDuplicate{},
		&Question{},
	}
}
