package models

import "time"

// DatasetStatus is the lifecycle state of a Dataset.
type DatasetStatus string

const (
	DatasetPending    DatasetStatus = "pending"
	DatasetProcessing DatasetStatus = "processing"
	DatasetReady      DatasetStatus = "ready"
	DatasetError      DatasetStatus = "error"
)

// Terminal reports whether the dataset reached ready or error.
func (s DatasetStatus) Terminal() bool {
	return s == DatasetReady || s == DatasetError
}

// Dataset is a generation unit over a set of Contents.
// It is mutated exclusively by the dataset orchestrator.
type Dataset struct {
	ID             string        `json:"id" db:"id"`
	UserID         string        `json:"user_id" db:"user_id"`
	Name           string        `json:"name" db:"name"`
	TrainingGoal   string        `json:"training_goal" db:"training_goal"`
	Status         DatasetStatus `json:"status" db:"status"`
	PairsCount     int           `json:"pairs_count" db:"pairs_count"`
	CharacterCount int64         `json:"character_count" db:"character_count"`
	ErrorMessage   *string       `json:"error_message,omitempty" db:"error_message"`
	ClaimedBy      *string       `json:"-" db:"claimed_by"`
	ClaimedUntil   *time.Time    `json:"-" db:"claimed_until"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" db:"updated_at"`
}

// DatasetPair is one QA training example. Immutable once written.
type DatasetPair struct {
	ID               string    `json:"id" db:"id"`
	DatasetID        string    `json:"dataset_id" db:"dataset_id"`
	Question         string    `json:"question" db:"question"`
	Answer           string    `json:"answer" db:"answer"`
	SourceChunkIndex int       `json:"source_chunk_index" db:"source_chunk_index"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// QAPair is a question/answer pair as produced by a provider, before persistence.
type QAPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}
