package models

import "time"

// FineTuningStatus is the row-level status of a downstream training job.
type FineTuningStatus string

const (
	FineTuningPending   FineTuningStatus = "pending"
	FineTuningQueued    FineTuningStatus = "queued"
	FineTuningTraining  FineTuningStatus = "training"
	FineTuningCompleted FineTuningStatus = "completed"
	FineTuningError     FineTuningStatus = "error"
	FineTuningCancelled FineTuningStatus = "cancelled"
)

// Terminal reports whether the fine-tuning row will not change again.
func (s FineTuningStatus) Terminal() bool {
	return s == FineTuningCompleted || s == FineTuningError || s == FineTuningCancelled
}

// FineTuning is a downstream training job keyed to a Dataset.
type FineTuning struct {
	ID             string           `json:"id" db:"id"`
	UserID         string           `json:"user_id" db:"user_id"`
	DatasetID      string           `json:"dataset_id" db:"dataset_id"`
	Status         FineTuningStatus `json:"status" db:"status"`
	Provider       string           `json:"provider" db:"provider"`
	Model          string           `json:"model" db:"model"`
	ProviderJobID  *string          `json:"provider_job_id,omitempty" db:"provider_job_id"`
	FineTunedModel *string          `json:"fine_tuned_model,omitempty" db:"fine_tuned_model"`
	Progress       int              `json:"progress" db:"progress"`
	ErrorMessage   *string          `json:"error_message,omitempty" db:"error_message"`
	StartedAt      *time.Time       `json:"started_at,omitempty" db:"started_at"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at" db:"updated_at"`
}

// ProviderJobStatus is the normalized status vocabulary every provider maps onto.
type ProviderJobStatus string

const (
	ProviderJobQueued    ProviderJobStatus = "queued"
	ProviderJobRunning   ProviderJobStatus = "running"
	ProviderJobSucceeded ProviderJobStatus = "succeeded"
	ProviderJobFailed    ProviderJobStatus = "failed"
	ProviderJobCancelled ProviderJobStatus = "cancelled"
)

// FineTuneRequest is what a provider needs to start a training run.
type FineTuneRequest struct {
	Model         string
	Suffix        string
	TrainingJSONL []byte
}

// FineTuneJob is a provider-side training run mapped onto the fixed contract.
type FineTuneJob struct {
	ID             string            `json:"id"`
	Status         ProviderJobStatus `json:"status"`
	Progress       int               `json:"progress"` // 0-100
	FineTunedModel string            `json:"fine_tuned_model,omitempty"`
	Error          string            `json:"error,omitempty"`
}

// ProviderCredential is a user's sealed API key for one provider.
type ProviderCredential struct {
	ID              string    `db:"id"`
	UserID          string    `db:"user_id"`
	Provider        string    `db:"provider"`
	APIKeyEncrypted string    `db:"api_key_encrypted"`
	CreatedAt       time.Time `db:"created_at"`
}
