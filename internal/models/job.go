package models

import "time"

// JobStatus is the state of a queued unit of work.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Job represents an async unit of work on the shared queue.
type Job struct {
	ID        string     `json:"id" db:"id"`
	Name      string     `json:"name" db:"name"`
	Queue     string     `json:"queue" db:"queue"`
	Payload   []byte     `json:"payload" db:"payload"`
	Status    JobStatus  `json:"status" db:"status"`
	Attempts  int        `json:"attempts" db:"attempts"`
	RunAt     time.Time  `json:"run_at" db:"run_at"`
	LockedAt  *time.Time `json:"locked_at,omitempty" db:"locked_at"`
	LastError *string    `json:"last_error,omitempty" db:"last_error"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}
