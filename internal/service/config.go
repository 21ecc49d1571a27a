package service

import (
	"time"

	"dataset-service/internal/chunker"
)

// GenerationConfig tunes the dataset orchestrator.
type GenerationConfig struct {
	ChunkSize       int           `yaml:"chunk_size"`
	InterChunkDelay time.Duration `yaml:"inter_chunk_delay"`
	LeaseDuration   time.Duration `yaml:"lease_duration"`
}

func (c GenerationConfig) withDefaults() GenerationConfig {
	if c.ChunkSize <= 0 {
		c.ChunkSize = chunker.DefaultSize
	}
	if c.InterChunkDelay < 0 {
		c.InterChunkDelay = 0
	}
	if c.LeaseDuration <= 0 {
		c.LeaseDuration = 30 * time.Minute
	}
	return c
}

// RetryConfig bounds the not-yet-ready and infrastructure-error resubmissions.
type RetryConfig struct {
	MissingDatasetAttempts  int           `yaml:"missing_dataset_attempts"`
	MissingDatasetDelay     time.Duration `yaml:"missing_dataset_delay"`
	PendingContentsAttempts int           `yaml:"pending_contents_attempts"`
	PendingContentsDelay    time.Duration `yaml:"pending_contents_delay"`
	LeaseBusyDelay          time.Duration `yaml:"lease_busy_delay"`
	TransientAttempts       int           `yaml:"transient_attempts"`
	TransientDelay          time.Duration `yaml:"transient_delay"`
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MissingDatasetAttempts <= 0 {
		c.MissingDatasetAttempts = 5
	}
	if c.MissingDatasetDelay <= 0 {
		c.MissingDatasetDelay = 10 * time.Second
	}
	if c.PendingContentsAttempts <= 0 {
		c.PendingContentsAttempts = 10
	}
	if c.PendingContentsDelay <= 0 {
		c.PendingContentsDelay = 30 * time.Second
	}
	if c.LeaseBusyDelay <= 0 {
		c.LeaseBusyDelay = c.PendingContentsDelay
	}
	if c.TransientAttempts <= 0 {
		c.TransientAttempts = 5
	}
	if c.TransientDelay <= 0 {
		c.TransientDelay = time.Minute
	}
	return c
}

// FineTuningConfig tunes the training lifecycle jobs.
type FineTuningConfig struct {
	PollInterval    time.Duration `yaml:"poll_interval"`
	StartAttempts   int           `yaml:"start_attempts"`
	StartRetryDelay time.Duration `yaml:"start_retry_delay"`
	MaxPollErrors   int           `yaml:"max_poll_errors"`
}

func (c FineTuningConfig) withDefaults() FineTuningConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Minute
	}
	if c.StartAttempts <= 0 {
		c.StartAttempts = 3
	}
	if c.StartRetryDelay <= 0 {
		c.StartRetryDelay = 30 * time.Second
	}
	if c.MaxPollErrors <= 0 {
		c.MaxPollErrors = 10
	}
	return c
}
