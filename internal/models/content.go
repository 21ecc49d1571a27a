package models

import "time"

// ContentType is the kind of source a Content row was ingested from.
type ContentType string

const (
	ContentDocument ContentType = "document"
	ContentText     ContentType = "text"
	ContentVideo    ContentType = "video"
	ContentWebpage  ContentType = "webpage"
)

// ContentStatus is the lifecycle state of a Content row.
type ContentStatus string

const (
	ContentPending               ContentStatus = "pending"
	ContentProcessing            ContentStatus = "processing"
	ContentCompleted             ContentStatus = "completed"
	ContentError                 ContentStatus = "error"
	ContentAwaitingTranscription ContentStatus = "awaiting_transcription"
)

// Terminal reports whether no further worker will touch the content.
func (s ContentStatus) Terminal() bool {
	return s == ContentCompleted || s == ContentError
}

// Content is one ingested source item. Only the content worker mutates it.
type Content struct {
	ID             string        `json:"id" db:"id"`
	UserID         string        `json:"user_id" db:"user_id"`
	Type           ContentType   `json:"type" db:"type"`
	Status         ContentStatus `json:"status" db:"status"`
	SourceURI      string        `json:"source_uri,omitempty" db:"source_uri"`
	MimeType       string        `json:"mime_type,omitempty" db:"mime_type"`
	RawText        *string       `json:"-" db:"raw_text"`
	ExtractedText  *string       `json:"-" db:"extracted_text"`
	CharacterCount int64         `json:"character_count" db:"character_count"`
	ErrorMessage   *string       `json:"error_message,omitempty" db:"error_message"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" db:"updated_at"`
}
