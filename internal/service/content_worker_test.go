package service

import (
	"context"
	"errors"
	"testing"

	"dataset-service/internal/blob"
	"dataset-service/internal/models"
	"dataset-service/internal/repository"
	"dataset-service/internal/repository/repotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newContentWorkerFixture(t *testing.T, blobs blob.Store, tr *fakeTranscriber) (*repository.Store, *fakeQueue, *ContentWorker) {
	t.Helper()
	store := repotest.NewStore(t)
	q := &fakeQueue{}
	var w *ContentWorker
	if tr == nil {
		w = NewContentWorker(store, q, blobs, nil, zap.NewNop())
	} else {
		w = NewContentWorker(store, q, blobs, tr, zap.NewNop())
	}
	return store, q, w
}

func TestContentWorker_Process(t *testing.T) {
	blobs := fakeBlobs{
		"gs://bucket/faq.md":    {Data: []byte("# FAQ\r\nOpen daily."), ContentType: "text/markdown", Name: "faq.md"},
		"gs://bucket/page.html": {Data: []byte("<p>Hello <b>there</b></p>"), ContentType: "text/html", Name: "page.html"},
		"gs://bucket/scan.pdf":  {Data: []byte("%PDF-1.7"), ContentType: "application/pdf", Name: "scan.pdf"},
	}

	tests := []struct {
		name       string
		content    models.Content
		wantStatus models.ContentStatus
		wantText   string
		wantErr    string
	}{
		{
			name:       "text",
			content:    models.Content{Type: models.ContentText, RawText: strPtr("  Привет, мир  ")},
			wantStatus: models.ContentCompleted,
			wantText:   "Привет, мир",
		},
		{
			name:       "webpage",
			content:    models.Content{Type: models.ContentWebpage, RawText: strPtr("<html><body><h1>Title</h1><script>x()</script><p>Body</p></body></html>")},
			wantStatus: models.ContentCompleted,
			wantText:   "Title\nBody",
		},
		{
			name:       "markdown document",
			content:    models.Content{Type: models.ContentDocument, SourceURI: "gs://bucket/faq.md"},
			wantStatus: models.ContentCompleted,
			wantText:   "# FAQ\nOpen daily.",
		},
		{
			name:       "html document",
			content:    models.Content{Type: models.ContentDocument, SourceURI: "gs://bucket/page.html"},
			wantStatus: models.ContentCompleted,
			wantText:   "Hello there",
		},
		{
			name:       "unsupported document",
			content:    models.Content{Type: models.ContentDocument, SourceURI: "gs://bucket/scan.pdf"},
			wantStatus: models.ContentError,
			wantErr:    "unsupported",
		},
		{
			name:       "missing document",
			content:    models.Content{Type: models.ContentDocument, SourceURI: "gs://bucket/nope.txt"},
			wantStatus: models.ContentError,
			wantErr:    "fetch document",
		},
		{
			name:       "empty text",
			content:    models.Content{Type: models.ContentText, RawText: strPtr("   \n ")},
			wantStatus: models.ContentError,
			wantErr:    "no text extracted",
		},
		{
			name:       "no text",
			content:    models.Content{Type: models.ContentText},
			wantStatus: models.ContentError,
			wantErr:    "no text provided",
		},
		{
			name:       "unknown type",
			content:    models.Content{Type: "audio"},
			wantStatus: models.ContentError,
			wantErr:    "unsupported content type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store, _, w := newContentWorkerFixture(t, blobs, nil)
			user := repotest.NewUser(t, store, 0)
			c := tt.content
			c.UserID = user.ID
			require.NoError(t, store.CreateContent(ctx, &c))

			require.NoError(t, w.Process(ctx, ContentArgs{ContentID: c.ID}))

			got, err := store.GetContent(ctx, c.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, got.Status)
			if tt.wantText != "" {
				require.NotNil(t, got.ExtractedText)
				assert.Equal(t, tt.wantText, *got.ExtractedText)
				assert.Equal(t, int64(len([]rune(tt.wantText))), got.CharacterCount)
				assert.Nil(t, got.ErrorMessage)
			}
			if tt.wantErr != "" {
				require.NotNil(t, got.ErrorMessage)
				assert.Contains(t, *got.ErrorMessage, tt.wantErr)
			}
		})
	}
}

func TestContentWorker_TerminalContentIsSkipped(t *testing.T) {
	ctx := context.Background()
	store, _, w := newContentWorkerFixture(t, nil, nil)
	user := repotest.NewUser(t, store, 0)
	c := repotest.NewCompletedContent(t, store, user.ID, "kept")

	require.NoError(t, w.Process(ctx, ContentArgs{ContentID: c.ID}))
	require.NoError(t, w.Process(ctx, ContentArgs{ContentID: "missing"}))

	got, err := store.GetContent(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "kept", *got.ExtractedText)
}

func TestContentWorker_Video(t *testing.T) {
	ctx := context.Background()
	tr := &fakeTranscriber{text: "  spoken words "}
	store, q, w := newContentWorkerFixture(t, nil, tr)
	user := repotest.NewUser(t, store, 0)
	c := newContent(t, store, &models.Content{
		UserID:    user.ID,
		Type:      models.ContentVideo,
		SourceURI: "gs://bucket/talk.flac",
		MimeType:  "audio/flac",
	})

	require.NoError(t, w.Process(ctx, ContentArgs{ContentID: c.ID}))

	got, err := store.GetContent(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ContentAwaitingTranscription, got.Status)
	jobs := q.named(JobTranscribeContent)
	require.Len(t, jobs, 1)
	assert.Equal(t, ContentArgs{ContentID: c.ID}, jobs[0].Args)

	// a duplicate process_content delivery does not re-enqueue
	require.NoError(t, w.Process(ctx, ContentArgs{ContentID: c.ID}))
	assert.Len(t, q.named(JobTranscribeContent), 1)

	require.NoError(t, w.Transcribe(ctx, ContentArgs{ContentID: c.ID}))
	got, err = store.GetContent(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ContentCompleted, got.Status)
	assert.Equal(t, "spoken words", *got.ExtractedText)
	assert.Equal(t, []string{"gs://bucket/talk.flac"}, tr.uris)
}

func TestContentWorker_TranscriptionFailure(t *testing.T) {
	ctx := context.Background()
	tr := &fakeTranscriber{err: errors.New("quota exceeded")}
	store, _, w := newContentWorkerFixture(t, nil, tr)
	user := repotest.NewUser(t, store, 0)
	c := newContent(t, store, &models.Content{
		UserID:    user.ID,
		Type:      models.ContentVideo,
		Status:    models.ContentAwaitingTranscription,
		SourceURI: "gs://bucket/talk.flac",
	})

	require.NoError(t, w.Transcribe(ctx, ContentArgs{ContentID: c.ID}))

	got, err := store.GetContent(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ContentError, got.Status)
	assert.Contains(t, *got.ErrorMessage, "quota exceeded")
}

func TestContentWorker_TranscriptionNotConfigured(t *testing.T) {
	ctx := context.Background()
	store, _, w := newContentWorkerFixture(t, nil, nil)
	user := repotest.NewUser(t, store, 0)
	c := newContent(t, store, &models.Content{
		UserID:    user.ID,
		Type:      models.ContentVideo,
		Status:    models.ContentAwaitingTranscription,
		SourceURI: "gs://bucket/talk.flac",
	})

	require.NoError(t, w.Transcribe(ctx, ContentArgs{ContentID: c.ID}))

	got, err := store.GetContent(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ContentError, got.Status)
	assert.Equal(t, "transcription is not configured", *got.ErrorMessage)
}
