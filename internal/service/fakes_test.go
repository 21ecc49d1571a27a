package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"dataset-service/internal/blob"
	"dataset-service/internal/llm"
	"dataset-service/internal/models"
	"dataset-service/internal/queue"
	"dataset-service/internal/repository"

	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	mu   sync.Mutex
	jobs []queue.Job
	err  error
}

func (q *fakeQueue) Submit(_ context.Context, job queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) named(name string) []queue.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []queue.Job
	for _, j := range q.jobs {
		if j.Name == name {
			out = append(out, j)
		}
	}
	return out
}

// fakeSynth answers per chunk index with pairs or an error.
type fakeSynth struct {
	mu     sync.Mutex
	calls  []string
	goals  []string
	byCall func(i int, chunk string) ([]models.QAPair, error)
}

func (s *fakeSynth) Synthesize(_ context.Context, chunk, trainingGoal string) ([]models.QAPair, error) {
	s.mu.Lock()
	i := len(s.calls)
	s.calls = append(s.calls, chunk)
	s.goals = append(s.goals, trainingGoal)
	s.mu.Unlock()
	if s.byCall == nil {
		return []models.QAPair{{Question: "Q" + chunk, Answer: "A"}}, nil
	}
	return s.byCall(i, chunk)
}

type fakeProvider struct {
	mu        sync.Mutex
	startReq  *models.FineTuneRequest
	startJob  *models.FineTuneJob
	startErr  error
	status    *models.FineTuneJob
	statusErr error
	cancelled []string
	closed    int
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) ValidateCredential(context.Context, string) (bool, error) { return true, nil }

func (p *fakeProvider) GenerateCompletion(context.Context, string, string, string) (string, error) {
	return "", nil
}

func (p *fakeProvider) GenerateQAPairs(context.Context, string, string, string) ([]models.QAPair, error) {
	return nil, nil
}

func (p *fakeProvider) StartFineTuning(_ context.Context, req models.FineTuneRequest) (*models.FineTuneJob, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.startReq = &req
	if p.startErr != nil {
		return nil, p.startErr
	}
	return p.startJob, nil
}

func (p *fakeProvider) GetFineTuningStatus(context.Context, string) (*models.FineTuneJob, error) {
	if p.statusErr != nil {
		return nil, p.statusErr
	}
	return p.status, nil
}

func (p *fakeProvider) CancelFineTuning(_ context.Context, jobID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = append(p.cancelled, jobID)
	return nil
}

func (p *fakeProvider) Close() error {
	p.closed++
	return nil
}

type fakeResolver struct {
	provider *fakeProvider
	keys     []string
}

func (r *fakeResolver) WithKey(name, apiKey string) (llm.Provider, error) {
	if r.provider == nil {
		return nil, errors.New("unknown provider " + name)
	}
	r.keys = append(r.keys, apiKey)
	return r.provider, nil
}

type fakeTranscriber struct {
	text string
	err  error
	uris []string
}

func (t *fakeTranscriber) Transcribe(_ context.Context, uri, _ string) (string, error) {
	t.uris = append(t.uris, uri)
	return t.text, t.err
}

func (t *fakeTranscriber) Close() error { return nil }

type fakeBlobs map[string]*blob.Object

func (b fakeBlobs) Get(_ context.Context, uri string) (*blob.Object, error) {
	obj, ok := b[uri]
	if !ok {
		return nil, errors.New("object not found")
	}
	return obj, nil
}

func newDataset(t *testing.T, store *repository.Store, userID, goal string, contentIDs ...string) *models.Dataset {
	t.Helper()
	ctx := context.Background()
	ds := &models.Dataset{UserID: userID, Name: "support", TrainingGoal: goal}
	require.NoError(t, store.CreateDataset(ctx, ds))
	for _, id := range contentIDs {
		require.NoError(t, store.LinkContent(ctx, ds.ID, id))
	}
	return ds
}

func newContent(t *testing.T, store *repository.Store, c *models.Content) *models.Content {
	t.Helper()
	require.NoError(t, store.CreateContent(context.Background(), c))
	return c
}

func strPtr(s string) *string { return &s }
