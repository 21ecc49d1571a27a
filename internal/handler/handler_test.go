package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dataset-service/internal/crypto"
	"dataset-service/internal/ledger"
	"dataset-service/internal/llm"
	"dataset-service/internal/models"
	"dataset-service/internal/payment"
	"dataset-service/internal/queue"
	"dataset-service/internal/repository"
	"dataset-service/internal/repository/repotest"
	"dataset-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingQueue struct {
	jobs []queue.Job
}

func (q *recordingQueue) Submit(_ context.Context, job queue.Job) error {
	q.jobs = append(q.jobs, job)
	return nil
}

type stubCheckout struct{}

func (stubCheckout) CreateCheckout(context.Context, int64, map[string]string) (string, error) {
	return "https://pay.example/s", nil
}

type stubProvider struct {
	llm.Provider
	valid bool
}

func (p *stubProvider) ValidateCredential(context.Context, string) (bool, error) { return p.valid, nil }

type stubProviders map[string]*stubProvider

func (s stubProviders) Get(name string) (llm.Provider, error) {
	p, ok := s[name]
	if !ok {
		return nil, errors.New("provider not configured: " + name)
	}
	return p, nil
}

func (s stubProviders) WithKey(name, _ string) (llm.Provider, error) { return s.Get(name) }

type testEnv struct {
	router *gin.Engine
	store  *repository.Store
	queue  *recordingQueue
	user   *models.User
	keys   *crypto.KeyManager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := repotest.NewStore(t)
	q := &recordingQueue{}
	ledgerService := ledger.NewService(store, ledger.DefaultConfig, zap.NewNop())
	master, err := crypto.GenerateKey()
	require.NoError(t, err)
	keys, err := crypto.NewKeyManager(base64.StdEncoding.EncodeToString(master))
	require.NoError(t, err)
	providers := stubProviders{"openai": {valid: true}, "groq": {valid: false}}

	router := NewRouter(Deps{
		Store:     store,
		Enqueuer:  service.NewEnqueuer(q),
		FineTuner: service.NewFineTuner(store, q, providers, keys, ledgerService, service.FineTuningConfig{}, zap.NewNop()),
		Ledger:    ledgerService,
		Billing:   payment.NewBilling(stubCheckout{}, ledgerService, zap.NewNop()),
		Keys:      keys,
		Providers: providers,
		Logger:    zap.NewNop(),
	})

	return &testEnv{
		router: router,
		store:  store,
		queue:  q,
		user:   repotest.NewUser(t, store, 10_000),
		keys:   keys,
	}
}

func (e *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestContents_CreateAndProcess(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/v1/contents", gin.H{
		"user_id":  env.user.ID,
		"type":     "text",
		"raw_text": "hello",
		"process":  true,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var content models.Content
	decode(t, w, &content)
	assert.Equal(t, models.ContentPending, content.Status)
	require.Len(t, env.queue.jobs, 1)
	assert.Equal(t, service.JobProcessContent, env.queue.jobs[0].Name)

	w = env.do(http.MethodPost, "/api/v1/contents/"+content.ID+"/transcribe", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, service.JobTranscribeContent, env.queue.jobs[1].Name)

	w = env.do(http.MethodGet, "/api/v1/contents/"+content.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodPost, "/api/v1/contents/missing/process", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodPost, "/api/v1/contents", gin.H{"user_id": env.user.ID, "type": "audio"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDatasets_CreateGenerateExport(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	content := repotest.NewCompletedContent(t, env.store, env.user.ID, "text")

	w := env.do(http.MethodPost, "/api/v1/datasets", gin.H{
		"user_id":       env.user.ID,
		"name":          "faq",
		"training_goal": "Be helpful",
		"content_ids":   []string{content.ID, "ghost"},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "ghost")

	w = env.do(http.MethodPost, "/api/v1/datasets", gin.H{
		"user_id":       env.user.ID,
		"name":          "faq",
		"training_goal": "Be helpful",
		"content_ids":   []string{content.ID},
		"fine_tuning":   gin.H{"provider": "openai", "model": "gpt-4o-mini"},
		"generate":      true,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		ID           string `json:"id"`
		Status       string `json:"status"`
		FineTuningID string `json:"fine_tuning_id"`
	}
	decode(t, w, &created)
	assert.Equal(t, "pending", created.Status)
	assert.NotEmpty(t, created.FineTuningID)
	require.Len(t, env.queue.jobs, 1)
	assert.Equal(t, service.JobGenerateDataset, env.queue.jobs[0].Name)

	ids, err := env.store.ListLinkedContentIDs(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{content.ID}, ids)

	w = env.do(http.MethodGet, "/api/v1/datasets/"+created.ID+"/export", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	require.NoError(t, env.store.InsertPairs(ctx, []models.DatasetPair{
		{DatasetID: created.ID, Question: "Hours?", Answer: "Nine to five."},
	}))
	require.NoError(t, env.store.CompleteDataset(ctx, created.ID, 1, 30, time.Now().UTC()))

	w = env.do(http.MethodGet, "/api/v1/datasets/"+created.ID+"/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/x-ndjson", w.Header().Get("Content-Type"))
	assert.Equal(t, 1, strings.Count(w.Body.String(), "\n"))
	assert.Contains(t, w.Body.String(), `"content":"Be helpful"`)

	w = env.do(http.MethodGet, "/api/v1/datasets/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ready"`)

	w = env.do(http.MethodPost, "/api/v1/datasets/nope/generate", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBilling(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/v1/users/"+env.user.ID+"/quote?characters=15000", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var eval ledger.CostEvaluation
	decode(t, w, &eval)
	assert.True(t, eval.NeedsPayment)
	assert.Equal(t, int64(182), eval.AmountMinor)

	w = env.do(http.MethodGet, "/api/v1/users/"+env.user.ID+"/quote?characters=x", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/api/v1/users/"+env.user.ID+"/checkout", gin.H{"characters": 15000})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"checkout_url":"https://pay.example/s"`)

	settlement := gin.H{
		"event_id": "evt_1",
		"metadata": gin.H{"user_id": env.user.ID, "characters": "5000"},
	}
	w = env.do(http.MethodPost, "/api/v1/billing/settlements", settlement)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"event_id":"evt_1","applied":true}`, w.Body.String())

	w = env.do(http.MethodPost, "/api/v1/billing/settlements", settlement)
	assert.JSONEq(t, `{"event_id":"evt_1","applied":false}`, w.Body.String())

	w = env.do(http.MethodPost, "/api/v1/billing/settlements", gin.H{
		"event_id": "evt_2",
		"metadata": gin.H{"user_id": env.user.ID, "characters": "lots"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodGet, "/api/v1/users/"+env.user.ID+"/balance", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var bal ledger.Balance
	decode(t, w, &bal)
	assert.Equal(t, int64(15_000), bal.FreeCharactersRemaining)
	assert.Equal(t, int64(5000), bal.LedgerSum)

	w = env.do(http.MethodPost, "/api/v1/users", gin.H{})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = env.do(http.MethodGet, "/api/v1/users/nobody/balance", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCredentials(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	w := env.do(http.MethodPut, "/api/v1/users/"+env.user.ID+"/credentials/openai", gin.H{"api_key": "sk-1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	cred, err := env.store.GetCredential(ctx, env.user.ID, "openai")
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.NotContains(t, cred.APIKeyEncrypted, "sk-1")
	plain, err := env.keys.OpenCredential(env.user.ID, "openai", cred.APIKeyEncrypted)
	require.NoError(t, err)
	assert.Equal(t, "sk-1", plain)

	w = env.do(http.MethodPut, "/api/v1/users/"+env.user.ID+"/credentials/groq", gin.H{"api_key": "bad"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = env.do(http.MethodPut, "/api/v1/users/"+env.user.ID+"/credentials/unknown", gin.H{"api_key": "k"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFineTunings_Cancel(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	content := repotest.NewCompletedContent(t, env.store, env.user.ID, "text")
	ds := &models.Dataset{UserID: env.user.ID, Name: "d"}
	require.NoError(t, env.store.CreateDataset(ctx, ds))
	require.NoError(t, env.store.LinkContent(ctx, ds.ID, content.ID))
	ft := &models.FineTuning{UserID: env.user.ID, DatasetID: ds.ID, Provider: "openai", Model: "m"}
	require.NoError(t, env.store.CreateFineTuning(ctx, ft))

	w := env.do(http.MethodPost, "/api/v1/fine-tunings/"+ft.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"status":"cancelled"`)

	w = env.do(http.MethodPost, "/api/v1/fine-tunings/"+ft.ID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(http.MethodGet, "/api/v1/fine-tunings/"+ft.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodPost, "/api/v1/fine-tunings/missing/cancel", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
