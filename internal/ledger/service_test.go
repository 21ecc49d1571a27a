package ledger

import (
	"context"
	"testing"

	"dataset-service/internal/repository"
	"dataset-service/internal/repository/repotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (*Service, *repository.Store) {
	t.Helper()
	store := repotest.NewStore(t)
	return NewService(store, DefaultConfig, zap.NewNop()), store
}

func TestApplyConsumption_FreeThenPaid(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	user := repotest.NewUser(t, store, 10000)
	datasetID := "ds-1"

	require.NoError(t, svc.ApplyConsumption(ctx, user.ID, 15000, &datasetID))

	got, err := store.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.FreeCharactersRemaining)
	assert.Equal(t, int64(15000), got.TotalCharactersUsed)

	rows, err := store.ListTransactions(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	var free, paid int64
	for _, r := range rows {
		if r.PricePerCharacterMicros == 0 {
			free = r.Amount
			assert.Zero(t, r.TotalPriceMicros)
		} else {
			paid = r.Amount
			assert.Equal(t, int64(1_825_000), r.TotalPriceMicros)
		}
		require.NotNil(t, r.DatasetID)
		assert.Equal(t, datasetID, *r.DatasetID)
	}
	assert.Equal(t, int64(-10000), free)
	assert.Equal(t, int64(-5000), paid)

	consumed, err := store.HasDatasetConsumption(ctx, datasetID)
	require.NoError(t, err)
	assert.True(t, consumed)
}

func TestApplyConsumption_NeverNegative(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	user := repotest.NewUser(t, store, 100)

	for _, n := range []int64{40, 0, 80, 7} {
		before, err := store.GetUser(ctx, user.ID)
		require.NoError(t, err)

		require.NoError(t, svc.ApplyConsumption(ctx, user.ID, n, nil))

		after, err := store.GetUser(ctx, user.ID)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, after.FreeCharactersRemaining, int64(0))
		assert.Equal(t, before.TotalCharactersUsed+n, after.TotalCharactersUsed)
	}

	rows, err := store.ListTransactions(ctx, user.ID)
	require.NoError(t, err)
	// 0 characters writes nothing; 80 splits into 60 free + 20 paid
	assert.Len(t, rows, 4)
}

func TestApplyConsumption_Rejects(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	user := repotest.NewUser(t, store, 100)

	assert.ErrorIs(t, svc.ApplyConsumption(ctx, user.ID, -1, nil), ErrNegativeAmount)
	assert.ErrorIs(t, svc.ApplyConsumption(ctx, "missing", 1, nil), repository.ErrNotFound)
}

func TestAddCredits_IdempotentPerReference(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	user := repotest.NewUser(t, store, 0)
	ref := "evt_123"

	applied, err := svc.AddCredits(ctx, user.ID, 5000, &ref)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = svc.AddCredits(ctx, user.ID, 5000, &ref)
	require.NoError(t, err)
	assert.False(t, applied)

	bal, err := svc.Balance(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), bal.FreeCharactersRemaining)
	assert.Equal(t, int64(5000), bal.LedgerSum)

	rows, err := store.ListTransactions(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1_825_000), rows[0].TotalPriceMicros)
}

func TestBalance_Reconciles(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	user := repotest.NewUser(t, store, 0)

	_, err := svc.AddCredits(ctx, user.ID, 3000, nil)
	require.NoError(t, err)
	require.NoError(t, svc.ApplyConsumption(ctx, user.ID, 1000, nil))

	bal, err := svc.Balance(ctx, user.ID)
	require.NoError(t, err)
	// purchased - used
	assert.Equal(t, int64(2000), bal.LedgerSum)
	assert.Equal(t, bal.LedgerSum, bal.FreeCharactersRemaining)
}

func TestQuoteAndMarkFreeCredits(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	user := repotest.NewUser(t, store, 10000)

	eval, err := svc.Quote(ctx, user.ID, 5000)
	require.NoError(t, err)
	assert.Equal(t, ReasonFirstFreeQuota, eval.Reason)
	assert.True(t, eval.MarkFreeCredits)

	require.NoError(t, svc.MarkFreeCreditsReceived(ctx, user.ID))
	require.NoError(t, svc.MarkFreeCreditsReceived(ctx, user.ID))

	eval, err = svc.Quote(ctx, user.ID, 5000)
	require.NoError(t, err)
	assert.Equal(t, ReasonAlreadyUsedQuota, eval.Reason)
	assert.False(t, eval.NeedsPayment)
}

func TestService_OpenAccount(t *testing.T) {
	ctx := context.Background()
	store := repotest.NewStore(t)
	svc := NewService(store, DefaultConfig, zap.NewNop())

	u, err := svc.OpenAccount(ctx, "")
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)

	bal, err := svc.Balance(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000), bal.FreeCharactersRemaining)
	assert.Zero(t, bal.LedgerSum)
}
