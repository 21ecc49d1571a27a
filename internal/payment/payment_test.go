package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"dataset-service/internal/ledger"
	"dataset-service/internal/repository/repotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestClient_CreateCheckout(t *testing.T) {
	var got CheckoutRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkouts", r.URL.Path)
		assert.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"cs_1","url":"https://pay.example/cs_1"}`))
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL + "/", APIKey: "key-1"})
	url, err := c.CreateCheckout(context.Background(), 182, map[string]string{"user_id": "u1"})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/cs_1", url)
	assert.Equal(t, int64(182), got.AmountMinor)
	assert.Equal(t, "usd", got.Currency)
	assert.Equal(t, "u1", got.Metadata["user_id"])
}

func TestClient_CreateCheckoutErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad amount", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL})
	_, err := c.CreateCheckout(context.Background(), 100, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")

	_, err = c.CreateCheckout(context.Background(), 0, nil)
	require.Error(t, err)
}

type fakeCheckout struct {
	amount   int64
	metadata map[string]string
	err      error
}

func (f *fakeCheckout) CreateCheckout(_ context.Context, amountMinor int64, metadata map[string]string) (string, error) {
	f.amount, f.metadata = amountMinor, metadata
	if f.err != nil {
		return "", f.err
	}
	return "https://pay.example/session", nil
}

func newBilling(t *testing.T, checkout Checkouter) (*Billing, *ledger.Service, string) {
	t.Helper()
	store := repotest.NewStore(t)
	svc := ledger.NewService(store, ledger.DefaultConfig, zap.NewNop())
	user := repotest.NewUser(t, store, 10_000)
	return NewBilling(checkout, svc, zap.NewNop()), svc, user.ID
}

func TestBilling_FreeQuoteMarksCredits(t *testing.T) {
	ctx := context.Background()
	checkout := &fakeCheckout{}
	b, svc, userID := newBilling(t, checkout)

	res, err := b.Checkout(ctx, userID, 5000)
	require.NoError(t, err)
	assert.False(t, res.NeedsPayment)
	assert.Equal(t, ledger.ReasonFirstFreeQuota, res.Reason)
	assert.Empty(t, res.CheckoutURL)
	assert.Nil(t, checkout.metadata)

	again, err := svc.Quote(ctx, userID, 5000)
	require.NoError(t, err)
	assert.Equal(t, ledger.ReasonAlreadyUsedQuota, again.Reason)
}

func TestBilling_PaidQuoteOpensCheckout(t *testing.T) {
	checkout := &fakeCheckout{}
	b, _, userID := newBilling(t, checkout)

	res, err := b.Checkout(context.Background(), userID, 15000)
	require.NoError(t, err)
	assert.True(t, res.NeedsPayment)
	assert.Equal(t, "https://pay.example/session", res.CheckoutURL)
	assert.Equal(t, int64(182), checkout.amount)
	assert.Equal(t, map[string]string{MetaUserID: userID, MetaCharacters: "5000"}, checkout.metadata)
}

func TestBilling_CheckoutFailure(t *testing.T) {
	b, _, userID := newBilling(t, &fakeCheckout{err: errors.New("down")})
	_, err := b.Checkout(context.Background(), userID, 15000)
	require.Error(t, err)
}

func TestBilling_ApplySettlementOnce(t *testing.T) {
	ctx := context.Background()
	b, svc, userID := newBilling(t, &fakeCheckout{})
	s := Settlement{EventID: "evt_1", Metadata: map[string]string{MetaUserID: userID, MetaCharacters: "5000"}}

	applied, err := b.ApplySettlement(ctx, s)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = b.ApplySettlement(ctx, s)
	require.NoError(t, err)
	assert.False(t, applied)

	bal, err := svc.Balance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(15_000), bal.FreeCharactersRemaining)
}

func TestBilling_ApplySettlementRejectsBadEvents(t *testing.T) {
	b, _, userID := newBilling(t, &fakeCheckout{})

	for _, s := range []Settlement{
		{Metadata: map[string]string{MetaUserID: userID, MetaCharacters: "10"}},
		{EventID: "e", Metadata: map[string]string{MetaCharacters: "10"}},
		{EventID: "e", Metadata: map[string]string{MetaUserID: userID, MetaCharacters: "-3"}},
		{EventID: "e", Metadata: map[string]string{MetaUserID: userID}},
	} {
		_, err := b.ApplySettlement(context.Background(), s)
		assert.ErrorIs(t, err, ErrInvalidSettlement)
	}
}
