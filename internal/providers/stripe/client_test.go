package stripe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{SecretKey: "sk_test", BaseURL: srv.URL}, zaptest.NewLogger(t))
}

func TestRetrievePaymentIntent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/payment_intents/pi_1", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id":"pi_1","status":"succeeded","amount":10000,"amount_received":3500,"currency":"eur"}`))
	})

	intent, err := client.RetrievePaymentIntent(context.Background(), "pi_1")
	require.NoError(t, err)
	assert.Equal(t, "succeeded", intent.Status)
	assert.EqualValues(t, 3500, intent.ChargedAmount())
}

func TestCreateRefundSendsFormAndIdempotencyKey(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/refunds", r.URL.Path)
		assert.Equal(t, "refund:b-1", r.Header.Get("Idempotency-Key"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "pi_1", r.PostForm.Get("payment_intent"))
		assert.Equal(t, "3500", r.PostForm.Get("amount"))
		assert.Equal(t, "b-1", r.PostForm.Get("metadata[booking_id]"))
		_, _ = w.Write([]byte(`{"id":"re_1","amount":3500,"status":"succeeded","created":1700000000}`))
	})

	refund, err := client.CreateRefund(context.Background(), RefundParams{
		PaymentIntent:  "pi_1",
		Amount:         3500,
		Metadata:       map[string]string{"booking_id": "b-1"},
		IdempotencyKey: "refund:b-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "re_1", refund.ID)
	assert.Equal(t, "succeeded", refund.Status)
}

func TestAPIErrorCarriesProviderDetail(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"charge_already_refunded","message":"Charge has already been refunded."}}`))
	})

	_, err := client.CancelPaymentIntent(context.Background(), "pi_1", "requested_by_customer")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "charge_already_refunded", apiErr.Code)
	assert.Equal(t, "Charge has already been refunded.", apiErr.Error())
}

func TestRetrieveAccountKeepsRequirementsSnapshot(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"id":"acct_1","charges_enabled":true,"details_submitted":true,"payouts_enabled":true,
			"requirements":{"currently_due":[],"disabled_reason":null},
			"external_accounts":{"data":[{"id":"ba_1","object":"bank_account","last4":"4242"}]}
		}`))
	})

	account, err := client.RetrieveAccount(context.Background(), "acct_1")
	require.NoError(t, err)
	assert.True(t, account.PayoutsEnabled)
	assert.Equal(t, "4242", account.BankLast4())
	assert.JSONEq(t, `{"currently_due":[],"disabled_reason":null}`, string(account.RawRequirements))
}

func TestClientWithoutKey(t *testing.T) {
	client := NewClient(Config{}, nil)
	_, err := client.RetrievePaymentIntent(context.Background(), "pi_1")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
