package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"testing"
	"time"

	paymentdomain "github.com/smallbiznis/trailpay/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test"

func newTestAdapter(t *testing.T, now time.Time) *Adapter {
	t.Helper()
	adapter, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{
		WebhookSecret:      testSecret,
		TimestampTolerance: 5 * time.Minute,
		Now:                func() time.Time { return now },
	})
	require.NoError(t, err)
	return adapter.(*Adapter)
}

func buildSignatureHeader(secret, version string, payload []byte, timestamp int64) http.Header {
	ts := strconv.FormatInt(timestamp, 10)
	headers := http.Header{}
	headers.Set(headerSignature, version+"="+computeSignature(secret, version+":"+ts+":"+string(payload)))
	headers.Set(headerTimestamp, ts)
	return headers
}

func buildNativeSignatureHeader(secret string, payload []byte, timestamp int64) http.Header {
	ts := strconv.FormatInt(timestamp, 10)
	headers := http.Header{}
	headers.Set(headerSignature, fmt.Sprintf("t=%s,v1=%s", ts, computeSignature(secret, ts+"."+string(payload))))
	return headers
}

func TestVerifySignature(t *testing.T) {
	now := time.Now()
	adapter := newTestAdapter(t, now)
	payload := []byte(`{"id":"evt_123","type":"charge.succeeded","data":{"object":{}}}`)

	require.NoError(t, adapter.Verify(context.Background(), payload, buildSignatureHeader(testSecret, "v1", payload, now.Unix())))
	require.NoError(t, adapter.Verify(context.Background(), payload, buildNativeSignatureHeader(testSecret, payload, now.Unix())))

	cases := map[string]http.Header{
		"wrong secret":    buildSignatureHeader("wrong", "v1", payload, now.Unix()),
		"wrong version":   buildSignatureHeader(testSecret, "v0", payload, now.Unix()),
		"stale timestamp": buildSignatureHeader(testSecret, "v1", payload, now.Add(-time.Hour).Unix()),
		"missing header":  {},
		"no timestamp":    {headerSignature: []string{"v1=deadbeef"}},
	}
	for name, headers := range cases {
		t.Run(name, func(t *testing.T) {
			err := adapter.Verify(context.Background(), payload, headers)
			assert.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)
		})
	}

	tampered := []byte(`{"id":"evt_123","type":"charge.succeeded","data":{"object":{"amount":1}}}`)
	err := adapter.Verify(context.Background(), tampered, buildSignatureHeader(testSecret, "v1", payload, now.Unix()))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)
}

func TestNewAdapterRequiresSecret(t *testing.T) {
	_, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidConfig)
}

func encodeEvent(t *testing.T, eventType string, object map[string]any) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"id":          "evt_" + eventType,
		"type":        eventType,
		"created":     1700000000,
		"api_version": "2024-06-20",
		"livemode":    false,
		"data":        map[string]any{"object": object},
	})
	require.NoError(t, err)
	return raw
}

func TestParsePaymentIntent(t *testing.T) {
	adapter := newTestAdapter(t, time.Now())
	payload := encodeEvent(t, paymentdomain.EventPaymentIntentPaymentFailed, map[string]any{
		"id":              "pi_1",
		"status":          "requires_payment_method",
		"amount":          12000,
		"amount_received": 0,
		"currency":        "eur",
		"metadata":        map[string]any{"booking_id": "b-1", "is_final_payment": "true"},
		"last_payment_error": map[string]any{
			"code":         "card_declined",
			"decline_code": "insufficient_funds",
		},
	})

	event, err := adapter.Parse(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, "2024-06-20", event.APIVersion)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), event.Created)

	intent, ok := event.Payload.(paymentdomain.PaymentIntent)
	require.True(t, ok)
	assert.Equal(t, "EUR", intent.Currency)
	assert.Equal(t, "b-1", intent.Metadata.BookingID())
	assert.True(t, intent.Metadata.IsFinalPayment())
	assert.EqualValues(t, 12000, intent.ChargedAmount())
	require.NotNil(t, intent.LastPaymentError)
	assert.Equal(t, "insufficient_funds", intent.LastPaymentError.DeclineCode)
}

func TestParseExpandableFields(t *testing.T) {
	adapter := newTestAdapter(t, time.Now())
	payload := encodeEvent(t, paymentdomain.EventTransferCreated, map[string]any{
		"id":                 "tr_1",
		"amount":             8000,
		"currency":           "eur",
		"destination":        map[string]any{"id": "acct_guide1", "object": "account"},
		"source_transaction": "ch_1",
		"created":            1700000100,
	})

	event, err := adapter.Parse(context.Background(), payload)
	require.NoError(t, err)
	transfer, ok := event.Payload.(paymentdomain.Transfer)
	require.True(t, ok)
	assert.Equal(t, "acct_guide1", transfer.Destination)
	assert.Equal(t, "ch_1", transfer.SourceTransaction)
}

func TestParseAccountRequirements(t *testing.T) {
	adapter := newTestAdapter(t, time.Now())
	payload := encodeEvent(t, paymentdomain.EventAccountUpdated, map[string]any{
		"id":                "acct_guide1",
		"charges_enabled":   true,
		"details_submitted": true,
		"payouts_enabled":   false,
		"requirements": map[string]any{
			"currently_due":   []string{"external_account"},
			"disabled_reason": nil,
		},
		"external_accounts": map[string]any{
			"data": []map[string]any{{"id": "ba_1", "object": "bank_account", "last4": "6789"}},
		},
	})

	event, err := adapter.Parse(context.Background(), payload)
	require.NoError(t, err)
	account, ok := event.Payload.(paymentdomain.Account)
	require.True(t, ok)
	assert.Equal(t, []string{"external_account"}, account.CurrentlyDue)
	assert.Empty(t, account.DisabledReason)
	assert.Equal(t, "6789", account.BankLast4)
	assert.NotEmpty(t, account.Requirements)
}

func TestParseUnknownAndInvalid(t *testing.T) {
	adapter := newTestAdapter(t, time.Now())

	event, err := adapter.Parse(context.Background(), encodeEvent(t, "customer.created", map[string]any{"id": "cus_1"}))
	require.NoError(t, err)
	_, ok := event.Payload.(paymentdomain.Unknown)
	assert.True(t, ok)

	_, err = adapter.Parse(context.Background(), []byte(`not-json`))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)

	_, err = adapter.Parse(context.Background(), []byte(`{"type":"charge.succeeded"}`))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidEvent)

	_, err = adapter.Parse(context.Background(), encodeEvent(t, paymentdomain.EventChargeSucceeded, map[string]any{}))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)
}
