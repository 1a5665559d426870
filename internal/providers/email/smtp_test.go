package email

import (
	"context"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderUsesDefaultSubject(t *testing.T) {
	subject, body, err := Render("booking_confirmed", map[string]interface{}{
		"hiker_name":        "Hanna",
		"booking_reference": "TRL-1",
		"tour_title":        "Ridge Walk",
		"is_deposit":        true,
		"amount":            "35.00 EUR",
		"balance":           "65.00 EUR",
		"final_charge_date": "2026-11-01",
	})
	require.NoError(t, err)
	assert.Equal(t, "Your trail booking is confirmed", subject)
	assert.Contains(t, body, "deposit of 35.00 EUR")
	assert.Contains(t, body, "2026-11-01")
}

func TestRenderSubjectOverride(t *testing.T) {
	subject, _, err := Render("payment_failed", map[string]interface{}{"subject": "Action needed"})
	require.NoError(t, err)
	assert.Equal(t, "Action needed", subject)

	_, _, err = Render("missing", nil)
	assert.Error(t, err)
}

func TestSendTemplateDeliversMessage(t *testing.T) {
	var gotTo []string
	var gotMsg string
	provider := NewSMTP(Config{Host: "localhost", Port: 2525, From: "bookings@trailpay.test"})
	provider.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		assert.Equal(t, "localhost:2525", addr)
		assert.Nil(t, a)
		gotTo = to
		gotMsg = string(msg)
		return nil
	}

	err := provider.SendTemplate(context.Background(), []string{"hiker@trailpay.test"}, "payout_failed", map[string]interface{}{
		"guide_name":      "Greta",
		"amount":          "120.00 EUR",
		"failure_message": "The bank account has been closed.",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"hiker@trailpay.test"}, gotTo)
	assert.True(t, strings.Contains(gotMsg, "Subject: Your payout could not be delivered"))
	assert.Contains(t, gotMsg, "The bank account has been closed.")

	assert.ErrorIs(t, provider.Send(context.Background(), nil, "s", "b"), ErrNoRecipients)
}
