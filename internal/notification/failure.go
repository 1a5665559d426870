package notification

import "strings"

const genericFailureMessage = "Your payment could not be completed. Please try another payment method or contact your bank."

var failureMessages = map[string]string{
	"card_declined":           "Your card was declined. Please try a different card.",
	"insufficient_funds":      "Your card has insufficient funds. Please use another card or top up your account.",
	"expired_card":            "Your card has expired. Please use a different card.",
	"incorrect_cvc":           "The security code (CVC) you entered is incorrect.",
	"incorrect_number":        "The card number you entered is incorrect.",
	"processing_error":        "We hit a processing error with your card. Please try again in a few minutes.",
	"authentication_required": "Your bank requires additional authentication. Please retry and complete the verification step.",
	"lost_card":               "Your card was declined. Please contact your bank or use another card.",
	"stolen_card":             "Your card was declined. Please contact your bank or use another card.",
	"do_not_honor":            "Your bank declined the payment. Please contact them or use another card.",
	"currency_not_supported":  "Your card does not support payments in this currency.",

	"payment_intent_authentication_failure": "We could not verify the payment with your bank. Please try again.",
}

// FriendlyFailureMessage maps a provider decline or error code to hiker-facing
// copy. Overrides win over the built-in table. The error code is looked up
// first and the decline code only when the error code has no message.
func FriendlyFailureMessage(code, declineCode string, overrides map[string]string) string {
	for _, candidate := range []string{code, declineCode} {
		candidate = strings.ToLower(strings.TrimSpace(candidate))
		if candidate == "" {
			continue
		}
		if message, ok := overrides[candidate]; ok && message != "" {
			return message
		}
		if message, ok := failureMessages[candidate]; ok {
			return message
		}
	}
	return genericFailureMessage
}
