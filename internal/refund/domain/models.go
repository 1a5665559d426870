package domain

import (
	authdomain "github.com/smallbiznis/trailpay/internal/auth/domain"
)

// Request asks for a booking to be cancelled, refunding whatever was charged.
// A nil Amount refunds the full charged amount.
type Request struct {
	BookingID string
	Amount    *int64
	Reason    string
	Caller    *authdomain.Actor
}

type Outcome string

const (
	OutcomeAbandonedCheckout Outcome = "abandoned_checkout"
	OutcomeCancelledPayment  Outcome = "cancelled_payment"
	OutcomeRefunded          Outcome = "refunded"
)

// Result describes the state change applied to the booking.
type Result struct {
	Outcome          Outcome
	BookingReference string
	Amount           int64
	Currency         string
	RefundID         string
	RefundStatus     string
	Message          string
}
