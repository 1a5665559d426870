package domain

import "time"

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

const (
	PaymentStatusPending    = "pending"
	PaymentStatusProcessing = "processing"
	PaymentStatusSucceeded  = "succeeded"
	PaymentStatusFailed     = "failed"
	PaymentStatusRefunded   = "refunded"
	PaymentStatusCancelled  = "cancelled"
)

const (
	RefundStatusNotApplicable = "not_applicable"
	RefundStatusPending       = "pending"
	RefundStatusSucceeded     = "succeeded"
	RefundStatusFailed        = "failed"
	// RefundStatusCanceled is the provider's spelling for a refund it voided.
	RefundStatusCanceled = "canceled"
)

const (
	FinalPaymentStatusPaid   = "paid"
	FinalPaymentStatusFailed = "failed"
)

type Booking struct {
	ID                   string     `json:"id" gorm:"primaryKey"`
	Reference            string     `json:"reference"`
	TourID               string     `json:"tour_id"`
	HikerID              string     `json:"hiker_id"`
	Status               string     `json:"status"`
	PaymentStatus        string     `json:"payment_status"`
	TotalPrice           int64      `json:"total_price"`
	Currency             string     `json:"currency"`
	DepositAmount        *int64     `json:"deposit_amount,omitempty"`
	FinalPaymentAmount   *int64     `json:"final_payment_amount,omitempty"`
	FinalPaymentStatus   *string    `json:"final_payment_status,omitempty"`
	FinalPaymentDueDate  *time.Time `json:"final_payment_due_date,omitempty"`
	PaymentIntentID      *string    `json:"payment_intent_id,omitempty"`
	FinalPaymentIntentID *string    `json:"final_payment_intent_id,omitempty"`
	RefundID             *string    `json:"refund_id,omitempty"`
	RefundStatus         string     `json:"refund_status"`
	RefundAmount         *int64     `json:"refund_amount,omitempty"`
	RefundReason         *string    `json:"refund_reason,omitempty"`
	RefundedAt           *time.Time `json:"refunded_at,omitempty"`
	CancelledAt          *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

func (Booking) TableName() string { return "bookings" }

// HasPaymentIntent reports whether the hiker ever reached the provider checkout.
func (b Booking) HasPaymentIntent() bool {
	return b.PaymentIntentID != nil && *b.PaymentIntentID != ""
}

// IsDeposit reports whether the initial charge only covered a deposit.
func (b Booking) IsDeposit() bool {
	return b.DepositAmount != nil && *b.DepositAmount > 0 && *b.DepositAmount < b.TotalPrice
}

// SettledRefund returns the refund already covering the booking. A void or a
// succeeded refund settles it, and so does any provider refund that has not
// failed or been canceled.
func (b Booking) SettledRefund() (string, bool) {
	refundID := ""
	if b.RefundID != nil {
		refundID = *b.RefundID
	}
	switch {
	case b.RefundStatus == RefundStatusSucceeded:
		return refundID, true
	case refundID != "" && b.RefundStatus != RefundStatusFailed && b.RefundStatus != RefundStatusCanceled:
		return refundID, true
	}
	return "", false
}

// Contact is the notification-facing view of a profile.
type Contact struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

// Details is a booking joined with its tour and the two parties.
type Details struct {
	Booking   Booking
	TourTitle string
	Guide     Contact
	Hiker     Contact
}

// RefundOutcome is what the provider reported for a created refund.
type RefundOutcome struct {
	RefundID   string
	Amount     int64
	Status     string
	RefundedAt time.Time
}
