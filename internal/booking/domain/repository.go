package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Repository applies conditional, idempotent updates keyed by booking id.
// Mutating methods report whether a row matched their guard.
type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id string) (*Booking, error)
	FindDetails(ctx context.Context, db *gorm.DB, id string) (*Details, error)

	MarkPaymentProcessing(ctx context.Context, db *gorm.DB, id, paymentIntentID string, now time.Time) (bool, error)
	MarkPaymentSucceeded(ctx context.Context, db *gorm.DB, id, paymentIntentID string, now time.Time) (bool, error)
	MarkChargeSucceeded(ctx context.Context, db *gorm.DB, id, paymentIntentID string, now time.Time) (bool, error)
	MarkFinalPaymentPaid(ctx context.Context, db *gorm.DB, id, paymentIntentID string, now time.Time) (bool, error)
	MarkFinalPaymentFailed(ctx context.Context, db *gorm.DB, id, paymentIntentID string, now time.Time) (bool, error)
	MarkPaymentFailed(ctx context.Context, db *gorm.DB, id, paymentIntentID string, now time.Time) (bool, error)

	MarkAbandoned(ctx context.Context, db *gorm.DB, id, reason string, now time.Time) (bool, error)
	MarkPaymentCancelled(ctx context.Context, db *gorm.DB, id string, amount int64, reason string, now time.Time) (bool, error)
	MarkRefundPending(ctx context.Context, db *gorm.DB, id, reason string, now time.Time) (bool, error)
	MarkRefundFailed(ctx context.Context, db *gorm.DB, id, reason string, now time.Time) (bool, error)
	MarkRefunded(ctx context.Context, db *gorm.DB, id string, outcome RefundOutcome, now time.Time) (bool, error)

	ListStaleRefunds(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]Booking, error)
}
