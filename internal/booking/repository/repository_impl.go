package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/trailpay/internal/booking/domain"
	"gorm.io/gorm"
)

const bookingColumns = `b.id, b.reference, b.tour_id, b.hiker_id, b.status, b.payment_status,
	b.total_price, b.currency, b.deposit_amount, b.final_payment_amount, b.final_payment_status,
	b.final_payment_due_date, b.payment_intent_id, b.final_payment_intent_id, b.refund_id,
	b.refund_status, b.refund_amount, b.refund_reason, b.refunded_at, b.cancelled_at,
	b.created_at, b.updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id string) (*domain.Booking, error) {
	var item domain.Booking
	err := db.WithContext(ctx).Raw(
		`SELECT `+bookingColumns+`
		 FROM bookings b
		 WHERE b.id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == "" {
		return nil, nil
	}
	return &item, nil
}

type detailsRow struct {
	domain.Booking
	TourTitle     string
	GuideID       string
	GuideEmail    string
	GuideFullName string
	HikerEmail    string
	HikerFullName string
}

func (r *repo) FindDetails(ctx context.Context, db *gorm.DB, id string) (*domain.Details, error) {
	var row detailsRow
	err := db.WithContext(ctx).Raw(
		`SELECT `+bookingColumns+`,
			t.title AS tour_title,
			t.guide_id AS guide_id,
			g.email AS guide_email,
			g.full_name AS guide_full_name,
			h.email AS hiker_email,
			h.full_name AS hiker_full_name
		 FROM bookings b
		 JOIN tours t ON t.id = b.tour_id
		 LEFT JOIN profiles g ON g.id = t.guide_id
		 LEFT JOIN profiles h ON h.id = b.hiker_id
		 WHERE b.id = ?
		 LIMIT 1`,
		id,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == "" {
		return nil, nil
	}
	return &domain.Details{
		Booking:   row.Booking,
		TourTitle: row.TourTitle,
		Guide: domain.Contact{
			ID:       row.GuideID,
			Email:    row.GuideEmail,
			FullName: row.GuideFullName,
		},
		Hiker: domain.Contact{
			ID:       row.HikerID,
			Email:    row.HikerEmail,
			FullName: row.HikerFullName,
		},
	}, nil
}

func (r *repo) MarkPaymentProcessing(ctx context.Context, db *gorm.DB, id, paymentIntentID string, now time.Time) (bool, error) {
	return exec(ctx, db,
		`UPDATE bookings
		 SET payment_status = ?, payment_intent_id = ?, updated_at = ?
		 WHERE id = ? AND payment_status = ?`,
		domain.PaymentStatusProcessing, paymentIntentID, now,
		id, domain.PaymentStatusPending,
	)
}

func (r *repo) MarkPaymentSucceeded(ctx context.Context, db *gorm.DB, id, paymentIntentID string, now time.Time) (bool, error) {
	return exec(ctx, db,
		`UPDATE bookings
		 SET payment_status = ?, status = ?, payment_intent_id = ?, updated_at = ?
		 WHERE id = ? AND payment_status NOT IN (?, ?, ?)`,
		domain.PaymentStatusSucceeded, domain.StatusConfirmed, paymentIntentID, now,
		id, domain.PaymentStatusSucceeded, domain.PaymentStatusRefunded, domain.PaymentStatusCancelled,
	)
}

func (r *repo) MarkChargeSucceeded(ctx context.Context, db *gorm.DB, id, paymentIntentID string, now time.Time) (bool, error) {
	return exec(ctx, db,
		`UPDATE bookings
		 SET payment_status = ?, status = ?,
			payment_intent_id = COALESCE(payment_intent_id, ?), updated_at = ?
		 WHERE id = ? AND payment_status NOT IN (?, ?, ?)`,
		domain.PaymentStatusSucceeded, domain.StatusConfirmed, paymentIntentID, now,
		id, domain.PaymentStatusSucceeded, domain.PaymentStatusRefunded, domain.PaymentStatusCancelled,
	)
}

func (r *repo) MarkFinalPaymentPaid(ctx context.Context, db *gorm.DB, id, paymentIntentID string, now time.Time) (bool, error) {
	return exec(ctx, db,
		`UPDATE bookings
		 SET final_payment_status = ?, final_payment_intent_id = ?, payment_status = ?, updated_at = ?
		 WHERE id = ? AND payment_status NOT IN (?, ?) AND COALESCE(final_payment_status, '') <> ?`,
		domain.FinalPaymentStatusPaid, paymentIntentID, domain.PaymentStatusSucceeded, now,
		id, domain.PaymentStatusRefunded, domain.PaymentStatusCancelled, domain.FinalPaymentStatusPaid,
	)
}

func (r *repo) MarkFinalPaymentFailed(ctx context.Context, db *gorm.DB, id, paymentIntentID string, now time.Time) (bool, error) {
	return exec(ctx, db,
		`UPDATE bookings
		 SET final_payment_status = ?, final_payment_intent_id = ?, updated_at = ?
		 WHERE id = ? AND COALESCE(final_payment_status, '') NOT IN (?, ?)`,
		domain.FinalPaymentStatusFailed, paymentIntentID, now,
		id, domain.FinalPaymentStatusPaid, domain.FinalPaymentStatusFailed,
	)
}

func (r *repo) MarkPaymentFailed(ctx context.Context, db *gorm.DB, id, paymentIntentID string, now time.Time) (bool, error) {
	return exec(ctx, db,
		`UPDATE bookings
		 SET payment_status = ?, status = ?, payment_intent_id = ?, updated_at = ?
		 WHERE id = ? AND payment_status NOT IN (?, ?, ?, ?)`,
		domain.PaymentStatusFailed, domain.StatusCancelled, paymentIntentID, now,
		id, domain.PaymentStatusFailed, domain.PaymentStatusSucceeded, domain.PaymentStatusRefunded, domain.PaymentStatusCancelled,
	)
}

func (r *repo) MarkAbandoned(ctx context.Context, db *gorm.DB, id, reason string, now time.Time) (bool, error) {
	return exec(ctx, db,
		`UPDATE bookings
		 SET status = ?, refund_status = ?, refund_reason = ?, cancelled_at = ?, updated_at = ?
		 WHERE id = ? AND refund_status <> ?`,
		domain.StatusCancelled, domain.RefundStatusNotApplicable, reason, now, now,
		id, domain.RefundStatusSucceeded,
	)
}

func (r *repo) MarkPaymentCancelled(ctx context.Context, db *gorm.DB, id string, amount int64, reason string, now time.Time) (bool, error) {
	return exec(ctx, db,
		`UPDATE bookings
		 SET status = ?, payment_status = ?, refund_status = ?, refund_reason = ?,
			refund_amount = ?, cancelled_at = ?, updated_at = ?
		 WHERE id = ? AND refund_status <> ?`,
		domain.StatusCancelled, domain.PaymentStatusCancelled, domain.RefundStatusSucceeded, reason,
		amount, now, now,
		id, domain.RefundStatusSucceeded,
	)
}

func (r *repo) MarkRefundPending(ctx context.Context, db *gorm.DB, id, reason string, now time.Time) (bool, error) {
	return exec(ctx, db,
		`UPDATE bookings
		 SET status = ?, refund_status = ?, refund_reason = ?, refund_id = NULL, cancelled_at = ?, updated_at = ?
		 WHERE id = ? AND refund_status <> ?
		   AND (COALESCE(refund_id, '') = '' OR refund_status IN (?, ?))`,
		domain.StatusCancelled, domain.RefundStatusPending, reason, now, now,
		id, domain.RefundStatusSucceeded, domain.RefundStatusFailed, domain.RefundStatusCanceled,
	)
}

func (r *repo) MarkRefundFailed(ctx context.Context, db *gorm.DB, id, reason string, now time.Time) (bool, error) {
	return exec(ctx, db,
		`UPDATE bookings
		 SET status = ?, refund_status = ?, refund_reason = ?, cancelled_at = COALESCE(cancelled_at, ?), updated_at = ?
		 WHERE id = ? AND refund_status <> ?`,
		domain.StatusCancelled, domain.RefundStatusFailed, reason, now, now,
		id, domain.RefundStatusSucceeded,
	)
}

func (r *repo) MarkRefunded(ctx context.Context, db *gorm.DB, id string, outcome domain.RefundOutcome, now time.Time) (bool, error) {
	return exec(ctx, db,
		`UPDATE bookings
		 SET refund_id = ?, refund_amount = ?, refund_status = ?, refunded_at = ?,
			payment_status = ?, updated_at = ?
		 WHERE id = ? AND refund_status = ? AND COALESCE(refund_id, '') = ''`,
		outcome.RefundID, outcome.Amount, outcome.Status, outcome.RefundedAt,
		domain.PaymentStatusRefunded, now,
		id, domain.RefundStatusPending,
	)
}

func (r *repo) ListStaleRefunds(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]domain.Booking, error) {
	if limit <= 0 {
		limit = 100
	}
	var items []domain.Booking
	err := db.WithContext(ctx).Raw(
		`SELECT `+bookingColumns+`
		 FROM bookings b
		 WHERE b.refund_status = ? AND b.updated_at < ?
		 ORDER BY b.updated_at ASC
		 LIMIT ?`,
		domain.RefundStatusPending, before, limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func exec(ctx context.Context, db *gorm.DB, sql string, args ...interface{}) (bool, error) {
	res := db.WithContext(ctx).Exec(sql, args...)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
