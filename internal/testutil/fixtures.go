package testutil

import (
	"testing"
	"time"

	"gorm.io/gorm"
)

// Marketplace holds identifiers seeded by SeedMarketplace.
type Marketplace struct {
	AdminID   string
	GuideID   string
	OtherID   string
	HikerID   string
	TourID    string
	AccountID string
}

// SeedMarketplace inserts an admin, two guides, a hiker and one tour.
func SeedMarketplace(t *testing.T, db *gorm.DB) Marketplace {
	t.Helper()

	m := Marketplace{
		AdminID:   "admin-1",
		GuideID:   "guide-1",
		OtherID:   "guide-2",
		HikerID:   "hiker-1",
		TourID:    "tour-1",
		AccountID: "acct_guide1",
	}
	now := time.Now().UTC()

	profiles := []struct{ id, email, name, role string }{
		{m.AdminID, "ops@trailpay.test", "Ops Admin", "admin"},
		{m.GuideID, "guide@trailpay.test", "Greta Guide", "guide"},
		{m.OtherID, "other@trailpay.test", "Otto Other", "guide"},
		{m.HikerID, "hiker@trailpay.test", "Hanna Hiker", "hiker"},
	}
	for _, p := range profiles {
		mustExec(t, db,
			`INSERT INTO profiles (id, email, full_name, role, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
			p.id, p.email, p.name, p.role, now, now,
		)
	}
	mustExec(t, db,
		`INSERT INTO guide_profiles (profile_id, stripe_account_id, kyc_status, updated_at) VALUES (?, ?, 'pending', ?)`,
		m.GuideID, m.AccountID, now,
	)
	mustExec(t, db,
		`INSERT INTO tours (id, guide_id, title, created_at) VALUES (?, ?, ?, ?)`,
		m.TourID, m.GuideID, "Dolomites Ridge Walk", now,
	)
	return m
}

// BookingFixture describes a booking row to seed.
type BookingFixture struct {
	ID              string
	Reference       string
	TourID          string
	HikerID         string
	Status          string
	PaymentStatus   string
	TotalPrice      int64
	Currency        string
	DepositAmount   *int64
	PaymentIntentID *string
	RefundStatus    string
	RefundID        *string
	UpdatedAt       time.Time
}

// SeedBooking inserts a booking, filling unset fields with pending defaults.
func SeedBooking(t *testing.T, db *gorm.DB, b BookingFixture) {
	t.Helper()

	if b.Reference == "" {
		b.Reference = "TRL-" + b.ID
	}
	if b.Status == "" {
		b.Status = "pending"
	}
	if b.PaymentStatus == "" {
		b.PaymentStatus = "pending"
	}
	if b.RefundStatus == "" {
		b.RefundStatus = "not_applicable"
	}
	if b.Currency == "" {
		b.Currency = "EUR"
	}
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = time.Now().UTC()
	}

	mustExec(t, db,
		`INSERT INTO bookings (
			id, reference, tour_id, hiker_id, status, payment_status, total_price, currency,
			deposit_amount, payment_intent_id, refund_status, refund_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Reference, b.TourID, b.HikerID, b.Status, b.PaymentStatus, b.TotalPrice, b.Currency,
		b.DepositAmount, b.PaymentIntentID, b.RefundStatus, b.RefundID, b.UpdatedAt, b.UpdatedAt,
	)
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

func mustExec(t *testing.T, db *gorm.DB, sql string, args ...interface{}) {
	t.Helper()
	if err := db.Exec(sql, args...).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
}
