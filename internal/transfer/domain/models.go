package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	StatusPending = "pending"
	StatusPaid    = "paid"
	StatusFailed  = "failed"
)

// RetryDelay is how far out a failed transfer's next attempt is scheduled.
const RetryDelay = 24 * time.Hour

// Transfer mirrors a platform-to-guide provider transfer.
type Transfer struct {
	ID                 snowflake.ID   `json:"id" gorm:"primaryKey"`
	ProviderTransferID string         `json:"provider_transfer_id"`
	BookingID          *string        `json:"booking_id,omitempty"`
	GuideID            *string        `json:"guide_id,omitempty"`
	Amount             int64          `json:"amount"`
	Currency           string         `json:"currency"`
	Destination        string         `json:"destination"`
	SourceTransaction  *string        `json:"source_transaction,omitempty"`
	Status             string         `json:"status"`
	RetryCount         int            `json:"retry_count"`
	NextRetryAt        *time.Time     `json:"next_retry_at,omitempty"`
	FailureEventID     *string        `json:"failure_event_id,omitempty"`
	Metadata           datatypes.JSON `json:"metadata"`
	TransferredAt      *time.Time     `json:"transferred_at,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

func (Transfer) TableName() string { return "transfers" }

// Attribution links a transfer back to the booking and guide it pays out.
type Attribution struct {
	BookingID *string
	GuideID   *string
	Metadata  datatypes.JSON
}

type Repository interface {
	// Insert reports false when the provider transfer id already exists.
	Insert(ctx context.Context, db *gorm.DB, transfer *Transfer) (bool, error)
	FindByProviderID(ctx context.Context, db *gorm.DB, providerTransferID string) (*Transfer, error)
	MarkPaid(ctx context.Context, db *gorm.DB, providerTransferID string, paidAt time.Time) (bool, error)
	// MarkFailed applies each transfer.failed event once, keyed on eventID.
	MarkFailed(ctx context.Context, db *gorm.DB, providerTransferID, eventID string, nextRetryAt, now time.Time) (bool, error)
	ListDueAttributionRetries(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]Transfer, error)
	Attribute(ctx context.Context, db *gorm.DB, id snowflake.ID, attribution Attribution, now time.Time) (bool, error)
	ScheduleRetry(ctx context.Context, db *gorm.DB, id snowflake.ID, nextRetryAt, now time.Time) error
}
