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

// Payout mirrors a guide's connected-account payout to their bank.
type Payout struct {
	ID               snowflake.ID   `json:"id" gorm:"primaryKey"`
	ProviderPayoutID string         `json:"provider_payout_id"`
	GuideID          *string        `json:"guide_id,omitempty"`
	Amount           int64          `json:"amount"`
	Currency         string         `json:"currency"`
	ArrivalDate      *time.Time     `json:"arrival_date,omitempty"`
	Status           string         `json:"status"`
	Method           string         `json:"method"`
	FailureCode      *string        `json:"failure_code,omitempty"`
	FailureMessage   *string        `json:"failure_message,omitempty"`
	Metadata         datatypes.JSON `json:"metadata"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

func (Payout) TableName() string { return "payouts" }

type Repository interface {
	// Upsert records the payout. A pending status never overwrites a settled one.
	Upsert(ctx context.Context, db *gorm.DB, payout *Payout) (bool, error)
	FindByProviderID(ctx context.Context, db *gorm.DB, providerPayoutID string) (*Payout, error)
}
