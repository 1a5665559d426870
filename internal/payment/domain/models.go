package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const ProviderStripe = "stripe"

// EventRecord is the durable log of every verified provider event.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	APIVersion      string         `json:"api_version"`
	Livemode        bool           `json:"livemode"`
	Processed       bool           `json:"processed"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

const (
	QueueStatusPending   = "pending"
	QueueStatusSucceeded = "succeeded"
	QueueStatusFailed    = "failed"
)

// QueueEntry is the audit and retry record for one event's dispatch.
type QueueEntry struct {
	ID         snowflake.ID   `json:"id" gorm:"primaryKey"`
	EventID    string         `json:"event_id"`
	EventType  string         `json:"event_type"`
	Payload    datatypes.JSON `json:"payload"`
	Status     string         `json:"status"`
	APIVersion string         `json:"api_version"`
	Livemode   bool           `json:"livemode"`
	Attempts   int            `json:"attempts"`
	LastError  *string        `json:"last_error,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

func (QueueEntry) TableName() string { return "payment_event_queue" }
