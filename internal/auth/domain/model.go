// Package domain contains core types for request authentication.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Session is a persisted bearer session. Only the token hash is stored.
type Session struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	UserID    string       `gorm:"column:user_id;not null;index"`
	TokenHash string       `gorm:"column:token_hash;type:text;not null;uniqueIndex"`
	ExpiresAt time.Time    `gorm:"column:expires_at;not null"`
	RevokedAt *time.Time   `gorm:"column:revoked_at"`
	CreatedAt time.Time    `gorm:"column:created_at"`
}

// TableName sets the database table name.
func (Session) TableName() string { return "user_sessions" }

// Actor is the authenticated caller of a request.
type Actor struct {
	UserID string
	Role   string
}

func (a Actor) Subject() string {
	return "user:" + a.UserID
}
