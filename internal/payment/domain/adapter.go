package domain

import (
	"context"
	"net/http"
	"time"
)

// AdapterConfig carries the webhook verification settings for one provider.
type AdapterConfig struct {
	WebhookSecret      string
	SigningVersion     string
	TimestampTolerance time.Duration
	Now                func() time.Time
}

type PaymentAdapter interface {
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*Event, error)
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (PaymentAdapter, error)
}
