package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrNotFound         = errors.New("booking_not_found")
	ErrInvalidRequest   = errors.New("invalid_request")
	ErrInvalidAmount    = errors.New("invalid_refund_amount")
	ErrRateLimited      = errors.New("refund_rate_limited")
	ErrRefundInProgress = errors.New("refund_in_progress")
)

// AlreadyRefundedError is returned when the booking's refund already succeeded.
type AlreadyRefundedError struct {
	RefundID string
}

func (e *AlreadyRefundedError) Error() string {
	if e.RefundID == "" {
		return "booking already refunded"
	}
	return fmt.Sprintf("booking already refunded (refund %s)", e.RefundID)
}

// UnexpectedStateError names a provider payment state that is neither
// cancellable nor refundable.
type UnexpectedStateError struct {
	Status string
}

func (e *UnexpectedStateError) Error() string {
	return fmt.Sprintf("payment is in state %q and can be neither cancelled nor refunded", e.Status)
}

// ProviderError wraps a failed provider call after local state was marked failed.
type ProviderError struct {
	Op     string
	Detail string
	Err    error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s failed: %s", e.Op, e.Detail)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
