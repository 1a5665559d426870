package domain

import "errors"

var (
	ErrBookingNotFound  = errors.New("booking_not_found")
	ErrInvalidBookingID = errors.New("invalid_booking_id")
)
