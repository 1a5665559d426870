package authorization

import (
	"context"

	authdomain "github.com/smallbiznis/trailpay/internal/auth/domain"
)

// Service decides whether an actor may act on a booking.
type Service interface {
	AuthorizeBookingAction(ctx context.Context, actor *authdomain.Actor, ownerGuideID string, action string) error
}
