package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	auditdomain "github.com/smallbiznis/trailpay/internal/audit/domain"
	authdomain "github.com/smallbiznis/trailpay/internal/auth/domain"
	"github.com/smallbiznis/trailpay/internal/authorization"
	bookingdomain "github.com/smallbiznis/trailpay/internal/booking/domain"
	"github.com/smallbiznis/trailpay/internal/clock"
	"github.com/smallbiznis/trailpay/internal/config"
	"github.com/smallbiznis/trailpay/internal/notification"
	"github.com/smallbiznis/trailpay/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/trailpay/internal/observability/metrics"
	"github.com/smallbiznis/trailpay/internal/providers/stripe"
	"github.com/smallbiznis/trailpay/internal/ratelimit"
	"github.com/smallbiznis/trailpay/internal/refund/domain"
	"github.com/smallbiznis/trailpay/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const providerCancelReason = "requested_by_customer"

// PaymentClient is the slice of the provider API a cancellation needs.
type PaymentClient interface {
	RetrievePaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error)
	CancelPaymentIntent(ctx context.Context, id string, reason string) (*stripe.PaymentIntent, error)
	CreateRefund(ctx context.Context, params stripe.RefundParams) (*stripe.Refund, error)
}

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Cfg        config.Config
	Bookings   bookingdomain.Repository
	Client     PaymentClient
	Authz      authorization.Service
	Notifier   notification.Notifier
	Locker     *ratelimit.Locker
	Limiter    *ratelimit.RefundLimiter
	Audit      auditdomain.Service `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
	Telemetry  *telemetry.Metrics  `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	bookings   bookingdomain.Repository
	client     PaymentClient
	authz      authorization.Service
	notifier   notification.Notifier
	locker     *ratelimit.Locker
	limiter    *ratelimit.RefundLimiter
	lockTTL    time.Duration
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
	telemetry  *telemetry.Metrics
}

func NewService(p Params) *Service {
	lockTTL := p.Cfg.RateLimit.RefundLockTTL
	if lockTTL <= 0 {
		lockTTL = time.Minute
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("refund.service"),
		clock:      p.Clock,
		bookings:   p.Bookings,
		client:     p.Client,
		authz:      p.Authz,
		notifier:   p.Notifier,
		locker:     p.Locker,
		limiter:    p.Limiter,
		lockTTL:    lockTTL,
		auditSvc:   p.Audit,
		obsMetrics: p.ObsMetrics,
		telemetry:  p.Telemetry,
	}
}

// Cancel cancels a booking and settles its payment with the provider: an
// uncaptured payment is voided, a captured one is refunded.
func (s *Service) Cancel(ctx context.Context, req domain.Request) (*domain.Result, error) {
	req.BookingID = strings.TrimSpace(req.BookingID)
	if req.Caller == nil || strings.TrimSpace(req.Caller.UserID) == "" {
		return nil, domain.ErrUnauthenticated
	}
	if req.BookingID == "" {
		return nil, domain.ErrInvalidRequest
	}
	if req.Amount != nil && *req.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	log := logger.WithBooking(logger.WithContext(ctx, s.log), req.BookingID).
		With(zap.String("caller_id", req.Caller.UserID))

	allowed, err := s.limiter.AllowCaller(ctx, req.Caller.UserID)
	if err != nil {
		log.Warn("refund rate limiter unavailable", zap.Error(err))
	} else if !allowed.Allowed {
		s.record(ctx, "rate_limited", "", 0)
		return nil, domain.ErrRateLimited
	}

	details, err := s.bookings.FindDetails(ctx, s.db, req.BookingID)
	if err != nil {
		return nil, err
	}
	if details == nil {
		return nil, domain.ErrNotFound
	}

	if err := s.authz.AuthorizeBookingAction(ctx, req.Caller, details.Guide.ID, authorization.ActionBookingRefund); err != nil {
		if errors.Is(err, authorization.ErrForbidden) || errors.Is(err, authorization.ErrInvalidActor) {
			log.Warn("refund denied", zap.String("role", req.Caller.Role))
			s.record(ctx, "unauthorized", "", 0)
			s.audit(ctx, log, req.Caller, auditdomain.ActionRefundDenied, req.BookingID, map[string]any{
				"role": req.Caller.Role,
			})
			return nil, domain.ErrUnauthorized
		}
		return nil, err
	}

	lockKey := "refund:booking:" + req.BookingID
	token, acquired, err := s.locker.TryLock(ctx, lockKey, s.lockTTL)
	if err != nil {
		log.Warn("refund lock unavailable, relying on booking guards", zap.Error(err))
		acquired = true
	}
	if !acquired {
		s.obsMetrics.RecordLockContention(ctx, "refund")
		return nil, domain.ErrRefundInProgress
	}
	defer func() {
		_ = s.locker.Release(context.WithoutCancel(ctx), lockKey, token)
	}()

	// Re-read under the lock; a concurrent request may have settled it.
	current, err := s.bookings.FindByID(ctx, s.db, req.BookingID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, domain.ErrNotFound
	}
	details.Booking = *current

	result, err := s.cancel(ctx, log, details, req)
	if err != nil {
		s.record(ctx, "failed", "", 0)
		return nil, err
	}
	s.record(ctx, string(result.Outcome), result.Currency, result.Amount)
	return result, nil
}

func (s *Service) cancel(ctx context.Context, log *zap.Logger, details *bookingdomain.Details, req domain.Request) (*domain.Result, error) {
	booking := details.Booking
	reason := cancellationReason(req)

	if !booking.HasPaymentIntent() {
		return s.cancelAbandoned(ctx, log, details, req.Caller, reason)
	}

	intentID := *booking.PaymentIntentID
	intent, err := s.client.RetrievePaymentIntent(ctx, intentID)
	if err != nil {
		return nil, providerError("retrieve_payment_intent", err)
	}
	log = log.With(zap.String("payment_intent_id", intentID), zap.String("intent_status", intent.Status))

	if refundID, settled := booking.SettledRefund(); settled {
		log.Info("booking already refunded", zap.String("refund_id", refundID), zap.String("refund_status", booking.RefundStatus))
		return nil, &domain.AlreadyRefundedError{RefundID: refundID}
	}

	action := domain.Classify(intent.Status)
	if action == domain.ActionNone {
		log.Warn("payment intent can be neither cancelled nor refunded")
		s.notifier.AlertOperators(ctx, "Booking "+booking.Reference+" needs manual reconciliation: payment "+
			intentID+" is "+intent.Status+" at the provider.")
		return nil, &domain.UnexpectedStateError{Status: intent.Status}
	}

	amount := domain.ClampAmount(req.Amount, intent.ChargedAmount())
	currency := booking.Currency
	if intent.Currency != "" {
		currency = strings.ToUpper(intent.Currency)
	}

	if action == domain.ActionCancel {
		return s.cancelPayment(ctx, log, details, req.Caller, intentID, amount, currency, reason)
	}
	return s.refundPayment(ctx, log, details, req.Caller, intentID, amount, currency, reason)
}

func (s *Service) cancelAbandoned(
	ctx context.Context,
	log *zap.Logger,
	details *bookingdomain.Details,
	caller *authdomain.Actor,
	reason string,
) (*domain.Result, error) {
	booking := details.Booking
	if _, err := s.bookings.MarkAbandoned(ctx, s.db, booking.ID, reason, s.clock.Now()); err != nil {
		return nil, err
	}
	log.Info("abandoned checkout cancelled")
	s.audit(ctx, log, caller, auditdomain.ActionBookingCancelled, booking.ID, map[string]any{
		"reason":             reason,
		"abandoned_checkout": true,
	})

	for _, contact := range []bookingdomain.Contact{details.Hiker, details.Guide} {
		s.notifier.Notify(ctx, notification.Message{
			Kind: notification.KindBookingCancelled,
			To:   contact.Email,
			Data: map[string]interface{}{
				"recipient_name":    contact.FullName,
				"booking_reference": booking.Reference,
				"tour_title":        details.TourTitle,
				"reason":            reason,
			},
		})
	}

	return &domain.Result{
		Outcome:          domain.OutcomeAbandonedCheckout,
		BookingReference: booking.Reference,
		Currency:         booking.Currency,
		Message:          "Booking cancelled. No payment had been taken.",
	}, nil
}

func (s *Service) cancelPayment(
	ctx context.Context,
	log *zap.Logger,
	details *bookingdomain.Details,
	caller *authdomain.Actor,
	intentID string,
	amount int64,
	currency string,
	reason string,
) (*domain.Result, error) {
	booking := details.Booking
	if _, err := s.client.CancelPaymentIntent(ctx, intentID, providerCancelReason); err != nil {
		if _, markErr := s.bookings.MarkRefundFailed(ctx, s.db, booking.ID, reason, s.clock.Now()); markErr != nil {
			log.Error("failed to record cancellation failure", zap.Error(markErr))
		}
		log.Error("payment intent cancellation failed", zap.Error(err))
		perr := providerError("cancel_payment_intent", err)
		s.auditFailure(ctx, log, caller, booking.ID, intentID, perr)
		return nil, perr
	}

	if _, err := s.bookings.MarkPaymentCancelled(ctx, s.db, booking.ID, amount, reason, s.clock.Now()); err != nil {
		return nil, err
	}
	log.Info("payment intent cancelled", zap.Int64("amount", amount))
	s.audit(ctx, log, caller, auditdomain.ActionPaymentCancelled, booking.ID, map[string]any{
		"payment_intent_id": intentID,
		"amount":            amount,
		"currency":          currency,
		"reason":            reason,
	})

	s.notifyParties(ctx, details, amount, currency, reason, "")
	return &domain.Result{
		Outcome:          domain.OutcomeCancelledPayment,
		BookingReference: booking.Reference,
		Amount:           amount,
		Currency:         currency,
		RefundStatus:     bookingdomain.RefundStatusSucceeded,
		Message:          "Booking cancelled and the pending payment was voided.",
	}, nil
}

func (s *Service) refundPayment(
	ctx context.Context,
	log *zap.Logger,
	details *bookingdomain.Details,
	caller *authdomain.Actor,
	intentID string,
	amount int64,
	currency string,
	reason string,
) (*domain.Result, error) {
	booking := details.Booking
	changed, err := s.bookings.MarkRefundPending(ctx, s.db, booking.ID, reason, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, domain.ErrRefundInProgress
	}

	refund, err := s.client.CreateRefund(ctx, stripe.RefundParams{
		PaymentIntent: intentID,
		Amount:        amount,
		Reason:        providerCancelReason,
		Metadata: map[string]string{
			"booking_id":        booking.ID,
			"booking_reference": booking.Reference,
			"tour_id":           booking.TourID,
			"cancelled_by":      caller.UserID,
			"cancel_reason":     reason,
		},
		IdempotencyKey: "refund:" + booking.ID + ":" + strconv.FormatInt(amount, 10),
	})
	if err != nil {
		if _, markErr := s.bookings.MarkRefundFailed(ctx, s.db, booking.ID, reason, s.clock.Now()); markErr != nil {
			log.Error("failed to record refund failure", zap.Error(markErr))
		}
		log.Error("refund creation failed", zap.Int64("amount", amount), zap.Error(err))
		perr := providerError("create_refund", err)
		s.auditFailure(ctx, log, caller, booking.ID, intentID, perr)
		return nil, perr
	}

	now := s.clock.Now()
	status := refund.Status
	if status == "" {
		status = bookingdomain.RefundStatusPending
	}
	if _, err := s.bookings.MarkRefunded(ctx, s.db, booking.ID, bookingdomain.RefundOutcome{
		RefundID:   refund.ID,
		Amount:     amount,
		Status:     status,
		RefundedAt: now,
	}, now); err != nil {
		log.Error("refund issued but booking update failed",
			zap.String("refund_id", refund.ID),
			zap.Error(err),
		)
		return nil, err
	}
	log.Info("refund issued",
		zap.String("refund_id", refund.ID),
		zap.String("refund_status", status),
		zap.Int64("amount", amount),
	)
	s.audit(ctx, log, caller, auditdomain.ActionRefundCreated, booking.ID, map[string]any{
		"payment_intent_id": intentID,
		"refund_id":         refund.ID,
		"refund_status":     status,
		"amount":            amount,
		"currency":          currency,
		"reason":            reason,
	})

	s.notifyParties(ctx, details, amount, currency, reason, refund.ID)
	return &domain.Result{
		Outcome:          domain.OutcomeRefunded,
		BookingReference: booking.Reference,
		Amount:           amount,
		Currency:         currency,
		RefundID:         refund.ID,
		RefundStatus:     status,
		Message:          "Booking cancelled and refund issued.",
	}, nil
}

func (s *Service) notifyParties(ctx context.Context, details *bookingdomain.Details, amount int64, currency, reason, refundID string) {
	formatted := notification.FormatAmount(amount, currency)
	s.notifier.Notify(ctx, notification.Message{
		Kind: notification.KindRefundProcessed,
		To:   details.Hiker.Email,
		Data: map[string]interface{}{
			"hiker_name":        details.Hiker.FullName,
			"booking_reference": details.Booking.Reference,
			"tour_title":        details.TourTitle,
			"amount":            formatted,
			"reason":            reason,
			"refund_id":         refundID,
		},
	})
	s.notifier.Notify(ctx, notification.Message{
		Kind: notification.KindCancellationNotice,
		To:   details.Guide.Email,
		Data: map[string]interface{}{
			"guide_name":        details.Guide.FullName,
			"hiker_name":        details.Hiker.FullName,
			"booking_reference": details.Booking.Reference,
			"tour_title":        details.TourTitle,
			"amount":            formatted,
			"reason":            reason,
		},
	})
}

// audit writes a best-effort audit entry; failures are logged only.
func (s *Service) audit(ctx context.Context, log *zap.Logger, caller *authdomain.Actor, action, bookingID string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	var actorID *string
	if caller != nil {
		actorID = &caller.UserID
	}
	if err := s.auditSvc.AuditLog(ctx, auditdomain.ActorTypeUser, actorID, action, auditdomain.TargetBooking, &bookingID, metadata); err != nil {
		log.Warn("audit log not written", zap.String("action", action), zap.Error(err))
	}
}

func (s *Service) auditFailure(ctx context.Context, log *zap.Logger, caller *authdomain.Actor, bookingID, intentID string, err *domain.ProviderError) {
	s.audit(ctx, log, caller, auditdomain.ActionRefundFailed, bookingID, map[string]any{
		"payment_intent_id": intentID,
		"operation":         err.Op,
		"detail":            err.Detail,
	})
}

func (s *Service) record(ctx context.Context, outcome, currency string, amount int64) {
	s.obsMetrics.RecordRefund(ctx, outcome)
	s.telemetry.RecordRefund(outcome, currency, amount)
}

func cancellationReason(req domain.Request) string {
	if reason := strings.TrimSpace(req.Reason); reason != "" {
		return reason
	}
	if req.Caller != nil && req.Caller.Role != "" {
		return "Cancelled by " + req.Caller.Role
	}
	return "Cancelled"
}

func providerError(op string, err error) *domain.ProviderError {
	detail := err.Error()
	var apiErr *stripe.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		detail = apiErr.Message
	}
	return &domain.ProviderError{Op: op, Detail: detail, Err: err}
}
