package notification

import (
	"context"
	"strings"

	"github.com/smallbiznis/trailpay/internal/config"
	obsmetrics "github.com/smallbiznis/trailpay/internal/observability/metrics"
	"github.com/smallbiznis/trailpay/internal/providers/email"
	"github.com/smallbiznis/trailpay/internal/providers/slack"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Kind string

const (
	KindPaymentProcessing  Kind = "payment_processing"
	KindBookingConfirmed   Kind = "booking_confirmed"
	KindPaymentFailed      Kind = "payment_failed"
	KindBookingCancelled   Kind = "booking_cancelled"
	KindRefundProcessed    Kind = "refund_processed"
	KindCancellationNotice Kind = "cancellation_notice"
	KindPayoutFailed       Kind = "payout_failed"
)

// Message is one outbound notification. Data feeds the template named by Kind.
type Message struct {
	Kind Kind
	To   string
	Data map[string]interface{}
}

// Notifier delivers notifications. Delivery failures are logged, never returned.
type Notifier interface {
	Notify(ctx context.Context, msg Message)
	AlertOperators(ctx context.Context, text string)
	FailureMessage(code, declineCode string) string
}

type Params struct {
	fx.In

	Email   email.Provider
	Slack   slack.Provider
	Config  *config.NotificationConfigHolder
	Metrics *obsmetrics.Metrics `optional:"true"`
	Log     *zap.Logger
}

type Service struct {
	email   email.Provider
	slack   slack.Provider
	config  *config.NotificationConfigHolder
	metrics *obsmetrics.Metrics
	log     *zap.Logger
}

func NewService(p Params) *Service {
	return &Service{
		email:   p.Email,
		slack:   p.Slack,
		config:  p.Config,
		metrics: p.Metrics,
		log:     p.Log.Named("notification"),
	}
}

func (s *Service) Notify(ctx context.Context, msg Message) {
	to := strings.TrimSpace(msg.To)
	if to == "" {
		s.log.Warn("notification skipped, no recipient", zap.String("kind", string(msg.Kind)))
		s.metrics.RecordNotification(ctx, string(msg.Kind), "skipped")
		return
	}

	if err := s.email.SendTemplate(ctx, []string{to}, string(msg.Kind), msg.Data); err != nil {
		s.log.Warn("notification delivery failed",
			zap.String("kind", string(msg.Kind)),
			zap.Error(err),
		)
		s.metrics.RecordNotification(ctx, string(msg.Kind), "failed")
		return
	}
	s.metrics.RecordNotification(ctx, string(msg.Kind), "sent")
}

func (s *Service) AlertOperators(ctx context.Context, text string) {
	channel := s.config.Get().AdminChannel
	if err := s.slack.PostMessage(ctx, channel, text); err != nil {
		s.log.Warn("operator alert failed", zap.String("channel", channel), zap.Error(err))
		s.metrics.RecordNotification(ctx, "operator_alert", "failed")
		return
	}
	s.metrics.RecordNotification(ctx, "operator_alert", "sent")
}

func (s *Service) FailureMessage(code, declineCode string) string {
	return FriendlyFailureMessage(code, declineCode, s.config.Get().FailureMessages)
}
