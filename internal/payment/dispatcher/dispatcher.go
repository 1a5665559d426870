package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/smallbiznis/trailpay/internal/booking/domain"
	"github.com/smallbiznis/trailpay/internal/clock"
	"github.com/smallbiznis/trailpay/internal/config"
	"github.com/smallbiznis/trailpay/internal/notification"
	"github.com/smallbiznis/trailpay/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/trailpay/internal/payment/domain"
	payoutdomain "github.com/smallbiznis/trailpay/internal/payout/domain"
	profiledomain "github.com/smallbiznis/trailpay/internal/profile/domain"
	"github.com/smallbiznis/trailpay/internal/providers/stripe"
	transferdomain "github.com/smallbiznis/trailpay/internal/transfer/domain"
	"github.com/smallbiznis/trailpay/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PaymentClient is the slice of the provider API the handlers read from.
type PaymentClient interface {
	RetrievePaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error)
	RetrieveAccount(ctx context.Context, id string) (*stripe.Account, error)
}

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	GenID     *snowflake.Node
	Config    config.Config
	Bookings  bookingdomain.Repository
	Transfers transferdomain.Repository
	Payouts   payoutdomain.Repository
	Profiles  profiledomain.Repository
	Client    PaymentClient
	Notifier  notification.Notifier
	Telemetry *telemetry.Metrics `optional:"true"`
}

type handlerFunc func(ctx context.Context, event *paymentdomain.Event) error

// Dispatcher routes each verified event to exactly one handler.
type Dispatcher struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	genID      *snowflake.Node
	retryDelay time.Duration

	bookings  bookingdomain.Repository
	transfers transferdomain.Repository
	payouts   payoutdomain.Repository
	profiles  profiledomain.Repository
	client    PaymentClient
	notifier  notification.Notifier
	telemetry *telemetry.Metrics

	handlers map[string]handlerFunc
}

func New(p Params) *Dispatcher {
	retryDelay := p.Config.Stripe.TransferRetryDelay
	if retryDelay <= 0 {
		retryDelay = transferdomain.RetryDelay
	}

	d := &Dispatcher{
		db:         p.DB,
		log:        p.Log.Named("payment.dispatcher"),
		clock:      p.Clock,
		genID:      p.GenID,
		retryDelay: retryDelay,
		bookings:   p.Bookings,
		transfers:  p.Transfers,
		payouts:    p.Payouts,
		profiles:   p.Profiles,
		client:     p.Client,
		notifier:   p.Notifier,
		telemetry:  p.Telemetry,
	}

	d.handlers = map[string]handlerFunc{
		paymentdomain.EventPaymentIntentProcessing:    d.handlePaymentProcessing,
		paymentdomain.EventPaymentIntentSucceeded:     d.handlePaymentSucceeded,
		paymentdomain.EventPaymentIntentPaymentFailed: d.handlePaymentFailed,
		paymentdomain.EventChargeSucceeded:            d.handleChargeSucceeded,
		paymentdomain.EventTransferCreated:            d.handleTransferCreated,
		paymentdomain.EventTransferPaid:               d.handleTransferPaid,
		paymentdomain.EventTransferFailed:             d.handleTransferFailed,
		paymentdomain.EventAccountUpdated:             d.handleAccountUpdated,
		paymentdomain.EventCapabilityUpdated:          d.handleAccountRefresh,
		paymentdomain.EventExternalAccountCreated:     d.handleAccountRefresh,
		paymentdomain.EventExternalAccountUpdated:     d.handleAccountRefresh,
		paymentdomain.EventExternalAccountDeleted:     d.handleAccountRefresh,
		paymentdomain.EventPayoutCreated:              d.handlePayout,
		paymentdomain.EventPayoutPaid:                 d.handlePayout,
		paymentdomain.EventPayoutFailed:               d.handlePayout,
	}
	return d
}

// Dispatch runs the handler for event. Unknown types are acknowledged.
func (d *Dispatcher) Dispatch(ctx context.Context, event *paymentdomain.Event) error {
	if event == nil {
		return paymentdomain.ErrInvalidEvent
	}
	log := logger.WithEvent(logger.WithContext(ctx, d.log), event.ID, event.Type)

	handler, ok := d.handlers[event.Type]
	if !ok {
		log.Info("unhandled event type acknowledged")
		d.telemetry.RecordHandler(event.Type, "ignored", 0)
		return nil
	}

	started := time.Now()
	err := handler(ctx, event)
	if err != nil {
		log.Error("event handler failed", zap.Error(err))
		d.telemetry.RecordHandler(event.Type, "error", time.Since(started))
		return err
	}
	d.telemetry.RecordHandler(event.Type, "success", time.Since(started))
	return nil
}

func payloadAs[T paymentdomain.Payload](event *paymentdomain.Event) (T, error) {
	payload, ok := event.Payload.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s carries %T", paymentdomain.ErrInvalidPayload, event.Type, event.Payload)
	}
	return payload, nil
}

func (d *Dispatcher) eventLog(ctx context.Context, event *paymentdomain.Event) *zap.Logger {
	return logger.WithEvent(logger.WithContext(ctx, d.log), event.ID, event.Type)
}
