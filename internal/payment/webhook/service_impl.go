package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/trailpay/internal/clock"
	"github.com/smallbiznis/trailpay/internal/config"
	"github.com/smallbiznis/trailpay/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/trailpay/internal/observability/metrics"
	"github.com/smallbiznis/trailpay/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/trailpay/internal/payment/domain"
	"github.com/smallbiznis/trailpay/internal/ratelimit"
	"github.com/smallbiznis/trailpay/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxLastErrorLength = 1000

// Dispatcher applies a verified event to local state.
type Dispatcher interface {
	Dispatch(ctx context.Context, event *paymentdomain.Event) error
}

// IngestResult describes what happened to an accepted delivery.
type IngestResult struct {
	EventID   string
	EventType string
	Duplicate bool
}

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	GenID      *snowflake.Node
	Cfg        config.Config
	Repo       paymentdomain.Repository
	Adapters   *adapters.Registry
	Dispatcher Dispatcher
	Locker     *ratelimit.Locker
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
	Telemetry  *telemetry.Metrics  `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	genID      *snowflake.Node
	repo       paymentdomain.Repository
	adapter    paymentdomain.PaymentAdapter
	dispatcher Dispatcher
	locker     *ratelimit.Locker
	lockTTL    time.Duration
	obsMetrics *obsmetrics.Metrics
	telemetry  *telemetry.Metrics
}

func NewService(p Params) *Service {
	log := p.Log.Named("payment.webhook")

	adapter, err := p.Adapters.NewAdapter(paymentdomain.ProviderStripe, paymentdomain.AdapterConfig{
		WebhookSecret:      p.Cfg.Stripe.WebhookSecret,
		SigningVersion:     p.Cfg.Stripe.SigningVersion,
		TimestampTolerance: p.Cfg.Stripe.TimestampTolerance,
		Now:                p.Clock.Now,
	})
	if err != nil {
		log.Warn("stripe webhook adapter unavailable", zap.Error(err))
	}

	lockTTL := p.Cfg.RateLimit.EventLockTTL
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}

	return &Service{
		db:         p.DB,
		log:        log,
		clock:      p.Clock,
		genID:      p.GenID,
		repo:       p.Repo,
		adapter:    adapter,
		dispatcher: p.Dispatcher,
		locker:     p.Locker,
		lockTTL:    lockTTL,
		obsMetrics: p.ObsMetrics,
		telemetry:  p.Telemetry,
	}
}

// Ingest verifies, deduplicates, logs and dispatches one delivery. An event is
// marked processed only after its dispatch succeeds.
func (s *Service) Ingest(ctx context.Context, payload []byte, headers http.Header) (*IngestResult, error) {
	started := time.Now()
	if s.adapter == nil {
		return nil, paymentdomain.ErrInvalidConfig
	}

	if err := s.adapter.Verify(ctx, payload, headers); err != nil {
		if errors.Is(err, paymentdomain.ErrInvalidSignature) {
			logger.WithContext(ctx, s.log).Warn("webhook signature rejected, possible forged delivery",
				zap.Int("payload_bytes", len(payload)),
			)
			s.record(ctx, "", "invalid_signature", started)
		}
		return nil, err
	}

	event, err := s.adapter.Parse(ctx, payload)
	if err != nil {
		s.record(ctx, "", "invalid_payload", started)
		return nil, err
	}

	result, err := s.process(ctx, event)
	switch {
	case err != nil:
		s.record(ctx, event.Type, "failed", started)
	case result.Duplicate:
		s.record(ctx, event.Type, "duplicate", started)
	default:
		s.record(ctx, event.Type, "processed", started)
	}
	return result, err
}

// Replay re-runs a stored queue entry through the same guard as a live delivery.
func (s *Service) Replay(ctx context.Context, entry paymentdomain.QueueEntry) (*IngestResult, error) {
	if s.adapter == nil {
		return nil, paymentdomain.ErrInvalidConfig
	}
	event, err := s.adapter.Parse(ctx, entry.Payload)
	if err != nil {
		return nil, err
	}
	if event.ID != entry.EventID {
		return nil, fmt.Errorf("%w: queue entry %s holds event %s", paymentdomain.ErrInvalidEvent, entry.EventID, event.ID)
	}
	return s.process(ctx, event)
}

// ReplayFailed retries failed queue entries whose last attempt is older than
// backoff. It returns how many entries were processed successfully.
func (s *Service) ReplayFailed(ctx context.Context, maxAttempts int, backoff time.Duration, limit int) (int, error) {
	entries, err := s.repo.ListReplayable(ctx, s.db, maxAttempts, s.clock.Now().Add(-backoff), limit)
	if err != nil {
		return 0, err
	}

	replayed := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return replayed, ctx.Err()
		}
		result, err := s.Replay(ctx, entry)
		if err != nil {
			s.log.Warn("event replay failed",
				zap.String("event_id", entry.EventID),
				zap.Int("attempts", entry.Attempts+1),
				zap.Error(err),
			)
			continue
		}
		if !result.Duplicate {
			replayed++
		}
	}

	if failed, err := s.repo.CountFailed(ctx, s.db); err == nil {
		s.telemetry.SetQueueBacklog(float64(failed))
	}
	return replayed, nil
}

func (s *Service) process(ctx context.Context, event *paymentdomain.Event) (*IngestResult, error) {
	result := &IngestResult{EventID: event.ID, EventType: event.Type}
	log := logger.WithEvent(logger.WithContext(ctx, s.log), event.ID, event.Type)

	lockKey := "payment_event:" + event.ID
	token, acquired, err := s.locker.TryLock(ctx, lockKey, s.lockTTL)
	if err != nil {
		log.Warn("event lock unavailable, relying on database guard", zap.Error(err))
		acquired = true
	}
	if !acquired {
		s.obsMetrics.RecordLockContention(ctx, "payment_event")
		return nil, paymentdomain.ErrEventInFlight
	}
	defer func() {
		_ = s.locker.Release(context.WithoutCancel(ctx), lockKey, token)
	}()

	stored, err := s.repo.FindEvent(ctx, s.db, paymentdomain.ProviderStripe, event.ID)
	if err != nil {
		return nil, err
	}
	if stored != nil && stored.Processed {
		log.Info("duplicate event skipped")
		result.Duplicate = true
		return result, nil
	}

	now := s.clock.Now()
	if stored == nil {
		inserted, err := s.repo.InsertEvent(ctx, s.db, &paymentdomain.EventRecord{
			ID:              s.genID.Generate(),
			Provider:        paymentdomain.ProviderStripe,
			ProviderEventID: event.ID,
			EventType:       event.Type,
			Payload:         datatypes.JSON(event.Raw),
			APIVersion:      event.APIVersion,
			Livemode:        event.Livemode,
			ReceivedAt:      now,
		})
		if err != nil {
			return nil, err
		}
		if !inserted {
			stored, err = s.repo.FindEvent(ctx, s.db, paymentdomain.ProviderStripe, event.ID)
			if err != nil {
				return nil, err
			}
			if stored != nil && stored.Processed {
				result.Duplicate = true
				return result, nil
			}
		}
	}

	if _, err := s.repo.InsertQueueEntry(ctx, s.db, &paymentdomain.QueueEntry{
		ID:         s.genID.Generate(),
		EventID:    event.ID,
		EventType:  event.Type,
		Payload:    datatypes.JSON(event.Raw),
		Status:     paymentdomain.QueueStatusPending,
		APIVersion: event.APIVersion,
		Livemode:   event.Livemode,
		CreatedAt:  now,
		UpdatedAt:  now,
	}); err != nil {
		return nil, err
	}

	if err := s.dispatcher.Dispatch(ctx, event); err != nil {
		if qerr := s.repo.MarkQueueFailed(ctx, s.db, event.ID, truncate(err.Error(), maxLastErrorLength), s.clock.Now()); qerr != nil {
			log.Error("failed to record dispatch failure", zap.Error(qerr))
		}
		return nil, fmt.Errorf("dispatch %s: %w", event.Type, err)
	}

	processedAt := s.clock.Now()
	if err := s.repo.MarkProcessed(ctx, s.db, paymentdomain.ProviderStripe, event.ID, processedAt); err != nil {
		return nil, err
	}
	if err := s.repo.MarkQueueSucceeded(ctx, s.db, event.ID, processedAt); err != nil {
		log.Warn("failed to close queue entry", zap.Error(err))
	}
	log.Info("event processed")
	return result, nil
}

func (s *Service) record(ctx context.Context, eventType, outcome string, started time.Time) {
	s.obsMetrics.RecordPaymentEvent(ctx, paymentdomain.ProviderStripe, eventType, outcome)
	s.telemetry.RecordWebhook(outcome, eventType, time.Since(started))
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}
