package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/smallbiznis/trailpay/internal/booking/domain"
	"github.com/smallbiznis/trailpay/internal/clock"
	"github.com/smallbiznis/trailpay/internal/notification"
	"github.com/smallbiznis/trailpay/internal/ratelimit"
	transferdomain "github.com/smallbiznis/trailpay/internal/transfer/domain"
	"github.com/smallbiznis/trailpay/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	JobReplayFailedEvents    = "replay_failed_events"
	JobRetryTransferMetadata = "retry_transfer_metadata"
	JobAlertStaleRefunds     = "alert_stale_refunds"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

// EventReplayer re-runs failed webhook deliveries through the idempotency guard.
type EventReplayer interface {
	ReplayFailed(ctx context.Context, maxAttempts int, backoff time.Duration, limit int) (int, error)
}

// TransferAttributor re-resolves the guide and booking of an unattributed transfer.
type TransferAttributor interface {
	RetryAttribution(ctx context.Context, transfer transferdomain.Transfer) (bool, error)
}

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	GenID      *snowflake.Node
	Config     Config `optional:"true"`
	Replayer   EventReplayer
	Attributor TransferAttributor
	Transfers  transferdomain.Repository
	Bookings   bookingdomain.Repository
	Notifier   notification.Notifier
	Locker     *ratelimit.Locker
	Telemetry  *telemetry.Metrics `optional:"true"`
}

type Scheduler struct {
	db         *gorm.DB
	log        *zap.Logger
	cfg        Config
	clock      clock.Clock
	genID      *snowflake.Node
	replayer   EventReplayer
	attributor TransferAttributor
	transfers  transferdomain.Repository
	bookings   bookingdomain.Repository
	notifier   notification.Notifier
	locker     *ratelimit.Locker
	telemetry  *telemetry.Metrics

	mu      sync.Mutex
	alerted map[string]time.Time
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.GenID == nil || p.Replayer == nil ||
		p.Attributor == nil || p.Transfers == nil || p.Bookings == nil || p.Notifier == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:         p.DB,
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		clock:      p.Clock,
		genID:      p.GenID,
		replayer:   p.Replayer,
		attributor: p.Attributor,
		transfers:  p.Transfers,
		bookings:   p.Bookings,
		notifier:   p.Notifier,
		locker:     p.Locker,
		telemetry:  p.Telemetry,
		alerted:    map[string]time.Time{},
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	lockKey := "scheduler:job:" + name
	token, acquired, err := s.locker.TryLock(parent, lockKey, timeout)
	if err != nil {
		s.log.Warn("job lock unavailable, running unlocked", zap.String("job", name), zap.Error(err))
		acquired = true
	}
	if !acquired {
		s.log.Debug("job held by another instance", zap.String("job", name))
		s.telemetry.RecordJobRun(name, "skipped")
		return nil
	}
	defer func() {
		_ = s.locker.Release(context.WithoutCancel(parent), lockKey, token)
	}()

	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run := s.startJobRun(ctx, name, batchSize)
	s.logJobStart(ctx, run)

	err = fn(ctx)
	if err != nil && run.errorCount == 0 {
		run.IncError()
	}
	s.logJobFinish(ctx, run)
	if err == nil {
		s.telemetry.RecordJobRun(name, "succeeded")
		return nil
	}

	// deadline is a soft timeout; the next run picks up the rest
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.telemetry.RecordJobRun(name, "timeout")
		s.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	s.telemetry.RecordJobRun(name, "failed")
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobReplayFailedEvents, s.ReplayFailedEventsJob},
		{JobRetryTransferMetadata, s.RetryTransferMetadataJob},
		{JobAlertStaleRefunds, s.AlertStaleRefundsJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, s.cfg.BatchSize, s.cfg.JobTimeout, job.Run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	for _, disabled := range s.cfg.DisabledJobs {
		if strings.EqualFold(strings.TrimSpace(disabled), jobName) {
			return false
		}
	}
	return true
}

// ReplayFailedEventsJob retries failed webhook deliveries whose backoff elapsed.
func (s *Scheduler) ReplayFailedEventsJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	replayed, err := s.replayer.ReplayFailed(ctx, s.cfg.MaxReplayAttempts, s.cfg.ReplayBackoff, s.cfg.BatchSize)
	run.AddProcessed(replayed)
	return err
}

// RetryTransferMetadataJob re-resolves transfers whose guide could not be found.
func (s *Scheduler) RetryTransferMetadataJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	transfers, err := s.transfers.ListDueAttributionRetries(ctx, s.db, s.clock.Now(), s.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, transfer := range transfers {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		resolved, err := s.attributor.RetryAttribution(ctx, transfer)
		if err != nil {
			s.logSchedulerError(ctx, run, "transfer attribution retry failed", err,
				zap.String("transfer_id", transfer.ProviderTransferID),
			)
			continue
		}
		if resolved {
			run.AddProcessed(1)
			s.logger(ctx).Info("transfer attributed",
				zap.String("transfer_id", transfer.ProviderTransferID),
				zap.Int("retry_count", transfer.RetryCount),
			)
		}
	}
	return nil
}

// AlertStaleRefundsJob asks operators to reconcile refunds stuck in pending.
func (s *Scheduler) AlertStaleRefundsJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	now := s.clock.Now()
	bookings, err := s.bookings.ListStaleRefunds(ctx, s.db, now.Add(-s.cfg.StaleRefundAfter), s.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, booking := range bookings {
		if !s.shouldAlert(booking.ID, now) {
			continue
		}
		s.notifier.AlertOperators(ctx, fmt.Sprintf(
			"Refund for booking %s has been pending since %s. Check the provider dashboard and reconcile manually.",
			booking.Reference, booking.UpdatedAt.UTC().Format(time.RFC3339),
		))
		run.AddProcessed(1)
	}
	return nil
}

func (s *Scheduler) shouldAlert(bookingID string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.alerted[bookingID]; ok && now.Sub(last) < s.cfg.StaleRefundRealert {
		return false
	}
	s.alerted[bookingID] = now
	return true
}
