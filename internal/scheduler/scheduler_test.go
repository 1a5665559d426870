package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	bookingrepo "github.com/smallbiznis/trailpay/internal/booking/repository"
	"github.com/smallbiznis/trailpay/internal/clock"
	"github.com/smallbiznis/trailpay/internal/notification"
	"github.com/smallbiznis/trailpay/internal/ratelimit"
	"github.com/smallbiznis/trailpay/internal/testutil"
	transferdomain "github.com/smallbiznis/trailpay/internal/transfer/domain"
	transferrepo "github.com/smallbiznis/trailpay/internal/transfer/repository"
	"github.com/smallbiznis/trailpay/pkg/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var schedulerNow = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

type fakeReplayer struct {
	calls       int
	maxAttempts int
	backoff     time.Duration
	err         error
}

func (f *fakeReplayer) ReplayFailed(ctx context.Context, maxAttempts int, backoff time.Duration, limit int) (int, error) {
	f.calls++
	f.maxAttempts = maxAttempts
	f.backoff = backoff
	return 1, f.err
}

type fakeAttributor struct {
	seen    []string
	resolve bool
}

func (f *fakeAttributor) RetryAttribution(ctx context.Context, transfer transferdomain.Transfer) (bool, error) {
	f.seen = append(f.seen, transfer.ProviderTransferID)
	return f.resolve, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	alerts []string
}

func (f *fakeNotifier) Notify(ctx context.Context, msg notification.Message) {}

func (f *fakeNotifier) AlertOperators(ctx context.Context, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, text)
}

func (f *fakeNotifier) FailureMessage(code, declineCode string) string { return code }

type harness struct {
	db         *gorm.DB
	clock      *clock.FakeClock
	replayer   *fakeReplayer
	attributor *fakeAttributor
	notifier   *fakeNotifier
	registry   *prometheus.Registry
	sched      *Scheduler
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	h := &harness{
		db:         testutil.NewDB(t),
		clock:      clock.NewFakeClock(schedulerNow),
		replayer:   &fakeReplayer{},
		attributor: &fakeAttributor{},
		notifier:   &fakeNotifier{},
		registry:   prometheus.NewRegistry(),
	}
	h.sched, err = New(Params{
		DB:         h.db,
		Log:        zap.NewNop(),
		Clock:      h.clock,
		GenID:      node,
		Config:     cfg,
		Replayer:   h.replayer,
		Attributor: h.attributor,
		Transfers:  transferrepo.Provide(),
		Bookings:   bookingrepo.Provide(),
		Notifier:   h.notifier,
		Locker:     ratelimit.NewLocker(nil),
		Telemetry:  telemetry.NewMetricsWithRegisterer(h.registry),
	})
	require.NoError(t, err)
	return h
}

func (h *harness) seedUnattributedTransfer(t *testing.T, id int64, providerID string, nextRetryAt time.Time) {
	t.Helper()
	require.NoError(t, h.db.Exec(
		`INSERT INTO transfers (id, provider_transfer_id, amount, currency, destination, status, retry_count, next_retry_at, metadata, created_at, updated_at)
		 VALUES (?, ?, 5000, 'EUR', 'acct_unknown', 'failed', 0, ?, '{}', ?, ?)`,
		id, providerID, nextRetryAt, schedulerNow, schedulerNow,
	).Error)
}

func TestRunOnceRunsEveryJob(t *testing.T) {
	h := newHarness(t, Config{MaxReplayAttempts: 3, ReplayBackoff: 5 * time.Minute})
	market := testutil.SeedMarketplace(t, h.db)

	h.seedUnattributedTransfer(t, 1, "tr_due", schedulerNow.Add(-time.Minute))
	h.seedUnattributedTransfer(t, 2, "tr_later", schedulerNow.Add(time.Hour))
	testutil.SeedBooking(t, h.db, testutil.BookingFixture{
		ID:              "bk-stale",
		TourID:          market.TourID,
		HikerID:         market.HikerID,
		Status:          "cancelled",
		PaymentStatus:   "succeeded",
		TotalPrice:      10000,
		PaymentIntentID: testutil.Ptr("pi_1"),
		RefundStatus:    "pending",
		UpdatedAt:       schedulerNow.Add(-2 * time.Hour),
	})
	testutil.SeedBooking(t, h.db, testutil.BookingFixture{
		ID:           "bk-fresh",
		TourID:       market.TourID,
		HikerID:      market.HikerID,
		TotalPrice:   10000,
		RefundStatus: "pending",
		UpdatedAt:    schedulerNow.Add(-10 * time.Minute),
	})

	require.NoError(t, h.sched.RunOnce(context.Background()))

	assert.Equal(t, 1, h.replayer.calls)
	assert.Equal(t, 3, h.replayer.maxAttempts)
	assert.Equal(t, 5*time.Minute, h.replayer.backoff)
	assert.Equal(t, []string{"tr_due"}, h.attributor.seen)
	require.Len(t, h.notifier.alerts, 1)
	assert.Contains(t, h.notifier.alerts[0], "TRL-bk-stale")

	for _, job := range []string{JobReplayFailedEvents, JobRetryTransferMetadata, JobAlertStaleRefunds} {
		assert.Equal(t, float64(1), getCounterValue(t, h.registry, "trailpay_scheduler_job_runs_total",
			map[string]string{"job": job, "status": "succeeded"}))
	}
}

func TestAlertStaleRefundsRealertsAfterWindow(t *testing.T) {
	h := newHarness(t, Config{StaleRefundAfter: time.Hour, StaleRefundRealert: 24 * time.Hour})
	market := testutil.SeedMarketplace(t, h.db)
	testutil.SeedBooking(t, h.db, testutil.BookingFixture{
		ID:           "bk-stale",
		TourID:       market.TourID,
		HikerID:      market.HikerID,
		TotalPrice:   10000,
		RefundStatus: "pending",
		UpdatedAt:    schedulerNow.Add(-2 * time.Hour),
	})

	require.NoError(t, h.sched.AlertStaleRefundsJob(context.Background()))
	require.NoError(t, h.sched.AlertStaleRefundsJob(context.Background()))
	assert.Len(t, h.notifier.alerts, 1)

	h.clock.Advance(25 * time.Hour)
	require.NoError(t, h.sched.AlertStaleRefundsJob(context.Background()))
	assert.Len(t, h.notifier.alerts, 2)
}

func TestRunOnceSkipsDisabledJobs(t *testing.T) {
	h := newHarness(t, Config{DisabledJobs: []string{JobReplayFailedEvents}})

	require.NoError(t, h.sched.RunOnce(context.Background()))
	assert.Zero(t, h.replayer.calls)
}

func TestRunOnceJoinsJobErrors(t *testing.T) {
	h := newHarness(t, Config{})
	h.replayer.err = errors.New("database unavailable")

	err := h.sched.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), JobReplayFailedEvents)
	assert.Equal(t, float64(1), getCounterValue(t, h.registry, "trailpay_scheduler_job_runs_total",
		map[string]string{"job": JobReplayFailedEvents, "status": "failed"}))
	assert.Equal(t, float64(1), getCounterValue(t, h.registry, "trailpay_scheduler_job_runs_total",
		map[string]string{"job": JobAlertStaleRefunds, "status": "succeeded"}))
}

func TestRunJobTimeoutDoesNotReturnError(t *testing.T) {
	h := newHarness(t, Config{})

	err := h.sched.runJob(context.Background(), "timeout_job", 0, 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)
	assert.Equal(t, float64(1), getCounterValue(t, h.registry, "trailpay_scheduler_job_runs_total",
		map[string]string{"job": "timeout_job", "status": "timeout"}))
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			if metric.Counter == nil {
				t.Fatalf("metric %s is not a counter", name)
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
