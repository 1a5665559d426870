package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/trailpay/internal/audit/domain"
	"github.com/smallbiznis/trailpay/internal/audit/repository"
	"github.com/smallbiznis/trailpay/internal/clock"
	obscontext "github.com/smallbiznis/trailpay/internal/observability/context"
	"github.com/smallbiznis/trailpay/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (auditdomain.Service, *clock.FakeClock) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	return NewService(Params{
		DB:    testutil.NewDB(t),
		Log:   zap.NewNop(),
		Clock: fake,
		GenID: node,
		Repo:  repository.Provide(),
	}), fake
}

func TestAuditLogResolvesActorFromContext(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := obscontext.WithActor(context.Background(), "admin-1", "admin")
	ctx = obscontext.WithRequestID(ctx, "req-1")
	bookingID := "bk-1"

	require.NoError(t, svc.AuditLog(ctx, "", nil, auditdomain.ActionRefundCreated, auditdomain.TargetBooking, &bookingID, map[string]any{
		"payment_intent_id": "pi_3Nabcd9876",
		"amount":            3500,
	}))

	resp, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{
		TargetType: auditdomain.TargetBooking,
		TargetID:   bookingID,
	})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)

	entry := resp.AuditLogs[0]
	assert.Equal(t, auditdomain.ActorTypeUser, entry.ActorType)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "admin-1", *entry.ActorID)
	assert.Equal(t, "pi_****9876", entry.Metadata["payment_intent_id"])
	assert.Equal(t, "req-1", entry.Metadata["request_id"])
}

func TestAuditLogDefaultsToSystemActor(t *testing.T) {
	svc, _ := newTestService(t)
	bookingID := "bk-1"

	require.NoError(t, svc.AuditLog(context.Background(), "", nil, auditdomain.ActionBookingCancelled, auditdomain.TargetBooking, &bookingID, nil))

	resp, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{TargetType: auditdomain.TargetBooking, TargetID: bookingID})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)
	assert.Equal(t, auditdomain.ActorTypeSystem, resp.AuditLogs[0].ActorType)
	assert.Nil(t, resp.AuditLogs[0].ActorID)
}

func TestAuditLogRequiresAction(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.AuditLog(context.Background(), "", nil, " ", auditdomain.TargetBooking, nil, nil)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestListPaginatesNewestFirst(t *testing.T) {
	svc, fake := newTestService(t)
	bookingID := "bk-1"
	actions := []string{
		auditdomain.ActionRefundDenied,
		auditdomain.ActionRefundFailed,
		auditdomain.ActionRefundCreated,
	}
	for _, action := range actions {
		require.NoError(t, svc.AuditLog(context.Background(), "", nil, action, auditdomain.TargetBooking, &bookingID, nil))
		fake.Advance(time.Minute)
	}

	req := auditdomain.ListAuditLogRequest{TargetType: auditdomain.TargetBooking, TargetID: bookingID}
	req.PageSize = 2
	first, err := svc.List(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, first.AuditLogs, 2)
	assert.True(t, first.HasMore)
	assert.Equal(t, auditdomain.ActionRefundCreated, first.AuditLogs[0].Action)
	assert.Equal(t, auditdomain.ActionRefundFailed, first.AuditLogs[1].Action)

	req.PageToken = first.NextPageToken
	second, err := svc.List(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, second.AuditLogs, 1)
	assert.False(t, second.HasMore)
	assert.Equal(t, auditdomain.ActionRefundDenied, second.AuditLogs[0].Action)
}

func TestListValidatesRequest(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{TargetType: auditdomain.TargetBooking})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTarget)

	req := auditdomain.ListAuditLogRequest{TargetType: auditdomain.TargetBooking, TargetID: "bk-1"}
	req.PageToken = "not-a-cursor"
	_, err = svc.List(context.Background(), req)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidPageToken)
}
