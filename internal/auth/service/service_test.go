package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/trailpay/internal/auth/domain"
	"github.com/smallbiznis/trailpay/internal/auth/repository"
	"github.com/smallbiznis/trailpay/internal/clock"
	"github.com/smallbiznis/trailpay/internal/testutil"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (*Service, *clock.FakeClock, testutil.Marketplace) {
	t.Helper()

	dbConn := testutil.NewDB(t)
	market := testutil.SeedMarketplace(t, dbConn)

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}
	fake := clock.NewFakeClock(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))

	return New(Params{
		Log:         zap.NewNop(),
		Clock:       fake,
		GenID:       node,
		SessionRepo: repository.New(dbConn),
	}), fake, market
}

func TestAuthenticateResolvesRole(t *testing.T) {
	svc, _, market := newTestService(t)

	token, err := svc.IssueSession(context.Background(), market.GuideID, time.Hour)
	if err != nil {
		t.Fatalf("failed to issue session: %v", err)
	}

	actor, err := svc.Authenticate(context.Background(), token)
	if err != nil {
		t.Fatalf("expected actor, got %v", err)
	}
	if actor.UserID != market.GuideID || actor.Role != "guide" {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestAuthenticateRejectsUnknownToken(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Authenticate(context.Background(), "not-a-token")
	if !errors.Is(err, authdomain.ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
	_, err = svc.Authenticate(context.Background(), "  ")
	if !errors.Is(err, authdomain.ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession for blank token, got %v", err)
	}
}

func TestAuthenticateRejectsExpiredSession(t *testing.T) {
	svc, fake, market := newTestService(t)

	token, err := svc.IssueSession(context.Background(), market.AdminID, time.Hour)
	if err != nil {
		t.Fatalf("failed to issue session: %v", err)
	}
	fake.Advance(2 * time.Hour)

	_, err = svc.Authenticate(context.Background(), token)
	if !errors.Is(err, authdomain.ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	svc, _, market := newTestService(t)

	token, err := svc.IssueSession(context.Background(), market.HikerID, time.Hour)
	if err != nil {
		t.Fatalf("failed to issue session: %v", err)
	}
	if err := svc.Logout(context.Background(), token); err != nil {
		t.Fatalf("failed to logout: %v", err)
	}

	_, err = svc.Authenticate(context.Background(), token)
	if !errors.Is(err, authdomain.ErrSessionRevoked) {
		t.Fatalf("expected ErrSessionRevoked, got %v", err)
	}
}

func TestAuthenticateRequiresProfile(t *testing.T) {
	svc, _, _ := newTestService(t)

	token, err := svc.IssueSession(context.Background(), "ghost-user", time.Hour)
	if err != nil {
		t.Fatalf("failed to issue session: %v", err)
	}
	_, err = svc.Authenticate(context.Background(), token)
	if !errors.Is(err, authdomain.ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
}
