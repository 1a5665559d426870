package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/trailpay/internal/auth/domain"
	"github.com/smallbiznis/trailpay/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const sessionTokenBytes = 32

type Params struct {
	fx.In

	Log         *zap.Logger
	Clock       clock.Clock
	GenID       *snowflake.Node
	SessionRepo domain.SessionRepository
}

// Service resolves bearer tokens into actors.
type Service struct {
	log         *zap.Logger
	clock       clock.Clock
	genID       *snowflake.Node
	sessionRepo domain.SessionRepository
}

func New(p Params) *Service {
	return &Service{
		log:         p.Log.Named("auth.service"),
		clock:       p.Clock,
		genID:       p.GenID,
		sessionRepo: p.SessionRepo,
	}
}

// IssueSession stores a new session for userID and returns the raw token.
func (s *Service) IssueSession(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", domain.ErrUserNotFound
	}
	rawToken, err := newSessionToken()
	if err != nil {
		return "", err
	}

	now := s.clock.Now()
	if err := s.sessionRepo.CreateSession(ctx, &domain.Session{
		ID:        s.genID.Generate(),
		UserID:    userID,
		TokenHash: hashToken(rawToken),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}); err != nil {
		return "", err
	}
	return rawToken, nil
}

func (s *Service) Logout(ctx context.Context, rawToken string) error {
	token := strings.TrimSpace(rawToken)
	if token == "" {
		return domain.ErrInvalidSession
	}

	session, err := s.sessionRepo.GetSessionByTokenHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return domain.ErrInvalidSession
		}
		return err
	}
	return s.sessionRepo.RevokeSession(ctx, session.ID, s.clock.Now())
}

// Authenticate validates the token and loads the caller's role.
func (s *Service) Authenticate(ctx context.Context, rawToken string) (*domain.Actor, error) {
	token := strings.TrimSpace(rawToken)
	if token == "" {
		return nil, domain.ErrInvalidSession
	}

	session, err := s.sessionRepo.GetSessionByTokenHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, domain.ErrInvalidSession
		}
		return nil, err
	}

	if session.RevokedAt != nil {
		return nil, domain.ErrSessionRevoked
	}
	if s.clock.Now().After(session.ExpiresAt) {
		return nil, domain.ErrSessionExpired
	}

	role, err := s.sessionRepo.FindRole(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.log.Warn("session owner has no profile", zap.String("user_id", session.UserID))
			return nil, domain.ErrInvalidSession
		}
		return nil, err
	}
	return &domain.Actor{UserID: session.UserID, Role: role}, nil
}

func newSessionToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
