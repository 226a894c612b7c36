package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cgraph/gatekeeper/core"
)

// SessionContext captures the client environment a session was created from.
type SessionContext struct {
	UserAgent string
	IP        string
}

// CreateSession mints a persisted opaque session handle and returns it with
// the raw token. Only the token's SHA-256 is stored.
func (s *AuthService) CreateSession(ctx context.Context, userID string, client SessionContext) (*core.Session, string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", fmt.Errorf("failed to generate session token: %w", err)
	}
	rawToken := hex.EncodeToString(raw)

	now := time.Now()
	session := &core.Session{
		ID:           uuid.New().String(),
		UserID:       userID,
		TokenHash:    hashSessionToken(rawToken),
		UserAgent:    client.UserAgent,
		IP:           client.IP,
		CreatedAt:    now,
		LastActiveAt: now,
		ExpiresAt:    now.Add(s.sessionTTL),
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return nil, "", fmt.Errorf("failed to create session: %w", err)
	}

	return session, rawToken, nil
}

// ResolveSession maps a raw session token to its owning user. Revoked and
// expired sessions resolve as not found.
func (s *AuthService) ResolveSession(ctx context.Context, rawToken string) (*core.Session, error) {
	session, err := s.sessions.GetSessionByTokenHash(ctx, hashSessionToken(rawToken))
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if !session.Live(now) {
		return nil, core.ErrSessionNotFound
	}

	if err := s.sessions.TouchSession(ctx, session.ID, now); err != nil {
		return nil, fmt.Errorf("failed to touch session: %w", err)
	}
	session.LastActiveAt = now
	return session, nil
}

// RevokeSession idempotently revokes one of the user's sessions. The row
// stays for audit. A session owned by someone else is reported as not found.
func (s *AuthService) RevokeSession(ctx context.Context, userID, sessionID string) error {
	session, err := s.sessions.GetSessionByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.UserID != userID {
		return core.ErrSessionNotFound
	}

	if err := s.sessions.RevokeSession(ctx, sessionID, time.Now()); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// RevokeAllSessions bulk-revokes every active session for a user; invoked on
// ban, password reset and second-factor disable.
func (s *AuthService) RevokeAllSessions(ctx context.Context, userID, reason string) (int, error) {
	count, err := s.sessions.RevokeAllSessions(ctx, userID, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to revoke sessions: %w", err)
	}
	s.publishRevocation(ctx, userID, reason, count)
	return count, nil
}

// ListSessions returns the user's live sessions, most recently active first.
func (s *AuthService) ListSessions(ctx context.Context, userID string) ([]*core.Session, error) {
	return s.sessions.ListActiveSessions(ctx, userID, time.Now())
}

// BanUser soft-bans a user and kills every active session.
func (s *AuthService) BanUser(ctx context.Context, userID string) error {
	now := time.Now()
	if err := s.users.SetBanned(ctx, userID, &now); err != nil {
		return err
	}
	_, err := s.RevokeAllSessions(ctx, userID, "banned")
	return err
}

// UnbanUser clears the ban marker. Revoked sessions stay revoked.
func (s *AuthService) UnbanUser(ctx context.Context, userID string) error {
	return s.users.SetBanned(ctx, userID, nil)
}

func hashSessionToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
