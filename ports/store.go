package ports

import (
	"context"
	"time"

	"github.com/cgraph/gatekeeper/core"
)

// UserStore persists user records and their second-factor state.
type UserStore interface {
	CreateUser(ctx context.Context, user *core.User) error
	GetUserByID(ctx context.Context, id string) (*core.User, error)
	GetUserByEmail(ctx context.Context, email string) (*core.User, error)
	GetUserByWallet(ctx context.Context, address string) (*core.User, error)

	UpdatePasswordHash(ctx context.Context, userID, hash string) error
	SetBanned(ctx context.Context, userID string, bannedAt *time.Time) error

	// EnableTOTP persists the confirmed secret, the hashed backup codes and
	// the enabled timestamp in one transaction.
	EnableTOTP(ctx context.Context, userID, secret string, codeHashes []string, enabledAt time.Time) error
	// DisableTOTP clears the secret and every remaining backup code.
	DisableTOTP(ctx context.Context, userID string) error
	// ReplaceBackupCodes swaps the whole backup-code set atomically.
	ReplaceBackupCodes(ctx context.Context, userID string, codeHashes []string) error
	// ConsumeBackupCode removes exactly one matching code and reports whether
	// a code was consumed plus the remaining count. The removal must be
	// atomic so the same code can never be spent twice.
	ConsumeBackupCode(ctx context.Context, userID, codeHash string) (consumed bool, remaining int, err error)
	CountBackupCodes(ctx context.Context, userID string) (int, error)
}

// SessionStore persists opaque session handles.
type SessionStore interface {
	CreateSession(ctx context.Context, session *core.Session) error
	GetSessionByID(ctx context.Context, sessionID string) (*core.Session, error)
	GetSessionByTokenHash(ctx context.Context, tokenHash string) (*core.Session, error)
	TouchSession(ctx context.Context, sessionID string, at time.Time) error
	// RevokeSession stamps revoked_at; rows are never deleted.
	RevokeSession(ctx context.Context, sessionID string, at time.Time) error
	// RevokeAllSessions revokes every live session for a user and returns
	// how many were revoked.
	RevokeAllSessions(ctx context.Context, userID string, at time.Time) (int, error)
	// ListActiveSessions returns live sessions, most recently active first.
	ListActiveSessions(ctx context.Context, userID string, now time.Time) ([]*core.Session, error)
}

// ChallengeStore holds the single live wallet challenge per address.
type ChallengeStore interface {
	// PutIfAbsent stores the challenge unless a live one already exists, in
	// which case the existing challenge is returned. The nonce must stay
	// stable across repeated requests within the freshness window.
	PutIfAbsent(ctx context.Context, challenge *core.Challenge, ttl time.Duration) (*core.Challenge, error)
	// Take atomically fetches and deletes the challenge for an address.
	// Two concurrent calls must never both receive it; the loser gets
	// core.ErrChallengeNotFound.
	Take(ctx context.Context, address string) (*core.Challenge, error)
}

// DenyList records refresh-token IDs that have been rotated or revoked.
type DenyList interface {
	Deny(ctx context.Context, tokenID string, ttl time.Duration) error
	IsDenied(ctx context.Context, tokenID string) (bool, error)
}
