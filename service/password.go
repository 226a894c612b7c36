package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/cgraph/gatekeeper/core"
)

// breachCheckTimeout bounds the off-path breach lookup so a slow upstream
// can never pile up goroutines.
const breachCheckTimeout = 5 * time.Second

// Register creates a password user. The email is stored lowercase; the
// password is hashed with Argon2id. The breach check runs after the caller
// gets its response and can only ever log.
func (s *AuthService) Register(ctx context.Context, email, password, username string) (*core.User, error) {
	email = core.NormalizeEmail(email)

	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return nil, core.ErrEmailTaken
	} else if !errors.Is(err, core.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &core.User{
		ID:           uuid.New().String(),
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.checkBreachAsync(email, password)

	return user, nil
}

// checkBreachAsync runs the breach lookup off the critical path. Failures
// and unavailability count as "no finding"; findings are logged under a
// per-email cooldown.
func (s *AuthService) checkBreachAsync(email, password string) {
	if s.breach == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), breachCheckTimeout)
		defer cancel()

		count, err := s.breach.PwnedCount(ctx, password)
		if err != nil {
			log.Printf("warning: breach check unavailable: %v", err)
			return
		}
		if count > 0 && s.breachLog.allow(email) {
			log.Printf("warning: password for %s appears in %d known breaches", email, count)
		}
	}()
}

// Authenticate verifies an email/password pair. Unknown email and wrong
// password both cost one hash verification and both return
// core.ErrInvalidCredentials, so neither the error nor the latency leaks
// which one happened.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (core.Principal, error) {
	email = core.NormalizeEmail(email)

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, core.ErrUserNotFound) {
			// Burn a verification against the reference hash anyway.
			_, _ = s.hasher.Verify(password, s.dummyHash)
			return core.Principal{}, core.ErrInvalidCredentials
		}
		return core.Principal{}, fmt.Errorf("failed to look up user: %w", err)
	}

	hash := user.PasswordHash
	if hash == "" {
		// Wallet-only account; no password credential exists.
		hash = s.dummyHash
	}

	ok, err := s.hasher.Verify(password, hash)
	if err != nil || !ok || user.PasswordHash == "" || !user.Active() {
		return core.Principal{}, core.ErrInvalidCredentials
	}

	return core.Principal{UserID: user.ID, Email: user.Email, Address: user.WalletAddress}, nil
}

// ChangePassword verifies the current password, swaps the hash, and revokes
// every active session so stolen session handles die with the old password.
func (s *AuthService) ChangePassword(ctx context.Context, userID, current, next string) error {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	ok, err := s.hasher.Verify(current, user.PasswordHash)
	if err != nil || !ok {
		return core.ErrInvalidCredentials
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.users.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	count, err := s.sessions.RevokeAllSessions(ctx, userID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}
	s.publishRevocation(ctx, userID, "password_reset", count)

	return nil
}
