package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cgraph/gatekeeper/core"
	"github.com/cgraph/gatekeeper/ports"
)

// MintTokens produces an access/refresh pair for an authenticated principal.
func (s *AuthService) MintTokens(principal core.Principal) (*ports.TokenPair, error) {
	pair, err := s.tokenizer.Mint(principal)
	if err != nil {
		return nil, fmt.Errorf("failed to mint tokens: %w", err)
	}
	return pair, nil
}

// RefreshTokens rotates a refresh token. The presented token is single-use:
// its ID goes on the deny list for its remaining lifetime before the new
// pair is issued, so a replayed refresh token fails with ErrTokenRevoked.
func (s *AuthService) RefreshTokens(ctx context.Context, refreshToken string) (*ports.TokenPair, error) {
	claims, err := s.tokenizer.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, err
	}

	denied, err := s.denyList.IsDenied(ctx, claims.TokenID)
	if err != nil {
		return nil, fmt.Errorf("failed to check token denial: %w", err)
	}
	if denied {
		return nil, core.ErrTokenRevoked
	}

	user, err := s.users.GetUserByID(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if !user.Active() {
		return nil, core.ErrUserBanned
	}

	if err := s.denyList.Deny(ctx, claims.TokenID, time.Until(claims.ExpiresAt)); err != nil {
		return nil, fmt.Errorf("failed to retire refresh token: %w", err)
	}

	return s.MintTokens(core.Principal{UserID: user.ID, Email: user.Email, Address: user.WalletAddress})
}

// VerifyAccessToken validates an access token and returns the subject user
// id. Pure beyond the in-process signing key; no store round-trip.
func (s *AuthService) VerifyAccessToken(token string) (string, error) {
	return s.tokenizer.VerifyAccess(token)
}

// Logout retires a refresh token so it cannot mint again. Expired tokens are
// still denied for a grace period in case of clock skew.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.tokenizer.VerifyRefresh(refreshToken)
	if err != nil {
		return err
	}

	if err := s.denyList.Deny(ctx, claims.TokenID, time.Until(claims.ExpiresAt)); err != nil {
		return fmt.Errorf("failed to retire refresh token: %w", err)
	}

	if s.eventPub != nil {
		if err := s.eventPub.PublishLogout(ctx, claims.Subject, claims.TokenID); err != nil {
			log.Printf("warning: failed to publish logout event: %v", err)
		}
	}
	return nil
}
