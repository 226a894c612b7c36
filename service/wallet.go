package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cgraph/gatekeeper/core"
	"github.com/cgraph/gatekeeper/internal/eth"
)

// ChallengeMessage builds the exact string a wallet must sign. The format is
// part of the wire contract; any byte change breaks verification for every
// deployed client.
func ChallengeMessage(appName, nonce string) string {
	return fmt.Sprintf("Sign this message to authenticate with %s.\n\nNonce: %s", appName, nonce)
}

// SignMessage renders the challenge message for this deployment's app name.
func (s *AuthService) SignMessage(nonce string) string {
	return ChallengeMessage(s.appName, nonce)
}

// IssueChallenge returns the live challenge for an address, creating one when
// none exists. Within the freshness window the nonce is stable so a client
// can retry signing without invalidating its own challenge; expiry rotation
// happens in the store via TTL.
func (s *AuthService) IssueChallenge(ctx context.Context, address string) (*core.Challenge, error) {
	address = core.NormalizeAddress(address)

	nonceBytes := make([]byte, 32)
	if _, err := rand.Read(nonceBytes); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	candidate := &core.Challenge{
		Address:  address,
		Nonce:    hex.EncodeToString(nonceBytes),
		IssuedAt: time.Now(),
	}

	challenge, err := s.challenges.PutIfAbsent(ctx, candidate, s.challengeTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to store challenge: %w", err)
	}
	return challenge, nil
}

// VerifyWallet checks a personal-sign signature over the live challenge for
// an address. The challenge is consumed atomically before signature checking,
// so a valid signature can succeed at most once. Every verification failure
// collapses into core.ErrInvalidSignature. Success resolves the owning user,
// provisioning one when the wallet is new.
func (s *AuthService) VerifyWallet(ctx context.Context, address, signature string) (core.Principal, error) {
	address = core.NormalizeAddress(address)

	challenge, err := s.challenges.Take(ctx, address)
	if err != nil {
		if errors.Is(err, core.ErrChallengeNotFound) {
			return core.Principal{}, core.ErrChallengeNotFound
		}
		return core.Principal{}, fmt.Errorf("failed to take challenge: %w", err)
	}

	message := ChallengeMessage(s.appName, challenge.Nonce)
	if err := eth.VerifyPersonalSign([]byte(message), signature, address); err != nil {
		// Do not reveal which step failed.
		return core.Principal{}, core.ErrInvalidSignature
	}

	user, err := s.users.GetUserByWallet(ctx, address)
	if errors.Is(err, core.ErrUserNotFound) {
		user, err = s.provisionWalletUser(ctx, address)
	}
	if err != nil {
		return core.Principal{}, fmt.Errorf("failed to resolve wallet user: %w", err)
	}
	if !user.Active() {
		return core.Principal{}, core.ErrUserBanned
	}

	return core.Principal{UserID: user.ID, Email: user.Email, Address: user.WalletAddress}, nil
}

// provisionWalletUser creates a placeholder account for a first-time wallet.
func (s *AuthService) provisionWalletUser(ctx context.Context, address string) (*core.User, error) {
	short := address
	if len(short) > 10 {
		// Skip "0x", keep the first eight hex chars.
		short = short[2:10]
	}

	user := &core.User{
		ID:            uuid.New().String(),
		Email:         address + "@wallet.local",
		Username:      "wallet_" + short,
		WalletAddress: address,
		CreatedAt:     time.Now(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
