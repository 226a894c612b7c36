package service

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cgraph/gatekeeper/core"
	"github.com/cgraph/gatekeeper/internal/eth"
)

func newWallet(t *testing.T) (*ecdsa.PrivateKey, string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key, crypto.PubkeyToAddress(key.PublicKey).Hex()
}

func signChallenge(t *testing.T, svc *AuthService, key *ecdsa.PrivateKey, nonce string) string {
	t.Helper()
	message := svc.SignMessage(nonce)
	sig, err := crypto.Sign(eth.PersonalSignHash([]byte(message)), key)
	require.NoError(t, err)
	return hex.EncodeToString(sig)
}

func TestChallengeMessageFormat(t *testing.T) {
	assert.Equal(t,
		"Sign this message to authenticate with CGraph.\n\nNonce: abc123",
		ChallengeMessage("CGraph", "abc123"))
}

func TestIssueChallengeStableWithinWindow(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.IssueChallenge(ctx, "0xABCDEF0000000000000000000000000000000001")
	require.NoError(t, err)
	require.NotEmpty(t, first.Nonce)

	// Retried requests inside the freshness window keep the nonce, even with
	// different address casing.
	second, err := svc.IssueChallenge(ctx, "0xabcdef0000000000000000000000000000000001")
	require.NoError(t, err)
	assert.Equal(t, first.Nonce, second.Nonce)
}

func TestVerifyWalletProvisionsNewUser(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	key, address := newWallet(t)

	challenge, err := svc.IssueChallenge(ctx, address)
	require.NoError(t, err)

	principal, err := svc.VerifyWallet(ctx, address, signChallenge(t, svc, key, challenge.Nonce))
	require.NoError(t, err)
	require.NotEmpty(t, principal.UserID)
	assert.Equal(t, core.NormalizeAddress(address), principal.Address)

	// A second login with the same wallet resolves the same account.
	challenge, err = svc.IssueChallenge(ctx, address)
	require.NoError(t, err)
	again, err := svc.VerifyWallet(ctx, address, signChallenge(t, svc, key, challenge.Nonce))
	require.NoError(t, err)
	assert.Equal(t, principal.UserID, again.UserID)
}

func TestVerifyWalletConsumesChallenge(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	key, address := newWallet(t)

	challenge, err := svc.IssueChallenge(ctx, address)
	require.NoError(t, err)
	signature := signChallenge(t, svc, key, challenge.Nonce)

	_, err = svc.VerifyWallet(ctx, address, signature)
	require.NoError(t, err)

	// Replaying the identical valid signature must fail: the challenge was
	// consumed by the first verification.
	_, err = svc.VerifyWallet(ctx, address, signature)
	assert.ErrorIs(t, err, core.ErrChallengeNotFound)
}

func TestVerifyWalletBadSignatureBurnsChallenge(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	key, address := newWallet(t)

	challenge, err := svc.IssueChallenge(ctx, address)
	require.NoError(t, err)

	// Signature over the wrong nonce.
	_, err = svc.VerifyWallet(ctx, address, signChallenge(t, svc, key, "stale-nonce"))
	assert.ErrorIs(t, err, core.ErrInvalidSignature)

	// The failed attempt consumed the challenge too.
	_, err = svc.VerifyWallet(ctx, address, signChallenge(t, svc, key, challenge.Nonce))
	assert.ErrorIs(t, err, core.ErrChallengeNotFound)
}

func TestVerifyWalletWrongKey(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, address := newWallet(t)
	otherKey, _ := newWallet(t)

	challenge, err := svc.IssueChallenge(ctx, address)
	require.NoError(t, err)

	_, err = svc.VerifyWallet(ctx, address, signChallenge(t, svc, otherKey, challenge.Nonce))
	assert.ErrorIs(t, err, core.ErrInvalidSignature)
}

func TestVerifyWalletNoChallenge(t *testing.T) {
	svc, _ := newTestService(t)
	key, address := newWallet(t)

	_, err := svc.VerifyWallet(context.Background(), address, signChallenge(t, svc, key, "never-issued"))
	assert.ErrorIs(t, err, core.ErrChallengeNotFound)
}

func TestVerifyWalletBannedUser(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	key, address := newWallet(t)

	challenge, err := svc.IssueChallenge(ctx, address)
	require.NoError(t, err)
	principal, err := svc.VerifyWallet(ctx, address, signChallenge(t, svc, key, challenge.Nonce))
	require.NoError(t, err)

	require.NoError(t, svc.BanUser(ctx, principal.UserID))

	challenge, err = svc.IssueChallenge(ctx, address)
	require.NoError(t, err)
	_, err = svc.VerifyWallet(ctx, address, signChallenge(t, svc, key, challenge.Nonce))
	assert.ErrorIs(t, err, core.ErrUserBanned)
}
