package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cgraph/gatekeeper/core"
)

func liveCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	return code
}

// enableTOTP walks the setup handshake and returns the secret with the
// issued backup codes.
func enableTOTP(t *testing.T, svc *AuthService, userID string) (string, []string) {
	t.Helper()
	ctx := context.Background()

	setup, err := svc.SetupTOTP(ctx, userID)
	require.NoError(t, err)
	require.NotEmpty(t, setup.Secret)
	require.Len(t, setup.BackupCodes, 10)

	require.NoError(t, svc.EnableTOTP(ctx, userID, setup.Secret, liveCode(t, setup.Secret), setup.BackupCodes))
	return setup.Secret, setup.BackupCodes
}

func TestSetupTOTPShape(t *testing.T) {
	svc, _ := newTestService(t)
	user := registerUser(t, svc, "totp@example.com", "s3cret-pass")

	setup, err := svc.SetupTOTP(context.Background(), user.ID)
	require.NoError(t, err)

	assert.Contains(t, setup.URI, "otpauth://totp/")
	assert.Contains(t, setup.URI, "CGraph")
	for _, code := range setup.BackupCodes {
		assert.Regexp(t, `^[A-Z2-9]{4}-[A-Z2-9]{4}$`, code)
	}

	// Setup persists nothing until the code is confirmed.
	got, err := svc.users.GetUserByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.False(t, got.TOTPEnabled())
}

func TestEnableTOTPRejectsWrongCode(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	user := registerUser(t, svc, "totp@example.com", "s3cret-pass")

	setup, err := svc.SetupTOTP(ctx, user.ID)
	require.NoError(t, err)

	err = svc.EnableTOTP(ctx, user.ID, setup.Secret, "000000", setup.BackupCodes)
	assert.ErrorIs(t, err, core.ErrInvalidCode)

	got, err := svc.users.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, got.TOTPEnabled())
}

func TestVerifyTOTP(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	user := registerUser(t, svc, "totp@example.com", "s3cret-pass")

	assert.ErrorIs(t, svc.VerifyTOTP(ctx, user.ID, "123456"), core.ErrTOTPNotEnabled)

	secret, _ := enableTOTP(t, svc, user.ID)

	require.NoError(t, svc.VerifyTOTP(ctx, user.ID, liveCode(t, secret)))
	assert.ErrorIs(t, svc.VerifyTOTP(ctx, user.ID, "000000"), core.ErrInvalidCode)

	_, err := svc.SetupTOTP(ctx, user.ID)
	assert.ErrorIs(t, err, core.ErrTOTPAlreadyEnabled)
}

func TestUseBackupCodeIsSingleUse(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	user := registerUser(t, svc, "totp@example.com", "s3cret-pass")
	_, codes := enableTOTP(t, svc, user.ID)

	remaining, err := svc.UseBackupCode(ctx, user.ID, codes[0])
	require.NoError(t, err)
	assert.Equal(t, 9, remaining)

	// Spending the same code again must fail.
	_, err = svc.UseBackupCode(ctx, user.ID, codes[0])
	assert.ErrorIs(t, err, core.ErrInvalidCode)
}

func TestUseBackupCodeNormalizesInput(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	user := registerUser(t, svc, "totp@example.com", "s3cret-pass")
	_, codes := enableTOTP(t, svc, user.ID)

	// Lowercase, no dash.
	sloppy := strings.ToLower(strings.ReplaceAll(codes[0], "-", ""))
	remaining, err := svc.UseBackupCode(ctx, user.ID, sloppy)
	require.NoError(t, err)
	assert.Equal(t, 9, remaining)
}

func TestUseBackupCodeExhaustion(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	user := registerUser(t, svc, "totp@example.com", "s3cret-pass")
	_, codes := enableTOTP(t, svc, user.ID)

	for i, code := range codes {
		remaining, err := svc.UseBackupCode(ctx, user.ID, code)
		require.NoError(t, err)
		assert.Equal(t, len(codes)-1-i, remaining)
	}

	_, err := svc.UseBackupCode(ctx, user.ID, codes[0])
	assert.ErrorIs(t, err, core.ErrNoBackupCodes)
}

func TestRegenerateBackupCodes(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	user := registerUser(t, svc, "totp@example.com", "s3cret-pass")
	secret, oldCodes := enableTOTP(t, svc, user.ID)

	// A backup code is not accepted here; a live code is required.
	_, err := svc.RegenerateBackupCodes(ctx, user.ID, oldCodes[0])
	assert.ErrorIs(t, err, core.ErrInvalidCode)

	newCodes, err := svc.RegenerateBackupCodes(ctx, user.ID, liveCode(t, secret))
	require.NoError(t, err)
	require.Len(t, newCodes, 10)

	_, err = svc.UseBackupCode(ctx, user.ID, oldCodes[0])
	assert.ErrorIs(t, err, core.ErrInvalidCode, "old codes die on regeneration")

	remaining, err := svc.UseBackupCode(ctx, user.ID, newCodes[0])
	require.NoError(t, err)
	assert.Equal(t, 9, remaining)
}

func TestDisableTOTPWithLiveCode(t *testing.T) {
	svc, pub := newTestService(t)
	ctx := context.Background()
	user := registerUser(t, svc, "totp@example.com", "s3cret-pass")
	secret, _ := enableTOTP(t, svc, user.ID)

	_, _, err := svc.CreateSession(ctx, user.ID, SessionContext{})
	require.NoError(t, err)

	remaining, err := svc.DisableTOTP(ctx, user.ID, liveCode(t, secret))
	require.NoError(t, err)
	assert.Equal(t, -1, remaining)

	got, err := svc.users.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, got.TOTPEnabled())

	// Disabling the second factor lowers trust; sessions go with it.
	sessions, err := svc.ListSessions(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, sessions)
	assert.Equal(t, "totp_disabled", pub.lastRevocation(t).Reason)
}

func TestDisableTOTPWithBackupCode(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	user := registerUser(t, svc, "totp@example.com", "s3cret-pass")
	_, codes := enableTOTP(t, svc, user.ID)

	for _, code := range codes[:5] {
		_, err := svc.UseBackupCode(ctx, user.ID, code)
		require.NoError(t, err)
	}

	remaining, err := svc.DisableTOTP(ctx, user.ID, codes[5])
	require.NoError(t, err)
	assert.Equal(t, 4, remaining)
}

func TestDisableTOTPRejectsBadCode(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	user := registerUser(t, svc, "totp@example.com", "s3cret-pass")
	enableTOTP(t, svc, user.ID)

	_, err := svc.DisableTOTP(ctx, user.ID, "nonsense")
	assert.ErrorIs(t, err, core.ErrInvalidCode)

	got, err := svc.users.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, got.TOTPEnabled())
}
