package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/cgraph/gatekeeper/core"
)

// Backup codes avoid characters that read ambiguously when written down.
const backupCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1, // ±1 step for clock drift
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// SetupTOTP generates a candidate secret, a provisioning URI and a fresh set
// of backup codes. Nothing is persisted: the secret only becomes durable
// when EnableTOTP proves the user copied it correctly.
func (s *AuthService) SetupTOTP(ctx context.Context, userID string) (*core.TOTPSetup, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.TOTPEnabled() {
		return nil, core.ErrTOTPAlreadyEnabled
	}

	account := user.Email
	if account == "" {
		account = user.Username
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.appName,
		AccountName: account,
		Period:      totpOpts.Period,
		Digits:      totpOpts.Digits,
		Algorithm:   totpOpts.Algorithm,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate totp secret: %w", err)
	}

	codes, err := newBackupCodes(s.backupCodeCount)
	if err != nil {
		return nil, fmt.Errorf("failed to generate backup codes: %w", err)
	}

	return &core.TOTPSetup{
		Secret:      key.Secret(),
		URI:         key.URL(),
		BackupCodes: codes,
	}, nil
}

// EnableTOTP verifies a live code against the candidate secret from setup
// and only then persists the secret and the hashed backup codes.
func (s *AuthService) EnableTOTP(ctx context.Context, userID, secret, code string, backupCodes []string) error {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.TOTPEnabled() {
		return core.ErrTOTPAlreadyEnabled
	}

	if !validTOTP(code, secret) {
		return core.ErrInvalidCode
	}

	hashes := make([]string, 0, len(backupCodes))
	for _, c := range backupCodes {
		hashes = append(hashes, backupCodeHash(canonicalBackupCode(c)))
	}

	if err := s.users.EnableTOTP(ctx, userID, secret, hashes, time.Now()); err != nil {
		return fmt.Errorf("failed to enable totp: %w", err)
	}
	return nil
}

// VerifyTOTP checks a live code against the persisted secret; used to step
// up trust for login completion or sensitive actions.
func (s *AuthService) VerifyTOTP(ctx context.Context, userID, code string) error {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.TOTPEnabled() {
		return core.ErrTOTPNotEnabled
	}
	if !validTOTP(code, user.TOTPSecret) {
		return core.ErrInvalidCode
	}
	return nil
}

// DisableTOTP turns the second factor off given either a live code or one
// unused backup code. Because this lowers the account's trust level, every
// active session is revoked. The returned count is the number of backup
// codes that remained after the submitted one was consumed, or -1 when a
// live code was used.
func (s *AuthService) DisableTOTP(ctx context.Context, userID, code string) (int, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !user.TOTPEnabled() {
		return 0, core.ErrTOTPNotEnabled
	}

	remaining := -1
	if !validTOTP(code, user.TOTPSecret) {
		remaining, err = s.UseBackupCode(ctx, userID, code)
		if err != nil {
			return 0, err
		}
	}

	if err := s.users.DisableTOTP(ctx, userID); err != nil {
		return 0, fmt.Errorf("failed to disable totp: %w", err)
	}

	count, err := s.sessions.RevokeAllSessions(ctx, userID, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to revoke sessions: %w", err)
	}
	s.publishRevocation(ctx, userID, "totp_disabled", count)

	return remaining, nil
}

// RegenerateBackupCodes replaces the whole set, invalidating every code
// issued before. A live code is required; a backup code is not accepted
// here, since regenerating from a stolen backup code would let an attacker
// lock the owner out.
func (s *AuthService) RegenerateBackupCodes(ctx context.Context, userID, code string) ([]string, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.TOTPEnabled() {
		return nil, core.ErrTOTPNotEnabled
	}
	if !validTOTP(code, user.TOTPSecret) {
		return nil, core.ErrInvalidCode
	}

	codes, err := newBackupCodes(s.backupCodeCount)
	if err != nil {
		return nil, fmt.Errorf("failed to generate backup codes: %w", err)
	}

	hashes := make([]string, 0, len(codes))
	for _, c := range codes {
		hashes = append(hashes, backupCodeHash(c))
	}
	if err := s.users.ReplaceBackupCodes(ctx, userID, hashes); err != nil {
		return nil, fmt.Errorf("failed to replace backup codes: %w", err)
	}

	return codes, nil
}

// UseBackupCode consumes one backup code and returns how many remain. A
// consumed or unknown code fails with ErrInvalidCode; an exhausted set fails
// with ErrNoBackupCodes.
func (s *AuthService) UseBackupCode(ctx context.Context, userID, code string) (int, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !user.TOTPEnabled() {
		return 0, core.ErrTOTPNotEnabled
	}

	canonical := canonicalBackupCode(code)
	if canonical == "" {
		return 0, core.ErrInvalidCode
	}

	consumed, remaining, err := s.users.ConsumeBackupCode(ctx, userID, backupCodeHash(canonical))
	if err != nil {
		return 0, fmt.Errorf("failed to consume backup code: %w", err)
	}
	if !consumed {
		if remaining == 0 {
			return 0, core.ErrNoBackupCodes
		}
		return 0, core.ErrInvalidCode
	}
	return remaining, nil
}

func validTOTP(code, secret string) bool {
	ok, err := totp.ValidateCustom(strings.TrimSpace(code), secret, time.Now(), totpOpts)
	return err == nil && ok
}

// newBackupCodes generates count human-readable single-use codes in the
// canonical XXXX-XXXX shape.
func newBackupCodes(count int) ([]string, error) {
	codes := make([]string, 0, count)
	for i := 0; i < count; i++ {
		raw := make([]byte, 8)
		if _, err := rand.Read(raw); err != nil {
			return nil, err
		}
		chars := make([]byte, 8)
		for j, b := range raw {
			chars[j] = backupCodeAlphabet[int(b)%len(backupCodeAlphabet)]
		}
		codes = append(codes, string(chars[:4])+"-"+string(chars[4:]))
	}
	return codes, nil
}

// canonicalBackupCode normalizes user input to the XXXX-XXXX display form.
// Returns "" when the input cannot be a backup code.
func canonicalBackupCode(code string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(code) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() != 8 {
		return ""
	}
	s := b.String()
	return s[:4] + "-" + s[4:]
}

func backupCodeHash(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}
