package core

import (
	"strings"
	"time"
)

// User is the identity root shared by every credential mechanism.
type User struct {
	ID            string     // Unique identifier for the user
	Email         string     // Lowercase email address
	Username      string     // Display name; generated for wallet-provisioned users
	PasswordHash  string     // Argon2id hash in PHC string format; empty for wallet-only users
	WalletAddress string     // Lowercase Ethereum address; empty when no wallet is linked
	TOTPSecret    string     // Base32 TOTP secret; set only once enable is confirmed
	TOTPEnabledAt *time.Time // When the second factor was confirmed
	BannedAt      *time.Time // Soft ban marker
	DeletedAt     *time.Time // Soft delete marker; rows are never hard-deleted here
	CreatedAt     time.Time
}

// TOTPEnabled reports whether the user has a confirmed second factor.
func (u *User) TOTPEnabled() bool {
	return u.TOTPSecret != "" && u.TOTPEnabledAt != nil
}

// Active reports whether the user may authenticate at all.
func (u *User) Active() bool {
	return u.BannedAt == nil && u.DeletedAt == nil
}

// Principal is the resolved identity produced by a successful authentication.
type Principal struct {
	UserID  string
	Email   string
	Address string
}

// Challenge is the single live wallet challenge for an address.
type Challenge struct {
	Address  string    // Lowercase Ethereum address the nonce was issued to
	Nonce    string    // Hex-encoded random nonce to be signed
	IssuedAt time.Time // When the challenge was created
}

// Session is a persisted opaque browser/device handle, independent of the
// stateless token pair. The raw session token is never stored; only its hash.
type Session struct {
	ID           string
	UserID       string
	TokenHash    string // SHA-256 hex of the raw session token
	UserAgent    string
	IP           string
	CreatedAt    time.Time
	LastActiveAt time.Time
	ExpiresAt    time.Time
	RevokedAt    *time.Time // Set on revoke; rows are kept for audit
}

// Live reports whether the session is unrevoked and unexpired at now.
func (s *Session) Live(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// TOTPSetup is the ephemeral result of a second-factor setup request.
// Nothing in it is persisted until the user confirms a live code.
type TOTPSetup struct {
	Secret      string   // Base32 candidate secret
	URI         string   // otpauth:// provisioning URI for QR rendering
	BackupCodes []string // Plaintext XXXX-XXXX codes, shown exactly once
}

// Credential is a closed set of tagged login credential variants. Dispatch on
// the concrete type, never on strings.
type Credential interface {
	credential()
}

// PasswordCredential authenticates with email and password.
type PasswordCredential struct {
	Email    string
	Password string
}

// WalletCredential authenticates with a signed challenge.
type WalletCredential struct {
	Address   string
	Signature string
}

// TOTPCredential steps up an already-resolved principal with a one-time code.
type TOTPCredential struct {
	UserID string
	Code   string
}

func (PasswordCredential) credential() {}
func (WalletCredential) credential()   {}
func (TOTPCredential) credential()     {}

// NormalizeAddress lowercases an Ethereum address for storage and lookup.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// NormalizeEmail lowercases an email for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
