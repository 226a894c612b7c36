package core

import "errors"

var (
	// ErrInvalidCredentials covers both a wrong password and an unknown
	// email; the two must be indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidSignature covers every wallet verification failure: bad
	// encoding, recovery failure, address mismatch.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrChallengeNotFound is returned when no live challenge exists for an
	// address, including the replay of an already-consumed challenge.
	ErrChallengeNotFound = errors.New("challenge not found")

	ErrTOTPNotEnabled     = errors.New("totp not enabled")
	ErrTOTPAlreadyEnabled = errors.New("totp already enabled")
	ErrInvalidCode        = errors.New("invalid code")
	ErrNoBackupCodes      = errors.New("no backup codes remaining")

	ErrTokenExpired   = errors.New("token has expired")
	ErrTokenWrongType = errors.New("token type mismatch")
	ErrTokenMalformed = errors.New("malformed token")
	ErrTokenRevoked   = errors.New("token has been revoked")

	ErrSessionNotFound = errors.New("session not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrEmailTaken      = errors.New("email already registered")
	ErrUserBanned      = errors.New("user is banned")
	ErrRateLimited     = errors.New("rate limited")
)
