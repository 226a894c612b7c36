package ports

import (
	"time"

	"github.com/cgraph/gatekeeper/core"
)

// TokenPair is a freshly minted access/refresh pair.
type TokenPair struct {
	AccessToken   string
	RefreshToken  string
	AccessExpiry  time.Time
	RefreshExpiry time.Time
}

// RefreshClaims is the verified content of a refresh token.
type RefreshClaims struct {
	Subject   string
	TokenID   string
	ExpiresAt time.Time
}

// Tokenizer mints and verifies the stateless bearer token pair.
type Tokenizer interface {
	Mint(principal core.Principal) (*TokenPair, error)
	// VerifyAccess checks signature, expiry and that typ == access, and
	// returns the subject user id. Pure; no I/O.
	VerifyAccess(token string) (string, error)
	// VerifyRefresh checks signature, expiry and that typ == refresh.
	VerifyRefresh(token string) (*RefreshClaims, error)
}
