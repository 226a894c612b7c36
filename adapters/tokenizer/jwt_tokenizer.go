package tokenizer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/cgraph/gatekeeper/core"
	"github.com/cgraph/gatekeeper/ports"
)

// JWTTokenizer implements ports.Tokenizer with ES256-signed JWTs. The signing
// key is injected once at construction and never mutated.
type JWTTokenizer struct {
	signKey    *ecdsa.PrivateKey
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewJWTTokenizer creates a new JWT tokenizer.
func NewJWTTokenizer(signKey *ecdsa.PrivateKey, accessTTL, refreshTTL time.Duration) *JWTTokenizer {
	return &JWTTokenizer{
		signKey:    signKey,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// Mint produces a fresh access/refresh pair for a principal. Both tokens
// carry sub, iat, exp and the typ discriminator; the refresh token's jti is
// the handle used for rotation denylisting.
func (j *JWTTokenizer) Mint(principal core.Principal) (*ports.TokenPair, error) {
	now := time.Now()
	accessExpiry := now.Add(j.accessTTL)
	refreshExpiry := now.Add(j.refreshTTL)

	access, err := j.sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.UserID,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessExpiry),
		},
		Typ: TypeAccess,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	refresh, err := j.sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.UserID,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(refreshExpiry),
		},
		Typ: TypeRefresh,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return &ports.TokenPair{
		AccessToken:   access,
		RefreshToken:  refresh,
		AccessExpiry:  accessExpiry,
		RefreshExpiry: refreshExpiry,
	}, nil
}

// VerifyAccess parses and validates an access token and returns the subject.
func (j *JWTTokenizer) VerifyAccess(token string) (string, error) {
	claims, err := j.parse(token, TypeAccess)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// VerifyRefresh parses and validates a refresh token.
func (j *JWTTokenizer) VerifyRefresh(token string) (*ports.RefreshClaims, error) {
	claims, err := j.parse(token, TypeRefresh)
	if err != nil {
		return nil, err
	}
	return &ports.RefreshClaims{
		Subject:   claims.Subject,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (j *JWTTokenizer) sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	return token.SignedString(j.signKey)
}

func (j *JWTTokenizer) parse(tokenStr, wantTyp string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return &j.signKey.PublicKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, core.ErrTokenExpired
		}
		return nil, core.ErrTokenMalformed
	}

	if !token.Valid {
		return nil, core.ErrTokenMalformed
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.Subject == "" || claims.ExpiresAt == nil {
		return nil, core.ErrTokenMalformed
	}

	if claims.Typ != wantTyp {
		return nil, core.ErrTokenWrongType
	}

	return claims, nil
}
