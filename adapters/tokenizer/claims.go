package tokenizer

import "github.com/golang-jwt/jwt/v5"

// Token type discriminator carried in the typ claim. An access token must
// never be accepted where a refresh token is expected, and vice versa.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Claims combines the standard registered claims with the typ discriminator.
type Claims struct {
	jwt.RegisteredClaims
	Typ string `json:"typ"`
}
