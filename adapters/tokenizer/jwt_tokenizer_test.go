package tokenizer

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cgraph/gatekeeper/core"
)

func newTestTokenizer(t *testing.T, accessTTL, refreshTTL time.Duration) *JWTTokenizer {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return NewJWTTokenizer(key, accessTTL, refreshTTL)
}

func TestMintAndVerify(t *testing.T) {
	tk := newTestTokenizer(t, 5*time.Minute, 24*time.Hour)

	pair, err := tk.Mint(core.Principal{UserID: "user-1"})
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	assert.True(t, pair.RefreshExpiry.After(pair.AccessExpiry), "refresh TTL must exceed access TTL")

	sub, err := tk.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)

	claims, err := tk.VerifyRefresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.NotEmpty(t, claims.TokenID)
}

func TestTypeDiscriminator(t *testing.T) {
	tk := newTestTokenizer(t, 5*time.Minute, 24*time.Hour)

	pair, err := tk.Mint(core.Principal{UserID: "user-1"})
	require.NoError(t, err)

	// A refresh token must never pass as an access token, and vice versa.
	_, err = tk.VerifyAccess(pair.RefreshToken)
	assert.ErrorIs(t, err, core.ErrTokenWrongType)

	_, err = tk.VerifyRefresh(pair.AccessToken)
	assert.ErrorIs(t, err, core.ErrTokenWrongType)
}

func TestExpiredToken(t *testing.T) {
	tk := newTestTokenizer(t, -time.Minute, -time.Minute)

	pair, err := tk.Mint(core.Principal{UserID: "user-1"})
	require.NoError(t, err)

	_, err = tk.VerifyAccess(pair.AccessToken)
	assert.ErrorIs(t, err, core.ErrTokenExpired)

	_, err = tk.VerifyRefresh(pair.RefreshToken)
	assert.ErrorIs(t, err, core.ErrTokenExpired)
}

func TestMalformedToken(t *testing.T) {
	tk := newTestTokenizer(t, 5*time.Minute, 24*time.Hour)

	for _, token := range []string{"", "garbage", "a.b.c"} {
		_, err := tk.VerifyAccess(token)
		assert.ErrorIs(t, err, core.ErrTokenMalformed, "input %q", token)
	}
}

func TestForeignKeyRejected(t *testing.T) {
	tk := newTestTokenizer(t, 5*time.Minute, 24*time.Hour)
	other := newTestTokenizer(t, 5*time.Minute, 24*time.Hour)

	pair, err := tk.Mint(core.Principal{UserID: "user-1"})
	require.NoError(t, err)

	_, err = other.VerifyAccess(pair.AccessToken)
	assert.Error(t, err)
}
