package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cgraph/gatekeeper/core"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestChallengePutIfAbsentKeepsFirstNonce(t *testing.T) {
	_, client := newTestRedis(t)
	s := NewRedisChallengeStore(client)
	ctx := context.Background()

	first := &core.Challenge{Address: "0xabc", Nonce: "nonce-1", IssuedAt: time.Now().UTC()}
	got, err := s.PutIfAbsent(ctx, first, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "nonce-1", got.Nonce)

	// A second request inside the freshness window sees the stored nonce,
	// not the candidate one.
	second := &core.Challenge{Address: "0xabc", Nonce: "nonce-2", IssuedAt: time.Now().UTC()}
	got, err = s.PutIfAbsent(ctx, second, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "nonce-1", got.Nonce)
}

func TestChallengeExpiryIssuesFreshNonce(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewRedisChallengeStore(client)
	ctx := context.Background()

	first := &core.Challenge{Address: "0xabc", Nonce: "nonce-1", IssuedAt: time.Now().UTC()}
	_, err := s.PutIfAbsent(ctx, first, 5*time.Minute)
	require.NoError(t, err)

	mr.FastForward(6 * time.Minute)

	second := &core.Challenge{Address: "0xabc", Nonce: "nonce-2", IssuedAt: time.Now().UTC()}
	got, err := s.PutIfAbsent(ctx, second, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "nonce-2", got.Nonce)
}

func TestChallengeTakeIsSingleUse(t *testing.T) {
	_, client := newTestRedis(t)
	s := NewRedisChallengeStore(client)
	ctx := context.Background()

	challenge := &core.Challenge{Address: "0xabc", Nonce: "nonce-1", IssuedAt: time.Now().UTC()}
	_, err := s.PutIfAbsent(ctx, challenge, 5*time.Minute)
	require.NoError(t, err)

	got, err := s.Take(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "nonce-1", got.Nonce)

	_, err = s.Take(ctx, "0xabc")
	assert.ErrorIs(t, err, core.ErrChallengeNotFound)
}

func TestChallengeTakeUnknownAddress(t *testing.T) {
	_, client := newTestRedis(t)
	s := NewRedisChallengeStore(client)

	_, err := s.Take(context.Background(), "0xnobody")
	assert.ErrorIs(t, err, core.ErrChallengeNotFound)
}

func TestDenyList(t *testing.T) {
	mr, client := newTestRedis(t)
	d := NewRedisDenyList(client)
	ctx := context.Background()

	denied, err := d.IsDenied(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, denied)

	require.NoError(t, d.Deny(ctx, "jti-1", time.Minute))

	denied, err = d.IsDenied(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, denied)

	mr.FastForward(2 * time.Minute)

	denied, err = d.IsDenied(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, denied, "entries expire with the token they shadow")
}

func TestDenyListFloorsNonPositiveTTL(t *testing.T) {
	_, client := newTestRedis(t)
	d := NewRedisDenyList(client)
	ctx := context.Background()

	require.NoError(t, d.Deny(ctx, "jti-expired", -time.Minute))

	denied, err := d.IsDenied(ctx, "jti-expired")
	require.NoError(t, err)
	assert.True(t, denied)
}
