package passhash

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashVerifyRoundTrip(t *testing.T) {
	h := New(DefaultParams())

	encoded, err := h.Hash("correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$"))

	ok, err := h.Verify("correct horse battery staple", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("wrong password", encoded)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashesAreSalted(t *testing.T) {
	h := New(DefaultParams())

	a, err := h.Hash("same password")
	require.NoError(t, err)
	b, err := h.Hash("same password")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestVerifyRejectsMalformed(t *testing.T) {
	h := New(DefaultParams())

	for _, encoded := range []string{
		"",
		"plainly not a hash",
		"$argon2i$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		"$argon2id$v=18$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=1,p=4$!!!$aGFzaA",
	} {
		_, err := h.Verify("whatever", encoded)
		assert.Error(t, err, "input %q", encoded)
	}
}
