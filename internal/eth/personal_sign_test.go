package eth

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signMessage(t *testing.T, message string) (signature string, address string) {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	sig, err := crypto.Sign(PersonalSignHash([]byte(message)), key)
	require.NoError(t, err)

	return hex.EncodeToString(sig), crypto.PubkeyToAddress(key.PublicKey).Hex()
}

func TestVerifyPersonalSign(t *testing.T) {
	const message = "Sign this message to authenticate with CGraph.\n\nNonce: abc123"

	sig, addr := signMessage(t, message)

	require.NoError(t, VerifyPersonalSign([]byte(message), sig, addr))

	// 0x prefix is accepted
	require.NoError(t, VerifyPersonalSign([]byte(message), "0x"+sig, addr))

	// address comparison is case-insensitive
	require.NoError(t, VerifyPersonalSign([]byte(message), sig, strings.ToLower(addr)))
}

func TestVerifyPersonalSignLegacyV(t *testing.T) {
	const message = "Sign this message to authenticate with CGraph.\n\nNonce: abc123"

	sig, addr := signMessage(t, message)

	// Wallets commonly emit v as 27/28 instead of 0/1.
	raw, err := hex.DecodeString(sig)
	require.NoError(t, err)
	raw[64] += 27

	require.NoError(t, VerifyPersonalSign([]byte(message), hex.EncodeToString(raw), addr))
}

func TestVerifyPersonalSignRejectsWrongMessage(t *testing.T) {
	sig, addr := signMessage(t, "original message")
	assert.Error(t, VerifyPersonalSign([]byte("different message"), sig, addr))
}

func TestVerifyPersonalSignRejectsWrongAddress(t *testing.T) {
	const message = "hello"
	sig, _ := signMessage(t, message)
	assert.Error(t, VerifyPersonalSign([]byte(message), sig, "0x0000000000000000000000000000000000000001"))
}

func TestParseSignatureLength(t *testing.T) {
	_, err := ParseSignature("deadbeef")
	assert.Error(t, err)

	_, err = ParseSignature("0x" + string(make([]byte, 131)))
	assert.Error(t, err)

	// not hex
	bad := make([]byte, 130)
	for i := range bad {
		bad[i] = 'z'
	}
	_, err = ParseSignature(string(bad))
	assert.Error(t, err)
}

func TestPersonalSignHashPrefix(t *testing.T) {
	// The digest must cover the exact EIP-191 prefixed string.
	h1 := PersonalSignHash([]byte("abc"))
	h2 := crypto.Keccak256([]byte("\x19Ethereum Signed Message:\n3abc"))
	assert.Equal(t, h2, h1)
}
