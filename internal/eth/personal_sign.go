// Package eth implements the Ethereum "personal sign" convention used to
// verify wallet ownership: a prefixed Keccak-256 digest of the challenge
// message and secp256k1 public-key recovery from a 65-byte signature.
package eth

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the raw r||s||v signature size in bytes.
const SignatureLength = 65

// PersonalSignHash computes the EIP-191 personal-sign digest:
// Keccak256("\x19Ethereum Signed Message:\n" + len(message) + message).
// The prefix must match what wallets produce byte-for-byte.
func PersonalSignHash(message []byte) []byte {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return crypto.Keccak256([]byte(prefixed))
}

// ParseSignature decodes a hex signature with an optional 0x prefix. It
// requires exactly 130 hex characters (65 bytes) and normalizes the trailing
// v byte from 27/28 to the 0/1 recovery id go-ethereum expects.
func ParseSignature(signature string) ([]byte, error) {
	s := strings.TrimPrefix(signature, "0x")
	if len(s) != SignatureLength*2 {
		return nil, fmt.Errorf("signature must be %d hex characters, got %d", SignatureLength*2, len(s))
	}

	sig, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("signature is not valid hex: %w", err)
	}

	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return nil, fmt.Errorf("invalid recovery id %d", sig[64])
	}

	return sig, nil
}

// RecoverAddress recovers the signer address for a personal-sign message.
// The signature must already be parsed and v-normalized.
func RecoverAddress(message, sig []byte) (common.Address, error) {
	pub, err := crypto.SigToPub(PersonalSignHash(message), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("public key recovery failed: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifyPersonalSign checks that signature over message was produced by the
// claimed address. The comparison is case-insensitive on the hex form.
func VerifyPersonalSign(message []byte, signature, address string) error {
	sig, err := ParseSignature(signature)
	if err != nil {
		return err
	}

	recovered, err := RecoverAddress(message, sig)
	if err != nil {
		return err
	}

	if recovered != common.HexToAddress(strings.TrimSpace(address)) {
		return fmt.Errorf("recovered address %s does not match claim", recovered.Hex())
	}
	return nil
}
