// Package passhash wraps Argon2id password hashing using the PHC string
// format, so parameters travel with each hash and can be raised later
// without invalidating stored credentials.
package passhash

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Params control the Argon2id cost. Defaults follow the OWASP baseline.
type Params struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams returns the recommended cost parameters.
func DefaultParams() Params {
	return Params{
		Memory:      64 * 1024,
		Time:        1,
		Parallelism: 4,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Hasher hashes and verifies passwords with a fixed parameter set.
type Hasher struct {
	params Params
}

// New creates a Hasher.
func New(params Params) *Hasher {
	return &Hasher{params: params}
}

// Hash derives an Argon2id hash and encodes it in PHC form:
// $argon2id$v=19$m=...,t=...,p=...$salt$hash
func (h *Hasher) Hash(password string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt,
		h.params.Time, h.params.Memory, h.params.Parallelism, h.params.KeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.params.Memory, h.params.Time, h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches the encoded hash. The comparison
// is constant-time over the derived key.
func (h *Hasher) Verify(password, encoded string) (bool, error) {
	memory, timeCost, parallelism, salt, key, err := decode(encoded)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(password), salt,
		timeCost, memory, parallelism, uint32(len(key)))

	return subtle.ConstantTimeCompare(computed, key) == 1, nil
}

func decode(encoded string) (memory, timeCost uint32, parallelism uint8, salt, key []byte, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return 0, 0, 0, nil, nil, errors.New("not an argon2id PHC string")
	}

	var version int
	if _, err = fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return 0, 0, 0, nil, nil, errors.New("malformed argon2 version")
	}
	if version != argon2.Version {
		return 0, 0, 0, nil, nil, errors.New("unsupported argon2 version")
	}

	var p uint32
	if _, err = fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &timeCost, &p); err != nil {
		return 0, 0, 0, nil, nil, errors.New("malformed argon2 parameters")
	}
	parallelism = uint8(p)

	if salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return 0, 0, 0, nil, nil, errors.New("malformed salt")
	}
	if key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return 0, 0, 0, nil, nil, errors.New("malformed hash")
	}
	return memory, timeCost, parallelism, salt, key, nil
}
