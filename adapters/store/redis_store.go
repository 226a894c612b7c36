package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cgraph/gatekeeper/core"
)

const (
	challengePrefix = "gatekeeper:challenge:"
	denyPrefix      = "gatekeeper:denied:"
)

// RedisChallengeStore keeps the single live wallet challenge per address in
// Redis. TTL expiry gives challenge rotation for free, and GETDEL makes the
// verify-side fetch-and-invalidate a single atomic operation.
type RedisChallengeStore struct {
	client *redis.Client
}

// NewRedisChallengeStore creates a new Redis challenge store.
func NewRedisChallengeStore(client *redis.Client) *RedisChallengeStore {
	return &RedisChallengeStore{client: client}
}

type challengePayload struct {
	Nonce    string    `json:"nonce"`
	IssuedAt time.Time `json:"issued_at"`
}

// PutIfAbsent stores the challenge unless a live one exists. The nonce held
// in Redis wins so repeated requests inside the freshness window see a
// stable value.
func (s *RedisChallengeStore) PutIfAbsent(ctx context.Context, challenge *core.Challenge, ttl time.Duration) (*core.Challenge, error) {
	key := challengePrefix + challenge.Address

	payload, err := json.Marshal(challengePayload{Nonce: challenge.Nonce, IssuedAt: challenge.IssuedAt})
	if err != nil {
		return nil, fmt.Errorf("failed to encode challenge: %w", err)
	}

	set, err := s.client.SetNX(ctx, key, payload, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to store challenge: %w", err)
	}
	if set {
		return challenge, nil
	}

	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		// The existing challenge expired between SETNX and GET; claim the
		// slot with the fresh one.
		if err := s.client.Set(ctx, key, payload, ttl).Err(); err != nil {
			return nil, fmt.Errorf("failed to store challenge: %w", err)
		}
		return challenge, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read challenge: %w", err)
	}

	var existing challengePayload
	if err := json.Unmarshal(raw, &existing); err != nil {
		return nil, fmt.Errorf("failed to decode challenge: %w", err)
	}

	return &core.Challenge{
		Address:  challenge.Address,
		Nonce:    existing.Nonce,
		IssuedAt: existing.IssuedAt,
	}, nil
}

// Take atomically fetches and deletes the challenge via GETDEL, so two
// concurrent verifications of the same signature cannot both succeed.
func (s *RedisChallengeStore) Take(ctx context.Context, address string) (*core.Challenge, error) {
	raw, err := s.client.GetDel(ctx, challengePrefix+address).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrChallengeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to take challenge: %w", err)
	}

	var payload challengePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode challenge: %w", err)
	}

	return &core.Challenge{
		Address:  address,
		Nonce:    payload.Nonce,
		IssuedAt: payload.IssuedAt,
	}, nil
}

// RedisDenyList marks rotated or revoked refresh-token IDs in Redis, expiring
// each entry alongside the token it shadows.
type RedisDenyList struct {
	client *redis.Client
}

// NewRedisDenyList creates a new Redis deny list.
func NewRedisDenyList(client *redis.Client) *RedisDenyList {
	return &RedisDenyList{client: client}
}

// Deny marks a token ID as unusable for ttl.
func (s *RedisDenyList) Deny(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		// Keep a short floor so an expired token still cannot be replayed
		// against skewed clocks.
		ttl = time.Hour
	}
	if err := s.client.Set(ctx, denyPrefix+tokenID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to deny token: %w", err)
	}
	return nil
}

// IsDenied checks whether a token ID has been denied.
func (s *RedisDenyList) IsDenied(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.client.Exists(ctx, denyPrefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token denial: %w", err)
	}
	return n > 0, nil
}
