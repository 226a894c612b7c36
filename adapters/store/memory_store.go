package store

import (
	"context"
	"sync"
	"time"

	"github.com/cgraph/gatekeeper/core"
)

// MemoryChallengeStore is an in-memory ChallengeStore, primarily for tests.
type MemoryChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]memoryChallenge
}

type memoryChallenge struct {
	challenge core.Challenge
	expiresAt time.Time
}

// NewMemoryChallengeStore creates a new in-memory challenge store.
func NewMemoryChallengeStore() *MemoryChallengeStore {
	return &MemoryChallengeStore{challenges: make(map[string]memoryChallenge)}
}

// PutIfAbsent stores the challenge unless a live one already exists.
func (s *MemoryChallengeStore) PutIfAbsent(ctx context.Context, challenge *core.Challenge, ttl time.Duration) (*core.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.challenges[challenge.Address]; ok && time.Now().Before(existing.expiresAt) {
		out := existing.challenge
		return &out, nil
	}

	s.challenges[challenge.Address] = memoryChallenge{
		challenge: *challenge,
		expiresAt: time.Now().Add(ttl),
	}
	return challenge, nil
}

// Take fetches and deletes the live challenge under a single lock hold.
func (s *MemoryChallengeStore) Take(ctx context.Context, address string) (*core.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.challenges[address]
	if !ok || time.Now().After(existing.expiresAt) {
		delete(s.challenges, address)
		return nil, core.ErrChallengeNotFound
	}

	delete(s.challenges, address)
	out := existing.challenge
	return &out, nil
}

// MemoryDenyList is an in-memory DenyList, primarily for tests.
type MemoryDenyList struct {
	mu     sync.RWMutex
	denied map[string]time.Time
}

// NewMemoryDenyList creates a new in-memory deny list.
func NewMemoryDenyList() *MemoryDenyList {
	return &MemoryDenyList{denied: make(map[string]time.Time)}
}

// Deny marks a token ID as unusable for ttl.
func (s *MemoryDenyList) Deny(ctx context.Context, tokenID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ttl <= 0 {
		ttl = time.Hour
	}
	s.denied[tokenID] = time.Now().Add(ttl)
	return nil
}

// IsDenied checks whether a token ID has been denied.
func (s *MemoryDenyList) IsDenied(ctx context.Context, tokenID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expiry, ok := s.denied[tokenID]
	if !ok || time.Now().After(expiry) {
		return false, nil
	}
	return true, nil
}
