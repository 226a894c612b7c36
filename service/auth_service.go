package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cgraph/gatekeeper/core"
	"github.com/cgraph/gatekeeper/internal/passhash"
	"github.com/cgraph/gatekeeper/ports"
)

// AuthService handles authentication business logic: password and wallet
// login, second-factor control, token rotation and session management.
type AuthService struct {
	users      ports.UserStore
	sessions   ports.SessionStore
	challenges ports.ChallengeStore
	denyList   ports.DenyList
	tokenizer  ports.Tokenizer
	eventPub   ports.EventPublisher
	breach     ports.BreachChecker // optional; nil disables the check

	hasher *passhash.Hasher
	// dummyHash is verified against when the email is unknown, so the
	// latency of "no such user" matches "wrong password".
	dummyHash string

	appName         string
	challengeTTL    time.Duration
	sessionTTL      time.Duration
	backupCodeCount int

	breachLog cooldown
}

// Option configures an AuthService.
type Option func(*AuthService)

// WithBreachChecker wires the optional best-effort password breach check.
func WithBreachChecker(checker ports.BreachChecker) Option {
	return func(s *AuthService) { s.breach = checker }
}

// WithAppName overrides the application name embedded in the wallet
// challenge message.
func WithAppName(name string) Option {
	return func(s *AuthService) { s.appName = name }
}

// NewAuthService creates a new authentication service.
func NewAuthService(
	users ports.UserStore,
	sessions ports.SessionStore,
	challenges ports.ChallengeStore,
	denyList ports.DenyList,
	tokenizer ports.Tokenizer,
	eventPub ports.EventPublisher,
	opts ...Option,
) *AuthService {
	hasher := passhash.New(passhash.DefaultParams())

	// Hash an arbitrary constant once so unknown-user authentication still
	// pays for a full verification.
	dummyHash, err := hasher.Hash("gatekeeper-dummy-reference-password")
	if err != nil {
		// rand.Read failing means the process has no entropy; nothing
		// sensible can run without it.
		log.Fatalf("failed to prepare reference hash: %v", err)
	}

	s := &AuthService{
		users:           users,
		sessions:        sessions,
		challenges:      challenges,
		denyList:        denyList,
		tokenizer:       tokenizer,
		eventPub:        eventPub,
		hasher:          hasher,
		dummyHash:       dummyHash,
		appName:         "CGraph",
		challengeTTL:    5 * time.Minute,
		sessionTTL:      30 * 24 * time.Hour,
		backupCodeCount: 10,
		breachLog:       cooldown{window: time.Minute, last: make(map[string]time.Time)},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login resolves a principal from any credential variant. Dispatch is on the
// concrete type of the closed core.Credential set; a variant this build does
// not know is a programming error, not a user error.
func (s *AuthService) Login(ctx context.Context, cred core.Credential) (core.Principal, error) {
	switch c := cred.(type) {
	case core.PasswordCredential:
		return s.Authenticate(ctx, c.Email, c.Password)
	case core.WalletCredential:
		return s.VerifyWallet(ctx, c.Address, c.Signature)
	case core.TOTPCredential:
		if err := s.VerifyTOTP(ctx, c.UserID, c.Code); err != nil {
			return core.Principal{}, err
		}
		user, err := s.users.GetUserByID(ctx, c.UserID)
		if err != nil {
			return core.Principal{}, err
		}
		return core.Principal{UserID: user.ID, Email: user.Email, Address: user.WalletAddress}, nil
	default:
		return core.Principal{}, fmt.Errorf("unsupported credential type %T", cred)
	}
}

func (s *AuthService) publishRevocation(ctx context.Context, userID, reason string, count int) {
	if s.eventPub == nil {
		return
	}
	if err := s.eventPub.PublishSessionsRevoked(ctx, userID, reason, count); err != nil {
		// The store-side revocation already landed, which is the part that
		// matters; cross-instance notification is best effort.
		log.Printf("warning: failed to publish revocation event: %v", err)
	}
}

// cooldown suppresses repeated actions per key inside a window.
type cooldown struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
}

// allow reports whether the action for key may run now, and records it.
func (c *cooldown) allow(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if last, ok := c.last[key]; ok && now.Sub(last) < c.window {
		return false
	}
	c.last[key] = now
	return true
}
