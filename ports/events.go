package ports

import "context"

// EventPublisher notifies other services about security-relevant changes.
type EventPublisher interface {
	// PublishSessionsRevoked is emitted after a bulk revocation (ban,
	// password reset, second-factor disable).
	PublishSessionsRevoked(ctx context.Context, userID, reason string, count int) error
	// PublishLogout is emitted when a single session or refresh token is
	// invalidated.
	PublishLogout(ctx context.Context, userID, tokenID string) error
}
