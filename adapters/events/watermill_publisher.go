package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/cgraph/gatekeeper/ports"
)

const (
	topicSessionsRevoked = "gatekeeper.sessions_revoked"
	topicLogout          = "gatekeeper.logout"
)

// SessionsRevokedEvent notifies other services that a user's sessions were
// bulk-revoked (ban, password reset, second-factor disable).
type SessionsRevokedEvent struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// LogoutEvent notifies other services that a single token was invalidated.
type LogoutEvent struct {
	UserID  string `json:"user_id"`
	TokenID string `json:"token_id"`
}

// WatermillPublisher implements ports.EventPublisher using Watermill.
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new Watermill publisher.
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{publisher: publisher}
}

// PublishSessionsRevoked publishes a bulk-revocation event.
func (p *WatermillPublisher) PublishSessionsRevoked(ctx context.Context, userID, reason string, count int) error {
	return p.publish(topicSessionsRevoked, SessionsRevokedEvent{
		UserID: userID,
		Reason: reason,
		Count:  count,
	})
}

// PublishLogout publishes a single-token logout event.
func (p *WatermillPublisher) PublishLogout(ctx context.Context, userID, tokenID string) error {
	return p.publish(topicLogout, LogoutEvent{
		UserID:  userID,
		TokenID: tokenID,
	})
}

func (p *WatermillPublisher) publish(topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.New().String(), payload)
	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
