// ABOUTME: Publishes authentication lifecycle events over watermill
// ABOUTME: Other services subscribe to react to logins and logouts

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

// Topics for authentication lifecycle events.
const (
	TopicAuthenticated = "hsauth.authenticated"
	TopicLogout        = "hsauth.logout"
)

// AuthEvent is the payload published on both topics.
type AuthEvent struct {
	DID       string    `json:"did"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher notifies interested parties of authentication lifecycle changes.
// Publishing is best-effort from the orchestrator's point of view.
type Publisher interface {
	PublishAuthenticated(ctx context.Context, did string) error
	PublishLogout(ctx context.Context, did string) error
}

// WatermillPublisher implements Publisher on top of a watermill message publisher.
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher wraps a watermill publisher.
func NewWatermillPublisher(publisher message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{publisher: publisher}
}

// PublishAuthenticated announces a successful authentication for the subject.
func (p *WatermillPublisher) PublishAuthenticated(ctx context.Context, did string) error {
	return p.publish(TopicAuthenticated, did)
}

// PublishLogout announces that the subject's refresh token was revoked.
func (p *WatermillPublisher) PublishLogout(ctx context.Context, did string) error {
	return p.publish(TopicLogout, did)
}

func (p *WatermillPublisher) publish(topic, did string) error {
	payload, err := json.Marshal(AuthEvent{DID: did, Timestamp: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	msg := message.NewMessage(uuid.New().String(), payload)
	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("publishing %s: %w", topic, err)
	}
	return nil
}

// NopPublisher discards all events. Used when no broker is configured.
type NopPublisher struct{}

// PublishAuthenticated discards the event.
func (NopPublisher) PublishAuthenticated(context.Context, string) error { return nil }

// PublishLogout discards the event.
func (NopPublisher) PublishLogout(context.Context, string) error { return nil }
