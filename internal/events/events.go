package events

import "context"

// Pub/sub channels
const (
	ChannelLink    = "events:link"
	ChannelBilling = "events:billing"
)

// Event types
const (
	EventLinkRequested     = "link_requested"
	EventLinkActivated     = "link_activated"
	EventPaymentFailed     = "payment_failed"
	EventSubscriptionEnded = "subscription_ended"
	EventAccessRevoke      = "access_revoke"
)

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
