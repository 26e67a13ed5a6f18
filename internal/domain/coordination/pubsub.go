package coordination

import (
	"context"
	"encoding/json"
	"time"
)

// PubSubMessage is the envelope carried on every channel. Payload stays raw
// so subscribers decode into whatever shape their channel uses.
type PubSubMessage struct {
	Channel   string          `json:"channel"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
	Publisher string          `json:"publisher,omitempty"`
}

// PubSubHandler consumes one delivered message. Handlers run sequentially in
// registration order; a panic in one handler does not stop the others.
type PubSubHandler func(msg PubSubMessage)

// PubSubService is channel- and pattern-based fan-out messaging. Subscribe
// returns an opaque subscription id because Go functions are not comparable;
// Unsubscribe with an empty id clears the whole channel.
type PubSubService interface {
	Publish(ctx context.Context, channel string, payload interface{}, publisher string) (int64, error)
	Broadcast(ctx context.Context, channels []string, payload interface{}) error

	Subscribe(channel string, handler PubSubHandler) (string, error)
	Unsubscribe(channel, subscriptionID string) error
	SubscribePattern(pattern string, handler PubSubHandler) (string, error)
	UnsubscribePattern(pattern string) error

	// Domain helpers
	PublishPropertyUpdate(ctx context.Context, propertyID string, event interface{}) error
	PublishUserNotification(ctx context.Context, userID string, notification interface{}) error
	PublishChatMessage(ctx context.Context, room string, message interface{}) error
	PublishSystemNotification(ctx context.Context, notification interface{}) error
	PublishSearchUpdate(ctx context.Context, searchID string, event interface{}) error
	PublishAdminAlert(ctx context.Context, adminID string, alert interface{}) error

	Close() error
}
