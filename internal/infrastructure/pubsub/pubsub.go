package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/rentiva/rentiva/internal/domain/coordination"
	redisinfra "github.com/rentiva/rentiva/internal/infrastructure/redis"
	"github.com/rentiva/rentiva/pkg/logger"
)

var _ coordination.PubSubService = (*Service)(nil)

type subscriber struct {
	id      string
	handler coordination.PubSubHandler
}

// Service is the channel/pattern fan-out bus. One shared wire subscription
// on the dedicated subscriber connection receives every message; the
// service demultiplexes by channel (or pattern) and invokes the registered
// handlers in registration order. The registry mutex guards only map
// access; handlers always run outside the lock.
type Service struct {
	redis  *redisinfra.Manager
	logger *logger.Logger

	mu       sync.RWMutex
	channels map[string][]subscriber
	patterns map[string][]subscriber
	closed   bool

	pubsub *goredis.PubSub
	done   chan struct{}
}

// NewService creates the bus and starts the receive loop. Tear it down with
// Close; the loop drains when the wire subscription closes.
func NewService(mgr *redisinfra.Manager, log *logger.Logger) *Service {
	s := &Service{
		redis:    mgr,
		logger:   log,
		channels: make(map[string][]subscriber),
		patterns: make(map[string][]subscriber),
		pubsub:   mgr.Subscriber().Subscribe(context.Background()),
		done:     make(chan struct{}),
	}
	go s.receive()
	return s
}

// receive demultiplexes wire messages to the in-process registry.
func (s *Service) receive() {
	defer close(s.done)
	for msg := range s.pubsub.Channel() {
		envelope := decodeEnvelope(msg)

		var handlers []subscriber
		s.mu.RLock()
		if msg.Pattern != "" {
			handlers = append(handlers, s.patterns[msg.Pattern]...)
		} else {
			handlers = append(handlers, s.channels[msg.Channel]...)
		}
		s.mu.RUnlock()

		for _, sub := range handlers {
			s.deliver(sub, envelope)
		}
	}
}

// deliver invokes one handler, isolating panics so a broken subscriber
// cannot starve the rest of the channel.
func (s *Service) deliver(sub subscriber, msg coordination.PubSubMessage) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Subscriber panicked", "channel", msg.Channel, "subscription_id", sub.id, "panic", r)
		}
	}()
	sub.handler(msg)
}

func decodeEnvelope(msg *goredis.Message) coordination.PubSubMessage {
	var envelope coordination.PubSubMessage
	if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil || envelope.Channel == "" {
		// Raw publisher outside this layer; wrap the payload as-is.
		envelope = coordination.PubSubMessage{
			Channel:   msg.Channel,
			Payload:   json.RawMessage(msg.Payload),
			Timestamp: time.Now(),
		}
	}
	return envelope
}

// Publish sends payload to channel and returns the wire-level receiver count.
func (s *Service) Publish(ctx context.Context, channel string, payload interface{}, publisher string) (int64, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize payload for channel %s: %w", channel, err)
	}
	envelope, err := json.Marshal(coordination.PubSubMessage{
		Channel:   channel,
		Payload:   raw,
		Timestamp: time.Now(),
		Publisher: publisher,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to serialize envelope for channel %s: %w", channel, err)
	}

	n, err := s.redis.Publisher().Publish(ctx, channel, envelope).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to publish to channel %s: %w", channel, err)
	}
	return n, nil
}

// Broadcast publishes the same payload to several channels.
func (s *Service) Broadcast(ctx context.Context, channels []string, payload interface{}) error {
	for _, channel := range channels {
		if _, err := s.Publish(ctx, channel, payload, "broadcast"); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe registers a handler for a channel and returns its subscription
// id. The first handler on a channel opens the wire subscription.
func (s *Service) Subscribe(channel string, handler coordination.PubSubHandler) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", fmt.Errorf("pubsub service is closed")
	}

	id := uuid.NewString()
	first := len(s.channels[channel]) == 0
	s.channels[channel] = append(s.channels[channel], subscriber{id: id, handler: handler})

	if first {
		if err := s.pubsub.Subscribe(context.Background(), channel); err != nil {
			delete(s.channels, channel)
			return "", fmt.Errorf("failed to subscribe to channel %s: %w", channel, err)
		}
	}
	return id, nil
}

// Unsubscribe removes one subscription by id, or every handler on the
// channel when subscriptionID is empty. The wire subscription closes when
// the last handler goes.
func (s *Service) Unsubscribe(channel, subscriptionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if subscriptionID == "" {
		delete(s.channels, channel)
	} else {
		subs := s.channels[channel]
		for i, sub := range subs {
			if sub.id == subscriptionID {
				s.channels[channel] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(s.channels[channel]) == 0 {
			delete(s.channels, channel)
		}
	}

	if _, live := s.channels[channel]; !live && !s.closed {
		if err := s.pubsub.Unsubscribe(context.Background(), channel); err != nil {
			return fmt.Errorf("failed to unsubscribe from channel %s: %w", channel, err)
		}
	}
	return nil
}

// SubscribePattern registers a handler for a glob-style channel pattern.
func (s *Service) SubscribePattern(pattern string, handler coordination.PubSubHandler) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", fmt.Errorf("pubsub service is closed")
	}

	id := uuid.NewString()
	first := len(s.patterns[pattern]) == 0
	s.patterns[pattern] = append(s.patterns[pattern], subscriber{id: id, handler: handler})

	if first {
		if err := s.pubsub.PSubscribe(context.Background(), pattern); err != nil {
			delete(s.patterns, pattern)
			return "", fmt.Errorf("failed to subscribe to pattern %s: %w", pattern, err)
		}
	}
	return id, nil
}

// UnsubscribePattern clears every handler registered for pattern.
func (s *Service) UnsubscribePattern(pattern string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.patterns, pattern)
	if !s.closed {
		if err := s.pubsub.PUnsubscribe(context.Background(), pattern); err != nil {
			return fmt.Errorf("failed to unsubscribe from pattern %s: %w", pattern, err)
		}
	}
	return nil
}

// Domain helpers using the shared channel naming scheme.

func (s *Service) PublishPropertyUpdate(ctx context.Context, propertyID string, event interface{}) error {
	_, err := s.Publish(ctx, fmt.Sprintf(coordination.PropertyChannelPattern, propertyID), event, "property-service")
	return err
}

func (s *Service) PublishUserNotification(ctx context.Context, userID string, notification interface{}) error {
	_, err := s.Publish(ctx, fmt.Sprintf(coordination.UserNotificationChannelPattern, userID), notification, "notification-service")
	return err
}

func (s *Service) PublishChatMessage(ctx context.Context, room string, message interface{}) error {
	_, err := s.Publish(ctx, fmt.Sprintf(coordination.ChatChannelPattern, room), message, "message-service")
	return err
}

func (s *Service) PublishSystemNotification(ctx context.Context, notification interface{}) error {
	_, err := s.Publish(ctx, coordination.SystemNotificationChannel, notification, "system")
	return err
}

func (s *Service) PublishSearchUpdate(ctx context.Context, searchID string, event interface{}) error {
	_, err := s.Publish(ctx, fmt.Sprintf(coordination.SearchChannelPattern, searchID), event, "search-service")
	return err
}

func (s *Service) PublishAdminAlert(ctx context.Context, adminID string, alert interface{}) error {
	_, err := s.Publish(ctx, fmt.Sprintf(coordination.AdminChannelPattern, adminID), alert, "system")
	return err
}

// Close unsubscribes everything, stops the receive loop and waits for it to
// drain.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.channels = make(map[string][]subscriber)
	s.patterns = make(map[string][]subscriber)
	s.mu.Unlock()

	err := s.pubsub.Close()
	<-s.done
	return err
}
