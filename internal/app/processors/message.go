package processors

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rentiva/rentiva/internal/domain/coordination"
	"github.com/rentiva/rentiva/pkg/logger"
)

// MessageProcessor drains the message queue. Ephemeral chat messages are
// delivered over pub/sub only; they are never written to the relational
// store.
type MessageProcessor struct {
	pubsub coordination.PubSubService
	logger *logger.Logger
}

func NewMessageProcessor(pubsub coordination.PubSubService, log *logger.Logger) *MessageProcessor {
	return &MessageProcessor{
		pubsub: pubsub,
		logger: log,
	}
}

func (p *MessageProcessor) Queues() []string {
	return []string{coordination.QueueMessage}
}

func (p *MessageProcessor) Process(ctx context.Context, job *coordination.Job) error {
	switch job.Name {
	case coordination.JobEphemeralMessage:
		var payload coordination.EphemeralMessagePayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("failed to decode ephemeral-message payload: %w", err)
		}
		message := map[string]interface{}{
			"sender_id": payload.SenderID,
			"body":      payload.Body,
			"sent_at":   time.Now().UTC(),
			"ephemeral": true,
		}
		if err := p.pubsub.PublishChatMessage(ctx, payload.Room, message); err != nil {
			return err
		}
		p.logger.Debug("Ephemeral message delivered", "room", payload.Room, "sender_id", payload.SenderID)
		return nil
	default:
		return unknownJob(job)
	}
}
