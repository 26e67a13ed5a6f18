package processors

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rentiva/rentiva/internal/domain/coordination"
	"github.com/rentiva/rentiva/pkg/logger"
)

// NotificationProcessor drains the email and notification queues. Actual
// mail delivery belongs to the external mailer listening on the email
// channels; this processor's job is the fan-out.
type NotificationProcessor struct {
	pubsub coordination.PubSubService
	logger *logger.Logger
}

func NewNotificationProcessor(pubsub coordination.PubSubService, log *logger.Logger) *NotificationProcessor {
	return &NotificationProcessor{
		pubsub: pubsub,
		logger: log,
	}
}

func (p *NotificationProcessor) Queues() []string {
	return []string{coordination.QueueEmail, coordination.QueueNotification}
}

func (p *NotificationProcessor) Process(ctx context.Context, job *coordination.Job) error {
	switch job.Name {
	case coordination.JobSendEmail:
		var payload coordination.SendEmailPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("failed to decode send-email payload: %w", err)
		}
		_, err := p.pubsub.Publish(ctx,
			fmt.Sprintf(coordination.EmailChannelPattern, payload.To), payload, "notification-service")
		if err != nil {
			return err
		}
		p.logger.Info("Email dispatched", "to", payload.To, "template", payload.Template)
		return nil
	case coordination.JobSendNotification:
		var payload coordination.SendNotificationPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("failed to decode send-notification payload: %w", err)
		}
		notification := map[string]interface{}{
			"type": payload.Kind,
			"body": payload.Body,
		}
		return p.pubsub.PublishUserNotification(ctx, payload.UserID, notification)
	default:
		return unknownJob(job)
	}
}
