package processors

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rentiva/rentiva/internal/domain/coordination"
	"github.com/rentiva/rentiva/pkg/logger"
)

// UserProcessor drains the user queue: onboarding and profile maintenance.
type UserProcessor struct {
	cache  coordination.CacheService
	pubsub coordination.PubSubService
	logger *logger.Logger
}

func NewUserProcessor(cache coordination.CacheService, pubsub coordination.PubSubService, log *logger.Logger) *UserProcessor {
	return &UserProcessor{
		cache:  cache,
		pubsub: pubsub,
		logger: log,
	}
}

func (p *UserProcessor) Queues() []string {
	return []string{coordination.QueueUser}
}

func (p *UserProcessor) Process(ctx context.Context, job *coordination.Job) error {
	switch job.Name {
	case coordination.JobWelcomeUser:
		var payload coordination.WelcomeUserPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("failed to decode welcome-user payload: %w", err)
		}
		return p.welcomeUser(ctx, payload)
	case coordination.JobUpdateProfile:
		var payload coordination.UpdateProfilePayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("failed to decode update-profile payload: %w", err)
		}
		return p.updateProfile(ctx, payload)
	default:
		return unknownJob(job)
	}
}

// welcomeUser warms the user cache and then greets the user. Cache comes
// first: a client reacting to the notification re-fetches immediately.
func (p *UserProcessor) welcomeUser(ctx context.Context, payload coordination.WelcomeUserPayload) error {
	user := map[string]interface{}{
		"id":          payload.UserID,
		"email":       payload.Email,
		"first_name":  payload.FirstName,
		"welcomed_at": time.Now().UTC(),
	}
	if err := p.cache.CacheUser(ctx, payload.UserID, user); err != nil {
		return err
	}

	notification := map[string]interface{}{
		"type":    "welcome",
		"user_id": payload.UserID,
		"message": fmt.Sprintf("Welcome to Rentiva, %s!", payload.Email),
	}
	if err := p.pubsub.PublishUserNotification(ctx, payload.UserID, notification); err != nil {
		return err
	}

	p.logger.Info("User welcomed", "user_id", payload.UserID)
	return nil
}

// updateProfile drops the user's derived caches and then announces the
// change, in that order.
func (p *UserProcessor) updateProfile(ctx context.Context, payload coordination.UpdateProfilePayload) error {
	if err := p.cache.InvalidateUserData(ctx, payload.UserID); err != nil {
		return err
	}

	notification := map[string]interface{}{
		"type":    "profile_updated",
		"user_id": payload.UserID,
		"fields":  payload.Fields,
	}
	return p.pubsub.PublishUserNotification(ctx, payload.UserID, notification)
}
