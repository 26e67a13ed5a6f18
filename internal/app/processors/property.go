package processors

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rentiva/rentiva/internal/domain/coordination"
	"github.com/rentiva/rentiva/pkg/logger"
)

// PropertyProcessor drains the property queue: search indexing and image
// post-processing.
type PropertyProcessor struct {
	cache  coordination.CacheService
	pubsub coordination.PubSubService
	logger *logger.Logger
}

func NewPropertyProcessor(cache coordination.CacheService, pubsub coordination.PubSubService, log *logger.Logger) *PropertyProcessor {
	return &PropertyProcessor{
		cache:  cache,
		pubsub: pubsub,
		logger: log,
	}
}

func (p *PropertyProcessor) Queues() []string {
	return []string{coordination.QueueProperty}
}

func (p *PropertyProcessor) Process(ctx context.Context, job *coordination.Job) error {
	switch job.Name {
	case coordination.JobIndexProperty:
		var payload coordination.IndexPropertyPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("failed to decode index-property payload: %w", err)
		}
		return p.indexProperty(ctx, payload)
	case coordination.JobProcessImages:
		var payload coordination.ProcessImagesPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("failed to decode process-images payload: %w", err)
		}
		return p.processImages(ctx, payload)
	default:
		return unknownJob(job)
	}
}

// indexProperty drops stale listing pages, refreshes the property record,
// and only then announces the update.
func (p *PropertyProcessor) indexProperty(ctx context.Context, payload coordination.IndexPropertyPayload) error {
	if _, err := p.cache.InvalidatePattern(ctx, "property_list:"); err != nil {
		return err
	}

	record := map[string]interface{}{
		"id":         payload.PropertyID,
		"owner_id":   payload.OwnerID,
		"indexed_at": time.Now().UTC(),
	}
	if err := p.cache.CacheProperty(ctx, payload.PropertyID, record); err != nil {
		return err
	}

	event := map[string]interface{}{
		"type":        "indexed",
		"property_id": payload.PropertyID,
	}
	if err := p.pubsub.PublishPropertyUpdate(ctx, payload.PropertyID, event); err != nil {
		return err
	}

	p.logger.Info("Property indexed", "property_id", payload.PropertyID)
	return nil
}

// processImages attaches the processed image URLs to the cached record
// before notifying watchers.
func (p *PropertyProcessor) processImages(ctx context.Context, payload coordination.ProcessImagesPayload) error {
	record := map[string]interface{}{
		"id":     payload.PropertyID,
		"images": payload.ImageURLs,
	}
	var cached map[string]interface{}
	if p.cache.GetCachedProperty(ctx, payload.PropertyID, &cached) {
		cached["images"] = payload.ImageURLs
		record = cached
	}
	if err := p.cache.CacheProperty(ctx, payload.PropertyID, record); err != nil {
		return err
	}

	event := map[string]interface{}{
		"type":        "images_processed",
		"property_id": payload.PropertyID,
		"count":       len(payload.ImageURLs),
	}
	return p.pubsub.PublishPropertyUpdate(ctx, payload.PropertyID, event)
}
