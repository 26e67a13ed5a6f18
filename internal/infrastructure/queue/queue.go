package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/rentiva/rentiva/internal/app/config"
	"github.com/rentiva/rentiva/internal/domain/coordination"
	redisinfra "github.com/rentiva/rentiva/internal/infrastructure/redis"
	"github.com/rentiva/rentiva/pkg/logger"
)

var _ coordination.QueueService = (*Service)(nil)

// Key layout per queue. Waiting/active/completed/failed are lists of job
// ids (producers LPUSH, consumers take from the right), delayed is a sorted
// set scored by ready-time, and each job record lives in its own key.
const (
	jobKeyPattern     = "queue_job:%s:%s" // queue:id
	waitingKeyPattern = "queue:%s:waiting"
	activeKeyPattern  = "queue:%s:active"
	doneKeyPattern    = "queue:%s:completed"
	failedKeyPattern  = "queue:%s:failed"
	delayedKeyPattern = "queue:%s:delayed"
	pausedKeyPattern  = "queue:%s:paused"
)

// Service implements the named job queues on Redis lists. Delivery is
// at-least-once: a job is retried until it completes or runs out of
// attempts. Completed and failed records are trimmed to a bounded history.
type Service struct {
	redis    *redisinfra.Manager
	logger   *logger.Logger
	defaults config.QueueConfig
}

// NewService creates the queue service.
func NewService(mgr *redisinfra.Manager, defaults config.QueueConfig, log *logger.Logger) *Service {
	if defaults.DefaultAttempts <= 0 {
		defaults.DefaultAttempts = 3
	}
	if defaults.DefaultBackoff <= 0 {
		defaults.DefaultBackoff = 5 * time.Second
	}
	if defaults.KeepCompleted <= 0 {
		defaults.KeepCompleted = 100
	}
	if defaults.KeepFailed <= 0 {
		defaults.KeepFailed = 50
	}
	return &Service{
		redis:    mgr,
		logger:   log,
		defaults: defaults,
	}
}

// Add enqueues one job. A positive Delay parks it in the delayed set until
// its ready-time; otherwise it joins the waiting list immediately.
func (s *Service) Add(ctx context.Context, queue, name string, payload interface{}, opts *coordination.JobOptions) (*coordination.Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize payload for job %s: %w", name, err)
	}

	options := s.applyDefaults(opts)
	job := &coordination.Job{
		ID:          uuid.NewString(),
		Queue:       queue,
		Name:        name,
		Payload:     raw,
		Status:      coordination.JobWaiting,
		MaxAttempts: options.Attempts,
		Backoff:     options.Backoff,
		CreatedAt:   time.Now(),
	}
	if options.Delay > 0 {
		job.Status = coordination.JobDelayed
	}

	record, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize job %s: %w", job.ID, err)
	}

	pipe := s.redis.Command().TxPipeline()
	pipe.Set(ctx, fmt.Sprintf(jobKeyPattern, queue, job.ID), record, 0)
	if options.Delay > 0 {
		pipe.ZAdd(ctx, fmt.Sprintf(delayedKeyPattern, queue), goredis.Z{
			Score:  float64(time.Now().Add(options.Delay).UnixMilli()),
			Member: job.ID,
		})
	} else {
		pipe.LPush(ctx, fmt.Sprintf(waitingKeyPattern, queue), job.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to enqueue job %s on %s: %w", name, queue, err)
	}

	s.logger.Debug("Job enqueued", "queue", queue, "job", name, "job_id", job.ID, "delay", options.Delay)
	return job, nil
}

// GetJob loads one job record. Unknown ids are nil, nil.
func (s *Service) GetJob(ctx context.Context, queue, id string) (*coordination.Job, error) {
	raw, err := s.redis.Command().Get(ctx, fmt.Sprintf(jobKeyPattern, queue, id)).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read job %s: %w", id, err)
	}
	var job coordination.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("failed to decode job %s: %w", id, err)
	}
	return &job, nil
}

// GetJobs lists jobs in one lifecycle state, newest first for list-backed
// states and soonest-ready first for delayed.
func (s *Service) GetJobs(ctx context.Context, queue string, status coordination.JobStatus, start, stop int64) ([]*coordination.Job, error) {
	var (
		ids []string
		err error
	)
	switch status {
	case coordination.JobWaiting:
		ids, err = s.redis.Command().LRange(ctx, fmt.Sprintf(waitingKeyPattern, queue), start, stop).Result()
	case coordination.JobActive:
		ids, err = s.redis.Command().LRange(ctx, fmt.Sprintf(activeKeyPattern, queue), start, stop).Result()
	case coordination.JobCompleted:
		ids, err = s.redis.Command().LRange(ctx, fmt.Sprintf(doneKeyPattern, queue), start, stop).Result()
	case coordination.JobFailed:
		ids, err = s.redis.Command().LRange(ctx, fmt.Sprintf(failedKeyPattern, queue), start, stop).Result()
	case coordination.JobDelayed:
		ids, err = s.redis.Command().ZRange(ctx, fmt.Sprintf(delayedKeyPattern, queue), start, stop).Result()
	default:
		return nil, fmt.Errorf("unknown job status %q", status)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s jobs on %s: %w", status, queue, err)
	}

	jobs := make([]*coordination.Job, 0, len(ids))
	for _, id := range ids {
		job, err := s.GetJob(ctx, queue, id)
		if err != nil {
			return nil, err
		}
		if job != nil {
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}

// Stats reports a point-in-time census of the queue.
func (s *Service) Stats(ctx context.Context, queue string) (coordination.QueueStats, error) {
	pipe := s.redis.Command().Pipeline()
	waiting := pipe.LLen(ctx, fmt.Sprintf(waitingKeyPattern, queue))
	active := pipe.LLen(ctx, fmt.Sprintf(activeKeyPattern, queue))
	completed := pipe.LLen(ctx, fmt.Sprintf(doneKeyPattern, queue))
	failed := pipe.LLen(ctx, fmt.Sprintf(failedKeyPattern, queue))
	delayed := pipe.ZCard(ctx, fmt.Sprintf(delayedKeyPattern, queue))
	paused := pipe.Exists(ctx, fmt.Sprintf(pausedKeyPattern, queue))
	if _, err := pipe.Exec(ctx); err != nil {
		return coordination.QueueStats{}, fmt.Errorf("failed to read stats for %s: %w", queue, err)
	}

	return coordination.QueueStats{
		Waiting:   waiting.Val(),
		Active:    active.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
		Delayed:   delayed.Val(),
		Paused:    paused.Val() > 0,
	}, nil
}

// Pause stops consumers from taking new jobs; in-flight jobs finish.
func (s *Service) Pause(ctx context.Context, queue string) error {
	if err := s.redis.Command().Set(ctx, fmt.Sprintf(pausedKeyPattern, queue), "1", 0).Err(); err != nil {
		return fmt.Errorf("failed to pause queue %s: %w", queue, err)
	}
	s.logger.Info("Queue paused", "queue", queue)
	return nil
}

// Resume lifts a pause.
func (s *Service) Resume(ctx context.Context, queue string) error {
	if err := s.redis.Command().Del(ctx, fmt.Sprintf(pausedKeyPattern, queue)).Err(); err != nil {
		return fmt.Errorf("failed to resume queue %s: %w", queue, err)
	}
	s.logger.Info("Queue resumed", "queue", queue)
	return nil
}

// Remove deletes a queued-but-not-started job wherever it sits.
func (s *Service) Remove(ctx context.Context, queue, id string) error {
	pipe := s.redis.Command().TxPipeline()
	pipe.Del(ctx, fmt.Sprintf(jobKeyPattern, queue, id))
	pipe.LRem(ctx, fmt.Sprintf(waitingKeyPattern, queue), 0, id)
	pipe.LRem(ctx, fmt.Sprintf(activeKeyPattern, queue), 0, id)
	pipe.LRem(ctx, fmt.Sprintf(doneKeyPattern, queue), 0, id)
	pipe.LRem(ctx, fmt.Sprintf(failedKeyPattern, queue), 0, id)
	pipe.ZRem(ctx, fmt.Sprintf(delayedKeyPattern, queue), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove job %s from %s: %w", id, queue, err)
	}
	return nil
}

// Clean prunes completed and failed jobs whose processing finished more
// than grace ago. Returns the number of jobs removed.
func (s *Service) Clean(ctx context.Context, queue string, grace time.Duration) (int, error) {
	cutoff := time.Now().Add(-grace)
	removed := 0
	for _, listKey := range []string{
		fmt.Sprintf(doneKeyPattern, queue),
		fmt.Sprintf(failedKeyPattern, queue),
	} {
		ids, err := s.redis.Command().LRange(ctx, listKey, 0, -1).Result()
		if err != nil {
			return removed, fmt.Errorf("failed to list jobs for cleaning on %s: %w", queue, err)
		}
		for _, id := range ids {
			job, err := s.GetJob(ctx, queue, id)
			if err != nil {
				return removed, err
			}
			if job == nil || job.ProcessedAt.Before(cutoff) {
				pipe := s.redis.Command().TxPipeline()
				pipe.LRem(ctx, listKey, 0, id)
				pipe.Del(ctx, fmt.Sprintf(jobKeyPattern, queue, id))
				if _, err := pipe.Exec(ctx); err != nil {
					return removed, fmt.Errorf("failed to clean job %s on %s: %w", id, queue, err)
				}
				removed++
			}
		}
	}
	s.logger.Info("Queue cleaned", "queue", queue, "removed", removed, "grace", grace)
	return removed, nil
}

// Next takes the oldest ready job, moving it waiting -> active and bumping
// its attempt counter. It returns nil, nil when the queue is paused or
// empty. Due delayed jobs are promoted first.
func (s *Service) Next(ctx context.Context, queue string) (*coordination.Job, error) {
	paused, err := s.redis.Command().Exists(ctx, fmt.Sprintf(pausedKeyPattern, queue)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to check pause flag for %s: %w", queue, err)
	}
	if paused > 0 {
		return nil, nil
	}

	if err := s.promoteDelayed(ctx, queue); err != nil {
		return nil, err
	}

	for {
		id, err := s.redis.Command().LMove(ctx,
			fmt.Sprintf(waitingKeyPattern, queue),
			fmt.Sprintf(activeKeyPattern, queue),
			"RIGHT", "LEFT").Result()
		if err == goredis.Nil {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to take next job from %s: %w", queue, err)
		}

		job, err := s.GetJob(ctx, queue, id)
		if err != nil {
			return nil, err
		}
		if job == nil {
			// Record was removed while the id sat in the waiting list.
			s.redis.Command().LRem(ctx, fmt.Sprintf(activeKeyPattern, queue), 0, id)
			continue
		}

		job.Status = coordination.JobActive
		job.Attempts++
		if err := s.saveJob(ctx, job); err != nil {
			return nil, err
		}
		return job, nil
	}
}

// Complete settles a finished job into the bounded completed history.
func (s *Service) Complete(ctx context.Context, job *coordination.Job) error {
	job.Status = coordination.JobCompleted
	job.ProcessedAt = time.Now()
	job.Error = ""
	if err := s.saveJob(ctx, job); err != nil {
		return err
	}

	pipe := s.redis.Command().TxPipeline()
	pipe.LRem(ctx, fmt.Sprintf(activeKeyPattern, job.Queue), 0, job.ID)
	pipe.LPush(ctx, fmt.Sprintf(doneKeyPattern, job.Queue), job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to complete job %s: %w", job.ID, err)
	}

	return s.trim(ctx, job.Queue, fmt.Sprintf(doneKeyPattern, job.Queue), s.defaults.KeepCompleted)
}

// Fail either reschedules the job through the delayed set (linear backoff
// by attempt count) or settles it into the bounded failed history once its
// attempts are spent.
func (s *Service) Fail(ctx context.Context, job *coordination.Job, jobErr error) error {
	job.Error = jobErr.Error()
	job.ProcessedAt = time.Now()

	if job.Attempts < job.MaxAttempts {
		job.Status = coordination.JobDelayed
		if err := s.saveJob(ctx, job); err != nil {
			return err
		}
		backoff := job.Backoff * time.Duration(job.Attempts)
		pipe := s.redis.Command().TxPipeline()
		pipe.LRem(ctx, fmt.Sprintf(activeKeyPattern, job.Queue), 0, job.ID)
		pipe.ZAdd(ctx, fmt.Sprintf(delayedKeyPattern, job.Queue), goredis.Z{
			Score:  float64(time.Now().Add(backoff).UnixMilli()),
			Member: job.ID,
		})
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to reschedule job %s: %w", job.ID, err)
		}
		s.logger.Warn("Job failed, retrying", "queue", job.Queue, "job_id", job.ID,
			"attempt", job.Attempts, "max_attempts", job.MaxAttempts, "backoff", backoff, "error", jobErr)
		return nil
	}

	job.Status = coordination.JobFailed
	if err := s.saveJob(ctx, job); err != nil {
		return err
	}
	pipe := s.redis.Command().TxPipeline()
	pipe.LRem(ctx, fmt.Sprintf(activeKeyPattern, job.Queue), 0, job.ID)
	pipe.LPush(ctx, fmt.Sprintf(failedKeyPattern, job.Queue), job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to settle job %s as failed: %w", job.ID, err)
	}
	s.logger.Error("Job failed permanently", "queue", job.Queue, "job_id", job.ID,
		"attempts", job.Attempts, "error", jobErr)

	return s.trim(ctx, job.Queue, fmt.Sprintf(failedKeyPattern, job.Queue), s.defaults.KeepFailed)
}

// promoteDelayed moves every due delayed job onto the consumer end of the
// waiting list.
func (s *Service) promoteDelayed(ctx context.Context, queue string) error {
	delayedKey := fmt.Sprintf(delayedKeyPattern, queue)
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	due, err := s.redis.Command().ZRangeByScore(ctx, delayedKey, &goredis.ZRangeBy{
		Min: "-inf", Max: now,
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to read delayed jobs for %s: %w", queue, err)
	}
	if len(due) == 0 {
		return nil
	}

	pipe := s.redis.Command().TxPipeline()
	for _, id := range due {
		pipe.ZRem(ctx, delayedKey, id)
		pipe.RPush(ctx, fmt.Sprintf(waitingKeyPattern, queue), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to promote delayed jobs for %s: %w", queue, err)
	}
	return nil
}

// trim enforces the retention policy on a completed/failed list, deleting
// the records that fall off the end.
func (s *Service) trim(ctx context.Context, queue, listKey string, keep int64) error {
	evicted, err := s.redis.Command().LRange(ctx, listKey, keep, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to read eviction candidates for %s: %w", queue, err)
	}
	if len(evicted) == 0 {
		return nil
	}

	pipe := s.redis.Command().TxPipeline()
	pipe.LTrim(ctx, listKey, 0, keep-1)
	for _, id := range evicted {
		pipe.Del(ctx, fmt.Sprintf(jobKeyPattern, queue, id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to trim history for %s: %w", queue, err)
	}
	return nil
}

func (s *Service) saveJob(ctx context.Context, job *coordination.Job) error {
	record, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to serialize job %s: %w", job.ID, err)
	}
	if err := s.redis.Command().Set(ctx, fmt.Sprintf(jobKeyPattern, job.Queue, job.ID), record, 0).Err(); err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}
	return nil
}

func (s *Service) applyDefaults(opts *coordination.JobOptions) coordination.JobOptions {
	options := coordination.JobOptions{}
	if opts != nil {
		options = *opts
	}
	if options.Attempts <= 0 {
		options.Attempts = s.defaults.DefaultAttempts
	}
	if options.Backoff <= 0 {
		options.Backoff = s.defaults.DefaultBackoff
	}
	return options
}

// Typed producers. Each pins the queue and job name for one payload shape.

func (s *Service) AddWelcomeUserJob(ctx context.Context, p coordination.WelcomeUserPayload) (*coordination.Job, error) {
	return s.Add(ctx, coordination.QueueUser, coordination.JobWelcomeUser, p, nil)
}

func (s *Service) AddUpdateProfileJob(ctx context.Context, p coordination.UpdateProfilePayload) (*coordination.Job, error) {
	return s.Add(ctx, coordination.QueueUser, coordination.JobUpdateProfile, p, nil)
}

func (s *Service) AddIndexPropertyJob(ctx context.Context, p coordination.IndexPropertyPayload) (*coordination.Job, error) {
	return s.Add(ctx, coordination.QueueProperty, coordination.JobIndexProperty, p, nil)
}

func (s *Service) AddProcessImagesJob(ctx context.Context, p coordination.ProcessImagesPayload) (*coordination.Job, error) {
	return s.Add(ctx, coordination.QueueProperty, coordination.JobProcessImages, p, nil)
}

func (s *Service) AddSendEmailJob(ctx context.Context, p coordination.SendEmailPayload) (*coordination.Job, error) {
	return s.Add(ctx, coordination.QueueEmail, coordination.JobSendEmail, p, nil)
}

func (s *Service) AddSendNotificationJob(ctx context.Context, p coordination.SendNotificationPayload) (*coordination.Job, error) {
	return s.Add(ctx, coordination.QueueNotification, coordination.JobSendNotification, p, nil)
}

func (s *Service) AddEphemeralMessageJob(ctx context.Context, p coordination.EphemeralMessagePayload) (*coordination.Job, error) {
	return s.Add(ctx, coordination.QueueMessage, coordination.JobEphemeralMessage, p, nil)
}

func (s *Service) AddReindexQueryJob(ctx context.Context, p coordination.ReindexQueryPayload) (*coordination.Job, error) {
	return s.Add(ctx, coordination.QueueSearch, coordination.JobReindexQuery, p, nil)
}

func (s *Service) AddCleanupUploadsJob(ctx context.Context, p coordination.CleanupUploadsPayload) (*coordination.Job, error) {
	return s.Add(ctx, coordination.QueueFile, coordination.JobCleanupUploads, p, nil)
}
