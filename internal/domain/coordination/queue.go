package coordination

import (
	"context"
	"encoding/json"
	"time"
)

// Queue names. Each queue is drained by exactly one domain processor.
const (
	QueueEmail        = "email"
	QueueNotification = "notification"
	QueueProperty     = "property"
	QueueUser         = "user"
	QueueSearch       = "search"
	QueueFile         = "file"
	QueueMessage      = "message"
)

// JobStatus is the lifecycle state of a queued job.
type JobStatus string

const (
	JobWaiting   JobStatus = "waiting"
	JobActive    JobStatus = "active"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobDelayed   JobStatus = "delayed"
)

// Job is one unit of asynchronous work.
type Job struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`
	Name        string          `json:"name"`
	Payload     json.RawMessage `json:"payload"`
	Status      JobStatus       `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	Backoff     time.Duration   `json:"backoff"`
	CreatedAt   time.Time       `json:"created_at"`
	ProcessedAt time.Time       `json:"processed_at,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// JobOptions controls retry and scheduling for one job. Zero values fall
// back to the queue service defaults.
type JobOptions struct {
	Attempts int
	Backoff  time.Duration
	Delay    time.Duration
}

// QueueStats is a point-in-time census of one queue.
type QueueStats struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Delayed   int64 `json:"delayed"`
	Paused    bool  `json:"paused"`
}

// QueueService is the producer/consumer surface of the named job queues.
type QueueService interface {
	Add(ctx context.Context, queue, name string, payload interface{}, opts *JobOptions) (*Job, error)
	GetJob(ctx context.Context, queue, id string) (*Job, error)
	GetJobs(ctx context.Context, queue string, status JobStatus, start, stop int64) ([]*Job, error)
	Stats(ctx context.Context, queue string) (QueueStats, error)

	Pause(ctx context.Context, queue string) error
	Resume(ctx context.Context, queue string) error
	Remove(ctx context.Context, queue, id string) error
	Clean(ctx context.Context, queue string, grace time.Duration) (int, error)

	// Consumer side
	Next(ctx context.Context, queue string) (*Job, error)
	Complete(ctx context.Context, job *Job) error
	Fail(ctx context.Context, job *Job, jobErr error) error

	// Typed producers
	AddWelcomeUserJob(ctx context.Context, p WelcomeUserPayload) (*Job, error)
	AddUpdateProfileJob(ctx context.Context, p UpdateProfilePayload) (*Job, error)
	AddIndexPropertyJob(ctx context.Context, p IndexPropertyPayload) (*Job, error)
	AddProcessImagesJob(ctx context.Context, p ProcessImagesPayload) (*Job, error)
	AddSendEmailJob(ctx context.Context, p SendEmailPayload) (*Job, error)
	AddSendNotificationJob(ctx context.Context, p SendNotificationPayload) (*Job, error)
	AddEphemeralMessageJob(ctx context.Context, p EphemeralMessagePayload) (*Job, error)
	AddReindexQueryJob(ctx context.Context, p ReindexQueryPayload) (*Job, error)
	AddCleanupUploadsJob(ctx context.Context, p CleanupUploadsPayload) (*Job, error)
}
