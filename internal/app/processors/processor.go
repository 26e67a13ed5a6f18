package processors

import (
	"context"
	"fmt"

	"github.com/rentiva/rentiva/internal/domain/coordination"
)

// Processor consumes jobs from one or more queues. Implementations follow a
// fixed ordering contract: derived caches are refreshed before any pub/sub
// notification goes out, so a client that re-fetches on notification never
// reads a stale entry.
type Processor interface {
	Queues() []string
	Process(ctx context.Context, job *coordination.Job) error
}

func unknownJob(job *coordination.Job) error {
	return fmt.Errorf("unknown job %q on queue %q", job.Name, job.Queue)
}
