package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rentiva/rentiva/internal/app/config"
	"github.com/rentiva/rentiva/internal/app/processors"
	"github.com/rentiva/rentiva/internal/app/services"
	"github.com/rentiva/rentiva/internal/domain/coordination"
	"github.com/rentiva/rentiva/pkg/logger"
)

// Worker drains the job queues with one pool of goroutines per queue and
// hands each job to its domain processor.
type Worker struct {
	config   config.WorkerConfig
	infra    *services.Infrastructure
	byQueue  map[string]processors.Processor
	logger   *logger.Logger
	shutdown chan os.Signal
	wg       sync.WaitGroup
}

func main() {
	log := logger.New()

	log.Info("Starting Rentiva coordination worker")

	cfg, err := config.Load()
	if err != nil {
		log.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	infra, err := services.New(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to initialize infrastructure", "error", err)
		os.Exit(1)
	}
	defer infra.Close()

	if err := infra.HealthCheck(ctx); err != nil {
		log.Error("Infrastructure health check failed", "error", err)
		os.Exit(1)
	}

	worker := &Worker{
		config:   cfg.Worker,
		infra:    infra,
		byQueue:  registerProcessors(infra, log),
		logger:   log,
		shutdown: make(chan os.Signal, 1),
	}

	signal.Notify(worker.shutdown, syscall.SIGINT, syscall.SIGTERM)

	log.Info("Coordination worker started",
		"queues", len(worker.byQueue),
		"concurrency", cfg.Worker.Concurrency,
		"poll_interval", cfg.Worker.PollInterval)

	worker.Start()
}

// registerProcessors maps each queue to its domain processor.
func registerProcessors(infra *services.Infrastructure, log *logger.Logger) map[string]processors.Processor {
	byQueue := make(map[string]processors.Processor)
	for _, p := range []processors.Processor{
		processors.NewUserProcessor(infra.Cache, infra.PubSub, log),
		processors.NewPropertyProcessor(infra.Cache, infra.PubSub, log),
		processors.NewNotificationProcessor(infra.PubSub, log),
		processors.NewMessageProcessor(infra.PubSub, log),
	} {
		for _, queue := range p.Queues() {
			byQueue[queue] = p
		}
	}
	return byQueue
}

// Start runs the worker pools until a shutdown signal arrives.
func (w *Worker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for queue := range w.byQueue {
		for i := 0; i < w.config.Concurrency; i++ {
			w.wg.Add(1)
			go w.drain(ctx, queue, i)
		}
	}

	<-w.shutdown
	w.logger.Info("Shutdown signal received, stopping workers...")

	cancel()
	w.wg.Wait()
	w.logger.Info("All workers stopped gracefully")
}

// drain polls one queue and processes jobs until the context is cancelled.
func (w *Worker) drain(ctx context.Context, queue string, workerID int) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Worker stopping", "queue", queue, "worker_id", workerID)
			return
		case <-ticker.C:
			if err := w.processNext(ctx, queue); err != nil {
				w.logger.Error("Job processing error", "queue", queue, "worker_id", workerID, "error", err)
			}
		}
	}
}

// processNext takes a single job off the queue and settles it.
func (w *Worker) processNext(ctx context.Context, queue string) error {
	job, err := w.infra.Queues.Next(ctx, queue)
	if err != nil {
		return err
	}
	if job == nil {
		// Queue empty or paused.
		return nil
	}

	w.logger.Info("Processing job", "queue", queue, "job", job.Name, "job_id", job.ID, "attempt", job.Attempts)

	jobCtx, cancel := context.WithTimeout(ctx, w.config.JobTimeout)
	defer cancel()

	if err := w.process(jobCtx, job); err != nil {
		return w.infra.Queues.Fail(ctx, job, err)
	}
	return w.infra.Queues.Complete(ctx, job)
}

func (w *Worker) process(ctx context.Context, job *coordination.Job) error {
	return w.byQueue[job.Queue].Process(ctx, job)
}
