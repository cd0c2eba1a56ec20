package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/highlight/internal/common"
)

var (
	// ErrQueueFull is returned by Enqueue when no slot is free
	ErrQueueFull = errors.New("worker queue is full")
	// ErrPoolStopped is returned by Enqueue after Stop
	ErrPoolStopped = errors.New("worker pool is stopped")
)

// Job is one queued analysis
type Job struct {
	TaskID  string
	Payload []byte
}

// Executor interface for job execution
type Executor interface {
	Execute(ctx context.Context, taskID string, payload []byte) error
}

// StatusReporter records job lifecycle transitions
type StatusReporter interface {
	MarkRunning(ctx context.Context, taskID string) error
	MarkCompleted(ctx context.Context, taskID string) error
	MarkFailed(ctx context.Context, taskID string, message string) error
}

// WorkerPool manages a pool of workers that process jobs
type WorkerPool struct {
	queue      chan Job
	executor   Executor
	reporter   StatusReporter
	logger     arbor.ILogger
	numWorkers int
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc

	mu      sync.RWMutex
	stopped bool
}

func NewWorkerPool(executor Executor, reporter StatusReporter, logger arbor.ILogger, numWorkers, queueSize int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		queue:      make(chan Job, queueSize),
		executor:   executor,
		reporter:   reporter,
		logger:     logger,
		numWorkers: numWorkers,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start starts the worker pool
func (wp *WorkerPool) Start() {
	wp.logger.Info().
		Int("num_workers", wp.numWorkers).
		Msg("Starting worker pool")

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop stops the worker pool gracefully. Queued jobs that have not started are dropped.
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return
	}
	wp.stopped = true
	wp.mu.Unlock()

	wp.logger.Info().Msg("Stopping worker pool...")
	wp.cancel()
	wp.wg.Wait()
	wp.logger.Info().Msg("Worker pool stopped")
}

// Enqueue queues a job without blocking
func (wp *WorkerPool) Enqueue(job Job) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if wp.stopped {
		return ErrPoolStopped
	}

	select {
	case wp.queue <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending returns the number of queued jobs not yet picked up
func (wp *WorkerPool) Pending() int {
	return len(wp.queue)
}

// worker is the main worker loop
func (wp *WorkerPool) worker(workerID int) {
	defer wp.wg.Done()

	wp.logger.Debug().
		Int("worker_id", workerID).
		Msg("Worker started")

	for {
		select {
		case <-wp.ctx.Done():
			wp.logger.Debug().
				Int("worker_id", workerID).
				Msg("Worker stopping")
			return
		case job := <-wp.queue:
			wp.process(workerID, job)
		}
	}
}

// process runs one job and records its outcome
func (wp *WorkerPool) process(workerID int, job Job) {
	defer common.Recover(wp.logger, "worker")

	wp.logger.Info().
		Int("worker_id", workerID).
		Str("task_id", job.TaskID).
		Msg("Processing job")

	if err := wp.reporter.MarkRunning(wp.ctx, job.TaskID); err != nil {
		wp.logger.Error().
			Err(err).
			Str("task_id", job.TaskID).
			Msg("Failed to update job status to running")
	}

	err := wp.executor.Execute(wp.ctx, job.TaskID, job.Payload)

	if err != nil {
		wp.logger.Error().
			Err(err).
			Str("task_id", job.TaskID).
			Msg("Job failed")

		if err := wp.reporter.MarkFailed(wp.ctx, job.TaskID, err.Error()); err != nil {
			wp.logger.Error().Err(err).Str("task_id", job.TaskID).Msg("Failed to record job failure")
		}
		return
	}

	wp.logger.Info().
		Str("task_id", job.TaskID).
		Msg("Job completed successfully")

	if err := wp.reporter.MarkCompleted(wp.ctx, job.TaskID); err != nil {
		wp.logger.Error().Err(err).Str("task_id", job.TaskID).Msg("Failed to record job completion")
	}
}
