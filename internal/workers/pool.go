// Package workers provides the bounded worker pool that executes scan tasks
// concurrently. It supports job queuing, optional rate limiting, retries,
// and graceful shutdown. Per-job outcomes are captured in Result values;
// a failing job never affects its siblings.
package workers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/secwebscan/secwebscan/internal/logging"
)

// Job represents a unit of work to be executed by a worker.
type Job interface {
	// Execute performs the job and returns an error if it fails.
	Execute(ctx context.Context) error
	// ID returns a unique identifier for the job.
	ID() string
	// Type returns the job type for logging.
	Type() string
}

// Result represents the outcome of executing a job. Errors are carried as
// values, never raised across the concurrency boundary.
type Result struct {
	JobID    string
	JobType  string
	Error    error
	Duration time.Duration
	Retries  int
}

// Config holds configuration for the worker pool.
type Config struct {
	// Size is the number of worker goroutines to create.
	Size int
	// QueueSize is the maximum number of jobs that can be queued.
	QueueSize int
	// MaxRetries is the maximum number of retries for failed jobs.
	MaxRetries int
	// RetryDelay is the delay between retries.
	RetryDelay time.Duration
	// ShutdownTimeout is the maximum time to wait for workers to finish.
	ShutdownTimeout time.Duration
	// RateLimit is the maximum number of jobs per second (0 = no limit).
	RateLimit int
}

// DefaultConfig returns a default worker pool configuration.
func DefaultConfig() Config {
	return Config{
		Size:            10,
		QueueSize:       100,
		MaxRetries:      0,
		RetryDelay:      time.Second,
		ShutdownTimeout: 30 * time.Second,
		RateLimit:       0,
	}
}

// Pool manages a pool of worker goroutines for concurrent job execution.
type Pool struct {
	config      Config
	jobs        chan Job
	results     chan Result
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	rateLimiter *time.Ticker
	startOnce   sync.Once
	shutdown32  int32 // atomic shutdown flag
}

// New creates a new worker pool with the given configuration.
func New(config Config) *Pool {
	if config.Size <= 0 {
		config.Size = DefaultConfig().Size
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultConfig().QueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	pool := &Pool{
		config:  config,
		jobs:    make(chan Job, config.QueueSize),
		results: make(chan Result, config.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	if config.RateLimit > 0 {
		interval := time.Second / time.Duration(config.RateLimit)
		pool.rateLimiter = time.NewTicker(interval)
	}

	return pool
}

// Start begins the worker pool operations.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		logging.Info("Starting worker pool",
			"worker_count", p.config.Size,
			"queue_size", p.config.QueueSize,
			"rate_limit", p.config.RateLimit)

		for i := 0; i < p.config.Size; i++ {
			p.wg.Add(1)
			go p.runWorker(i)
		}
	})
}

// Submit adds a job to the worker pool queue.
func (p *Pool) Submit(job Job) error {
	if atomic.LoadInt32(&p.shutdown32) == 1 {
		return fmt.Errorf("worker pool is shut down")
	}

	select {
	case p.jobs <- job:
		logging.Debug("Job submitted to worker pool",
			"job_id", job.ID(),
			"job_type", job.Type())
		return nil
	case <-p.ctx.Done():
		return fmt.Errorf("worker pool is shutting down")
	default:
		return fmt.Errorf("job queue is full")
	}
}

// Results returns the channel job outcomes are delivered on. Every
// submitted job produces exactly one Result.
func (p *Pool) Results() <-chan Result {
	return p.results
}

// Shutdown gracefully shuts down the worker pool. Queued jobs are drained
// before the workers exit.
func (p *Pool) Shutdown() error {
	if !atomic.CompareAndSwapInt32(&p.shutdown32, 0, 1) {
		return nil
	}

	logging.Info("Shutting down worker pool")

	close(p.jobs)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Info("Worker pool shutdown completed")
	case <-time.After(p.config.ShutdownTimeout):
		logging.Warn("Worker pool shutdown timeout, forcing termination")
		p.cancel()
		<-done
	}

	p.cancel()
	close(p.results)

	if p.rateLimiter != nil {
		p.rateLimiter.Stop()
	}

	return nil
}

// runWorker executes the worker loop.
func (p *Pool) runWorker(id int) {
	defer p.wg.Done()

	logging.Debug("Worker started", "worker_id", id)
	defer logging.Debug("Worker stopped", "worker_id", id)

	for job := range p.jobs {
		select {
		case <-p.ctx.Done():
			// Shutdown was forced; report remaining jobs as canceled.
			p.results <- Result{JobID: job.ID(), JobType: job.Type(), Error: p.ctx.Err()}
			continue
		default:
		}
		p.executeJob(id, job)
	}
}

// executeJob executes a single job with retry logic and reports its result.
func (p *Pool) executeJob(workerID int, job Job) {
	if p.rateLimiter != nil {
		select {
		case <-p.rateLimiter.C:
		case <-p.ctx.Done():
			p.results <- Result{JobID: job.ID(), JobType: job.Type(), Error: p.ctx.Err()}
			return
		}
	}

	var lastErr error
	var retries int
	start := time.Now()

	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		jobCtx, cancel := context.WithCancel(p.ctx)
		err := job.Execute(jobCtx)
		cancel()

		if err == nil {
			duration := time.Since(start)
			p.results <- Result{
				JobID:    job.ID(),
				JobType:  job.Type(),
				Duration: duration,
				Retries:  retries,
			}
			logging.Debug("Job completed successfully",
				"job_id", job.ID(),
				"job_type", job.Type(),
				"duration", duration,
				"worker_id", workerID,
				"retries", retries)
			return
		}

		lastErr = err
		retries = attempt

		if attempt < p.config.MaxRetries {
			logging.Debug("Job failed, retrying",
				"job_id", job.ID(),
				"job_type", job.Type(),
				"attempt", attempt+1,
				"max_retries", p.config.MaxRetries,
				"error", err)

			select {
			case <-time.After(p.config.RetryDelay):
			case <-p.ctx.Done():
				p.results <- Result{JobID: job.ID(), JobType: job.Type(), Error: p.ctx.Err(), Retries: retries}
				return
			}
		}
	}

	p.results <- Result{
		JobID:    job.ID(),
		JobType:  job.Type(),
		Error:    lastErr,
		Duration: time.Since(start),
		Retries:  retries,
	}

	logging.Error("Job failed",
		"job_id", job.ID(),
		"job_type", job.Type(),
		"retries", retries,
		"error", lastErr,
		"worker_id", workerID)
}
