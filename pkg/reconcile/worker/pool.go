// Package worker provides an asynchronous worker pool for reconciliation
// batches. The pool decouples reconciliation from the API hot path: ingestion
// returns immediately while extraction, classification, and apply run in the
// background. Per-scope ordering is still the engine's job; the pool only
// provides concurrency across scopes.
package worker

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/reconcile"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// Job is one reconciliation batch queued for background processing.
type Job struct {
	Batch reconcile.Batch

	// Timeout bounds the batch; zero means no deadline.
	Timeout time.Duration
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Engine runs the queued batches.
	Engine *reconcile.Engine

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Pool processes reconciliation batches asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Engine == nil {
		return nil, fmt.Errorf("worker pool requires an engine")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a batch for background reconciliation.
// Returns true if enqueued, false if the queue is full, resulting in the job being dropped
func (p *Pool) Enqueue(job Job) bool {
	select {
	case p.queue <- job:
		p.logger.Debug("batch queued",
			zap.String("scope", job.Batch.Scope.Key()),
			zap.Int("messages", len(job.Batch.Messages)),
		)
		return true
	default:
		p.logger.Error("batch not queued, queue full, job dropped",
			zap.String("scope", job.Batch.Scope.Key()),
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight batches to drain.
// Call this during graceful shutdown after the API server has stopped.
func (p *Pool) Close() {
	close(p.queue)
	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", zap.Uint("worker_id", id))

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("reconciliation worker stopped", zap.Uint("worker_id", id))
}

func (p *Pool) processJob(job Job) {
	ctx := context.Background()
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	result, err := p.config.Engine.Reconcile(ctx, job.Batch)
	if err != nil {
		p.logger.Error("async reconciliation failed",
			zap.String("scope", job.Batch.Scope.Key()),
			zap.Error(err),
		)
		return
	}

	p.logger.Info("batch reconciled asynchronously",
		zap.String("scope", job.Batch.Scope.Key()),
		zap.String("batch_id", result.BatchID),
		zap.Int("committed", len(result.Committed)),
		zap.Int("failed", len(result.Failed)),
		zap.Int("skipped", len(result.Skipped)),
	)
}
