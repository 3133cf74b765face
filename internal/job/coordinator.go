// Package job owns the download coordinator: a registry of jobs driven
// through their state machine by a bounded pool of workers, with a bounded
// intake queue providing backpressure.
package job

import (
	"context"
	"sync"
	"time"

	"vinyltube/internal/lifecycle"
	"vinyltube/internal/media"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type handle struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// Coordinator accepts admitted requests as jobs and executes them on
// MaxConcurrentJobs worker goroutines. The job registry is owned exclusively
// by the coordinator; file state is owned by the lifecycle manager and
// touched only through its operations.
type Coordinator struct {
	mu      sync.RWMutex
	jobs    map[string]*Job
	handles map[string]handle

	queue      chan string
	extractor  media.Extractor
	transcoder media.Transcoder
	files      *lifecycle.Manager
	opts       Options

	baseCtx   context.Context
	workersWG sync.WaitGroup
	now       func() time.Time
}

// New creates a coordinator. Start must be called before Submit.
func New(extractor media.Extractor, transcoder media.Transcoder, files *lifecycle.Manager, opts Options) *Coordinator {
	if opts.MaxConcurrentJobs < 1 {
		opts.MaxConcurrentJobs = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 1
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = defaultRetryBackoff
	}
	return &Coordinator{
		jobs:       make(map[string]*Job),
		handles:    make(map[string]handle),
		queue:      make(chan string, opts.QueueSize),
		extractor:  extractor,
		transcoder: transcoder,
		files:      files,
		opts:       opts,
		baseCtx:    context.Background(),
		now:        time.Now,
	}
}

// Start launches the worker pool. Cancelling ctx stops intake processing;
// pair with WaitAll during shutdown.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	c.baseCtx = ctx
	c.mu.Unlock()

	for i := 0; i < c.opts.MaxConcurrentJobs; i++ {
		c.workersWG.Add(1)
		go c.worker(ctx)
	}
	log.Info().Int("workers", c.opts.MaxConcurrentJobs).Int("queue", c.opts.QueueSize).Msg("coordinator started")
}

// Submit registers a new pending job and enqueues it. Returns ErrOverloaded
// when the queue is full. Non-blocking.
func (c *Coordinator) Submit(req Request) (string, error) {
	id := uuid.NewString()

	c.mu.Lock()
	jobCtx, cancel := context.WithCancel(c.baseCtx)
	newJob := &Job{
		ID:               id,
		SourceURL:        req.URL,
		RequestedFormat:  req.Format,
		RequestedVariant: req.Variant,
		State:            StatePending,
		CreatedAt:        c.now(),
	}
	c.jobs[id] = newJob
	c.handles[id] = handle{ctx: jobCtx, cancel: cancel}
	c.mu.Unlock()

	select {
	case c.queue <- id:
	default:
		c.mu.Lock()
		delete(c.jobs, id)
		delete(c.handles, id)
		c.mu.Unlock()
		cancel()
		log.Warn().Str("url", req.URL).Msg("job rejected: queue full")
		return "", ErrOverloaded
	}

	log.Info().Str("job_id", id).Str("url", req.URL).Str("format", string(req.Format)).Msg("job submitted")
	return id, nil
}

// Status returns a snapshot of the job.
func (c *Coordinator) Status(id string) (Job, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	j, ok := c.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return *j, nil
}

// Cancel marks the job for cancellation. The owning worker observes it at
// the next safe checkpoint. Cancelling a terminal job is a no-op: completed
// side effects are never undone.
func (c *Coordinator) Cancel(id string) error {
	c.mu.Lock()
	j, ok := c.jobs[id]
	if !ok {
		c.mu.Unlock()
		return ErrNotFound
	}
	if j.State.Terminal() {
		c.mu.Unlock()
		return nil
	}
	h := c.handles[id]
	if j.State == StatePending {
		// Not picked up yet; the worker will observe the cancelled context,
		// but the caller should see the terminal state immediately.
		c.markTerminalLocked(j, StateCancelled, "")
	}
	c.mu.Unlock()

	if h.cancel != nil {
		h.cancel()
	}
	log.Info().Str("job_id", id).Msg("job cancellation requested")
	return nil
}

// WaitAll blocks until all workers finish or the context is done.
// Returns true if all workers finished, false if timed out.
func (c *Coordinator) WaitAll(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		c.workersWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// transition commits the next state if the job is still live and the move is
// forward. A cancelled job context flips the job to cancelled instead.
func (c *Coordinator) transition(id string, next State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	j, ok := c.jobs[id]
	if !ok || j.State.Terminal() {
		return false
	}
	if h := c.handles[id]; h.ctx != nil && h.ctx.Err() != nil {
		c.markTerminalLocked(j, StateCancelled, "")
		return false
	}
	if stateRank[next] <= stateRank[j.State] {
		return false
	}
	if j.State == StatePending {
		j.StartedAt = c.now()
	}
	j.State = next
	log.Debug().Str("job_id", id).Str("state", string(next)).Msg("job state")
	return true
}

func (c *Coordinator) markTerminalLocked(j *Job, final State, reason string) {
	if j.State.Terminal() {
		return
	}
	j.State = final
	j.FinishedAt = c.now()
	j.FailureReason = reason
	if h, ok := c.handles[j.ID]; ok {
		h.cancel()
		delete(c.handles, j.ID)
	}
}

func (c *Coordinator) jobContext(id string) (Job, context.Context, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	j, ok := c.jobs[id]
	if !ok {
		return Job{}, nil, false
	}
	h, ok := c.handles[id]
	if !ok || j.State.Terminal() {
		return Job{}, nil, false
	}
	return *j, h.ctx, true
}
