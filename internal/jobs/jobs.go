// Package jobs runs fits in the background and keeps the most recent ones
// for polling.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"xrr-analyzer/internal/fit"
	"xrr-analyzer/internal/layer"
	"xrr-analyzer/internal/metrics"
)

var (
	// ErrNotFound means the job id is unknown or has been evicted.
	ErrNotFound = errors.New("job not found")
	// ErrClosed means the runner no longer accepts work.
	ErrClosed = errors.New("runner closed")
)

// State is the lifecycle stage of a job.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateTimedOut  State = "timed_out"
)

// Done reports whether the state is terminal.
func (s State) Done() bool {
	return s == StateSucceeded || s == StateFailed || s == StateTimedOut
}

// Request is one fit to run.
type Request struct {
	Stack      layer.Stack
	Q          []float64
	Intensity  []float64
	Wavelength float64
	// Timeout overrides the runner default when positive.
	Timeout time.Duration
}

// Job is a snapshot of a submitted fit.
type Job struct {
	ID        string
	State     State
	Submitted time.Time
	Started   time.Time
	Finished  time.Time
	Result    *fit.Result
}

// Fitter is the part of fit.Fitter the runner needs.
type Fitter interface {
	Fit(initial layer.Stack, q, intensity []float64, wavelength float64) fit.Result
}

// Options configures a Runner.
type Options struct {
	Workers int
	Retain  int
	Timeout time.Duration
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

type entry struct {
	job  Job
	done chan struct{}
}

// Runner executes fits on a bounded number of goroutines. A timed-out fit
// keeps its worker until the solver returns; its result is discarded.
type Runner struct {
	fitter  Fitter
	opts    Options
	log     zerolog.Logger
	slots   chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	jobs    *lru.Cache[string, *entry]
	closed  bool
	timeout time.Duration
}

// New creates a Runner.
func New(f Fitter, opts Options) (*Runner, error) {
	if opts.Workers < 1 {
		return nil, fmt.Errorf("workers must be >= 1, got %d", opts.Workers)
	}
	cache, err := lru.New[string, *entry](opts.Retain)
	if err != nil {
		return nil, fmt.Errorf("job store: %w", err)
	}
	return &Runner{
		fitter:  f,
		opts:    opts,
		log:     opts.Logger.With().Str("component", "jobs").Logger(),
		slots:   make(chan struct{}, opts.Workers),
		jobs:    cache,
		timeout: opts.Timeout,
	}, nil
}

// Submit queues a fit and returns its id.
func (r *Runner) Submit(req Request) (string, error) {
	id := uuid.NewString()
	e := &entry{
		job:  Job{ID: id, State: StateQueued, Submitted: time.Now()},
		done: make(chan struct{}),
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", ErrClosed
	}
	r.jobs.Add(id, e)
	r.wg.Add(1)
	r.mu.Unlock()

	r.opts.Metrics.JobState("", string(StateQueued))
	r.log.Debug().Str("job", id).Int("points", len(req.Q)).Msg("job queued")
	go r.run(e, req)
	return id, nil
}

func (r *Runner) run(e *entry, req Request) {
	defer r.wg.Done()
	r.slots <- struct{}{}
	r.transition(e, StateRunning, nil)

	timeout := r.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	results := make(chan fit.Result, 1)
	go func() {
		defer func() { <-r.slots }()
		results <- r.fitter.Fit(req.Stack, req.Q, req.Intensity, req.Wavelength)
	}()

	select {
	case res := <-results:
		state := StateSucceeded
		if !res.Success {
			state = StateFailed
		}
		r.transition(e, state, &res)
	case <-ctx.Done():
		r.transition(e, StateTimedOut, nil)
	}
}

func (r *Runner) transition(e *entry, to State, res *fit.Result) {
	r.mu.Lock()
	from := e.job.State
	e.job.State = to
	now := time.Now()
	switch {
	case to == StateRunning:
		e.job.Started = now
	case to.Done():
		e.job.Finished = now
		e.job.Result = res
		close(e.done)
	}
	id := e.job.ID
	r.mu.Unlock()

	r.opts.Metrics.JobState(string(from), string(to))
	ev := r.log.Debug()
	if to == StateTimedOut {
		ev = r.log.Warn()
	}
	ev.Str("job", id).Str("from", string(from)).Str("to", string(to)).Msg("job state changed")
}

// Get returns a snapshot of a job.
func (r *Runner) Get(id string) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.jobs.Get(id)
	if !ok {
		return Job{}, ErrNotFound
	}
	return e.job, nil
}

// Wait blocks until the job finishes or ctx is done. On ctx expiry the
// current snapshot is returned with ctx's error.
func (r *Runner) Wait(ctx context.Context, id string) (Job, error) {
	r.mu.Lock()
	e, ok := r.jobs.Get(id)
	r.mu.Unlock()
	if !ok {
		return Job{}, ErrNotFound
	}
	select {
	case <-e.done:
	case <-ctx.Done():
		return r.snapshot(e), ctx.Err()
	}
	return r.snapshot(e), nil
}

func (r *Runner) snapshot(e *entry) Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return e.job
}

// Len returns the number of retained jobs.
func (r *Runner) Len() int { return r.jobs.Len() }

// Close stops accepting jobs and waits for queued and running ones, or for
// ctx to expire.
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
