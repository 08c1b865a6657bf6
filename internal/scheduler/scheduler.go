// Package scheduler runs the pipeline's periodic jobs.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ctreader/internal/ports"
)

// Job is one periodic task. Runs of the same job never overlap.
type Job struct {
	Name     string
	Interval time.Duration
	// Delay postpones the first run. Zero runs the first time one Interval after Start.
	Delay time.Duration
	// Once runs the handler a single time, Delay after Start. Interval is ignored.
	Once    bool
	Handler func(ctx context.Context) error

	mu      sync.Mutex
	lastRun time.Time
	lastErr error
	runs    int
}

// JobStatus is a snapshot of a job's history.
type JobStatus struct {
	Name     string
	Once     bool
	Interval time.Duration
	LastRun  time.Time
	LastErr  error
	Runs     int
}

// Status returns the job's current state.
func (j *Job) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return JobStatus{Name: j.Name, Once: j.Once, Interval: j.Interval, LastRun: j.lastRun, LastErr: j.lastErr, Runs: j.runs}
}

// Scheduler runs registered jobs until its context ends or Stop is called.
type Scheduler struct {
	logger ports.Logger

	mu      sync.RWMutex
	jobs    []*Job
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a scheduler.
func New(logger ports.Logger) *Scheduler {
	return &Scheduler{logger: logger}
}

// Register adds a job. It must be called before Start.
func (s *Scheduler) Register(job *Job) error {
	if job == nil || job.Handler == nil {
		return fmt.Errorf("job handler is required")
	}
	if job.Once && job.Delay < 0 {
		return fmt.Errorf("job %q: delay cannot be negative", job.Name)
	}
	if !job.Once && job.Interval <= 0 {
		return fmt.Errorf("job %q: interval must be positive", job.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("job %q: scheduler already started", job.Name)
	}
	s.jobs = append(s.jobs, job)
	return nil
}

// Start launches one goroutine per job. Jobs stop when ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	for _, job := range s.jobs {
		s.wg.Add(1)
		go func(job *Job) {
			defer s.wg.Done()
			s.loop(ctx, job)
		}(job)
	}
	s.logger.Info(ctx, "Scheduler started", map[string]interface{}{"jobs": len(s.jobs)})
}

// Stop cancels every job and waits for running handlers to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// Jobs returns the status of every registered job.
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobStatus, len(s.jobs))
	for i, j := range s.jobs {
		out[i] = j.Status()
	}
	return out
}

func (s *Scheduler) loop(ctx context.Context, job *Job) {
	if job.Once {
		timer := time.NewTimer(job.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			s.run(ctx, job)
		case <-ctx.Done():
		}
		return
	}

	if job.Delay > 0 {
		timer := time.NewTimer(job.Delay)
		select {
		case <-timer.C:
			s.run(ctx, job)
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.run(ctx, job)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) run(ctx context.Context, job *Job) {
	err := job.Handler(ctx)

	job.mu.Lock()
	job.lastRun = time.Now()
	job.lastErr = err
	job.runs++
	job.mu.Unlock()

	if err != nil && ctx.Err() == nil {
		s.logger.Warn(ctx, "Scheduled job failed", map[string]interface{}{"job": job.Name, "error": err.Error()})
	}
}
