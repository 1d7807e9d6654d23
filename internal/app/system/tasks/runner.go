// Package tasks runs periodic background jobs.
package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/dalemusser/coachhub/internal/app/system/metrics"
	"go.uber.org/zap"
)

// Job is a named function run every Interval.
type Job struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration // per-run deadline; defaults to Interval
	Run      func(ctx context.Context) error
}

// Runner starts one goroutine per job and stops them together.
type Runner struct {
	log     *zap.Logger
	metrics *metrics.Metrics
	jobs    []Job

	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool
}

// NewRunner creates a Runner for jobs. Jobs with a non-positive interval
// are skipped.
func NewRunner(logger *zap.Logger, m *metrics.Metrics, jobs ...Job) *Runner {
	var enabled []Job
	for _, j := range jobs {
		if j.Interval <= 0 {
			logger.Info("background job disabled", zap.String("job", j.Name))
			continue
		}
		enabled = append(enabled, j)
	}
	return &Runner{
		log:     logger,
		metrics: m,
		jobs:    enabled,
		stopCh:  make(chan struct{}),
	}
}

// Start launches the job loops. Calling Start twice is a no-op.
func (r *Runner) Start() {
	if r.started {
		return
	}
	r.started = true
	for _, j := range r.jobs {
		r.wg.Add(1)
		go r.loop(j)
		r.log.Info("background job started",
			zap.String("job", j.Name),
			zap.Duration("interval", j.Interval))
	}
}

// Stop signals every loop to exit and waits for in-flight runs.
func (r *Runner) Stop() {
	if !r.started {
		return
	}
	close(r.stopCh)
	r.wg.Wait()
	r.started = false
	r.log.Info("background jobs stopped")
}

func (r *Runner) loop(j Job) {
	defer r.wg.Done()

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.RunOnce(j)
		}
	}
}

// RunOnce executes j immediately, recording its duration and outcome.
func (r *Runner) RunOnce(j Job) error {
	timeout := j.Timeout
	if timeout <= 0 {
		timeout = j.Interval
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	err := j.Run(ctx)
	r.metrics.ObserveJob(j.Name, time.Since(start), err)
	if err != nil {
		r.log.Error("background job failed", zap.String("job", j.Name), zap.Error(err))
	}
	return err
}
