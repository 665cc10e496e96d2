// Package scheduler runs periodic maintenance jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
	"golang.org/x/sync/errgroup"

	"github.com/gracefellowship/fellowship/internal/metrics"
)

// RunFunc does one unit of scheduled work. now is the tick time.
type RunFunc func(ctx context.Context, now time.Time) error

type job struct {
	name string
	expr string
	run  RunFunc
}

// Scheduler holds a set of named cron jobs. Each job runs on its own
// goroutine, so a slow job delays only its own next tick.
type Scheduler struct {
	jobs  []job
	now   func() time.Time
	retry time.Duration
}

func New() *Scheduler {
	return &Scheduler{now: time.Now, retry: 30 * time.Second}
}

// Add registers a job. The expression is validated up front so a typo in
// configuration fails at startup instead of silently never running.
func (s *Scheduler) Add(name, expr string, run RunFunc) error {
	if !gronx.New().IsValid(expr) {
		return fmt.Errorf("job %s: invalid cron expression %q", name, expr)
	}
	s.jobs = append(s.jobs, job{name: name, expr: expr, run: run})
	return nil
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, j := range s.jobs {
		slog.Info("scheduled job", "job", j.name, "cron", j.expr)
		g.Go(func() error {
			s.loop(ctx, j)
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) loop(ctx context.Context, j job) {
	for {
		next, err := gronx.NextTickAfter(j.expr, s.now(), false)
		if err != nil {
			slog.Error("computing next tick", "job", j.name, "error", err)
			if !sleep(ctx, s.retry) {
				return
			}
			continue
		}
		if !sleep(ctx, time.Until(next)) {
			return
		}
		s.runJob(ctx, j, next)
	}
}

// runJob executes one tick. Failures are logged and counted; the next tick
// still happens.
func (s *Scheduler) runJob(ctx context.Context, j job, now time.Time) {
	start := time.Now()
	if err := j.run(ctx, now); err != nil {
		metrics.JobRuns.WithLabelValues(j.name, "error").Inc()
		slog.Error("scheduled job failed", "job", j.name, "error", err)
		return
	}
	metrics.JobRuns.WithLabelValues(j.name, "ok").Inc()
	slog.Debug("scheduled job done", "job", j.name, "took", time.Since(start))
}

// sleep waits for d or until ctx is done. It reports whether the wait
// completed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
