/*
scheduler.go - Daily refund decline scheduler

PURPOSE:
  Declines every pending refund once a day at a wall-clock time, so that
  refunds nobody acted on do not pile up.

DESIGN:
  - Runs a background goroutine that sleeps until the next occurrence of
    the configured time in the configured location
  - Each run goes through shop.Service.DeclineAllRefunds and is recorded
    as a maintenance run
  - DST shifts are handled by recomputing the next run after every run

CONFIGURATION:
  - At:       Time of day (default: 18:00)
  - Location: Time zone for At (default: UTC)
  - Enabled:  Whether scheduler is active (default: true)

USAGE:
  scheduler := NewRefundScheduler(svc, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: DeclineAllRefunds endpoint (manual run)
  - shop/maintenance.go: Bulk jobs
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/shop-engine/config"
	"github.com/warp/shop-engine/shop"
)

// RefundScheduler declines pending refunds daily.
type RefundScheduler struct {
	Service  *shop.Service
	At       config.ClockTime
	Location *time.Location
	Enabled  bool
	Logger   *slog.Logger

	now     func() time.Time
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewRefundScheduler creates a scheduler firing at 18:00 UTC.
func NewRefundScheduler(svc *shop.Service, logger *slog.Logger) *RefundScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RefundScheduler{
		Service:  svc,
		At:       config.ClockTime{Hour: 18},
		Location: time.UTC,
		Enabled:  true,
		Logger:   logger.With("component", "scheduler"),
		now:      time.Now,
	}
}

// Start begins the scheduler.
func (rs *RefundScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.Logger.Info("disabled, not starting")
		return
	}
	if rs.running {
		return
	}

	rs.stop = make(chan struct{})
	rs.running = true
	rs.wg.Add(1)
	go rs.run(rs.stop)

	rs.Logger.Info("started", "at", rs.At.String(), "location", rs.location().String(), "next_run", rs.NextRunTime())
}

// Stop stops the scheduler and waits for a run in progress.
func (rs *RefundScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.running {
		return
	}
	close(rs.stop)
	rs.wg.Wait()
	rs.running = false
	rs.Logger.Info("stopped")
}

func (rs *RefundScheduler) run(stop <-chan struct{}) {
	defer rs.wg.Done()

	for {
		timer := time.NewTimer(rs.NextRunTime().Sub(rs.now()))
		select {
		case <-timer.C:
			rs.RunNow(context.Background())
		case <-stop:
			timer.Stop()
			return
		}
	}
}

// RunNow declines every pending refund immediately.
func (rs *RefundScheduler) RunNow(ctx context.Context) (shop.BulkResult, error) {
	result, err := rs.Service.DeclineAllRefunds(ctx, shop.System)
	if err != nil {
		rs.Logger.Error("decline run failed", "run_id", result.RunID, "error", err)
		return result, err
	}
	rs.Logger.Info("decline run completed",
		"run_id", result.RunID,
		"processed", result.Processed,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
	return result, nil
}

// NextRunTime returns when the next scheduled run will occur.
func (rs *RefundScheduler) NextRunTime() time.Time {
	return nextRun(rs.now(), rs.At, rs.location())
}

func (rs *RefundScheduler) location() *time.Location {
	if rs.Location == nil {
		return time.UTC
	}
	return rs.Location
}

// nextRun is the first occurrence of at in loc strictly after now.
func nextRun(now time.Time, at config.ClockTime, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), at.Hour, at.Minute, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, at.Hour, at.Minute, 0, 0, loc)
	}
	return next
}
