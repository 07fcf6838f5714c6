/*
maintenance.go - Bulk refund jobs

PURPOSE:
  Decline or approve every pending refund in one pass. Used by the daily
  scheduler (decline) and by shopctl / admin endpoints (both).

DESIGN:
  - One transaction per refund, through the same approve/decline path as
    the interactive endpoints. A failure on one refund does not undo the
    others and does not stop the run.
  - A refund that disappeared between listing and processing (someone
    decided it meanwhile) is counted as skipped, not failed.
  - Every run is recorded (running -> completed | failed) for audit. A run
    with any failed refund ends failed; the others still commit.
*/
package shop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaintenanceJob names a bulk job.
type MaintenanceJob string

const (
	JobDeclineRefunds MaintenanceJob = "decline_refunds"
	JobApproveRefunds MaintenanceJob = "approve_refunds"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// MaintenanceRun records one execution of a bulk job.
type MaintenanceRun struct {
	ID          string         `json:"id"`
	Job         MaintenanceJob `json:"job"`
	Status      string         `json:"status"`
	Processed   int            `json:"processed"`
	Skipped     int            `json:"skipped"`
	Failed      int            `json:"failed"`
	Error       string         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// BulkResult summarizes a bulk job.
type BulkResult struct {
	RunID     string `json:"run_id"`
	Processed int    `json:"processed"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
}

// DeclineAllRefunds declines every pending refund.
func (s *Service) DeclineAllRefunds(ctx context.Context, subject Subject) (BulkResult, error) {
	if err := Authorize(subject, OpRunMaintenance, 0); err != nil {
		return BulkResult{}, err
	}
	return s.runBulk(ctx, JobDeclineRefunds, func(id RefundID) (Event, error) {
		var refund *Refund
		err := s.Store.WithTx(ctx, func(tx Store) error {
			var err error
			refund, err = decline(ctx, tx, id)
			return err
		})
		if err != nil {
			return nil, err
		}
		return RefundDeclined{EventMeta: newMeta(s.now()), Refund: *refund}, nil
	})
}

// ApproveAllRefunds approves every pending refund.
func (s *Service) ApproveAllRefunds(ctx context.Context, subject Subject) (BulkResult, error) {
	if err := Authorize(subject, OpRunMaintenance, 0); err != nil {
		return BulkResult{}, err
	}
	return s.runBulk(ctx, JobApproveRefunds, func(id RefundID) (Event, error) {
		var evt RefundApproved
		err := s.Store.WithTx(ctx, func(tx Store) error {
			var err error
			evt, err = approve(ctx, tx, id)
			return err
		})
		if err != nil {
			return nil, err
		}
		evt.EventMeta = newMeta(s.now())
		return evt, nil
	})
}

func (s *Service) runBulk(ctx context.Context, job MaintenanceJob, each func(RefundID) (Event, error)) (BulkResult, error) {
	log := s.Logger.With("job", string(job))

	run := MaintenanceRun{
		ID:        uuid.NewString(),
		Job:       job,
		Status:    RunRunning,
		StartedAt: s.now(),
	}
	if err := s.Store.SaveMaintenanceRun(ctx, run); err != nil {
		return BulkResult{}, fmt.Errorf("failed to save run record: %w", err)
	}

	finish := func(status string, runErr error) BulkResult {
		completed := s.now()
		run.Status = status
		run.CompletedAt = &completed
		if runErr != nil {
			run.Error = runErr.Error()
		}
		if err := s.Store.SaveMaintenanceRun(context.WithoutCancel(ctx), run); err != nil {
			log.Error("failed to update run record", "run_id", run.ID, "error", err)
		}
		return BulkResult{RunID: run.ID, Processed: run.Processed, Skipped: run.Skipped, Failed: run.Failed}
	}

	refunds, err := s.Store.ListRefunds(ctx, OwnerFilter{})
	if err != nil {
		err = fmt.Errorf("failed to list refunds: %w", err)
		return finish(RunFailed, err), err
	}

	for _, r := range refunds {
		if err := ctx.Err(); err != nil {
			return finish(RunFailed, err), err
		}
		evt, err := each(r.ID)
		switch {
		case errors.Is(err, ErrNotFound):
			run.Skipped++
		case err != nil:
			run.Failed++
			log.Error("refund not processed", "refund_id", r.ID, "error", err)
		default:
			run.Processed++
			s.publish(ctx, evt)
		}
	}

	if run.Failed > 0 {
		result := finish(RunFailed, fmt.Errorf("%d of %d refunds failed", run.Failed, len(refunds)))
		log.Warn("maintenance run finished with failures",
			"run_id", run.ID, "processed", run.Processed, "skipped", run.Skipped, "failed", run.Failed)
		return result, nil
	}

	result := finish(RunCompleted, nil)
	log.Info("maintenance run completed",
		"run_id", run.ID, "processed", run.Processed, "skipped", run.Skipped, "failed", run.Failed)
	return result, nil
}

// ListMaintenanceRuns returns recorded runs, newest first. An empty job
// lists all of them.
func (s *Service) ListMaintenanceRuns(ctx context.Context, subject Subject, job MaintenanceJob) ([]MaintenanceRun, error) {
	if err := Authorize(subject, OpRunMaintenance, 0); err != nil {
		return nil, err
	}
	return s.Store.ListMaintenanceRuns(ctx, job)
}
