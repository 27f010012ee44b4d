package sync

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Northcast-Media/airsync/internal/playout"
)

// ApplyReport enumerates everything one apply cycle did. Per-item failures
// are collected as strings; the cycle never aborts on the first error.
type ApplyReport struct {
	Window           Window   `json:"window"`
	SnapshotID       string   `json:"snapshot_id,omitempty"`
	Created          int      `json:"created"`
	Updated          int      `json:"updated"`
	Deleted          int      `json:"deleted"`
	InstancesDeleted int      `json:"instances_deleted"`
	// Unchanged counts ensure ops that turned out to already match the
	// engine; Skipped counts episodes the plan could not place at all.
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
	Protected        int      `json:"protected"`
	Errors           []string `json:"errors"`
	DryRun           bool     `json:"dry_run,omitempty"`
}

// ApplyOptions tunes one apply cycle.
type ApplyOptions struct {
	// DryRun plans and snapshots nothing, reporting what would happen.
	DryRun bool
	// SkipSnapshot applies without capturing pre-state. Sweeps use it; the
	// HTTP apply endpoint always snapshots.
	SkipSnapshot bool
}

func defaultBatchDelay() {
	// jittered pause between batches so the engine API is not burst-hammered
	time.Sleep(time.Duration(200+rand.Intn(300)) * time.Millisecond)
}

// Apply executes a plan against the engine: ensure ops in start order via
// PlanOne, then orphan removals in start order, in batches of
// applyBatchSize with a randomized delay in between.
func (e *Engine) Apply(ctx context.Context, plan *Plan, opts ApplyOptions) (*ApplyReport, error) {
	report := &ApplyReport{
		Window:    plan.Window,
		Skipped:   plan.Summary.Skipped,
		Protected: plan.Summary.Protected,
		DryRun:    opts.DryRun,
	}
	if opts.DryRun {
		report.Created = plan.Summary.Create
		report.Updated = plan.Summary.Update
		report.Deleted = plan.Summary.Remove
		report.InstancesDeleted = len(plan.RemoveInstances)
		return report, nil
	}

	if !opts.SkipSnapshot {
		snap, err := e.CaptureSnapshot(ctx, plan.Window)
		if err != nil {
			return nil, fmt.Errorf("snapshot before apply: %w", err)
		}
		report.SnapshotID = snap.ID
	}

	for i, op := range plan.Ensure {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res := e.PlanOne(ctx, op.EpisodeID, op.ShowID, op.Start, op.End)
		if !res.Success {
			report.Errors = append(report.Errors,
				fmt.Sprintf("ensure episode %d: [%s] %s", op.EpisodeID, res.Code, res.Error))
			continue
		}
		switch {
		case res.Idempotent:
			report.Unchanged++
		case op.ChangeType == ChangeUpdate:
			report.Updated++
		default:
			report.Created++
		}
		e.pauseBetweenBatches(i)
	}

	for i, op := range plan.Remove {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := e.api.DeletePlayout(ctx, op.PlayoutID); err != nil && !playout.IsNotFound(err) {
			report.Errors = append(report.Errors,
				fmt.Sprintf("remove playout %d: %v", op.PlayoutID, err))
			continue
		}
		report.Deleted++
		e.pauseBetweenBatches(i)
	}

	for _, instanceID := range plan.RemoveInstances {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		// the instance was empty at diff time; re-check immediately before
		// deleting so a playout created since then survives
		left, err := e.api.ListInstancePlayouts(ctx, instanceID)
		if err != nil {
			report.Errors = append(report.Errors,
				fmt.Sprintf("check instance %d: %v", instanceID, err))
			continue
		}
		if len(left) > 0 {
			continue
		}
		if err := e.api.DeleteInstance(ctx, instanceID); err != nil && !playout.IsNotFound(err) {
			report.Errors = append(report.Errors,
				fmt.Sprintf("remove instance %d: %v", instanceID, err))
			continue
		}
		report.InstancesDeleted++
	}

	log.Info().
		Str("window", plan.Window.Label).
		Int("created", report.Created).
		Int("updated", report.Updated).
		Int("deleted", report.Deleted).
		Int("instances_deleted", report.InstancesDeleted).
		Int("unchanged", report.Unchanged).
		Int("skipped", report.Skipped).
		Int("protected", report.Protected).
		Int("errors", len(report.Errors)).
		Msg("apply finished")
	return report, nil
}

func (e *Engine) pauseBetweenBatches(i int) {
	if (i+1)%applyBatchSize == 0 {
		e.batchDelay()
	}
}

// Reconcile is the one-shot plan-then-apply used by sweeps and the HTTP
// apply endpoint.
func (e *Engine) Reconcile(ctx context.Context, opts ApplyOptions) (*Plan, *ApplyReport, error) {
	plan, err := e.Plan(ctx, e.now())
	if err != nil {
		return nil, nil, err
	}
	report, err := e.Apply(ctx, plan, opts)
	if err != nil {
		return plan, nil, err
	}
	return plan, report, nil
}
