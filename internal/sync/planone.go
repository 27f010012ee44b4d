package sync

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Northcast-Media/airsync/internal/model"
	"github.com/Northcast-Media/airsync/internal/playout"
)

// stable error codes surfaced by PlanOne/UnplanOne
const (
	CodeInvalidTimeRange = "INVALID_TIME_RANGE"
	CodeItemNotFound     = "ITEM_NOT_FOUND"
	CodeShowMismatch     = "SHOW_MISMATCH"
	CodeNotReady         = "NOT_READY"
	CodeInvalidTrackID   = "INVALID_TRACK_ID"
	CodeShowNotFound     = "SHOW_NOT_FOUND"
	CodeInstanceConflict = "INSTANCE_CONFLICT"
	CodeEngineError      = "ENGINE_ERROR"
	CodeStoreError       = "STORE_ERROR"
)

// PlanOneResult reports one single-item apply.
type PlanOneResult struct {
	Success    bool   `json:"success"`
	ShowID     *int   `json:"show_id,omitempty"`
	InstanceID *int   `json:"instance_id,omitempty"`
	PlayoutID  *int   `json:"playout_id,omitempty"`
	Idempotent bool   `json:"idempotent,omitempty"`
	Code       string `json:"code,omitempty"`
	Error      string `json:"error,omitempty"`
}

func planOneFailure(code, msg string) PlanOneResult {
	return PlanOneResult{Success: false, Code: code, Error: msg}
}

// PlanOne idempotently materializes one episode in the engine: show and
// instance provisioning, collision detection, then playout creation. A call
// that finds the exact (track, start, end) already scheduled reports
// Idempotent and performs no engine writes.
func (e *Engine) PlanOne(ctx context.Context, episodeID, showID int, start, end time.Time) PlanOneResult {
	start, end = normalize(start), normalize(end)
	if !end.After(start) {
		return planOneFailure(CodeInvalidTimeRange, "end must be after start")
	}

	ep, err := e.store.GetEpisodeByID(episodeID)
	if err != nil {
		return planOneFailure(CodeItemNotFound, fmt.Sprintf("episode %d not found", episodeID))
	}
	if ep.ShowID != showID {
		return planOneFailure(CodeShowMismatch,
			fmt.Sprintf("episode %d belongs to show %d, not %d", episodeID, ep.ShowID, showID))
	}
	if ep.TrackID == nil || *ep.TrackID == "" || ep.FilePath == nil || *ep.FilePath == "" {
		return planOneFailure(CodeNotReady, fmt.Sprintf("episode %d has no track id or file path", episodeID))
	}
	track, err := strconv.ParseInt(*ep.TrackID, 10, 64)
	if err != nil || track <= 0 {
		return planOneFailure(CodeInvalidTrackID, fmt.Sprintf("episode %d track id %q is not a positive number", episodeID, *ep.TrackID))
	}
	show, err := e.store.GetShowByID(showID)
	if err != nil {
		return planOneFailure(CodeShowNotFound, fmt.Sprintf("show %d not found", showID))
	}

	extShowID, err := e.ensureShow(ctx, show)
	if err != nil {
		return planOneFailure(CodeEngineError, fmt.Sprintf("ensuring engine show: %v", err))
	}

	instanceID, created, res := e.ensureInstance(ctx, &ep, extShowID, start, end)
	if res != nil {
		return *res
	}

	existing, err := e.api.ListInstancePlayouts(ctx, instanceID)
	if err != nil {
		return planOneFailure(CodeEngineError, fmt.Sprintf("listing instance playouts: %v", err))
	}
	for i := range existing {
		p := &existing[i]
		pt, ok := p.TrackID()
		if ok && pt == track && normalize(p.Start).Equal(start) && normalize(p.End).Equal(end) {
			if err := e.store.SaveEpisodeScheduling(episodeID, start, end, instanceID, p.ID); err != nil {
				return planOneFailure(CodeStoreError, fmt.Sprintf("persisting schedule: %v", err))
			}
			return PlanOneResult{
				Success: true, Idempotent: true,
				ShowID: &extShowID, InstanceID: &instanceID, PlayoutID: &p.ID,
			}
		}
	}

	createdPlayout, err := e.api.CreatePlayout(ctx, instanceID, track, start, end)
	if err != nil {
		// undo the instance we provisioned, but never one that something
		// else may have populated in the meantime
		if created {
			if left, lerr := e.api.ListInstancePlayouts(ctx, instanceID); lerr == nil && len(left) == 0 {
				if derr := e.api.DeleteInstance(ctx, instanceID); derr != nil {
					log.Error().Err(derr).Int("instance_id", instanceID).Msg("instance rollback failed")
				}
			}
		}
		code := CodeEngineError
		if playout.IsConflict(err) {
			code = CodeInstanceConflict
		}
		return planOneFailure(code, fmt.Sprintf("creating playout: %v", err))
	}

	if err := e.store.SaveEpisodeScheduling(episodeID, start, end, instanceID, createdPlayout.ID); err != nil {
		return planOneFailure(CodeStoreError, fmt.Sprintf("persisting schedule: %v", err))
	}
	return PlanOneResult{
		Success: true,
		ShowID:  &extShowID, InstanceID: &instanceID, PlayoutID: &createdPlayout.ID,
	}
}

// ensureShow resolves the engine show object for an editorial show: stored
// external id first, name matching only when explicitly enabled, create as
// the last resort. A changed resolution is persisted back onto the show.
func (e *Engine) ensureShow(ctx context.Context, show model.Show) (int, error) {
	if show.ExternalShowID != nil {
		sh, err := e.api.GetShow(ctx, *show.ExternalShowID)
		if err == nil {
			return sh.ID, nil
		}
		if !playout.IsNotFound(err) {
			return 0, err
		}
		log.Warn().Int("show_id", show.ID).Int("external_show_id", *show.ExternalShowID).
			Msg("stored engine show is gone, re-resolving")
	}

	var resolved *playout.Show
	if e.allowNameMatch {
		found, err := e.api.FindShowByName(ctx, show.Name)
		if err != nil {
			return 0, err
		}
		resolved = found
	}
	if resolved == nil {
		created, err := e.api.CreateShow(ctx, show.Name)
		if err != nil {
			return 0, err
		}
		resolved = created
	}

	if show.ExternalShowID == nil || *show.ExternalShowID != resolved.ID {
		if err := e.store.SetShowExternalID(show.ID, resolved.ID); err != nil {
			return 0, err
		}
	}
	return resolved.ID, nil
}

// ensureInstance resolves the time-bounded engine container for
// [start, end): reuse and retime the episode's known instance when possible,
// else an exact-match instance, else a fresh one. A different
// instance genuinely overlapping the slot is a hard conflict instead. The second
// return reports whether this call created the instance.
func (e *Engine) ensureInstance(ctx context.Context, ep *model.Episode, extShowID int, start, end time.Time) (int, bool, *PlanOneResult) {
	fail := func(code, msg string) (int, bool, *PlanOneResult) {
		r := planOneFailure(code, msg)
		return 0, false, &r
	}

	if ep.InstanceID != nil {
		inst, err := e.api.GetInstance(ctx, *ep.InstanceID)
		switch {
		case err == nil:
			if !normalize(inst.Start).Equal(start) || !normalize(inst.End).Equal(end) {
				if _, err := e.api.UpdateInstanceTimes(ctx, inst.ID, start, end); err != nil {
					return fail(CodeEngineError, fmt.Sprintf("retiming instance %d: %v", inst.ID, err))
				}
			}
			return inst.ID, false, nil
		case playout.IsNotFound(err):
			// stale reference, resolve from scratch
		default:
			return fail(CodeEngineError, fmt.Sprintf("fetching instance %d: %v", *ep.InstanceID, err))
		}
	}

	candidates, err := e.api.ListInstances(ctx, start, end)
	if err != nil {
		return fail(CodeEngineError, fmt.Sprintf("listing instances: %v", err))
	}
	for i := range candidates {
		inst := &candidates[i]
		if inst.ShowID == extShowID && normalize(inst.Start).Equal(start) && normalize(inst.End).Equal(end) {
			return inst.ID, false, nil
		}
	}
	for i := range candidates {
		inst := &candidates[i]
		if inst.End.After(start) && inst.Start.Before(end) {
			return fail(CodeInstanceConflict,
				fmt.Sprintf("instance %d [%s, %s) overlaps requested slot", inst.ID,
					normalize(inst.Start).Format(time.RFC3339), normalize(inst.End).Format(time.RFC3339)))
		}
	}

	created, err := e.api.CreateInstance(ctx, extShowID, start, end)
	if err != nil {
		code := CodeEngineError
		if playout.IsConflict(err) {
			code = CodeInstanceConflict
		}
		return fail(code, fmt.Sprintf("creating instance: %v", err))
	}
	return created.ID, true, nil
}

// UnplanResult reports one single-item removal.
type UnplanResult struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}

// UnplanOne is the inverse of PlanOne: delete the episode's engine playout
// (already-gone is fine) and clear its scheduling fields. An episode with no
// known playout id is a no-op success.
func (e *Engine) UnplanOne(ctx context.Context, episodeID int, start time.Time) UnplanResult {
	ep, err := e.store.GetEpisodeByID(episodeID)
	if err != nil {
		return UnplanResult{Success: false, Code: CodeItemNotFound, Error: fmt.Sprintf("episode %d not found", episodeID)}
	}
	if ep.PlayoutID == nil {
		return UnplanResult{Success: true}
	}

	if err := e.api.DeletePlayout(ctx, *ep.PlayoutID); err != nil && !playout.IsNotFound(err) {
		return UnplanResult{Success: false, Code: CodeEngineError, Error: fmt.Sprintf("deleting playout %d: %v", *ep.PlayoutID, err)}
	}
	if err := e.store.ClearEpisodeScheduling(episodeID); err != nil {
		return UnplanResult{Success: false, Code: CodeStoreError, Error: fmt.Sprintf("clearing schedule: %v", err)}
	}
	return UnplanResult{Success: true}
}
