package sync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/Northcast-Media/airsync/internal/playout"
)

// ChangeType distinguishes a brand-new playout from a retimed/relocated one.
type ChangeType string

const (
	ChangeCreate ChangeType = "create"
	ChangeUpdate ChangeType = "update"
)

// EnsureOp materializes one desired episode in the engine.
type EnsureOp struct {
	EpisodeID  int        `json:"episode_id"`
	ShowID     int        `json:"show_id"`
	Start      time.Time  `json:"start"`
	End        time.Time  `json:"end"`
	Key        string     `json:"key"`
	ChangeType ChangeType `json:"change_type"`
}

// RemoveOp deletes one orphaned engine playout.
type RemoveOp struct {
	PlayoutID  int       `json:"playout_id"`
	InstanceID int       `json:"instance_id"`
	TrackID    int64     `json:"track_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Reason     string    `json:"reason"`
}

const RemoveReasonOrphan = "orphan"

// Summary aggregates a plan for callers and sweep logs.
type Summary struct {
	Create     int   `json:"create"`
	Update     int   `json:"update"`
	Remove     int   `json:"remove"`
	Skipped    int   `json:"skipped"`
	Protected  int   `json:"protected"`
	SkippedIDs []int `json:"skipped_ids"`
	Partial    bool  `json:"partial"`
}

const maxReportedSkips = 10

// Plan is one envelope diff: what must change in the engine so it matches
// the editorial schedule inside the window.
type Plan struct {
	Window          Window     `json:"window"`
	Ensure          []EnsureOp `json:"ensure"`
	Remove          []RemoveOp `json:"remove"`
	RemoveInstances []int      `json:"remove_instances"`
	Summary         Summary    `json:"summary"`
	ServerHash      string     `json:"server_hash"`
}

// assignmentKey identifies a logical assignment: same track, same normalized
// start, same normalized end means the same playout.
func assignmentKey(track int64, start, end time.Time) string {
	return fmt.Sprintf("%d|%d|%d", track, normalize(start).Unix(), normalize(end).Unix())
}

// Plan computes the envelope diff at now. It never mutates anything; Apply
// and PlanOne do. Repeated calls against unchanged state yield identical
// op lists and the same server hash.
func (e *Engine) Plan(ctx context.Context, now time.Time) (*Plan, error) {
	airingStart, err := e.store.CurrentAiringStart(now)
	if err != nil {
		return nil, fmt.Errorf("resolving airing show: %w", err)
	}
	win := ResolveWindow(now, airingStart, e.loc)

	desired, err := e.store.ListEpisodesOverlapping(win.StartUTC, win.EndUTC)
	if err != nil {
		return nil, fmt.Errorf("listing desired episodes: %w", err)
	}
	actual, err := e.api.ListPlayouts(ctx, win.StartUTC, win.EndUTC)
	if err != nil {
		return nil, fmt.Errorf("listing engine playouts: %w", err)
	}
	instances, err := e.api.ListInstances(ctx, win.StartUTC, win.EndUTC)
	if err != nil {
		return nil, fmt.Errorf("listing engine instances: %w", err)
	}

	byID := make(map[int]*playout.Playout, len(actual))
	byKey := make(map[string]*playout.Playout, len(actual))
	instanceHasPlayout := make(map[int]bool)
	for i := range actual {
		p := &actual[i]
		byID[p.ID] = p
		instanceHasPlayout[p.InstanceID] = true
		if track, ok := p.TrackID(); ok {
			byKey[assignmentKey(track, p.Start, p.End)] = p
		}
	}

	plan := &Plan{Window: win}
	matched := make(map[int]bool)         // playout id -> matched a desired item
	desiredKeys := make(map[string]bool)  // all plannable assignment keys
	referencedInstances := make(map[int]bool)
	var hashTuples []string

	for _, ep := range desired {
		if ep.ScheduledStart != nil && ep.ScheduledEnd != nil {
			hashTuples = append(hashTuples, fmt.Sprintf("%d|%d|%d",
				ep.ID, normalize(*ep.ScheduledStart).Unix(), normalize(*ep.ScheduledEnd).Unix()))
		}
		if ep.InstanceID != nil {
			referencedInstances[*ep.InstanceID] = true
		}

		if !ep.Plannable() {
			plan.Summary.Skipped++
			if len(plan.Summary.SkippedIDs) < maxReportedSkips {
				plan.Summary.SkippedIDs = append(plan.Summary.SkippedIDs, ep.ID)
			}
			continue
		}
		track, _ := ep.TrackIDNum()
		start, end := normalize(*ep.ScheduledStart), normalize(*ep.ScheduledEnd)
		key := assignmentKey(track, start, end)
		desiredKeys[key] = true

		var existing *playout.Playout
		if ep.PlayoutID != nil {
			existing = byID[*ep.PlayoutID]
		}
		if existing == nil {
			existing = byKey[key]
		}

		if existing != nil {
			matched[existing.ID] = true
			referencedInstances[existing.InstanceID] = true
			if existingTrack, ok := existing.TrackID(); ok &&
				existingTrack == track &&
				normalize(existing.Start).Equal(start) &&
				normalize(existing.End).Equal(end) {
				continue // exact match, nothing to do
			}
		}

		change := ChangeCreate
		if existing != nil {
			change = ChangeUpdate
		}
		plan.Ensure = append(plan.Ensure, EnsureOp{
			EpisodeID:  ep.ID,
			ShowID:     ep.ShowID,
			Start:      start,
			End:        end,
			Key:        fmt.Sprintf("%d|%d", ep.ID, start.Unix()),
			ChangeType: change,
		})
	}

	protStart := now.Add(-protectionRadius)
	protEnd := now.Add(protectionRadius)
	intersectsProtection := func(start, end time.Time) bool {
		return end.After(protStart) && start.Before(protEnd)
	}

	for i := range actual {
		p := &actual[i]
		if matched[p.ID] {
			continue
		}
		track, ok := p.TrackID()
		if ok && desiredKeys[assignmentKey(track, p.Start, p.End)] {
			continue
		}
		if intersectsProtection(p.Start, p.End) {
			plan.Summary.Protected++
			continue
		}
		plan.Remove = append(plan.Remove, RemoveOp{
			PlayoutID:  p.ID,
			InstanceID: p.InstanceID,
			TrackID:    track,
			Start:      normalize(p.Start),
			End:        normalize(p.End),
			Reason:     RemoveReasonOrphan,
		})
	}

	for _, inst := range instances {
		if referencedInstances[inst.ID] || instanceHasPlayout[inst.ID] {
			continue
		}
		if intersectsProtection(inst.Start, inst.End) {
			continue
		}
		plan.RemoveInstances = append(plan.RemoveInstances, inst.ID)
	}
	sort.Ints(plan.RemoveInstances)

	sort.SliceStable(plan.Ensure, func(i, j int) bool {
		a, b := plan.Ensure[i], plan.Ensure[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		return a.EpisodeID < b.EpisodeID
	})
	sort.SliceStable(plan.Remove, func(i, j int) bool {
		a, b := plan.Remove[i], plan.Remove[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		return a.PlayoutID < b.PlayoutID
	})

	for _, op := range plan.Ensure {
		switch op.ChangeType {
		case ChangeCreate:
			plan.Summary.Create++
		case ChangeUpdate:
			plan.Summary.Update++
		}
	}
	plan.Summary.Remove = len(plan.Remove)
	plan.Summary.Partial = plan.Summary.Skipped > 0
	plan.ServerHash = contentHash(hashTuples)

	return plan, nil
}

// contentHash is a stable digest over sorted (id, start, end) tuples of all
// desired items with valid timing, for external change detection.
func contentHash(tuples []string) string {
	sort.Strings(tuples)
	h := sha256.New()
	for _, t := range tuples {
		h.Write([]byte(t))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
