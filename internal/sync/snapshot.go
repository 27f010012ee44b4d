package sync

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Northcast-Media/airsync/internal/playout"
)

// Snapshot is the pre-apply state of the engine for one window. Immutable
// once captured; pruned after its TTL.
type Snapshot struct {
	ID        string            `json:"id"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `json:"expires_at"`
	Window    Window            `json:"window"`
	Playouts  []playout.Playout `json:"playouts"`
}

// SnapshotStore holds recent snapshots in memory. It is constructed and
// injected explicitly so tests get isolated instances.
type SnapshotStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	snaps map[string]*Snapshot
}

func NewSnapshotStore(ttl time.Duration, now func() time.Time) *SnapshotStore {
	if now == nil {
		now = time.Now
	}
	return &SnapshotStore{ttl: ttl, now: now, snaps: make(map[string]*Snapshot)}
}

func (s *SnapshotStore) put(snap *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune()
	s.snaps[snap.ID] = snap
}

func (s *SnapshotStore) Get(id string) (*Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune()
	snap, ok := s.snaps[id]
	return snap, ok
}

func (s *SnapshotStore) List() []*Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune()
	out := make([]*Snapshot, 0, len(s.snaps))
	for _, snap := range s.snaps {
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// prune drops expired snapshots; callers hold the lock.
func (s *SnapshotStore) prune() {
	now := s.now()
	for id, snap := range s.snaps {
		if now.After(snap.ExpiresAt) {
			delete(s.snaps, id)
		}
	}
}

// CaptureSnapshot records every playout currently inside the window so a
// bad apply can be rolled back.
func (e *Engine) CaptureSnapshot(ctx context.Context, win Window) (*Snapshot, error) {
	playouts, err := e.api.ListPlayouts(ctx, win.StartUTC, win.EndUTC)
	if err != nil {
		return nil, fmt.Errorf("capturing playouts: %w", err)
	}
	sort.Slice(playouts, func(i, j int) bool {
		if !playouts[i].Start.Equal(playouts[j].Start) {
			return playouts[i].Start.Before(playouts[j].Start)
		}
		return playouts[i].ID < playouts[j].ID
	})
	now := e.now()
	snap := &Snapshot{
		ID:        uuid.NewString(),
		CreatedAt: now,
		ExpiresAt: now.Add(e.snapshots.ttl),
		Window:    win,
		Playouts:  playouts,
	}
	e.snapshots.put(snap)
	return snap, nil
}

// RollbackReport enumerates what a rollback did; rollback is best-effort
// and reports partial failure instead of aborting.
type RollbackReport struct {
	SnapshotID string   `json:"snapshot_id"`
	Deleted    int      `json:"deleted"`
	Restored   int      `json:"restored"`
	Skipped    int      `json:"skipped"`
	Errors     []string `json:"errors"`
}

// Rollback deletes every playout currently in the snapshot's window, then
// re-creates each captured playout. Captured entries with no track id are
// counted skipped, not restored.
func (e *Engine) Rollback(ctx context.Context, snapshotID string) (*RollbackReport, error) {
	snap, ok := e.snapshots.Get(snapshotID)
	if !ok {
		return nil, fmt.Errorf("snapshot %s not found or expired", snapshotID)
	}

	report := &RollbackReport{SnapshotID: snapshotID}

	current, err := e.api.ListPlayouts(ctx, snap.Window.StartUTC, snap.Window.EndUTC)
	if err != nil {
		return nil, fmt.Errorf("listing current playouts: %w", err)
	}
	for i := range current {
		p := &current[i]
		if err := e.api.DeletePlayout(ctx, p.ID); err != nil && !playout.IsNotFound(err) {
			report.Errors = append(report.Errors, fmt.Sprintf("delete playout %d: %v", p.ID, err))
			continue
		}
		report.Deleted++
	}

	for i := range snap.Playouts {
		p := &snap.Playouts[i]
		track, ok := p.TrackID()
		if !ok {
			report.Skipped++
			continue
		}
		if err := e.ensurePlayout(ctx, p.InstanceID, track, p.Start, p.End); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("restore playout %d: %v", p.ID, err))
			continue
		}
		report.Restored++
	}

	log.Info().Str("snapshot_id", snapshotID).
		Int("deleted", report.Deleted).
		Int("restored", report.Restored).
		Int("skipped", report.Skipped).
		Int("errors", len(report.Errors)).
		Msg("rollback finished")
	return report, nil
}

// ensurePlayout is the idempotent restore primitive: the exact
// (track, start, end) already present in the instance is success, anything
// else is created.
func (e *Engine) ensurePlayout(ctx context.Context, instanceID int, track int64, start, end time.Time) error {
	start, end = normalize(start), normalize(end)
	existing, err := e.api.ListInstancePlayouts(ctx, instanceID)
	if err != nil {
		return err
	}
	for i := range existing {
		p := &existing[i]
		if pt, ok := p.TrackID(); ok && pt == track &&
			normalize(p.Start).Equal(start) && normalize(p.End).Equal(end) {
			return nil
		}
	}
	_, err = e.api.CreatePlayout(ctx, instanceID, track, start, end)
	return err
}
