package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSnapshotStoreExpiry(t *testing.T) {
	now := planNow
	store := newFakeStore()
	api := newFakeEngineAPI()
	snaps := NewSnapshotStore(time.Hour, func() time.Time { return now })
	e := NewEngine(store, api, snaps, Options{Now: func() time.Time { return now }, BatchDelay: func() {}})

	win := ResolveWindow(now, nil, time.UTC)
	snap, err := e.CaptureSnapshot(context.Background(), win)
	require.NoError(t, err)

	_, ok := snaps.Get(snap.ID)
	require.True(t, ok)
	require.Len(t, snaps.List(), 1)

	now = now.Add(2 * time.Hour)
	_, ok = snaps.Get(snap.ID)
	require.False(t, ok)
	require.Empty(t, snaps.List())
}

func TestRollbackRestoresCapturedWindow(t *testing.T) {
	store := newFakeStore()
	api := newFakeEngineAPI()
	e := testEngine(store, api, planNow)
	win := ResolveWindow(planNow, nil, time.UTC)

	inst := api.addInstance(900, planNow.Add(2*time.Hour), planNow.Add(8*time.Hour))
	a := api.addPlayout(inst.ID, int64Ptr(501), planNow.Add(2*time.Hour), planNow.Add(3*time.Hour))
	b := api.addPlayout(inst.ID, int64Ptr(502), planNow.Add(4*time.Hour), planNow.Add(5*time.Hour))
	// an engine entry with no file attached; restorable state does not exist for it
	api.addPlayout(inst.ID, nil, planNow.Add(6*time.Hour), planNow.Add(7*time.Hour))

	snap, err := e.CaptureSnapshot(context.Background(), win)
	require.NoError(t, err)
	require.Len(t, snap.Playouts, 3)

	// the apply that went wrong: one deleted, one foreign entry added
	require.NoError(t, api.DeletePlayout(context.Background(), b.ID))
	api.addPlayout(inst.ID, int64Ptr(601), planNow.Add(5*time.Hour), planNow.Add(6*time.Hour))

	report, err := e.Rollback(context.Background(), snap.ID)
	require.NoError(t, err)
	require.Equal(t, 3, report.Deleted) // a, the null-track entry, and the foreign one
	require.Equal(t, 2, report.Restored)
	require.Equal(t, 1, report.Skipped)
	require.Empty(t, report.Errors)

	restored, err := api.ListInstancePlayouts(context.Background(), inst.ID)
	require.NoError(t, err)
	require.Len(t, restored, 2)
	keys := make(map[string]bool)
	for i := range restored {
		track, ok := restored[i].TrackID()
		require.True(t, ok)
		keys[assignmentKey(track, restored[i].Start, restored[i].End)] = true
	}
	require.True(t, keys[assignmentKey(501, a.Start, a.End)])
	require.True(t, keys[assignmentKey(502, b.Start, b.End)])
}

func TestRollbackUnknownSnapshot(t *testing.T) {
	e := testEngine(newFakeStore(), newFakeEngineAPI(), planNow)
	_, err := e.Rollback(context.Background(), "no-such-snapshot")
	require.Error(t, err)
}

func TestRollbackIsIdempotent(t *testing.T) {
	store := newFakeStore()
	api := newFakeEngineAPI()
	e := testEngine(store, api, planNow)
	win := ResolveWindow(planNow, nil, time.UTC)

	inst := api.addInstance(900, planNow.Add(2*time.Hour), planNow.Add(4*time.Hour))
	api.addPlayout(inst.ID, int64Ptr(501), planNow.Add(2*time.Hour), planNow.Add(3*time.Hour))

	snap, err := e.CaptureSnapshot(context.Background(), win)
	require.NoError(t, err)

	_, err = e.Rollback(context.Background(), snap.ID)
	require.NoError(t, err)
	second, err := e.Rollback(context.Background(), snap.ID)
	require.NoError(t, err)
	require.Equal(t, 1, second.Deleted)
	require.Equal(t, 1, second.Restored)

	restored, err := api.ListInstancePlayouts(context.Background(), inst.ID)
	require.NoError(t, err)
	require.Len(t, restored, 1)
}
