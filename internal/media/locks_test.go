package media

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var lockNow = time.Date(2025, 6, 18, 12, 0, 0, 0, time.UTC)

func newTestLockManager(t *testing.T) (*LockManager, *time.Time) {
	t.Helper()
	now := lockNow
	m := NewLockManager(t.TempDir(), 30*time.Minute, func() time.Time { return now })
	return m, &now
}

func TestAcquireIsExclusive(t *testing.T) {
	m, _ := newTestLockManager(t)

	ok, err := m.Acquire(42)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = m.Acquire(42)
	require.NoError(t, err)
	require.False(t, ok)

	// a different item is an independent lock
	ok, err = m.Acquire(43)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAcquireAfterRelease(t *testing.T) {
	m, _ := newTestLockManager(t)

	ok, err := m.Acquire(42)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, m.Release(42))

	ok, err = m.Acquire(42)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAcquireReclaimsStaleMarker(t *testing.T) {
	m, now := newTestLockManager(t)

	ok, err := m.Acquire(42)
	require.NoError(t, err)
	require.True(t, ok)

	// within the stale horizon the lock holds
	*now = lockNow.Add(29 * time.Minute)
	ok, err = m.Acquire(42)
	require.NoError(t, err)
	require.False(t, ok)

	// past it the marker counts as abandoned
	*now = lockNow.Add(31 * time.Minute)
	ok, err = m.Acquire(42)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAcquireReclaimsUnreadableMarker(t *testing.T) {
	m, _ := newTestLockManager(t)
	require.NoError(t, os.MkdirAll(m.dir, 0o755))
	require.NoError(t, os.WriteFile(m.markerPath(42), []byte("not json"), 0o644))

	ok, err := m.Acquire(42)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestReleaseRefusesForeignLock(t *testing.T) {
	m, _ := newTestLockManager(t)
	require.NoError(t, os.MkdirAll(m.dir, 0o755))

	payload, err := json.Marshal(lockMarker{PID: m.pid + 1, Timestamp: lockNow.Unix()})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(m.markerPath(42), payload, 0o644))

	require.Error(t, m.Release(42))
	// the foreign marker survives
	_, err = os.Stat(m.markerPath(42))
	require.NoError(t, err)
}

func TestReleaseWithoutLockIsNoop(t *testing.T) {
	m, _ := newTestLockManager(t)
	require.NoError(t, m.Release(42))
}

func TestSweepStaleRemovesOnlyAbandonedMarkers(t *testing.T) {
	m, now := newTestLockManager(t)

	ok, err := m.Acquire(1)
	require.NoError(t, err)
	require.True(t, ok)

	*now = lockNow.Add(31 * time.Minute)
	ok, err = m.Acquire(2) // fresh relative to the advanced clock
	require.NoError(t, err)
	require.True(t, ok)

	// an unreadable marker is swept too
	require.NoError(t, os.WriteFile(m.markerPath(3), []byte("junk"), 0o644))

	removed, err := m.SweepStale()
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	_, err = os.Stat(m.markerPath(2))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(m.dir, "airsync_item_1.lock"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
