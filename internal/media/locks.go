// Package media owns the filesystem side of the sync core: per-item
// advisory locks and restoring working audio copies from archive storage.
package media

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

type lockMarker struct {
	PID       int   `json:"pid"`
	Timestamp int64 `json:"ts"`
}

// LockManager implements per-item mutual exclusion through marker files in
// a shared temp directory, the simplest correct cross-process mechanism for
// the rehydration path. Markers older than StaleAfter count as abandoned.
type LockManager struct {
	dir        string
	staleAfter time.Duration
	pid        int
	now        func() time.Time
}

func NewLockManager(dir string, staleAfter time.Duration, now func() time.Time) *LockManager {
	if now == nil {
		now = time.Now
	}
	return &LockManager{dir: dir, staleAfter: staleAfter, pid: os.Getpid(), now: now}
}

func (m *LockManager) markerPath(itemID int) string {
	return filepath.Join(m.dir, fmt.Sprintf("airsync_item_%d.lock", itemID))
}

func (m *LockManager) readMarker(path string) (*lockMarker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var marker lockMarker
	if err := json.Unmarshal(data, &marker); err != nil {
		return nil, err
	}
	return &marker, nil
}

func (m *LockManager) stale(marker *lockMarker) bool {
	return m.now().Sub(time.Unix(marker.Timestamp, 0)) > m.staleAfter
}

// Acquire attempts to take the lock for itemID. It never blocks: a live
// marker means false, a stale or unreadable marker is silently reclaimed.
func (m *LockManager) Acquire(itemID int) (bool, error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return false, err
	}
	path := m.markerPath(itemID)

	marker, err := m.readMarker(path)
	switch {
	case err == nil:
		if !m.stale(marker) {
			return false, nil
		}
		log.Warn().Int("item_id", itemID).Int("owner_pid", marker.PID).
			Msg("reclaiming stale lock marker")
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return false, err
		}
	case errors.Is(err, os.ErrNotExist):
		// free
	default:
		// unreadable marker counts as abandoned
		log.Warn().Err(err).Int("item_id", itemID).Msg("removing unreadable lock marker")
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return false, err
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil // lost the race
		}
		return false, err
	}
	defer f.Close()

	payload, _ := json.Marshal(lockMarker{PID: m.pid, Timestamp: m.now().Unix()})
	if _, err := f.Write(payload); err != nil {
		os.Remove(path)
		return false, err
	}
	return true, nil
}

// Release removes the marker only when this process owns it. A mismatched
// release is refused and logged, never forced.
func (m *LockManager) Release(itemID int) error {
	path := m.markerPath(itemID)
	marker, err := m.readMarker(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if marker.PID != m.pid {
		log.Warn().Int("item_id", itemID).Int("owner_pid", marker.PID).Int("caller_pid", m.pid).
			Msg("refusing to release lock owned by another process")
		return fmt.Errorf("lock for item %d owned by pid %d", itemID, marker.PID)
	}
	return os.Remove(path)
}

// SweepStale removes every abandoned marker in bulk and returns how many
// it removed.
func (m *LockManager) SweepStale() (int, error) {
	pattern := filepath.Join(m.dir, "airsync_item_*.lock")
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, path := range paths {
		marker, err := m.readMarker(path)
		if err != nil || m.stale(marker) {
			if rmErr := os.Remove(path); rmErr == nil {
				removed++
			}
		}
	}
	return removed, nil
}
