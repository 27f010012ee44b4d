package feed

import (
	"sync"
)

// History retains a bounded window of recent feed snapshots plus the last
// version whose status was ok. Constructed and injected explicitly; one per
// builder.
type History struct {
	mu            sync.Mutex
	max           int
	order         []*Snapshot // oldest first
	lastVersion   int64
	lastKnownGood *Snapshot
}

func NewHistory(max int) *History {
	if max < 1 {
		max = 1
	}
	return &History{max: max}
}

// Latest returns the most recent snapshot, if any.
func (h *History) Latest() *Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.order) == 0 {
		return nil
	}
	return h.order[len(h.order)-1]
}

// LastKnownGood returns the most recent snapshot with status ok, if any.
func (h *History) LastKnownGood() *Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastKnownGood
}

// match returns the latest snapshot when its canonical hash equals hash.
// Version numbers must not churn for unchanged content.
func (h *History) match(hash string) *Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.order) == 0 {
		return nil
	}
	latest := h.order[len(h.order)-1]
	if latest.hash == hash {
		return latest
	}
	return nil
}

// mintVersion returns a monotonically increasing version seeded from the
// wall clock, bumping on collision with the previous one.
func (h *History) mintVersion(wallClock int64) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	v := wallClock
	if v <= h.lastVersion {
		v = h.lastVersion + 1
	}
	h.lastVersion = v
	return v
}

// add retains snap, evicting the oldest entry past capacity. The last known
// good snapshot is pinned separately and survives eviction.
func (h *History) add(snap *Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.order = append(h.order, snap)
	if len(h.order) > h.max {
		h.order = h.order[1:]
	}
	if snap.Status == StatusOK {
		h.lastKnownGood = snap
	}
}
