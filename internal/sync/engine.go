// Package sync reconciles the editorial schedule (episodes in Postgres)
// with the external playout-automation engine over a rolling weekly window.
package sync

import (
	"time"

	"github.com/Northcast-Media/airsync/internal/db"
	"github.com/Northcast-Media/airsync/internal/playout"
)

const (
	// protectionRadius guards entries around "now" from orphan removal so a
	// transient desired-state gap cannot yank audio that is airing or about
	// to air.
	protectionRadius = time.Hour

	// applyBatchSize bounds how many engine calls go out back-to-back
	// before the apply loop sleeps.
	applyBatchSize = 50
)

// Options tunes an Engine; zero values fall back to sane defaults.
type Options struct {
	// Timezone is the station's civil timezone used for window anchoring.
	Timezone *time.Location
	// AllowShowNameMatch enables falling back to matching engine shows by
	// name when no external show id is stored. Off by default: silently
	// merging shows by name is how stations lose schedules.
	AllowShowNameMatch bool
	// Now is the clock seam for tests.
	Now func() time.Time
	// BatchDelay is called between apply batches; nil gets the default
	// randomized delay.
	BatchDelay func()
}

// Engine is the reconciliation core. All caches it owns (snapshot store) are
// explicitly injected so tests can build isolated instances.
type Engine struct {
	store          db.Store
	api            playout.API
	snapshots      *SnapshotStore
	loc            *time.Location
	allowNameMatch bool
	now            func() time.Time
	batchDelay     func()
}

func NewEngine(store db.Store, api playout.API, snapshots *SnapshotStore, opts Options) *Engine {
	e := &Engine{
		store:          store,
		api:            api,
		snapshots:      snapshots,
		loc:            opts.Timezone,
		allowNameMatch: opts.AllowShowNameMatch,
		now:            opts.Now,
		batchDelay:     opts.BatchDelay,
	}
	if e.loc == nil {
		e.loc = time.UTC
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.batchDelay == nil {
		e.batchDelay = defaultBatchDelay
	}
	return e
}

// Snapshots exposes the snapshot store for listing endpoints.
func (e *Engine) Snapshots() *SnapshotStore { return e.snapshots }

// Now reads the engine clock, so callers planning on the engine's behalf
// share its notion of the current time.
func (e *Engine) Now() time.Time { return e.now() }

// normalize truncates to whole seconds in UTC; the engine stores second
// precision and key matching must not depend on sub-second noise.
func normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
