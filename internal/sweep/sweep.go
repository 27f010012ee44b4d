// Package sweep runs the periodic reconciliation, lock-cleanup and
// rehydration jobs, writing an append-only JSON-lines record per run.
package sweep

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Northcast-Media/airsync/internal/db"
	"github.com/Northcast-Media/airsync/internal/feed"
	"github.com/Northcast-Media/airsync/internal/media"
	"github.com/Northcast-Media/airsync/internal/notify"
	syncengine "github.com/Northcast-Media/airsync/internal/sync"
)

// Schedules holds the cron expressions for each sweep.
type Schedules struct {
	Reconcile string
	LockSweep string
	Rehydrate string
	// RehydrateLookahead bounds which episodes the rehydration sweep
	// considers.
	RehydrateLookahead time.Duration
	// JobTimeout bounds one sweep run.
	JobTimeout time.Duration
}

func DefaultSchedules() Schedules {
	return Schedules{
		Reconcile:          "*/10 * * * *",
		LockSweep:          "0 * * * *",
		Rehydrate:          "*/15 * * * *",
		RehydrateLookahead: 4 * time.Hour,
		JobTimeout:         5 * time.Minute,
	}
}

type Runner struct {
	engine     *syncengine.Engine
	builder    *feed.Builder
	store      db.Store
	locks      *media.LockManager
	rehydrator *media.Rehydrator
	notifier   *notify.Publisher
	logDir     string
	schedules  Schedules
	cron       *cron.Cron

	lastFeedVersion int64
}

func NewRunner(
	engine *syncengine.Engine,
	builder *feed.Builder,
	store db.Store,
	locks *media.LockManager,
	rehydrator *media.Rehydrator,
	notifier *notify.Publisher,
	logDir string,
	schedules Schedules,
) *Runner {
	return &Runner{
		engine:     engine,
		builder:    builder,
		store:      store,
		locks:      locks,
		rehydrator: rehydrator,
		notifier:   notifier,
		logDir:     logDir,
		schedules:  schedules,
		cron:       cron.New(),
	}
}

func (r *Runner) Start() error {
	if _, err := r.cron.AddFunc(r.schedules.Reconcile, r.runReconcile); err != nil {
		return fmt.Errorf("registering reconcile sweep: %w", err)
	}
	if _, err := r.cron.AddFunc(r.schedules.LockSweep, r.runLockSweep); err != nil {
		return fmt.Errorf("registering lock sweep: %w", err)
	}
	if _, err := r.cron.AddFunc(r.schedules.Rehydrate, r.runRehydrate); err != nil {
		return fmt.Errorf("registering rehydration sweep: %w", err)
	}
	r.cron.Start()
	log.Info().
		Str("reconcile", r.schedules.Reconcile).
		Str("lock_sweep", r.schedules.LockSweep).
		Str("rehydrate", r.schedules.Rehydrate).
		Msg("sweeps scheduled")
	return nil
}

func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
}

// opLogger returns a JSON-lines logger appending to one file per sweep kind
// per day, plus the file to close. Falls back to the process logger when the
// file cannot be opened.
func (r *Runner) opLogger(kind string) (zerolog.Logger, *os.File) {
	if err := os.MkdirAll(r.logDir, 0o755); err != nil {
		return log.Logger, nil
	}
	name := fmt.Sprintf("%s-%s.jsonl", kind, time.Now().UTC().Format("20060102"))
	f, err := os.OpenFile(filepath.Join(r.logDir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Error().Err(err).Str("sweep", kind).Msg("could not open sweep log")
		return log.Logger, nil
	}
	return zerolog.New(f).With().Timestamp().Str("sweep", kind).Logger(), f
}

func (r *Runner) runReconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), r.schedules.JobTimeout)
	defer cancel()

	logger, file := r.opLogger("reconcile")
	if file != nil {
		defer file.Close()
	}
	runID := uuid.NewString()
	started := time.Now()
	logger.Info().Str("run_id", runID).Msg("reconcile sweep started")

	plan, report, err := r.engine.Reconcile(ctx, syncengine.ApplyOptions{SkipSnapshot: true})
	if err != nil {
		logger.Error().Str("run_id", runID).Err(err).Msg("reconcile sweep failed")
		return
	}
	logger.Info().
		Str("run_id", runID).
		Str("window", plan.Window.Label).
		Str("server_hash", plan.ServerHash).
		Int("created", report.Created).
		Int("updated", report.Updated).
		Int("deleted", report.Deleted).
		Int("unchanged", report.Unchanged).
		Int("skipped", report.Skipped).
		Int("protected", report.Protected).
		Int("errors", len(report.Errors)).
		Dur("elapsed", time.Since(started)).
		Msg("reconcile sweep finished")

	built, err := r.builder.Build(ctx, 0, 0)
	if err != nil {
		logger.Error().Str("run_id", runID).Err(err).Msg("feed rebuild failed")
		return
	}
	if built.Feed.Version != r.lastFeedVersion {
		r.lastFeedVersion = built.Feed.Version
		r.notifier.PublishFeedVersion(built.Feed.Version, built.Status)
		logger.Info().Str("run_id", runID).
			Int64("schedule_version", built.Feed.Version).
			Str("status", built.Status).
			Msg("feed version advanced")
	}
}

func (r *Runner) runLockSweep() {
	logger, file := r.opLogger("locks")
	if file != nil {
		defer file.Close()
	}
	removed, err := r.locks.SweepStale()
	if err != nil {
		logger.Error().Err(err).Msg("lock sweep failed")
		return
	}
	logger.Info().Int("removed", removed).Msg("lock sweep finished")
}

func (r *Runner) runRehydrate() {
	ctx, cancel := context.WithTimeout(context.Background(), r.schedules.JobTimeout)
	defer cancel()

	logger, file := r.opLogger("rehydrate")
	if file != nil {
		defer file.Close()
	}
	runID := uuid.NewString()

	now := time.Now()
	episodes, err := r.store.ListEpisodesUpcoming(now, now.Add(r.schedules.RehydrateLookahead), 500)
	if err != nil {
		logger.Error().Str("run_id", runID).Err(err).Msg("listing episodes failed")
		return
	}

	restored, failed := 0, 0
	for i := range episodes {
		ep := &episodes[i]
		acquired, err := r.locks.Acquire(ep.ID)
		if err != nil || !acquired {
			continue // someone else is working on it
		}
		result := r.rehydrator.Rehydrate(ctx, ep)
		if err := r.locks.Release(ep.ID); err != nil {
			logger.Warn().Str("run_id", runID).Int("episode_id", ep.ID).Err(err).Msg("lock release refused")
		}
		switch result.Status {
		case media.RehydrateCopied:
			restored++
			logger.Info().Str("run_id", runID).Int("episode_id", ep.ID).Msg("working copy restored")
		case media.RehydrateError:
			if result.Code != media.RehydrateCodeNoArchivePath {
				failed++
				logger.Error().Str("run_id", runID).Int("episode_id", ep.ID).
					Str("code", result.Code).Str("error", result.Error).
					Msg("rehydration failed")
			}
		}
	}
	logger.Info().Str("run_id", runID).
		Int("checked", len(episodes)).
		Int("restored", restored).
		Int("failed", failed).
		Msg("rehydration sweep finished")
}
