package feed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"github.com/Northcast-Media/airsync/internal/model"
)

// Source is what the builder needs from the editorial store.
type Source interface {
	ListEpisodesUpcoming(now, cutoff time.Time, limit int) ([]model.Episode, error)
	GetShowByID(id int) (model.Show, error)
}

// Config carries the feed tunables from the environment.
type Config struct {
	MediaRoot         string
	LookaheadMin      int // minutes
	LookaheadDefault  int
	LookaheadMax      int
	MaxItems          int
	MtimeGrace        time.Duration
	Strict            bool // any missing file aborts the whole build
	FallbackEnabled   bool
	StatRetries       int
	StatRetryDelay    time.Duration
	HistorySize       int
	MetadataCacheSize int
}

// Builder produces deterministic feed snapshots. All of its caches are
// explicit fields with documented bounds, injected at construction.
type Builder struct {
	src     Source
	cfg     Config
	probe   Prober
	history *History
	cache   *lru.Cache[string, Metadata]
	now     func() time.Time
	sleep   func(time.Duration)
}

func NewBuilder(src Source, probe Prober, cfg Config, now func() time.Time) (*Builder, error) {
	if cfg.StatRetries < 1 {
		cfg.StatRetries = 3
	}
	if cfg.HistorySize < 1 {
		cfg.HistorySize = 10
	}
	if cfg.MetadataCacheSize < 1 {
		cfg.MetadataCacheSize = 256
	}
	cache, err := lru.New[string, Metadata](cfg.MetadataCacheSize)
	if err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	return &Builder{
		src:     src,
		cfg:     cfg,
		probe:   probe,
		history: NewHistory(cfg.HistorySize),
		cache:   cache,
		now:     now,
		sleep:   time.Sleep,
	}, nil
}

// History exposes the version history for status endpoints.
func (b *Builder) History() *History { return b.history }

// errMissing marks a per-file failure that lenient mode degrades to a
// missing item instead of failing the build.
type errMissing struct{ reason string }

func (e *errMissing) Error() string { return e.reason }

// Build computes the current feed. Lookahead and item count are clamped to
// configured bounds. In lenient mode unverifiable files degrade the result
// to partial; in strict mode they abort it. A catastrophic failure falls
// back to the last known good snapshot when enabled, with Status error.
func (b *Builder) Build(ctx context.Context, lookaheadMin, maxItems int) (*BuildResult, error) {
	res, err := b.build(ctx, lookaheadMin, maxItems)
	if err == nil {
		return res, nil
	}
	lkg := b.history.LastKnownGood()
	if !b.cfg.FallbackEnabled || lkg == nil {
		return nil, err
	}
	log.Error().Err(err).Int64("fallback_version", lkg.Version).
		Msg("feed build failed, serving last known good")
	return &BuildResult{
		Feed:            lkg,
		Status:          StatusError,
		TotalCount:      len(lkg.Items),
		FallbackApplied: true,
	}, nil
}

func (b *Builder) build(ctx context.Context, lookaheadMin, maxItems int) (*BuildResult, error) {
	if lookaheadMin <= 0 {
		lookaheadMin = b.cfg.LookaheadDefault
	}
	if lookaheadMin < b.cfg.LookaheadMin {
		lookaheadMin = b.cfg.LookaheadMin
	}
	if lookaheadMin > b.cfg.LookaheadMax {
		lookaheadMin = b.cfg.LookaheadMax
	}
	if maxItems <= 0 || maxItems > b.cfg.MaxItems {
		maxItems = b.cfg.MaxItems
	}

	now := b.now()
	cutoff := now.Add(time.Duration(lookaheadMin) * time.Minute)

	episodes, err := b.src.ListEpisodesUpcoming(now, cutoff, maxItems)
	if err != nil {
		return nil, fmt.Errorf("listing upcoming episodes: %w", err)
	}

	var items []Item
	var missingIDs []int
	first := true
	for i := range episodes {
		ep := &episodes[i]
		item, err := b.buildItem(ctx, ep, now, first)
		if err != nil {
			var miss *errMissing
			if errors.As(err, &miss) {
				if b.cfg.Strict {
					return nil, fmt.Errorf("episode %d: %s", ep.ID, miss.reason)
				}
				log.Warn().Int("episode_id", ep.ID).Str("reason", miss.reason).
					Msg("feed item excluded")
				missingIDs = append(missingIDs, ep.ID)
				continue
			}
			return nil, err
		}
		items = append(items, *item)
		first = false
	}

	hash := canonicalHash(items)
	if prev := b.history.match(hash); prev != nil {
		return &BuildResult{
			Feed:         prev,
			Status:       prev.Status,
			MissingCount: len(missingIDs),
			TotalCount:   len(episodes),
		}, nil
	}

	status := StatusOK
	if len(missingIDs) > 0 {
		status = StatusPartial
	}
	snap := &Snapshot{
		Version:      b.history.mintVersion(now.Unix()),
		GeneratedAt:  now,
		ValidFrom:    now,
		ValidUntil:   cutoff,
		Items:        items,
		Status:       status,
		MissingCount: len(missingIDs),
		MissingIDs:   missingIDs,
		hash:         hash,
	}
	if lkg := b.history.LastKnownGood(); lkg != nil {
		snap.LastKnownGood = lkg.Version
	}
	if status == StatusOK {
		snap.LastKnownGood = snap.Version
	}
	b.history.add(snap)

	return &BuildResult{
		Feed:         snap,
		Status:       status,
		MissingCount: len(missingIDs),
		TotalCount:   len(episodes),
	}, nil
}

func (b *Builder) buildItem(ctx context.Context, ep *model.Episode, now time.Time, first bool) (*Item, error) {
	track, ok := ep.TrackIDNum()
	if !ok || ep.FilePath == nil || *ep.FilePath == "" {
		return nil, &errMissing{reason: "no plannable track id or file path"}
	}
	if ep.ScheduledStart == nil || ep.ScheduledEnd == nil {
		return nil, &errMissing{reason: "no scheduled interval"}
	}
	start, end := ep.ScheduledStart.UTC(), ep.ScheduledEnd.UTC()

	path, err := b.resolvePath(*ep.FilePath)
	if err != nil {
		return nil, err
	}

	info, err := b.statWithRetry(path)
	if err != nil {
		return nil, &errMissing{reason: fmt.Sprintf("stat failed: %v", err)}
	}
	if b.cfg.MtimeGrace > 0 && now.Sub(info.ModTime()) < b.cfg.MtimeGrace {
		return nil, &errMissing{reason: "file modified too recently, not yet stable"}
	}
	if info.Size() == 0 {
		return nil, &errMissing{reason: "file is empty"}
	}

	sum, err := checksumFile(path)
	if err != nil {
		return nil, &errMissing{reason: fmt.Sprintf("checksum failed: %v", err)}
	}

	meta, err := b.metadata(ctx, path, info)
	if err != nil {
		return nil, &errMissing{reason: fmt.Sprintf("probe failed: %v", err)}
	}

	show, err := b.src.GetShowByID(ep.ShowID)
	if err != nil {
		return nil, fmt.Errorf("loading show %d: %w", ep.ShowID, err)
	}

	slotSec := end.Sub(start).Seconds()
	cueOut := meta.DurationSec
	if slotSec < cueOut {
		// a scheduled slot never plays past its own end even if the file
		// is longer
		cueOut = slotSec
	}

	var cueIn float64
	if first && now.After(start) && now.Before(end) {
		// only a just-started first item resumes mid-track after a rebuild
		cueIn = now.Sub(start).Seconds()
	}

	artist := ""
	if ep.Artist != nil {
		artist = *ep.Artist
	}

	return &Item{
		TrackID:     track,
		EpisodeID:   ep.ID,
		Start:       naive(start),
		End:         naive(end),
		DurationSec: meta.DurationSec,
		URI:         "file://" + path,
		Size:        info.Size(),
		ModTime:     info.ModTime().Unix(),
		SHA256:      sum,
		Codec:       meta.Codec,
		SampleRate:  meta.SampleRate,
		MIME:        mimeFor(meta.Codec, meta.Container),
		CueInSec:    cueIn,
		CueOutSec:   cueOut,
		FadeInSec:   show.FadeInSec,
		FadeOutSec:  show.FadeOutSec,
		Title:       ep.Title,
		Artist:      artist,
		ShowName:    show.Name,
		Priority:    show.Priority,
	}, nil
}

// resolvePath joins rel under the media root and rejects anything that
// normalizes outside it.
func (b *Builder) resolvePath(rel string) (string, error) {
	root := filepath.Clean(b.cfg.MediaRoot)
	full := filepath.Clean(filepath.Join(root, rel))
	if full != root && !strings.HasPrefix(full, root+string(os.PathSeparator)) {
		return "", &errMissing{reason: fmt.Sprintf("path %q escapes media root", rel)}
	}
	if full == root {
		return "", &errMissing{reason: "empty relative path"}
	}
	return full, nil
}

// statWithRetry absorbs replication lag: a bounded number of attempts with
// a fixed delay before a file is declared absent.
func (b *Builder) statWithRetry(path string) (os.FileInfo, error) {
	var lastErr error
	for attempt := 1; attempt <= b.cfg.StatRetries; attempt++ {
		info, err := os.Stat(path)
		if err == nil {
			return info, nil
		}
		lastErr = err
		if attempt < b.cfg.StatRetries && b.cfg.StatRetryDelay > 0 {
			b.sleep(b.cfg.StatRetryDelay)
		}
	}
	return nil, lastErr
}

func (b *Builder) metadata(ctx context.Context, path string, info os.FileInfo) (Metadata, error) {
	key := fmt.Sprintf("%s|%d|%d", path, info.Size(), info.ModTime().UnixNano())
	if meta, ok := b.cache.Get(key); ok {
		return meta, nil
	}
	meta, err := b.probe.Probe(ctx, path)
	if err != nil {
		return Metadata{}, err
	}
	b.cache.Add(key, meta)
	return meta, nil
}

func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// canonicalItem is the stable identity of one feed entry. Cue-in is a
// playback hint dependent on build time and deliberately excluded, so a
// no-op rebuild does not churn the version.
type canonicalItem struct {
	TrackID   int64   `json:"t"`
	EpisodeID int     `json:"e"`
	Start     string  `json:"s"`
	End       string  `json:"n"`
	SHA256    string  `json:"h"`
	Size      int64   `json:"z"`
	ModTime   int64   `json:"m"`
	CueOut    float64 `json:"o"`
}

func canonicalHash(items []Item) string {
	canon := make([]canonicalItem, len(items))
	for i, it := range items {
		canon[i] = canonicalItem{
			TrackID:   it.TrackID,
			EpisodeID: it.EpisodeID,
			Start:     it.Start,
			End:       it.End,
			SHA256:    it.SHA256,
			Size:      it.Size,
			ModTime:   it.ModTime,
			CueOut:    it.CueOutSec,
		}
	}
	payload, _ := json.Marshal(canon)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
