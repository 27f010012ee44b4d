// Package feed builds the versioned, checksum-verified list of near-term
// items the downstream playout client actually consumes. Every item is
// backed by a real, stable file on disk at build time.
package feed

import "time"

// feed snapshot statuses
const (
	StatusOK      = "ok"
	StatusPartial = "partial"
	StatusError   = "error"
)

// Item is one verified feed entry. Start/End are naive UTC
// ("2006-01-02 15:04:05") as the playout client expects.
type Item struct {
	TrackID     int64   `json:"track_id"`
	EpisodeID   int     `json:"episode_id"`
	Start       string  `json:"start"`
	End         string  `json:"end"`
	DurationSec float64 `json:"duration_sec"`
	URI         string  `json:"uri"`
	Size        int64   `json:"filesize"`
	ModTime     int64   `json:"mtime"`
	SHA256      string  `json:"sha256"`
	Codec       string  `json:"codec"`
	SampleRate  int     `json:"samplerate"`
	MIME        string  `json:"mime"`
	CueInSec    float64 `json:"cue_in_sec"`
	CueOutSec   float64 `json:"cue_out_sec"`
	FadeInSec   float64 `json:"fade_in_sec"`
	FadeOutSec  float64 `json:"fade_out_sec"`
	Title       string  `json:"title"`
	Artist      string  `json:"artist"`
	ShowName    string  `json:"show_name"`
	Priority    int     `json:"priority"`
}

// Snapshot is one versioned feed computation. Immutable once minted.
type Snapshot struct {
	Version       int64     `json:"schedule_version"`
	GeneratedAt   time.Time `json:"generated_at"`
	ValidFrom     time.Time `json:"valid_from"`
	ValidUntil    time.Time `json:"valid_until"`
	Items         []Item    `json:"items"`
	Status        string    `json:"status"`
	MissingCount  int       `json:"missing_count"`
	MissingIDs    []int     `json:"missing_ids"`
	LastKnownGood int64     `json:"last_known_good"`

	hash string
}

// BuildResult is what one Build call produced. Status and FallbackApplied
// are authoritative here: a fallback returns last-known-good items with
// Status "error" so callers can alert even though data came back.
type BuildResult struct {
	Feed            *Snapshot `json:"feed"`
	Status          string    `json:"status"`
	MissingCount    int       `json:"missing_count"`
	TotalCount      int       `json:"total_count"`
	FallbackApplied bool      `json:"fallback_applied"`
}

const naiveUTC = "2006-01-02 15:04:05"

func naive(t time.Time) string {
	return t.UTC().Format(naiveUTC)
}
