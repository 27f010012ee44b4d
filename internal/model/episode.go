package model

import (
	"strconv"
	"time"
)

// Episode is one editorial record of broadcast intent: a pre-recorded
// program that should air on a show between two instants.
type Episode struct {
	ID             int        `db:"id" json:"id"`
	ShowID         int        `db:"show_id" json:"show_id"`
	Title          string     `db:"title" json:"title"`
	Artist         *string    `db:"artist" json:"artist"`
	Status         string     `db:"status" json:"status"`
	TrackID        *string    `db:"track_id" json:"track_id"`
	FilePath       *string    `db:"file_path" json:"file_path"`
	ArchivePath    *string    `db:"archive_path" json:"archive_path"`
	FileExists     bool       `db:"file_exists" json:"file_exists"`
	ScheduledStart *time.Time `db:"scheduled_start" json:"scheduled_start"`
	ScheduledEnd   *time.Time `db:"scheduled_end" json:"scheduled_end"`
	InstanceID     *int       `db:"instance_id" json:"instance_id"`
	PlayoutID      *int       `db:"playout_id" json:"playout_id"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// episode statuses as persisted in the editorial store
const (
	EpisodeStatusDraft     = "draft"
	EpisodeStatusScheduled = "scheduled"
)

// TrackIDNum returns the episode's track id as a positive number, or false
// when the id is absent, non-numeric or non-positive.
func (e *Episode) TrackIDNum() (int64, bool) {
	if e.TrackID == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(*e.TrackID, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// Plannable reports whether the episode carries everything the scheduler
// needs: a numeric track id and a relative file path.
func (e *Episode) Plannable() bool {
	if _, ok := e.TrackIDNum(); !ok {
		return false
	}
	return e.FilePath != nil && *e.FilePath != ""
}
