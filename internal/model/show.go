package model

import "time"

// Show is an editorial broadcast slot (e.g. a weekly program) that owns
// episodes. ExternalShowID points at the matching show object inside the
// playout engine once one has been resolved.
type Show struct {
	ID             int       `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	ExternalShowID *int      `db:"external_show_id" json:"external_show_id"`
	FadeInSec      float64   `db:"fade_in_sec" json:"fade_in_sec"`
	FadeOutSec     float64   `db:"fade_out_sec" json:"fade_out_sec"`
	Priority       int       `db:"priority" json:"priority"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
