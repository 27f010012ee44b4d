package packets

import "time"

type SignupRequest struct {
	Email    string  `json:"email" binding:"required,email"`
	Password string  `json:"password" binding:"required,min=8"`
	Name     *string `json:"name"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// DiffRequest selects the reconciliation mode. Only envelope mode exists
// today; the field keeps the wire contract explicit.
type DiffRequest struct {
	Mode string `json:"mode" binding:"required"`
}

type ApplyRequest struct {
	Mode   string `json:"mode" binding:"required"`
	DryRun bool   `json:"dry_run"`
}

type PlanOneRequest struct {
	EpisodeID int       `json:"episode_id" binding:"required"`
	ShowID    int       `json:"show_id" binding:"required"`
	Start     time.Time `json:"start" binding:"required"`
	End       time.Time `json:"end" binding:"required"`
}

type UnplanOneRequest struct {
	EpisodeID int       `json:"episode_id" binding:"required"`
	Start     time.Time `json:"start"`
}
