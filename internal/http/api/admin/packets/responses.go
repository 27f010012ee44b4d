package packets

import (
	"github.com/Northcast-Media/airsync/internal/sync"
)

type TokenResponse struct {
	Token string `json:"token"`
}

type ProfileResponse struct {
	ID    int     `json:"id"`
	Email string  `json:"email"`
	Name  *string `json:"name"`
}

// FeedTransition reports the feed version before and after an apply.
type FeedTransition struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

type ApplyResponse struct {
	Report *sync.ApplyReport `json:"report"`
	Feed   FeedTransition    `json:"feed"`
}

type SnapshotResponse struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
	ExpiresAt string `json:"expires_at"`
	Window    string `json:"window"`
	Playouts  int    `json:"playouts"`
}
