// exposes a Store interface that is passed to API calls and the sync core
package db

import (
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Northcast-Media/airsync/internal/model"
)

type Store interface {
	// user functions
	CreateUser(email, hashedPassword string, name *string) (int, error)
	GetUserByEmail(email string) (*model.User, error)
	GetUserByID(id int) (*model.User, error)

	// show functions
	GetShowByID(id int) (model.Show, error)
	SetShowExternalID(showID, externalID int) error

	// episode functions
	GetEpisodeByID(id int) (model.Episode, error)
	ListEpisodesOverlapping(from, to time.Time) ([]model.Episode, error)
	ListEpisodesUpcoming(now, cutoff time.Time, limit int) ([]model.Episode, error)
	CurrentAiringStart(now time.Time) (*time.Time, error)
	SaveEpisodeScheduling(id int, start, end time.Time, instanceID, playoutID int) error
	ClearEpisodeScheduling(id int) error
	SetEpisodeFileExists(id int, exists bool) error
}

type pgStore struct {
	db *sqlx.DB
}

// compile-time check that pgStore implements Store
var _ Store = (*pgStore)(nil)

func NewStore() Store {
	return &pgStore{db: DB}
}
