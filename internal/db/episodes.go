package db

import (
	"database/sql"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Northcast-Media/airsync/internal/model"
)

const episodeColumns = `
	id, show_id, title, artist, status, track_id, file_path, archive_path,
	file_exists, scheduled_start, scheduled_end, instance_id, playout_id,
	created_at, updated_at`

func (s *pgStore) GetEpisodeByID(id int) (model.Episode, error) {
	var e model.Episode
	err := s.db.Get(&e, `SELECT `+episodeColumns+` FROM episodes WHERE id = $1;`, id)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		log.Error().Err(err).Int("episode_id", id).Msg("GetEpisodeByID failed")
	}
	return e, err
}

// ListEpisodesOverlapping returns every episode whose scheduled interval
// intersects [from, to), ordered by start.
func (s *pgStore) ListEpisodesOverlapping(from, to time.Time) ([]model.Episode, error) {
	var out []model.Episode
	const q = `
	SELECT ` + episodeColumns + `
	  FROM episodes
	 WHERE scheduled_start IS NOT NULL
	   AND scheduled_end IS NOT NULL
	   AND scheduled_end > $1
	   AND scheduled_start < $2
	 ORDER BY scheduled_start, id;`
	if err := s.db.Select(&out, q, from.UTC(), to.UTC()); err != nil {
		log.Error().Err(err).Msg("ListEpisodesOverlapping failed")
		return nil, err
	}
	return out, nil
}

// ListEpisodesUpcoming returns episodes that have not finished yet and start
// before cutoff, ordered by start. Used by the feed builder.
func (s *pgStore) ListEpisodesUpcoming(now, cutoff time.Time, limit int) ([]model.Episode, error) {
	var out []model.Episode
	const q = `
	SELECT ` + episodeColumns + `
	  FROM episodes
	 WHERE scheduled_start IS NOT NULL
	   AND scheduled_end > $1
	   AND scheduled_start < $2
	 ORDER BY scheduled_start, id
	 LIMIT $3;`
	if err := s.db.Select(&out, q, now.UTC(), cutoff.UTC(), limit); err != nil {
		log.Error().Err(err).Msg("ListEpisodesUpcoming failed")
		return nil, err
	}
	return out, nil
}

// CurrentAiringStart returns the scheduled start of the episode airing at
// now, or nil when nothing is on air.
func (s *pgStore) CurrentAiringStart(now time.Time) (*time.Time, error) {
	var start time.Time
	const q = `
	SELECT scheduled_start
	  FROM episodes
	 WHERE scheduled_start <= $1
	   AND scheduled_end > $1
	 ORDER BY scheduled_start DESC
	 LIMIT 1;`
	err := s.db.Get(&start, q, now.UTC())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		log.Error().Err(err).Msg("CurrentAiringStart failed")
		return nil, err
	}
	return &start, nil
}

func (s *pgStore) SaveEpisodeScheduling(id int, start, end time.Time, instanceID, playoutID int) error {
	_, err := s.db.Exec(`
	UPDATE episodes
	   SET scheduled_start = $2,
	       scheduled_end   = $3,
	       instance_id     = $4,
	       playout_id      = $5,
	       status          = $6,
	       updated_at      = now()
	 WHERE id = $1;`,
		id, start.UTC(), end.UTC(), instanceID, playoutID, model.EpisodeStatusScheduled)
	if err != nil {
		log.Error().Err(err).Int("episode_id", id).Msg("SaveEpisodeScheduling failed")
	}
	return err
}

// ClearEpisodeScheduling is the inverse of SaveEpisodeScheduling: it nulls
// the whole scheduling set, times included, so an unplanned episode drops
// out of the desired window until someone schedules it again.
func (s *pgStore) ClearEpisodeScheduling(id int) error {
	_, err := s.db.Exec(`
	UPDATE episodes
	   SET scheduled_start = NULL,
	       scheduled_end   = NULL,
	       instance_id     = NULL,
	       playout_id      = NULL,
	       status          = $2,
	       updated_at      = now()
	 WHERE id = $1;`, id, model.EpisodeStatusDraft)
	if err != nil {
		log.Error().Err(err).Int("episode_id", id).Msg("ClearEpisodeScheduling failed")
	}
	return err
}

func (s *pgStore) SetEpisodeFileExists(id int, exists bool) error {
	_, err := s.db.Exec(`UPDATE episodes SET file_exists = $2, updated_at = now() WHERE id = $1;`, id, exists)
	if err != nil {
		log.Error().Err(err).Int("episode_id", id).Msg("SetEpisodeFileExists failed")
	}
	return err
}
