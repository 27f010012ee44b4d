package db

import (
	"github.com/rs/zerolog/log"

	"github.com/Northcast-Media/airsync/internal/model"
)

func (s *pgStore) GetShowByID(id int) (model.Show, error) {
	var sh model.Show
	const q = `
	SELECT id, name, external_show_id, fade_in_sec, fade_out_sec, priority, created_at, updated_at
	  FROM shows
	 WHERE id = $1;`
	if err := s.db.Get(&sh, q, id); err != nil {
		log.Error().Err(err).Int("show_id", id).Msg("GetShowByID failed")
		return model.Show{}, err
	}
	return sh, nil
}

func (s *pgStore) SetShowExternalID(showID, externalID int) error {
	_, err := s.db.Exec(`
	UPDATE shows SET external_show_id = $2, updated_at = now() WHERE id = $1;`,
		showID, externalID)
	if err != nil {
		log.Error().Err(err).Int("show_id", showID).Msg("SetShowExternalID failed")
	}
	return err
}
