package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/Northcast-Media/airsync/internal/model"
)

// rehydration outcomes
const (
	RehydrateOK     = "ok"     // working copy already present
	RehydrateCopied = "copied" // restored from archive
	RehydrateError  = "error"
)

// rehydration error codes
const (
	RehydrateCodeArchiveMissing = "ARCHIVE_MISSING"
	RehydrateCodeCopyFailed     = "COPY_FAILED"
	RehydrateCodeVerifyFailed   = "VERIFY_FAILED"
	RehydrateCodeNoArchivePath  = "NO_ARCHIVE_PATH"
	RehydrateCodeNoFilePath     = "NO_FILE_PATH"
)

// RehydrateResult reports one restore attempt.
type RehydrateResult struct {
	Status string `json:"status"`
	Code   string `json:"code,omitempty"`
	Error  string `json:"error,omitempty"`
}

// FlagStore is the slice of the editorial store rehydration needs to update
// the external file-exists flag.
type FlagStore interface {
	SetEpisodeFileExists(id int, exists bool) error
}

// Rehydrator restores working audio copies into the media root on demand.
type Rehydrator struct {
	mediaRoot string
	archive   Archive
	store     FlagStore
}

func NewRehydrator(mediaRoot string, archive Archive, store FlagStore) *Rehydrator {
	return &Rehydrator{mediaRoot: mediaRoot, archive: archive, store: store}
}

// Rehydrate ensures the episode's working file exists under the media root.
// Present already is ok; restorable from archive is copied; an absent file
// with no recorded archive path is a genuine error, not auto-resolved.
func (r *Rehydrator) Rehydrate(ctx context.Context, ep *model.Episode) RehydrateResult {
	if ep.FilePath == nil || *ep.FilePath == "" {
		return RehydrateResult{Status: RehydrateError, Code: RehydrateCodeNoFilePath,
			Error: "episode has no file path"}
	}
	dest, ok := r.resolve(*ep.FilePath)
	if !ok {
		return RehydrateResult{Status: RehydrateError, Code: RehydrateCodeCopyFailed,
			Error: "file path escapes media root"}
	}

	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		return RehydrateResult{Status: RehydrateOK}
	}

	if ep.ArchivePath == nil || *ep.ArchivePath == "" {
		return RehydrateResult{Status: RehydrateError, Code: RehydrateCodeNoArchivePath,
			Error: "working file absent and no archive path recorded"}
	}

	if err := r.archive.Fetch(ctx, *ep.ArchivePath, dest); err != nil {
		code := RehydrateCodeCopyFailed
		if errors.Is(err, ErrArchiveMissing) {
			code = RehydrateCodeArchiveMissing
		}
		log.Error().Err(err).Int("episode_id", ep.ID).Str("archive_path", *ep.ArchivePath).
			Msg("rehydration failed")
		return RehydrateResult{Status: RehydrateError, Code: code, Error: err.Error()}
	}

	info, err := os.Stat(dest)
	if err != nil || info.Size() == 0 {
		return RehydrateResult{Status: RehydrateError, Code: RehydrateCodeVerifyFailed,
			Error: "restored copy is missing or empty"}
	}

	if r.store != nil {
		if err := r.store.SetEpisodeFileExists(ep.ID, true); err != nil {
			log.Error().Err(err).Int("episode_id", ep.ID).Msg("updating file_exists flag failed")
		}
	}
	log.Info().Int("episode_id", ep.ID).Str("dest", dest).Msg("working copy rehydrated")
	return RehydrateResult{Status: RehydrateCopied}
}

func (r *Rehydrator) resolve(rel string) (string, bool) {
	root := filepath.Clean(r.mediaRoot)
	full := filepath.Clean(filepath.Join(root, rel))
	if full == root || !strings.HasPrefix(full, root+string(os.PathSeparator)) {
		return "", false
	}
	return full, true
}
