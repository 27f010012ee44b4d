package endpoints

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/Northcast-Media/airsync/internal/feed"
	"github.com/Northcast-Media/airsync/internal/http/api"
	"github.com/Northcast-Media/airsync/internal/model"
)

var feedNow = time.Date(2025, 6, 18, 12, 0, 0, 0, time.UTC)

type feedSource struct {
	episodes []model.Episode
	shows    map[int]model.Show
}

func (s *feedSource) ListEpisodesUpcoming(now, cutoff time.Time, limit int) ([]model.Episode, error) {
	return s.episodes, nil
}

func (s *feedSource) GetShowByID(id int) (model.Show, error) {
	sh, ok := s.shows[id]
	if !ok {
		return model.Show{}, fmt.Errorf("show %d: no rows", id)
	}
	return sh, nil
}

type staticProbe struct{}

func (staticProbe) Probe(_ context.Context, _ string) (feed.Metadata, error) {
	return feed.Metadata{Codec: "mp3", SampleRate: 44100, Container: "mp3", DurationSec: 3600}, nil
}

func feedRouter(t *testing.T) *gin.Engine {
	t.Helper()
	root := t.TempDir()
	rel := "shows/1/ep10.mp3"
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("audio"), 0o644))
	mtime := feedNow.Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, mtime, mtime))

	track := "501"
	start := feedNow.Add(time.Hour)
	end := feedNow.Add(2 * time.Hour)
	src := &feedSource{
		shows: map[int]model.Show{1: {ID: 1, Name: "Morning Drive"}},
		episodes: []model.Episode{{
			ID: 10, ShowID: 1, Title: "Episode 10",
			TrackID: &track, FilePath: &rel,
			ScheduledStart: &start, ScheduledEnd: &end,
		}},
	}

	builder, err := feed.NewBuilder(src, staticProbe{}, feed.Config{
		MediaRoot:        root,
		LookaheadMin:     15,
		LookaheadDefault: 180,
		LookaheadMax:     720,
		MaxItems:         200,
		MtimeGrace:       30 * time.Second,
		StatRetries:      1,
	}, func() time.Time { return feedNow })
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	api.MountGroup(r, api.GroupConfig{Prefix: "/api/playout"}, FeedModule(builder, nil))
	return r
}

func getFeed(r *gin.Engine, ifNoneMatch string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/playout/feed", nil)
	if ifNoneMatch != "" {
		req.Header.Set("If-None-Match", ifNoneMatch)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestGetFeedReturnsVersionedSnapshot(t *testing.T) {
	r := feedRouter(t)

	w := getFeed(r, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, w.Header().Get("ETag"))

	var result feed.BuildResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.Equal(t, feed.StatusOK, result.Status)
	require.Len(t, result.Feed.Items, 1)
	require.Equal(t, int64(501), result.Feed.Items[0].TrackID)
	require.Positive(t, result.Feed.Version)
}

func TestGetFeedHonorsIfNoneMatch(t *testing.T) {
	r := feedRouter(t)

	first := getFeed(r, "")
	require.Equal(t, http.StatusOK, first.Code)
	etag := first.Header().Get("ETag")

	second := getFeed(r, etag)
	require.Equal(t, http.StatusNotModified, second.Code)
	require.Empty(t, second.Body.Bytes())

	// a stale tag still gets the full body
	third := getFeed(r, `"0"`)
	require.Equal(t, http.StatusOK, third.Code)
}
