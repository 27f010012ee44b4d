package sync

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Northcast-Media/airsync/internal/model"
	"github.com/Northcast-Media/airsync/internal/playout"
)

// fakeStore is an in-memory db.Store for engine tests.
type fakeStore struct {
	episodes    map[int]*model.Episode
	shows       map[int]*model.Show
	airingStart *time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		episodes: make(map[int]*model.Episode),
		shows:    make(map[int]*model.Show),
	}
}

func (s *fakeStore) CreateUser(string, string, *string) (int, error) { return 0, nil }
func (s *fakeStore) GetUserByEmail(string) (*model.User, error)     { return nil, fmt.Errorf("no rows") }
func (s *fakeStore) GetUserByID(int) (*model.User, error)           { return nil, fmt.Errorf("no rows") }

func (s *fakeStore) GetShowByID(id int) (model.Show, error) {
	sh, ok := s.shows[id]
	if !ok {
		return model.Show{}, fmt.Errorf("show %d: no rows", id)
	}
	return *sh, nil
}

func (s *fakeStore) SetShowExternalID(showID, externalID int) error {
	sh, ok := s.shows[showID]
	if !ok {
		return fmt.Errorf("show %d: no rows", showID)
	}
	sh.ExternalShowID = &externalID
	return nil
}

func (s *fakeStore) GetEpisodeByID(id int) (model.Episode, error) {
	ep, ok := s.episodes[id]
	if !ok {
		return model.Episode{}, fmt.Errorf("episode %d: no rows", id)
	}
	return *ep, nil
}

func (s *fakeStore) ListEpisodesOverlapping(from, to time.Time) ([]model.Episode, error) {
	var out []model.Episode
	for _, ep := range s.episodes {
		if ep.ScheduledStart == nil || ep.ScheduledEnd == nil {
			continue
		}
		if ep.ScheduledEnd.After(from) && ep.ScheduledStart.Before(to) {
			out = append(out, *ep)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledStart.Equal(*out[j].ScheduledStart) {
			return out[i].ScheduledStart.Before(*out[j].ScheduledStart)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *fakeStore) ListEpisodesUpcoming(now, cutoff time.Time, limit int) ([]model.Episode, error) {
	eps, _ := s.ListEpisodesOverlapping(now, cutoff)
	if len(eps) > limit {
		eps = eps[:limit]
	}
	return eps, nil
}

func (s *fakeStore) CurrentAiringStart(time.Time) (*time.Time, error) {
	return s.airingStart, nil
}

func (s *fakeStore) SaveEpisodeScheduling(id int, start, end time.Time, instanceID, playoutID int) error {
	ep, ok := s.episodes[id]
	if !ok {
		return fmt.Errorf("episode %d: no rows", id)
	}
	ep.ScheduledStart, ep.ScheduledEnd = &start, &end
	ep.InstanceID, ep.PlayoutID = &instanceID, &playoutID
	ep.Status = model.EpisodeStatusScheduled
	return nil
}

func (s *fakeStore) ClearEpisodeScheduling(id int) error {
	ep, ok := s.episodes[id]
	if !ok {
		return fmt.Errorf("episode %d: no rows", id)
	}
	ep.ScheduledStart, ep.ScheduledEnd = nil, nil
	ep.InstanceID, ep.PlayoutID = nil, nil
	ep.Status = model.EpisodeStatusDraft
	return nil
}

func (s *fakeStore) SetEpisodeFileExists(id int, exists bool) error {
	if ep, ok := s.episodes[id]; ok {
		ep.FileExists = exists
	}
	return nil
}

// fakeEngineAPI is an in-memory playout engine.
type fakeEngineAPI struct {
	shows     map[int]*playout.Show
	instances map[int]*playout.Instance
	playouts  map[int]*playout.Playout
	nextID    int

	createShowCalls     int
	createInstanceCalls int
	createPlayoutCalls  int
	deletePlayoutCalls  int

	failCreatePlayout bool
}

func newFakeEngineAPI() *fakeEngineAPI {
	return &fakeEngineAPI{
		shows:     make(map[int]*playout.Show),
		instances: make(map[int]*playout.Instance),
		playouts:  make(map[int]*playout.Playout),
		nextID:    100,
	}
}

func (a *fakeEngineAPI) id() int {
	a.nextID++
	return a.nextID
}

func notFound() error {
	return &playout.APIError{Kind: playout.KindNotFound, Status: 404}
}

func (a *fakeEngineAPI) GetShow(_ context.Context, id int) (*playout.Show, error) {
	if sh, ok := a.shows[id]; ok {
		out := *sh
		return &out, nil
	}
	return nil, notFound()
}

func (a *fakeEngineAPI) FindShowByName(_ context.Context, name string) (*playout.Show, error) {
	for _, sh := range a.shows {
		if sh.Name == name {
			out := *sh
			return &out, nil
		}
	}
	return nil, nil
}

func (a *fakeEngineAPI) CreateShow(_ context.Context, name string) (*playout.Show, error) {
	a.createShowCalls++
	sh := &playout.Show{ID: a.id(), Name: name}
	a.shows[sh.ID] = sh
	out := *sh
	return &out, nil
}

func (a *fakeEngineAPI) GetInstance(_ context.Context, id int) (*playout.Instance, error) {
	if inst, ok := a.instances[id]; ok {
		out := *inst
		return &out, nil
	}
	return nil, notFound()
}

func (a *fakeEngineAPI) ListInstances(_ context.Context, from, to time.Time) ([]playout.Instance, error) {
	var out []playout.Instance
	for _, inst := range a.instances {
		if inst.End.After(from) && inst.Start.Before(to) {
			out = append(out, *inst)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (a *fakeEngineAPI) CreateInstance(_ context.Context, showID int, start, end time.Time) (*playout.Instance, error) {
	a.createInstanceCalls++
	inst := &playout.Instance{ID: a.id(), ShowID: showID, Start: start, End: end}
	a.instances[inst.ID] = inst
	out := *inst
	return &out, nil
}

func (a *fakeEngineAPI) UpdateInstanceTimes(_ context.Context, id int, start, end time.Time) (*playout.Instance, error) {
	inst, ok := a.instances[id]
	if !ok {
		return nil, notFound()
	}
	inst.Start, inst.End = start, end
	out := *inst
	return &out, nil
}

func (a *fakeEngineAPI) DeleteInstance(_ context.Context, id int) error {
	if _, ok := a.instances[id]; !ok {
		return notFound()
	}
	delete(a.instances, id)
	return nil
}

func (a *fakeEngineAPI) ListPlayouts(_ context.Context, from, to time.Time) ([]playout.Playout, error) {
	var out []playout.Playout
	for _, p := range a.playouts {
		if p.End.After(from) && p.Start.Before(to) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (a *fakeEngineAPI) ListInstancePlayouts(_ context.Context, instanceID int) ([]playout.Playout, error) {
	if _, ok := a.instances[instanceID]; !ok {
		return nil, notFound()
	}
	var out []playout.Playout
	for _, p := range a.playouts {
		if p.InstanceID == instanceID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (a *fakeEngineAPI) CreatePlayout(_ context.Context, instanceID int, trackID int64, start, end time.Time) (*playout.Playout, error) {
	a.createPlayoutCalls++
	if a.failCreatePlayout {
		return nil, &playout.APIError{Kind: playout.KindValidation, Status: 422, Body: "rejected"}
	}
	if _, ok := a.instances[instanceID]; !ok {
		return nil, notFound()
	}
	p := &playout.Playout{
		ID:         a.id(),
		InstanceID: instanceID,
		File:       playout.FileRefID(trackID),
		Start:      start,
		End:        end,
	}
	a.playouts[p.ID] = p
	out := *p
	return &out, nil
}

func (a *fakeEngineAPI) DeletePlayout(_ context.Context, id int) error {
	a.deletePlayoutCalls++
	if _, ok := a.playouts[id]; !ok {
		return notFound()
	}
	delete(a.playouts, id)
	return nil
}

// addPlayout seeds engine state directly.
func (a *fakeEngineAPI) addPlayout(instanceID int, track *int64, start, end time.Time) *playout.Playout {
	file := playout.FileRef{}
	if track != nil {
		file = playout.FileRefID(*track)
	}
	p := &playout.Playout{ID: a.id(), InstanceID: instanceID, File: file, Start: start, End: end}
	a.playouts[p.ID] = p
	return p
}

func (a *fakeEngineAPI) addInstance(showID int, start, end time.Time) *playout.Instance {
	inst := &playout.Instance{ID: a.id(), ShowID: showID, Start: start, End: end}
	a.instances[inst.ID] = inst
	return inst
}

// test helpers

func strPtr(s string) *string       { return &s }
func timePtr(t time.Time) *time.Time { return &t }
func intPtr(i int) *int             { return &i }
func int64Ptr(i int64) *int64       { return &i }

func testEngine(store *fakeStore, api *fakeEngineAPI, now time.Time) *Engine {
	return NewEngine(store, api, NewSnapshotStore(time.Hour, func() time.Time { return now }), Options{
		Timezone:   time.UTC,
		Now:        func() time.Time { return now },
		BatchDelay: func() {},
	})
}

// addEpisode seeds a plannable scheduled episode.
func (s *fakeStore) addEpisode(id, showID int, track string, start, end time.Time) *model.Episode {
	ep := &model.Episode{
		ID:             id,
		ShowID:         showID,
		Title:          fmt.Sprintf("Episode %d", id),
		Status:         model.EpisodeStatusDraft,
		TrackID:        strPtr(track),
		FilePath:       strPtr(fmt.Sprintf("shows/%d/episode_%d.mp3", showID, id)),
		ScheduledStart: timePtr(start),
		ScheduledEnd:   timePtr(end),
	}
	s.episodes[id] = ep
	return ep
}

func (s *fakeStore) addShow(id int, name string) *model.Show {
	sh := &model.Show{ID: id, Name: name}
	s.shows[id] = sh
	return sh
}
