package endpoints

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Northcast-Media/airsync/internal/feed"
	"github.com/Northcast-Media/airsync/internal/http/api"
	"github.com/Northcast-Media/airsync/internal/http/api/admin/packets"
	"github.com/Northcast-Media/airsync/internal/model"
	"github.com/Northcast-Media/airsync/internal/notify"
	syncengine "github.com/Northcast-Media/airsync/internal/sync"
)

const modeEnvelope = "envelope"

type SyncController struct {
	engine   *syncengine.Engine
	builder  *feed.Builder
	notifier *notify.Publisher
}

func NewSyncController(engine *syncengine.Engine, builder *feed.Builder, notifier *notify.Publisher) *SyncController {
	return &SyncController{engine: engine, builder: builder, notifier: notifier}
}

// SyncModule mounts the reconciliation surface. applyLimiter guards the
// apply endpoint per user and per client address.
func SyncModule(engine *syncengine.Engine, builder *feed.Builder, notifier *notify.Publisher, applyLimiter gin.HandlerFunc) api.Module {
	ctl := NewSyncController(engine, builder, notifier)
	return api.ModuleFunc(func(c *api.Controller) {
		c.POST("/sync/diff", ctl.diff)
		if applyLimiter != nil {
			c.Group.POST("/sync/apply", applyLimiter, api.ResolveEndpointWithAuth(ctl.apply))
		} else {
			c.POST("/sync/apply", ctl.apply)
		}
		c.POST("/sync/rollback", ctl.rollback)
		c.POST("/sync/plan", ctl.planOne)
		c.DELETE("/sync/plan", ctl.unplanOne)
		c.GET("/sync/snapshots", ctl.listSnapshots)
	})
}

// POST /api/admin/sync/diff
func (s *SyncController) diff(ctx *gin.Context, user *model.User) (any, *api.APIError) {
	var request packets.DiffRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		return nil, &api.APIError{Code: http.StatusBadRequest, Message: err.Error()}
	}
	if request.Mode != modeEnvelope {
		return nil, &api.APIError{Code: http.StatusBadRequest, Message: "unsupported mode"}
	}

	plan, err := s.engine.Plan(ctx.Request.Context(), s.engine.Now())
	if err != nil {
		log.Error().Err(err).Int("user_id", user.ID).Msg("diff failed")
		return nil, &api.APIError{Code: http.StatusBadGateway, Message: "could not compute plan"}
	}
	return plan, nil
}

// POST /api/admin/sync/apply
func (s *SyncController) apply(ctx *gin.Context, user *model.User) (any, *api.APIError) {
	var request packets.ApplyRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		return nil, &api.APIError{Code: http.StatusBadRequest, Message: err.Error()}
	}
	if request.Mode != modeEnvelope {
		return nil, &api.APIError{Code: http.StatusBadRequest, Message: "unsupported mode"}
	}

	var before int64
	if latest := s.builder.History().Latest(); latest != nil {
		before = latest.Version
	}

	_, report, err := s.engine.Reconcile(ctx.Request.Context(), syncengine.ApplyOptions{DryRun: request.DryRun})
	if err != nil {
		log.Error().Err(err).Int("user_id", user.ID).Msg("apply failed")
		return nil, &api.APIError{Code: http.StatusBadGateway, Message: "apply failed"}
	}

	transition := packets.FeedTransition{From: before, To: before}
	if !request.DryRun {
		built, err := s.builder.Build(ctx.Request.Context(), 0, 0)
		if err != nil {
			log.Error().Err(err).Msg("feed rebuild after apply failed")
		} else {
			transition.To = built.Feed.Version
			if transition.To != transition.From {
				s.notifier.PublishFeedVersion(built.Feed.Version, built.Status)
			}
		}
	}

	return packets.ApplyResponse{Report: report, Feed: transition}, nil
}

// POST /api/admin/sync/rollback?snapshot_id=…
func (s *SyncController) rollback(ctx *gin.Context, user *model.User) (any, *api.APIError) {
	snapshotID := ctx.Query("snapshot_id")
	if snapshotID == "" {
		return nil, &api.APIError{Code: http.StatusBadRequest, Message: "snapshot_id required"}
	}

	report, err := s.engine.Rollback(ctx.Request.Context(), snapshotID)
	if err != nil {
		log.Error().Err(err).Int("user_id", user.ID).Str("snapshot_id", snapshotID).Msg("rollback failed")
		return nil, &api.APIError{Code: http.StatusNotFound, Message: err.Error()}
	}
	return report, nil
}

// POST /api/admin/sync/plan
func (s *SyncController) planOne(ctx *gin.Context, user *model.User) (any, *api.APIError) {
	var request packets.PlanOneRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		return nil, &api.APIError{Code: http.StatusBadRequest, Message: err.Error()}
	}

	result := s.engine.PlanOne(ctx.Request.Context(), request.EpisodeID, request.ShowID, request.Start, request.End)
	if !result.Success {
		return nil, &api.APIError{Code: statusForCode(result.Code), Message: result.Code + ": " + result.Error}
	}
	return result, nil
}

// DELETE /api/admin/sync/plan
func (s *SyncController) unplanOne(ctx *gin.Context, user *model.User) (any, *api.APIError) {
	var request packets.UnplanOneRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		return nil, &api.APIError{Code: http.StatusBadRequest, Message: err.Error()}
	}

	result := s.engine.UnplanOne(ctx.Request.Context(), request.EpisodeID, request.Start)
	if !result.Success {
		return nil, &api.APIError{Code: statusForCode(result.Code), Message: result.Code + ": " + result.Error}
	}
	return result, nil
}

// GET /api/admin/sync/snapshots
func (s *SyncController) listSnapshots(ctx *gin.Context, user *model.User) (any, *api.APIError) {
	snaps := s.engine.Snapshots().List()
	out := make([]packets.SnapshotResponse, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, packets.SnapshotResponse{
			ID:        snap.ID,
			CreatedAt: snap.CreatedAt.Format(time.RFC3339),
			ExpiresAt: snap.ExpiresAt.Format(time.RFC3339),
			Window:    snap.Window.Label,
			Playouts:  len(snap.Playouts),
		})
	}
	return out, nil
}

func statusForCode(code string) int {
	switch code {
	case syncengine.CodeInvalidTimeRange, syncengine.CodeNotReady, syncengine.CodeInvalidTrackID:
		return http.StatusBadRequest
	case syncengine.CodeItemNotFound, syncengine.CodeShowNotFound:
		return http.StatusNotFound
	case syncengine.CodeShowMismatch:
		return http.StatusForbidden
	case syncengine.CodeInstanceConflict:
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}
