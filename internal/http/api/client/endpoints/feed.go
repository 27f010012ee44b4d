package endpoints

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Northcast-Media/airsync/internal/feed"
	"github.com/Northcast-Media/airsync/internal/http/api"
)

type FeedController struct {
	builder *feed.Builder
}

func NewFeedController(builder *feed.Builder) *FeedController {
	return &FeedController{builder: builder}
}

// FeedModule mounts the playout-client feed surface.
func FeedModule(builder *feed.Builder, limiter gin.HandlerFunc) api.Module {
	ctl := NewFeedController(builder)
	return api.ModuleFunc(func(c *api.Controller) {
		if limiter != nil {
			c.Group.GET("/feed", limiter, ctl.getFeed)
		} else {
			c.Group.GET("/feed", ctl.getFeed)
		}
	})
}

// GET /api/playout/feed?lookahead_min=&max_items=
//
// The schedule version doubles as the ETag so an unchanged feed costs a
// client one conditional request.
func (f *FeedController) getFeed(ctx *gin.Context) {
	lookahead, _ := strconv.Atoi(ctx.Query("lookahead_min"))
	maxItems, _ := strconv.Atoi(ctx.Query("max_items"))

	result, err := f.builder.Build(ctx.Request.Context(), lookahead, maxItems)
	if err != nil {
		log.Error().Err(err).Msg("feed build failed with no fallback")
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": "feed unavailable"})
		return
	}

	etag := fmt.Sprintf("%q", strconv.FormatInt(result.Feed.Version, 10))
	if match := ctx.GetHeader("If-None-Match"); match != "" && match == etag && !result.FallbackApplied {
		ctx.Status(http.StatusNotModified)
		return
	}
	ctx.Header("ETag", etag)
	ctx.JSON(http.StatusOK, result)
}
