package main

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/Northcast-Media/airsync/internal/db"
	"github.com/Northcast-Media/airsync/internal/feed"
	"github.com/Northcast-Media/airsync/internal/http/api"
	adminapi "github.com/Northcast-Media/airsync/internal/http/api/admin/endpoints"
	clientapi "github.com/Northcast-Media/airsync/internal/http/api/client/endpoints"
	"github.com/Northcast-Media/airsync/internal/http/middleware"
	"github.com/Northcast-Media/airsync/internal/notify"
	syncengine "github.com/Northcast-Media/airsync/internal/sync"
)

// RegisterRoutes sets up all application routes
func RegisterRoutes(
	r *gin.Engine,
	env Environment,
	store db.Store,
	engine *syncengine.Engine,
	builder *feed.Builder,
	notifier *notify.Publisher,
	counter middleware.Counter,
) {
	// CORS
	r.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool { return true },
		AllowMethods: []string{
			"GET",
			"POST",
			"PUT",
			"PATCH",
			"DELETE",
			"OPTIONS",
			"HEAD",
		},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Authorization",
			"Accept",
			"If-None-Match",
		},
		ExposeHeaders: []string{
			"Content-Length",
			"ETag",
		},
		AllowCredentials: false,
	}))

	applyLimiter := middleware.RateLimit(
		counter, env.ApplyRateLimit, env.ApplyRateWindow,
		middleware.UserAndAddrKeys("apply"),
	)
	feedLimiter := middleware.RateLimit(
		counter, env.FeedRateLimit, env.FeedRateWindow,
		middleware.UserAndAddrKeys("feed"),
	)

	api.MountGroup(r, api.GroupConfig{
		Prefix: "/api/admin",
		Auth:   false,
	},
		adminapi.AuthPublicModule(env.SecretKey, store),
	)

	api.MountGroup(r, api.GroupConfig{
		Prefix:    "/api/admin",
		Auth:      true,
		SecretKey: env.SecretKey,
		Store:     store,
	},
		adminapi.SyncModule(engine, builder, notifier, applyLimiter),
		adminapi.AuthSessionModule(env.SecretKey, store),
	)

	api.MountGroup(r, api.GroupConfig{
		Prefix: "/api/playout",
	},
		clientapi.FeedModule(builder, feedLimiter),
	)
}
