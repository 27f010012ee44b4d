package main

import (
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Northcast-Media/airsync/internal/db"
	"github.com/Northcast-Media/airsync/internal/feed"
	"github.com/Northcast-Media/airsync/internal/http/middleware"
	"github.com/Northcast-Media/airsync/internal/media"
	"github.com/Northcast-Media/airsync/internal/notify"
	"github.com/Northcast-Media/airsync/internal/playout"
	redisclient "github.com/Northcast-Media/airsync/internal/redis"
	"github.com/Northcast-Media/airsync/internal/sweep"
	syncengine "github.com/Northcast-Media/airsync/internal/sync"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()
	env := LoadEnvironment()

	if env.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	if err := db.Init(env.DatabaseURL); err != nil {
		log.Fatal().Err(err).Msg("db init failed")
	}
	if err := db.RunMigrations(env.MigrationsPath); err != nil {
		log.Fatal().Err(err).Msg("db migrate failed")
	}
	store := db.NewStore()

	loc, err := time.LoadLocation(env.StationTimezone)
	if err != nil {
		log.Fatal().Err(err).Str("timezone", env.StationTimezone).Msg("invalid station timezone")
	}

	engineClient := playout.NewClient(env.EngineBaseURL, env.EngineAPIKey, env.EngineTimeout)
	snapshots := syncengine.NewSnapshotStore(env.SnapshotTTL, nil)
	engine := syncengine.NewEngine(store, engineClient, snapshots, syncengine.Options{
		Timezone:           loc,
		AllowShowNameMatch: env.AllowShowNameMatch,
	})

	builder, err := feed.NewBuilder(store, feed.NewFFProbe(env.ProbeTimeout), feed.Config{
		MediaRoot:        env.MediaRoot,
		LookaheadMin:     env.LookaheadMin,
		LookaheadDefault: env.LookaheadDefault,
		LookaheadMax:     env.LookaheadMax,
		MaxItems:         env.MaxFeedItems,
		MtimeGrace:       env.MtimeGrace,
		Strict:           env.StrictMissing,
		FallbackEnabled:  env.FallbackEnabled,
		StatRetryDelay:   500 * time.Millisecond,
	}, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("feed builder init failed")
	}

	var notifier *notify.Publisher
	if env.MQTTBrokerURL != "" {
		notifier, err = notify.NewPublisher(env.MQTTBrokerURL, "airsync-server")
		if err != nil {
			log.Error().Err(err).Msg("MQTT unavailable, feed notifications disabled")
			notifier = nil
		}
	}

	var counter middleware.Counter
	if env.RedisAddress != "" {
		redisclient.InitRedis(env.RedisAddress, env.RedisUsername, env.RedisPassword)
		counter = middleware.CounterFunc(redisclient.CountInWindow)
	} else {
		log.Warn().Msg("no redis configured, rate limits are per-process only")
		counter = middleware.NewMemoryCounter()
	}

	locks := media.NewLockManager(env.LockDir, env.LockStaleAfter, nil)
	archive := buildArchive(env)
	rehydrator := media.NewRehydrator(env.MediaRoot, archive, store)

	sweeper := sweep.NewRunner(engine, builder, store, locks, rehydrator, notifier,
		env.SweepLogDir, sweep.DefaultSchedules())
	if err := sweeper.Start(); err != nil {
		log.Fatal().Err(err).Msg("sweep scheduler failed")
	}
	defer sweeper.Stop()

	if env.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	RegisterRoutes(r, env, store, engine, builder, notifier, counter)

	log.Info().Str("address", env.ServerAddress).Msg("listening")
	if err := r.Run(env.ServerAddress); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

// buildArchive selects the configured archive backend
func buildArchive(env Environment) media.Archive {
	if env.UseS3Archive {
		s3Archive, err := media.NewS3Archive(
			env.ArchiveEndpoint,
			env.ArchiveRegion,
			env.ArchiveBucket,
			env.ArchiveAccessKey,
			env.ArchiveSecretKey,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize S3 archive")
		}
		log.Info().Str("bucket", env.ArchiveBucket).Msg("using S3 archive storage")
		return s3Archive
	}
	if env.ArchiveRoot == "" {
		log.Warn().Msg("no archive configured, rehydration will report missing sources")
	}
	log.Info().Str("root", env.ArchiveRoot).Msg("using local archive storage")
	return media.NewLocalArchive(env.ArchiveRoot)
}
