package main

import (
	"log"
	"os"
	"strconv"
	"time"
)

type Environment struct {
	Environment    string
	ServerAddress  string
	SecretKey      string
	DatabaseURL    string
	MigrationsPath string

	RedisAddress  string
	RedisUsername string
	RedisPassword string

	MQTTBrokerURL string

	EngineBaseURL string
	EngineAPIKey  string
	EngineTimeout time.Duration

	StationTimezone    string
	AllowShowNameMatch bool
	SnapshotTTL        time.Duration

	MediaRoot        string
	LookaheadMin     int
	LookaheadDefault int
	LookaheadMax     int
	MaxFeedItems     int
	MtimeGrace       time.Duration
	StrictMissing    bool
	FallbackEnabled  bool
	ProbeTimeout     time.Duration

	LockDir        string
	LockStaleAfter time.Duration

	UseS3Archive     bool
	ArchiveRoot      string
	ArchiveEndpoint  string
	ArchiveRegion    string
	ArchiveBucket    string
	ArchiveAccessKey string
	ArchiveSecretKey string

	SweepLogDir string

	ApplyRateLimit  int64
	ApplyRateWindow time.Duration
	FeedRateLimit   int64
	FeedRateWindow  time.Duration
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// LoadEnvironment reads and validates env vars
func LoadEnvironment() Environment {
	env := Environment{
		Environment:    os.Getenv("APP_ENV"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		SecretKey:      os.Getenv("JWT_SECRET"),
		ServerAddress:  envString("SERVER_ADDRESS", ":8080"),
		MigrationsPath: envString("MIGRATIONS_PATH", "./migrations"),

		RedisAddress:  os.Getenv("REDIS_ADDRESS"),
		RedisUsername: os.Getenv("REDIS_USERNAME"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		MQTTBrokerURL: os.Getenv("MQTT_BROKER_URL"),

		EngineBaseURL: os.Getenv("ENGINE_BASE_URL"),
		EngineAPIKey:  os.Getenv("ENGINE_API_KEY"),
		EngineTimeout: envDuration("ENGINE_TIMEOUT", 15*time.Second),

		StationTimezone:    envString("STATION_TIMEZONE", "Europe/Berlin"),
		AllowShowNameMatch: os.Getenv("ALLOW_SHOW_NAME_MATCH") == "true",
		SnapshotTTL:        envDuration("SNAPSHOT_TTL", 24*time.Hour),

		MediaRoot:        os.Getenv("MEDIA_ROOT"),
		LookaheadMin:     envInt("FEED_LOOKAHEAD_MIN", 15),
		LookaheadDefault: envInt("FEED_LOOKAHEAD_DEFAULT", 180),
		LookaheadMax:     envInt("FEED_LOOKAHEAD_MAX", 720),
		MaxFeedItems:     envInt("FEED_MAX_ITEMS", 200),
		MtimeGrace:       envDuration("FEED_MTIME_GRACE", 30*time.Second),
		StrictMissing:    os.Getenv("FEED_STRICT_MISSING") == "true",
		FallbackEnabled:  os.Getenv("FEED_FALLBACK_DISABLED") != "true",
		ProbeTimeout:     envDuration("PROBE_TIMEOUT", 10*time.Second),

		LockDir:        envString("LOCK_DIR", os.TempDir()),
		LockStaleAfter: envDuration("LOCK_STALE_AFTER", 30*time.Minute),

		UseS3Archive:     os.Getenv("USE_S3_ARCHIVE") == "true",
		ArchiveRoot:      os.Getenv("ARCHIVE_ROOT"),
		ArchiveEndpoint:  os.Getenv("ARCHIVE_ENDPOINT"),
		ArchiveRegion:    os.Getenv("ARCHIVE_REGION"),
		ArchiveBucket:    os.Getenv("ARCHIVE_BUCKET"),
		ArchiveAccessKey: os.Getenv("ARCHIVE_ACCESS_KEY"),
		ArchiveSecretKey: os.Getenv("ARCHIVE_SECRET_KEY"),

		SweepLogDir: envString("SWEEP_LOG_DIR", "./logs"),

		ApplyRateLimit:  int64(envInt("APPLY_RATE_LIMIT", 4)),
		ApplyRateWindow: envDuration("APPLY_RATE_WINDOW", 10*time.Minute),
		FeedRateLimit:   int64(envInt("FEED_RATE_LIMIT", 60)),
		FeedRateWindow:  envDuration("FEED_RATE_WINDOW", time.Minute),
	}

	// Basic validation
	if env.DatabaseURL == "" || env.SecretKey == "" || env.EngineBaseURL == "" || env.MediaRoot == "" {
		log.Fatal("Missing required environment variables")
	}

	return env
}
