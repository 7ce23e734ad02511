package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"bookworms/internal/logger"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort     string
	StoreDriver string // postgres | sqlite
	DatabaseURL string
	SQLitePath  string

	BotToken         string
	BotUsername      string
	BotEnabled       bool
	GroupID          int64
	AdminTelegramIDs []int64 // extra admins on top of the group's administrators
	WebAppURL        string  // admin panel, opened from the bot

	JWTSecret      string
	InitDataMaxAge time.Duration
	AllowedOrigin  string // CORS and websocket origin; empty allows any

	Timezone         string
	PublishHour      int // changes to today's task after this hour are announced right away
	TransportTimeout time.Duration
	JobTimeout       time.Duration
	Schedule         Schedule

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RateLimit     int
	RateWindow    time.Duration
	AuthRateLimit int

	LogLevel string
	LogJSON  bool
}

// Load reads configuration from the environment (and .env if present).
func Load() *Config {
	_ = godotenv.Load()

	driver := strings.ToLower(getString("STORE_DRIVER", "postgres"))
	dbURL := os.Getenv("DATABASE_URL")
	if driver == "postgres" && dbURL == "" {
		logger.Fatal("DATABASE_URL is not set")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		logger.Fatal("JWT_SECRET is not set")
	}

	botToken := os.Getenv("BOT_TOKEN")
	if botToken == "" {
		logger.Fatal("BOT_TOKEN is not set")
	}

	groupID, err := strconv.ParseInt(strings.TrimSpace(os.Getenv("GROUP_ID")), 10, 64)
	if err != nil || groupID == 0 {
		logger.Fatal("GROUP_ID is not set or invalid", "value", os.Getenv("GROUP_ID"))
	}

	tz := getString("TIMEZONE", "Asia/Tashkent")
	if _, err := time.LoadLocation(tz); err != nil {
		logger.Fatal("invalid TIMEZONE", "value", tz, "error", err)
	}

	// Today's task stays editable and completable until local midnight; only
	// earlier days are closed. No other policy is implemented.
	if v := os.Getenv("TODAY_EDITABLE"); v != "" && v != "true" {
		logger.Fatal("TODAY_EDITABLE only supports true", "value", v)
	}

	schedule, err := LoadSchedule(os.Getenv("SCHEDULE_FILE"), tz)
	if err != nil {
		logger.Fatal("invalid schedule", "error", err)
	}

	return &Config{
		AppPort:     getString("APP_PORT", "8080"),
		StoreDriver: driver,
		DatabaseURL: dbURL,
		SQLitePath:  getString("SQLITE_PATH", "bookworms.db"),

		BotToken:         botToken,
		BotUsername:      getString("BOT_USERNAME", "BookWormsBot"),
		BotEnabled:       getString("BOT_ENABLED", "true") == "true",
		GroupID:          groupID,
		AdminTelegramIDs: parseIDs(os.Getenv("ADMIN_TELEGRAM_IDS")),
		WebAppURL:        os.Getenv("WEBAPP_URL"),

		JWTSecret:      jwtSecret,
		InitDataMaxAge: getDuration("INIT_DATA_MAX_AGE", 24*time.Hour),
		AllowedOrigin:  os.Getenv("ALLOWED_ORIGIN"),

		Timezone:         tz,
		PublishHour:      getInt("PUBLISH_HOUR", 6),
		TransportTimeout: getDuration("TRANSPORT_TIMEOUT", 10*time.Second),
		JobTimeout:       getDuration("JOB_TIMEOUT", 10*time.Minute),
		Schedule:         schedule,

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getInt("REDIS_DB", 0),
		RateLimit:     getInt("RATE_LIMIT", 60),
		RateWindow:    getDuration("RATE_WINDOW", time.Minute),
		AuthRateLimit: getInt("AUTH_RATE_LIMIT", 5),

		LogLevel: getString("LOG_LEVEL", "info"),
		LogJSON:  os.Getenv("LOG_JSON") == "true",
	}
}

// comma separated
func parseIDs(s string) []int64 {
	var ids []int64
	for _, idStr := range strings.Split(s, ",") {
		idStr = strings.TrimSpace(idStr)
		if id, err := strconv.ParseInt(idStr, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

func getString(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}
