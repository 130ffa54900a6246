// Package config loads the engine-level environment configuration:
// where the conf/ tree lives, where persisted counters and the event
// bus data directory go, and which port the admin API listens on.
package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config is the engine-level configuration loaded once at startup.
type Config struct {
	ConfRoot       string
	StatsPath      string
	DataDir        string
	AdminPort      int
	EventBusEnable bool
	LogLevel       string
}

// Load reads LOCALBRIDGE_* environment variables (via .env if present),
// applying a default for each one the caller's environment omits.
func Load() (*Config, error) {
	_ = godotenv.Load()

	confRoot := getEnv("LOCALBRIDGE_CONF_ROOT", "conf")

	cfg := &Config{
		ConfRoot:       confRoot,
		StatsPath:      getEnv("LOCALBRIDGE_STATS_PATH", filepath.Join(confRoot, "channel-stats.json")),
		DataDir:        getEnv("LOCALBRIDGE_DATA_DIR", filepath.Join(confRoot, "eventbus-store")),
		AdminPort:      getEnvAsInt("LOCALBRIDGE_ADMIN_PORT", 8088),
		EventBusEnable: getEnvAsBool("LOCALBRIDGE_EVENT_BUS_ENABLE", true),
		LogLevel:       getEnv("LOCALBRIDGE_LOG_LEVEL", "info"),
	}

	setupLogger(cfg.LogLevel)

	slog.Info("config loaded",
		"confRoot", cfg.ConfRoot,
		"statsPath", cfg.StatsPath,
		"dataDir", cfg.DataDir,
		"adminPort", cfg.AdminPort,
		"eventBusEnable", cfg.EventBusEnable,
	)

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	switch os.Getenv(key) {
	case "":
		return defaultValue
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return defaultValue
	}
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
}
