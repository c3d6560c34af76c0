package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	SQLitePath   string        // Remote document database
	StateDir     string        // Local snapshot directory
	Identity     string        // Identity the CLI signs in as
	PollInterval time.Duration // Live feed polling interval
	WSAddr       string        // Listen address for `serve`
	WSURL        string        // When set, live feeds go through this WebSocket endpoint
	LogLevel     string
}

func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using defaults/environment variables")
	}

	return Config{
		SQLitePath:   getenv("HEALTHSYNC_SQLITE_PATH", "./data/remote.db"),
		StateDir:     getenv("HEALTHSYNC_STATE_DIR", "./data/state"),
		Identity:     getenv("HEALTHSYNC_IDENTITY", ""),
		PollInterval: getenvDuration("HEALTHSYNC_POLL_INTERVAL", 2*time.Second),
		WSAddr:       getenv("HEALTHSYNC_WS_ADDR", ":8089"),
		WSURL:        getenv("HEALTHSYNC_WS_URL", ""),
		LogLevel:     getenv("HEALTHSYNC_LOG_LEVEL", "info"),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getenvDuration accepts Go durations ("1500ms") or plain seconds ("3").
func getenvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if secs := getenvInt(key, -1); secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return fallback
}
