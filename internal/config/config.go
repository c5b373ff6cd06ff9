package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values.
type Config struct {
	// Backend
	APIURL        string
	ClientTimeout time.Duration

	// Local state
	StateFile     string
	SessionDir    string
	CacheDebounce time.Duration

	// Logging
	LogFile  string
	LogLevel slog.Level

	// Pods
	PodAllowEmpty bool

	// Rendering
	MarkdownStyle string
}

// LoadDotEnv loads variables from a .env file into the process environment.
// Variables already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() Config {
	home := stateDir()
	return Config{
		// Backend
		APIURL:        getEnv("MCPCHAT_API_URL", "http://localhost:8000/api"),
		ClientTimeout: getDuration("MCPCHAT_CLIENT_TIMEOUT", 0),

		// Local state
		StateFile:     getEnv("MCPCHAT_STATE_FILE", filepath.Join(home, "state.yaml")),
		SessionDir:    getEnv("MCPCHAT_SESSION_DIR", os.TempDir()),
		CacheDebounce: getDuration("MCPCHAT_CACHE_DEBOUNCE", 300*time.Millisecond),

		// Logging
		LogFile:  getEnv("MCPCHAT_LOG_FILE", filepath.Join(home, "mcpchat.log")),
		LogLevel: parseLogLevel(getEnv("MCPCHAT_LOG_LEVEL", "INFO")),

		PodAllowEmpty: getBool("MCPCHAT_POD_ALLOW_EMPTY", true),
		MarkdownStyle: getEnv("MCPCHAT_MARKDOWN_STYLE", "auto"),
	}
}

// SessionFile returns the session-scoped store path for the current terminal
// session. It is keyed by the parent process, so every command run from the
// same shell shares it and a new shell starts fresh.
func (c Config) SessionFile() string {
	return filepath.Join(c.SessionDir, fmt.Sprintf("mcpchat-session-%d.yaml", os.Getppid()))
}

func stateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "mcpchat")
	}
	return filepath.Join(home, ".mcpchat")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		slog.Warn("invalid duration, using default", "key", key, "value", val)
		return defaultVal
	}
	return d
}

func getBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		slog.Warn("invalid boolean, using default", "key", key, "value", val)
		return defaultVal
	}
	return b
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
