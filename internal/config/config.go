package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration values.
type Config struct {
	// Backend
	ServerURL     string
	ClientTimeout time.Duration
	TopK          int

	// Client-side state
	StateDir string
	TabScope string

	// Logging
	LogFile  string
	LogLevel slog.Level

	// Session reconciliation
	TitleMaxLen int
	IDFields    []string
	TitleFields []string
}

// DefaultIDFields is the priority order used to find the server-assigned
// chat id in save/chat responses.
var DefaultIDFields = []string{
	"meta.chat_id",
	"meta.id",
	"chat_id",
	"id",
	"data.chat_id",
	"data.id",
	"session_id",
	"sessionId",
}

// DefaultTitleFields is the priority order used to find the chat title.
var DefaultTitleFields = []string{
	"meta.title",
	"title",
	"data.title",
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		ServerURL:     strings.TrimRight(getEnv("RAGCHAT_SERVER_URL", "http://localhost:8000"), "/"),
		ClientTimeout: parseDuration(getEnv("RAGCHAT_CLIENT_TIMEOUT", "2m"), 2*time.Minute),
		TopK:          parseInt(getEnv("RAGCHAT_TOP_K", "5"), 5),

		StateDir: getEnv("RAGCHAT_STATE_DIR", defaultStateDir()),
		TabScope: getEnv("RAGCHAT_TAB", strconv.Itoa(os.Getppid())),

		LogFile:  getEnv("RAGCHAT_LOG_FILE", "/tmp/ragchat.log"),
		LogLevel: parseLogLevel(getEnv("RAGCHAT_LOG_LEVEL", "INFO")),

		TitleMaxLen: parseInt(getEnv("RAGCHAT_TITLE_MAX", "20"), 20),
		IDFields:    parseList(os.Getenv("RAGCHAT_ID_FIELDS"), DefaultIDFields),
		TitleFields: parseList(os.Getenv("RAGCHAT_TITLE_FIELDS"), DefaultTitleFields),
	}
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ragchat"
	}
	return filepath.Join(home, ".ragchat")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
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

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// parseList splits a comma-separated env value. Empty input keeps the defaults.
func parseList(s string, defaults []string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), defaults...)
	}
	return out
}
