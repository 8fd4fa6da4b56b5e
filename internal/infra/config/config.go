package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	DatabaseURL string
	StoreDriver string // postgres | memory
	HTTPAddr    string
	LogLevel    string
	Environment string
	SentryDSN   string

	TelegramToken      string
	OperatorTelegramID int64

	DigestCron          string // evaluated in the regional civil zone
	DigestIgnoreSharing bool
	TrackingStartHour   int
	TrackingEndHour     int
	SubmissionWindow    time.Duration

	RestartMaxRetries     int
	RestartBackoff        time.Duration
	CredentialDeleteDelay time.Duration
	PictureFetchTimeout   time.Duration
	GroupNameFilters      []string
	RestoreSessions       bool
	// SessionStorePath is the SQLite file holding linked-device credentials when StoreDriver is memory.
	SessionStorePath string
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		StoreDriver:   strings.ToLower(getenv("STORE_DRIVER", "postgres")),
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		LogLevel:      strings.ToLower(getenv("LOG_LEVEL", "info")),
		Environment:   strings.ToLower(getenv("ENVIRONMENT", "development")),
		SentryDSN:     os.Getenv("SENTRY_DSN"),
		TelegramToken: os.Getenv("TELEGRAM_TOKEN"),
		DigestCron:    getenv("DIGEST_CRON", "0 22 * * *"),

		SessionStorePath: getenv("SESSION_STORE_PATH", "sessions.db"),
	}

	var err error
	if cfg.OperatorTelegramID, err = int64Env("OPERATOR_TELEGRAM_ID", 0); err != nil {
		return nil, err
	}
	if cfg.DigestIgnoreSharing, err = boolEnv("DIGEST_IGNORE_SHARING", false); err != nil {
		return nil, err
	}
	if cfg.RestoreSessions, err = boolEnv("RESTORE_SESSIONS", true); err != nil {
		return nil, err
	}
	if cfg.TrackingStartHour, err = intEnv("TRACKING_START_HOUR", 15); err != nil {
		return nil, err
	}
	if cfg.TrackingEndHour, err = intEnv("TRACKING_END_HOUR", 21); err != nil {
		return nil, err
	}
	if cfg.RestartMaxRetries, err = intEnv("RESTART_MAX_RETRIES", 5); err != nil {
		return nil, err
	}
	if cfg.SubmissionWindow, err = durationEnv("SUBMISSION_WINDOW", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RestartBackoff, err = durationEnv("RESTART_BACKOFF", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.CredentialDeleteDelay, err = durationEnv("CREDENTIAL_DELETE_DELAY", 3*time.Second); err != nil {
		return nil, err
	}
	if cfg.PictureFetchTimeout, err = durationEnv("PICTURE_FETCH_TIMEOUT", 500*time.Millisecond); err != nil {
		return nil, err
	}
	cfg.GroupNameFilters = splitList(getenv("GROUP_NAME_FILTERS", "batch,cohort"))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects inconsistent settings.
func (c *AppConfig) Validate() error {
	switch c.StoreDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is not set")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.TrackingStartHour < 0 || c.TrackingEndHour > 23 || c.TrackingStartHour > c.TrackingEndHour {
		return fmt.Errorf("invalid tracking window %d-%d", c.TrackingStartHour, c.TrackingEndHour)
	}
	if c.SubmissionWindow <= 0 || c.RestartBackoff <= 0 || c.PictureFetchTimeout <= 0 || c.CredentialDeleteDelay < 0 {
		return fmt.Errorf("durations must be positive")
	}
	if c.RestartMaxRetries < 0 {
		return fmt.Errorf("RESTART_MAX_RETRIES must not be negative")
	}
	if c.TelegramToken != "" && c.OperatorTelegramID == 0 {
		return fmt.Errorf("OPERATOR_TELEGRAM_ID is required when TELEGRAM_TOKEN is set")
	}
	if strings.TrimSpace(c.DigestCron) == "" {
		return fmt.Errorf("DIGEST_CRON is empty")
	}
	return nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func intEnv(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", k, err)
	}
	return n, nil
}

func int64Env(k string, def int64) (int64, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", k, err)
	}
	return n, nil
}

func boolEnv(k string, def bool) (bool, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", k, err)
	}
	return b, nil
}

func durationEnv(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", k, err)
	}
	return d, nil
}

func splitList(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
