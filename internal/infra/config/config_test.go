package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/attendance")
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("TELEGRAM_TOKEN", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.StoreDriver != "postgres" || cfg.HTTPAddr != ":8080" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.TrackingStartHour != 15 || cfg.TrackingEndHour != 21 {
		t.Errorf("tracking window = %d-%d", cfg.TrackingStartHour, cfg.TrackingEndHour)
	}
	if cfg.SubmissionWindow != 10*time.Minute || cfg.RestartMaxRetries != 5 {
		t.Errorf("submission window %v, retries %d", cfg.SubmissionWindow, cfg.RestartMaxRetries)
	}
	if cfg.DigestCron != "0 22 * * *" {
		t.Errorf("digest cron = %q", cfg.DigestCron)
	}
	if len(cfg.GroupNameFilters) != 2 || cfg.GroupNameFilters[0] != "batch" {
		t.Errorf("filters = %v", cfg.GroupNameFilters)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SUBMISSION_WINDOW", "15m")
	t.Setenv("GROUP_NAME_FILTERS", " IELTS , Batch ,,")
	t.Setenv("DIGEST_IGNORE_SHARING", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SubmissionWindow != 15*time.Minute {
		t.Errorf("submission window = %v", cfg.SubmissionWindow)
	}
	if len(cfg.GroupNameFilters) != 2 || cfg.GroupNameFilters[0] != "ielts" || cfg.GroupNameFilters[1] != "batch" {
		t.Errorf("filters = %v", cfg.GroupNameFilters)
	}
	if !cfg.DigestIgnoreSharing {
		t.Error("DIGEST_IGNORE_SHARING not applied")
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing database url", map[string]string{"STORE_DRIVER": "postgres", "DATABASE_URL": ""}},
		{"unknown driver", map[string]string{"STORE_DRIVER": "mongo"}},
		{"bad hour", map[string]string{"STORE_DRIVER": "memory", "TRACKING_START_HOUR": "x"}},
		{"inverted window", map[string]string{"STORE_DRIVER": "memory", "TRACKING_START_HOUR": "22", "TRACKING_END_HOUR": "10"}},
		{"token without operator", map[string]string{"STORE_DRIVER": "memory", "TELEGRAM_TOKEN": "abc", "OPERATOR_TELEGRAM_ID": ""}},
		{"bad duration", map[string]string{"STORE_DRIVER": "memory", "RESTART_BACKOFF": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("Load() expected error")
			}
		})
	}
}
