package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validHash = "$argon2id$v=19$m=65536,t=3,p=2$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaGhhc2hoYXNoaGFzaGhhc2g"

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SIGNOFF_SLACK_BOT_TOKEN", "xoxb-test")
	t.Setenv("SIGNOFF_TRIGGER_TOKEN_HASH", validHash)
}

func TestLoad(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		setRequiredEnv(t)

		cfg, err := Load("")
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}

		if cfg.HTTPPort != 8080 {
			t.Fatalf("expected default port 8080, got %d", cfg.HTTPPort)
		}
		if cfg.LogLevel != "info" {
			t.Fatalf("expected default log level info, got %q", cfg.LogLevel)
		}
		if cfg.DefaultChannel != "#release-rc" {
			t.Fatalf("expected default channel, got %q", cfg.DefaultChannel)
		}
		if cfg.ReminderInterval != 2*time.Hour {
			t.Fatalf("expected 2h reminder interval, got %v", cfg.ReminderInterval)
		}
		if cfg.CutoffDeliveryAttempts != 3 {
			t.Fatalf("expected 3 cutoff attempts, got %d", cfg.CutoffDeliveryAttempts)
		}
		if cfg.SQLiteDSN != "file:signoff.db" {
			t.Fatalf("expected default sqlite dsn, got %q", cfg.SQLiteDSN)
		}
	})

	t.Run("environment overrides defaults", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("SIGNOFF_HTTP_PORT", "9090")
		t.Setenv("SIGNOFF_REMINDER_INTERVAL", "45m")
		t.Setenv("SIGNOFF_DEFAULT_CHANNEL", "#releases")

		cfg, err := Load("")
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if cfg.HTTPPort != 9090 {
			t.Fatalf("expected port 9090, got %d", cfg.HTTPPort)
		}
		if cfg.ReminderInterval != 45*time.Minute {
			t.Fatalf("expected 45m reminder interval, got %v", cfg.ReminderInterval)
		}
		if cfg.DefaultChannel != "#releases" {
			t.Fatalf("expected overridden channel, got %q", cfg.DefaultChannel)
		}
	})

	t.Run("reads a YAML file with the environment taking precedence", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("SIGNOFF_HTTP_PORT", "7070")

		path := filepath.Join(t.TempDir(), "signoff.yaml")
		content := "http_port: 9090\nreminder_interval: 30m\n"
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("failed to write config file: %v", err)
		}

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if cfg.HTTPPort != 7070 {
			t.Fatalf("expected environment to win, got %d", cfg.HTTPPort)
		}
		if cfg.ReminderInterval != 30*time.Minute {
			t.Fatalf("expected file value for reminder interval, got %v", cfg.ReminderInterval)
		}
	})

	t.Run("fails for a missing config file", func(t *testing.T) {
		setRequiredEnv(t)
		if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
			t.Fatal("expected an error for a missing file")
		}
	})

	t.Run("reports all missing required settings together", func(t *testing.T) {
		t.Setenv("SIGNOFF_SLACK_BOT_TOKEN", "")
		t.Setenv("SIGNOFF_TRIGGER_TOKEN_HASH", "")

		_, err := Load("")
		if err == nil {
			t.Fatal("expected an error for missing settings")
		}
		for _, name := range []string{"SIGNOFF_SLACK_BOT_TOKEN", "SIGNOFF_TRIGGER_TOKEN_HASH"} {
			if !strings.Contains(err.Error(), name) {
				t.Fatalf("expected %s in error, got %v", name, err)
			}
		}
	})

	t.Run("rejects invalid values", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("SIGNOFF_HTTP_PORT", "99999")
		t.Setenv("SIGNOFF_CUTOFF_DELIVERY_ATTEMPTS", "0")

		_, err := Load("")
		if err == nil {
			t.Fatal("expected an error for invalid settings")
		}
		for _, name := range []string{"SIGNOFF_HTTP_PORT", "SIGNOFF_CUTOFF_DELIVERY_ATTEMPTS"} {
			if !strings.Contains(err.Error(), name) {
				t.Fatalf("expected %s in error, got %v", name, err)
			}
		}
	})

	t.Run("rejects a token hash that is not argon2id", func(t *testing.T) {
		t.Setenv("SIGNOFF_SLACK_BOT_TOKEN", "xoxb-test")
		t.Setenv("SIGNOFF_TRIGGER_TOKEN_HASH", "plaintext-token")

		_, err := Load("")
		if err == nil || !strings.Contains(err.Error(), "SIGNOFF_TRIGGER_TOKEN_HASH") {
			t.Fatalf("expected trigger token hash rejection, got %v", err)
		}
	})
}
