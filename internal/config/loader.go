// Package config loads bot configuration from the environment and an optional
// YAML file. Environment variables use the SIGNOFF_ prefix and take precedence
// over file values.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures every tunable of the sign-off bot.
type Config struct {
	HTTPPort int
	LogLevel string

	SlackBotToken      string
	SlackSigningSecret string
	SlackAPIBaseURL    string
	DefaultChannel     string

	ReminderInterval       time.Duration
	ReminderRetryDelay     time.Duration
	CutoffDeliveryAttempts int
	CutoffRetryBackoff     time.Duration
	SinkTimeout            time.Duration

	SQLiteDSN        string
	TriggerTokenHash string
}

// Load reads configuration from the process environment and, when path is
// non-empty, the YAML file at path. Required values are validated up front and
// reported together.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SIGNOFF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("http_port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("slack_api_base_url", "https://slack.com/api")
	v.SetDefault("default_channel", "#release-rc")
	v.SetDefault("reminder_interval", "2h")
	v.SetDefault("reminder_retry_delay", "30s")
	v.SetDefault("cutoff_delivery_attempts", 3)
	v.SetDefault("cutoff_retry_backoff", "30s")
	v.SetDefault("sink_timeout", "10s")
	v.SetDefault("sqlite_dsn", "file:signoff.db")

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	cfg := Config{
		HTTPPort:               v.GetInt("http_port"),
		LogLevel:               v.GetString("log_level"),
		SlackBotToken:          strings.TrimSpace(v.GetString("slack_bot_token")),
		SlackSigningSecret:     strings.TrimSpace(v.GetString("slack_signing_secret")),
		SlackAPIBaseURL:        strings.TrimSpace(v.GetString("slack_api_base_url")),
		DefaultChannel:         strings.TrimSpace(v.GetString("default_channel")),
		ReminderInterval:       v.GetDuration("reminder_interval"),
		ReminderRetryDelay:     v.GetDuration("reminder_retry_delay"),
		CutoffDeliveryAttempts: v.GetInt("cutoff_delivery_attempts"),
		CutoffRetryBackoff:     v.GetDuration("cutoff_retry_backoff"),
		SinkTimeout:            v.GetDuration("sink_timeout"),
		SQLiteDSN:              strings.TrimSpace(v.GetString("sqlite_dsn")),
		TriggerTokenHash:       strings.TrimSpace(v.GetString("trigger_token_hash")),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	missing := make([]string, 0, 2)
	invalid := make([]string, 0, 4)

	if c.SlackBotToken == "" {
		missing = append(missing, "SIGNOFF_SLACK_BOT_TOKEN")
	}
	if c.TriggerTokenHash == "" {
		missing = append(missing, "SIGNOFF_TRIGGER_TOKEN_HASH")
	}

	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		invalid = append(invalid, "SIGNOFF_HTTP_PORT")
	}
	if c.ReminderInterval <= 0 {
		invalid = append(invalid, "SIGNOFF_REMINDER_INTERVAL")
	}
	if c.ReminderRetryDelay <= 0 {
		invalid = append(invalid, "SIGNOFF_REMINDER_RETRY_DELAY")
	}
	if c.CutoffDeliveryAttempts <= 0 {
		invalid = append(invalid, "SIGNOFF_CUTOFF_DELIVERY_ATTEMPTS")
	}
	if c.CutoffRetryBackoff <= 0 {
		invalid = append(invalid, "SIGNOFF_CUTOFF_RETRY_BACKOFF")
	}
	if c.SinkTimeout <= 0 {
		invalid = append(invalid, "SIGNOFF_SINK_TIMEOUT")
	}
	if c.TriggerTokenHash != "" && !strings.HasPrefix(c.TriggerTokenHash, "$argon2id$") {
		invalid = append(invalid, "SIGNOFF_TRIGGER_TOKEN_HASH")
	}

	if len(missing) > 0 {
		return fmt.Errorf("config: required settings are missing: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return errors.New("config: settings have invalid values: " + strings.Join(invalid, ", "))
	}
	return nil
}
