package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

const DefaultEventSubURL = "wss://eventsub.wss.twitch.tv/ws?keepalive_timeout_seconds=30"

type Config struct {
	TwitchClientID      string `env:"TWITCH_CLIENT_ID"`
	TwitchClientSecret  string `env:"TWITCH_CLIENT_SECRET"`
	TwitchUserToken     string `env:"TWITCH_USER_TOKEN"`
	TwitchRefreshToken  string `env:"TWITCH_REFRESH_TOKEN"`
	TwitchBroadcasterID string `env:"TWITCH_BROADCASTER_ID"`
	HelixBaseURL        string `env:"HELIX_BASE_URL"`
	EventSubURL         string `env:"EVENTSUB_URL" default:"wss://eventsub.wss.twitch.tv/ws?keepalive_timeout_seconds=30"`

	// Subscriptions is the flat JSON record of topic key to boolean.
	Subscriptions string `env:"SUBSCRIPTIONS"`

	IRCUsername string `env:"IRC_USERNAME"`
	IRCChannel  string `env:"IRC_CHANNEL"`

	KeepaliveMultiplier  float64       `env:"KEEPALIVE_MULTIPLIER" default:"1.5"`
	WelcomeTimeout       time.Duration `env:"WELCOME_TIMEOUT" default:"10s"`
	BackoffInitial       time.Duration `env:"BACKOFF_INITIAL" default:"1s"`
	BackoffMax           time.Duration `env:"BACKOFF_MAX" default:"30s"`
	MaxReconnectAttempts int           `env:"MAX_RECONNECT_ATTEMPTS" default:"6"`
	QueueSoftLimit       int           `env:"QUEUE_SOFT_LIMIT" default:"10000"`
	DedupeWindow         int           `env:"DEDUPE_WINDOW" default:"1024"`
	DisposeTimeout       time.Duration `env:"DISPOSE_TIMEOUT" default:"5s"`
	PollRate             int           `env:"POLL_RATE" default:"60"`

	MetricsAddr string `env:"METRICS_ADDR"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := []struct{ name, value string }{
		{"TWITCH_CLIENT_ID", cfg.TwitchClientID},
		{"TWITCH_USER_TOKEN", cfg.TwitchUserToken},
		{"TWITCH_BROADCASTER_ID", cfg.TwitchBroadcasterID},
		{"SUBSCRIPTIONS", cfg.Subscriptions},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}

	if cfg.TwitchRefreshToken != "" && cfg.TwitchClientSecret == "" {
		return errors.New("TWITCH_CLIENT_SECRET is required when TWITCH_REFRESH_TOKEN is set")
	}
	if (cfg.IRCUsername == "") != (cfg.IRCChannel == "") {
		return errors.New("IRC_USERNAME and IRC_CHANNEL must be set together")
	}
	if cfg.KeepaliveMultiplier <= 1 {
		return fmt.Errorf("KEEPALIVE_MULTIPLIER must be greater than 1, got %v", cfg.KeepaliveMultiplier)
	}
	if cfg.MaxReconnectAttempts < 1 {
		return fmt.Errorf("MAX_RECONNECT_ATTEMPTS must be at least 1, got %d", cfg.MaxReconnectAttempts)
	}
	if cfg.PollRate < 1 {
		return fmt.Errorf("POLL_RATE must be at least 1, got %d", cfg.PollRate)
	}

	return nil
}
