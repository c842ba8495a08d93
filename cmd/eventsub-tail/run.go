package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/twitchevents/internal/adapter/metrics"
	"github.com/pscheid92/twitchevents/internal/platform/config"
	"github.com/pscheid92/twitchevents/internal/platform/logging"
	"github.com/pscheid92/twitchevents/internal/platform/version"
	"github.com/pscheid92/twitchevents/pkg/twitchevents"
	"github.com/spf13/cobra"
)

const metricsShutdownTimeout = 5 * time.Second

// line is the stdout format, one per event.
type line struct {
	Kind string          `json:"kind"`
	Body json.RawMessage `json:"body"`
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect and print events until interrupted",
		Long: `Connect to Twitch EventSub with the settings from the environment (or a .env
file) and print each event as {"kind": ..., "body": ...} on stdout.

Required: TWITCH_CLIENT_ID, TWITCH_USER_TOKEN, TWITCH_BROADCASTER_ID and
SUBSCRIPTIONS, e.g. SUBSCRIPTIONS='{"follow": true, "raid": true}'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
			slog.Info("eventsub-tail starting", "version", version.Version, "commit", version.Commit)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, os.Stdout)
		},
	}
}

func run(ctx context.Context, cfg *config.Config, out io.Writer) error {
	reg := metrics.NewRegistry()
	stopMetrics := serveMetrics(cfg.MetricsAddr, metrics.Handler(reg))
	defer stopMetrics()

	client, err := twitchevents.New(cfg.Subscriptions, optionsFromConfig(cfg, reg))
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	defer func() {
		if err := client.Dispose(); err != nil {
			slog.Error("Dispose failed", "error", err)
		}
	}()

	return pollLoop(ctx, client, cfg.PollRate, out)
}

// pollLoop drains the client once per frame, like a host's update loop would.
func pollLoop(ctx context.Context, client *twitchevents.Client, rate int, out io.Writer) error {
	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()

	enc := json.NewEncoder(out)
	for {
		select {
		case <-ctx.Done():
			slog.Info("Shutdown signal received", "state", client.State().String())
			return nil
		case <-ticker.C:
		}

		for {
			ev, ok, err := client.Poll()
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			if err := enc.Encode(line{Kind: ev.Kind, Body: json.RawMessage(ev.Body)}); err != nil {
				return fmt.Errorf("write event: %w", err)
			}
			if ev.Kind == twitchevents.KindError {
				return errors.New("client faulted: " + ev.Body)
			}
		}
	}
}

func optionsFromConfig(cfg *config.Config, reg *prometheus.Registry) twitchevents.Options {
	return twitchevents.Options{
		ClientID:             cfg.TwitchClientID,
		UserToken:            cfg.TwitchUserToken,
		BroadcasterID:        cfg.TwitchBroadcasterID,
		ClientSecret:         cfg.TwitchClientSecret,
		RefreshToken:         cfg.TwitchRefreshToken,
		EventSubURL:          cfg.EventSubURL,
		HelixBaseURL:         cfg.HelixBaseURL,
		IRCUsername:          cfg.IRCUsername,
		IRCChannel:           cfg.IRCChannel,
		KeepaliveMultiplier:  cfg.KeepaliveMultiplier,
		WelcomeTimeout:       cfg.WelcomeTimeout,
		BackoffInitial:       cfg.BackoffInitial,
		BackoffMax:           cfg.BackoffMax,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		QueueSoftLimit:       cfg.QueueSoftLimit,
		DedupeWindow:         cfg.DedupeWindow,
		DisposeTimeout:       cfg.DisposeTimeout,
		Registerer:           reg,
		OnTokenRefresh: func(string, string) {
			slog.Warn("User token was refreshed; update TWITCH_USER_TOKEN and TWITCH_REFRESH_TOKEN before the next start")
		},
	}
}

// serveMetrics exposes /metrics on addr. An empty addr disables it.
func serveMetrics(addr string, handler http.Handler) func() {
	if addr == "" {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		slog.Info("Serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("Metrics server shutdown error", "error", err)
		}
	}
}
