package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/marketradar/internal/config"
	"github.com/user/marketradar/internal/delivery"
	"github.com/user/marketradar/internal/missionapi"
	"github.com/user/marketradar/internal/radar"
	"github.com/user/marketradar/internal/telegram"
	"github.com/user/marketradar/internal/transport"
	"github.com/user/marketradar/internal/types"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "radar",
	Short:         "MarketRadar sends a research agent after prices and follows it live",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultPath(), "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig loads the config file or exits.
func loadConfig() *config.Config {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func logLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func setupLogging(cfg *config.Config) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)})))
}

func apiClient(cfg *config.Config) *missionapi.Client {
	return missionapi.New(missionapi.Config{
		BaseURL: cfg.Server.URL,
		Timeout: time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
	})
}

// defaultRequest holds the mission settings from config. Missions notify the
// configured chat unless told otherwise.
func defaultRequest(cfg *config.Config) radar.Request {
	req := radar.Request{
		MaxIterations: cfg.Mission.MaxIterations,
		Headless:      cfg.Mission.Headless,
	}
	if cfg.Telegram.ChatID != 0 {
		req.Notify = types.NewNotifyTarget("telegram", strconv.FormatInt(cfg.Telegram.ChatID, 10))
	}
	return req
}

// app is everything a command that runs missions needs.
type app struct {
	cfg      *config.Config
	archive  *radar.Archive
	delivery *delivery.Registry
	runner   *radar.Runner
	telegram *telegram.Adapter
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dialer := transport.NewWebSocketDialer()
	if cfg.Server.Origin != "" {
		dialer.Origin = cfg.Server.Origin
	}
	dialer.Logger = logger

	a := &app{
		cfg:      cfg,
		archive:  radar.NewArchive(cfg.DataDir),
		delivery: delivery.NewRegistry(),
	}
	a.delivery.SetRetry(delivery.DefaultRetryPolicy())
	a.runner = radar.NewRunner(apiClient(cfg), dialer,
		radar.WithStores(a.archive.Missions, a.archive.Journal, a.archive.Records),
		radar.WithDelivery(a.delivery),
		radar.WithMaxConcurrent(int64(cfg.MaxConcurrent)),
		radar.WithLogger(logger),
	)

	if cfg.Telegram.Token != "" {
		adapter, err := telegram.New(cfg.Telegram.Token, a.runner,
			telegram.WithAllowedUsers(cfg.Telegram.AllowedUsers...),
			telegram.WithMissionDefaults(cfg.Mission.MaxIterations, cfg.Mission.Headless),
			telegram.WithLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("create telegram adapter: %w", err)
		}
		a.telegram = adapter
		a.delivery.Register(telegram.Prefix, adapter.Deliver)
	}
	return a, nil
}
