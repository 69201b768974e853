package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/marketradar/internal/config"
	"github.com/user/marketradar/internal/radar"
	"github.com/user/marketradar/internal/scheduler"
	"github.com/user/marketradar/internal/state"
	"github.com/user/marketradar/internal/webhook"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run scheduled missions, the webhook API and the telegram bot",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func writePIDFile(cfg *config.Config) (string, error) {
	pidPath := cfg.PIDPath()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)
	logger := slog.Default()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}

	pidPath, err := writePIDFile(cfg)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	// Missions launched from here outlive the request that started them.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	defaults := defaultRequest(cfg)

	if a.telegram != nil {
		go a.telegram.Start(ctx)
		logger.Info("telegram adapter started")
	} else {
		logger.Warn("telegram adapter disabled (no token)")
	}

	taskStore := state.NewTaskStore(cfg.TasksPath())

	sched := scheduler.New(taskStore, func(task state.Task) {
		req := radar.TaskRequest(task, "schedule", defaults)
		if _, err := a.runner.Begin(ctx, req); err != nil {
			logger.Error("scheduled mission failed to start", "task", task.Name, "error", err)
		}
	}).WithLogger(logger)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	var httpServer *http.Server
	if cfg.Webhook.Addr != "" {
		srv := webhook.NewServer(taskStore, a.runner, a.archive,
			webhook.WithToken(cfg.Webhook.Token),
			webhook.WithDefaults(defaults),
			webhook.WithContext(ctx),
			webhook.WithLogger(logger),
		)
		httpServer = &http.Server{
			Addr:              cfg.Webhook.Addr,
			Handler:           srv,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("webhook server started", "addr", cfg.Webhook.Addr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("webhook server error", "error", err)
			}
		}()
	}

	logger.Info("marketradar started",
		"data_dir", cfg.DataDir,
		"server", cfg.Server.URL,
		"max_concurrent", cfg.MaxConcurrent,
		"scheduled_tasks", sched.Scheduled(),
		"pid_file", pidPath,
	)

	shutdown := func() {
		if httpServer != nil {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			httpServer.Shutdown(shutdownCtx)
			done()
		}
		cancel()
		closeCtx, done := context.WithTimeout(context.Background(), 15*time.Second)
		defer done()
		if err := a.runner.Close(closeCtx); err != nil {
			logger.Warn("missions still running at shutdown", "error", err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			logger.Info("received SIGHUP, restarting")
			execPath, err := os.Executable()
			if err != nil {
				logger.Error("failed to get executable path", "error", err)
				continue
			}
			shutdown()
			os.Remove(pidPath)
			if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
				logger.Error("failed to re-exec", "error", err)
				return err
			}
		}
		logger.Info("shutting down", "signal", sig)
		shutdown()
		return nil
	}
}
