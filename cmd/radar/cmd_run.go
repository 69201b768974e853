package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/user/marketradar/internal/config"
	"github.com/user/marketradar/internal/mission"
	"github.com/user/marketradar/internal/radar"
	"github.com/user/marketradar/internal/transport"
	"github.com/user/marketradar/internal/types"
	"github.com/user/marketradar/internal/ui/console"
	"github.com/user/marketradar/internal/ui/live"
)

func init() {
	rootCmd.AddCommand(runCmd, watchCmd)

	for _, c := range []*cobra.Command{runCmd, watchCmd} {
		c.Flags().Bool("tui", false, "show the live full-screen view")
		c.Flags().BoolP("verbose", "v", false, "print the agent's reasoning")
		c.Flags().String("notify", "", "delivery target for the final notice, e.g. telegram:12345")
	}
	runCmd.Flags().Int("max-iterations", 0, "agent iteration budget (default from config)")
	runCmd.Flags().Bool("headless", true, "run the agent's browser headless")
}

var runCmd = &cobra.Command{
	Use:   "run <goal>",
	Short: "Start a mission and follow it until it ends",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		req := defaultRequest(cfg)
		req.Goal = strings.Join(args, " ")
		req.Source = "cli"
		if n, _ := cmd.Flags().GetInt("max-iterations"); n > 0 {
			req.MaxIterations = n
		}
		if cmd.Flags().Changed("headless") {
			req.Headless, _ = cmd.Flags().GetBool("headless")
		}
		if notify, _ := cmd.Flags().GetString("notify"); notify != "" {
			req.Notify = types.NotifyTarget(notify)
		}

		return follow(cmd, cfg, func(ctx context.Context, a *app, observers ...mission.Observer) (*radar.Watch, error) {
			return a.runner.Begin(ctx, req, observers...)
		})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <mission-id>",
	Short: "Follow a mission the server already accepted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		req := defaultRequest(cfg)
		req.Source = "cli"
		if notify, _ := cmd.Flags().GetString("notify"); notify != "" {
			req.Notify = types.NotifyTarget(notify)
		}

		return follow(cmd, cfg, func(ctx context.Context, a *app, observers ...mission.Observer) (*radar.Watch, error) {
			handle, goal, err := resolveHandle(ctx, a, cfg.Server.URL, args[0])
			if err != nil {
				return nil, err
			}
			req.Goal = goal
			return a.runner.Attach(ctx, handle, req, observers...)
		})
	},
}

// resolveHandle finds where a mission streams: the index when the mission
// was started here, otherwise the server is asked for its goal and the
// endpoint is derived from the server URL.
func resolveHandle(ctx context.Context, a *app, serverURL, id string) (types.MissionHandle, string, error) {
	if idx, err := a.archive.Mission(ctx, id); err == nil && idx.Endpoint != "" {
		return types.MissionHandle{ID: idx.MissionID, Endpoint: idx.Endpoint}, idx.Goal, nil
	}
	status, err := apiClient(a.cfg).Status(ctx, types.MissionID(id))
	if err != nil {
		return types.MissionHandle{}, "", err
	}
	endpoint, err := transport.Endpoint(serverURL, id)
	if err != nil {
		return types.MissionHandle{}, "", err
	}
	return types.MissionHandle{ID: types.MissionID(id), Endpoint: endpoint}, status.Goal, nil
}

type launchFunc func(ctx context.Context, a *app, observers ...mission.Observer) (*radar.Watch, error)

// follow launches a mission and shows it until it ends or the user stops
// it with ctrl+c.
func follow(cmd *cobra.Command, cfg *config.Config, launch launchFunc) error {
	tui, _ := cmd.Flags().GetBool("tui")
	verbose, _ := cmd.Flags().GetBool("verbose")

	logger, closeLog, err := commandLogger(cfg, tui)
	if err != nil {
		return err
	}
	defer closeLog()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	// stopping is separate from ctx so the live view can stop the mission
	// and still render the teardown.
	missionCtx, cancelMission := context.WithCancel(ctx)
	defer cancelMission()

	var res *radar.Result
	if tui {
		res, err = followLive(ctx, missionCtx, cancelMission, a, launch)
	} else {
		res, err = followConsole(missionCtx, a, launch, verbose)
	}
	if err != nil {
		return err
	}

	printResult(res)
	if res.Status == mission.StatusError {
		return errors.New("mission failed")
	}
	return nil
}

func followConsole(ctx context.Context, a *app, launch launchFunc, verbose bool) (*radar.Result, error) {
	printer := console.New(os.Stdout).Verbose(verbose)
	w, err := launch(ctx, a, printer)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(os.Stdout, "Mission %s: %s\n", w.Handle.ID, w.Goal)
	return w.Wait(context.Background())
}

func followLive(ctx, missionCtx context.Context, cancelMission context.CancelFunc, a *app, launch launchFunc) (*radar.Result, error) {
	ctrl := live.NewController()
	defer ctrl.Close()

	w, err := launch(missionCtx, a, ctrl)
	if err != nil {
		return nil, err
	}

	program := tea.NewProgram(
		live.NewModel(w.Handle.ID, w.Goal, w.Session(), ctrl, cancelMission),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	var res *radar.Result
	g, gctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		_, err := program.Run()
		// leaving the view stops a mission that is still running
		cancelMission()
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		r, err := w.Wait(gctx)
		if err != nil {
			return err
		}
		res = r
		program.Send(live.DoneMsg{Stopped: r.Stopped})
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

func printResult(res *radar.Result) {
	status := res.Status.String()
	if res.Stopped {
		status = radar.StatusStopped
	}
	elapsed := res.EndedAt.Sub(res.StartedAt).Round(time.Second)
	fmt.Fprintf(os.Stdout, "\nMission %s %s after %s: %d log entries, %d records\n",
		res.MissionID.Short(), status, elapsed, len(res.Entries), len(res.Records))
	if res.Summary != "" {
		fmt.Fprintln(os.Stdout, res.Summary)
	}
}

// commandLogger logs to stderr, or to the log file while the live view owns
// the terminal.
func commandLogger(cfg *config.Config, tui bool) (*slog.Logger, func(), error) {
	if !tui {
		setupLogging(cfg)
		return slog.Default(), func() {}, nil
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("create data dir: %w", err)
	}
	f, err := os.OpenFile(cfg.LogPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)
	return logger, func() { f.Close() }, nil
}
