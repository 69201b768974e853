package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/marketradar/internal/mission"
	"github.com/user/marketradar/internal/radar"
	"github.com/user/marketradar/internal/scheduler"
	"github.com/user/marketradar/internal/state"
)

func init() {
	rootCmd.AddCommand(taskCmd)
	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskRemoveCmd, taskEnableCmd, taskDisableCmd, taskRunCmd)

	taskAddCmd.Flags().String("name", "", "task name (required)")
	taskAddCmd.Flags().String("goal", "", "research goal (required)")
	taskAddCmd.Flags().String("schedule", "", "cron schedule expression")
	taskAddCmd.Flags().Int("max-iterations", 0, "agent iteration budget (default from config)")
	taskAddCmd.Flags().Bool("headless", true, "run the agent's browser headless")
	taskAddCmd.Flags().String("notify", "", "delivery target, e.g. telegram:12345")
	_ = taskAddCmd.MarkFlagRequired("name")
	_ = taskAddCmd.MarkFlagRequired("goal")

	taskRunCmd.Flags().Bool("tui", false, "show the live full-screen view")
	taskRunCmd.Flags().BoolP("verbose", "v", false, "print the agent's reasoning")
}

func taskStore() *state.TaskStore {
	return state.NewTaskStore(loadConfig().TasksPath())
}

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage scheduled missions",
}

var taskAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a new task",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		goal, _ := cmd.Flags().GetString("goal")
		schedule, _ := cmd.Flags().GetString("schedule")
		maxIterations, _ := cmd.Flags().GetInt("max-iterations")
		headless, _ := cmd.Flags().GetBool("headless")
		notify, _ := cmd.Flags().GetString("notify")

		if strings.TrimSpace(goal) == "" {
			return fmt.Errorf("goal must not be blank")
		}
		if schedule != "" {
			if err := scheduler.Validate(schedule); err != nil {
				return err
			}
		}

		task := &state.Task{
			Name:          name,
			Goal:          goal,
			Schedule:      schedule,
			MaxIterations: maxIterations,
			Headless:      headless,
			Notify:        notify,
			Enabled:       true,
		}
		if err := taskStore().Add(task); err != nil {
			return fmt.Errorf("add task: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Task %q added.\n", name)
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tasks, err := taskStore().List()
		if err != nil {
			return fmt.Errorf("list tasks: %w", err)
		}

		if len(tasks) == 0 {
			fmt.Println("No tasks configured.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSCHEDULE\tENABLED\tNOTIFY\tGOAL")
		for _, t := range tasks {
			fmt.Fprintf(w, "%s\t%s\t%v\t%s\t%s\n",
				t.Name,
				t.Schedule,
				t.Enabled,
				t.Notify,
				t.Goal,
			)
		}
		return w.Flush()
	},
}

var taskRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := taskStore().Remove(args[0]); err != nil {
			return fmt.Errorf("remove task: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Task %q removed.\n", args[0])
		return nil
	},
}

var taskEnableCmd = &cobra.Command{
	Use:   "enable <name>",
	Short: "Enable a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setTaskEnabled(args[0], true)
	},
}

var taskDisableCmd = &cobra.Command{
	Use:   "disable <name>",
	Short: "Disable a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setTaskEnabled(args[0], false)
	},
}

func setTaskEnabled(name string, enabled bool) error {
	verb := "enable"
	if !enabled {
		verb = "disable"
	}
	if err := taskStore().SetEnabled(name, enabled); err != nil {
		return fmt.Errorf("%s task: %w", verb, err)
	}
	fmt.Fprintf(os.Stdout, "Task %q %sd.\n", name, verb)
	return nil
}

var taskRunCmd = &cobra.Command{
	Use:   "run <name>",
	Short: "Run a task now and follow it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		task, err := state.NewTaskStore(cfg.TasksPath()).Get(args[0])
		if err != nil {
			return err
		}
		req := radar.TaskRequest(*task, "cli", defaultRequest(cfg))

		return follow(cmd, cfg, func(ctx context.Context, a *app, observers ...mission.Observer) (*radar.Watch, error) {
			return a.runner.Begin(ctx, req, observers...)
		})
	},
}
