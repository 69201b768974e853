package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/marketradar/internal/aggregate"
	"github.com/user/marketradar/internal/protocol"
	"github.com/user/marketradar/internal/radar"
	"github.com/user/marketradar/internal/report"
	"github.com/user/marketradar/internal/types"
	"github.com/user/marketradar/internal/ui"
)

func init() {
	rootCmd.AddCommand(missionCmd)
	missionCmd.AddCommand(missionListCmd, missionLogCmd, missionSourcesCmd, missionSeriesCmd,
		missionExportCmd, missionStatusCmd, missionStopCmd)

	missionLogCmd.Flags().IntP("limit", "n", 0, "show only the last n entries")
	missionExportCmd.Flags().StringP("output", "o", "", "output file (default marketradar-report-<date>.md)")
}

func archive() *radar.Archive {
	return radar.NewArchive(loadConfig().DataDir)
}

var missionCmd = &cobra.Command{
	Use:   "mission",
	Short: "Inspect missions",
}

var missionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List missions, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := archive().Missions.List(context.Background())
		if err != nil {
			return fmt.Errorf("list missions: %w", err)
		}

		if len(list) == 0 {
			fmt.Println("No missions found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tENTRIES\tRECORDS\tSOURCE\tCREATED\tGOAL")
		for _, m := range list {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
				m.MissionID.Short(),
				m.Status,
				m.Entries,
				m.Records,
				m.Source,
				m.CreatedAt.Local().Format("2006-01-02 15:04:05"),
				m.Goal,
			)
		}
		return w.Flush()
	},
}

var missionLogCmd = &cobra.Command{
	Use:   "log <id>",
	Short: "Print a mission's log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		ctx := context.Background()
		a := archive()
		idx, err := a.Mission(ctx, args[0])
		if err != nil {
			return err
		}
		entries, err := a.Entries(ctx, idx.MissionID, limit)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Fprintf(os.Stdout, "%4d %s %-10s %s\n",
				e.Seq, e.At.Local().Format("15:04:05"), e.Type, ui.EntryStyle(e).Render(ui.EntryText(e)))
		}
		return nil
	},
}

var missionSourcesCmd = &cobra.Command{
	Use:   "sources <id>",
	Short: "List the sources a mission consulted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, records, err := missionRecords(args[0])
		if err != nil {
			return err
		}
		sources := aggregate.Sources(records)
		if len(sources) == 0 {
			fmt.Println("No sources.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "URL\tTITLE\tPRICES\tTIMESTAMP")
		for _, src := range sources {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", src.URL, src.Title, src.PriceCount, src.Timestamp)
		}
		return w.Flush()
	},
}

var missionSeriesCmd = &cobra.Command{
	Use:   "series <id>",
	Short: "Print a mission's prices in time order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, records, err := missionRecords(args[0])
		if err != nil {
			return err
		}
		points := aggregate.Series(records, time.Now())
		if len(points) == 0 {
			fmt.Println("No prices.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "WHEN\tPRICE\tSOURCE")
		for _, p := range points {
			fmt.Fprintf(w, "%s\t%s\t%s\n", p.TimestampLabel, aggregate.FormatPrice(p.Value, p.Currency), p.SourceLabel)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, ui.Totals(records, points))
		return nil
	},
}

var missionExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Write a mission's research report as markdown",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a := archive()
		idx, err := a.Mission(ctx, args[0])
		if err != nil {
			return err
		}
		now := time.Now()
		rep, err := a.Report(ctx, idx, now)
		if err != nil {
			return err
		}

		out, _ := cmd.Flags().GetString("output")
		if out == "" {
			out = report.FileName(now)
		}
		if out == "-" {
			_, err := fmt.Fprint(os.Stdout, report.Markdown(rep))
			return err
		}
		if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
		if err := os.WriteFile(out, []byte(report.Markdown(rep)), 0644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Report written to %s\n", out)
		return nil
	},
}

var missionStatusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Ask the server about a mission",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		ctx := context.Background()
		id := resolveID(ctx, radar.NewArchive(cfg.DataDir), args[0])

		st, err := apiClient(cfg).Status(ctx, id)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "Mission:\t%s\n", st.MissionID)
		fmt.Fprintf(w, "Goal:\t%s\n", st.Goal)
		fmt.Fprintf(w, "Running:\t%v\n", st.IsRunning)
		fmt.Fprintf(w, "Complete:\t%v\n", st.IsComplete)
		fmt.Fprintf(w, "Sources visited:\t%d\n", st.SourcesVisited)
		fmt.Fprintf(w, "Data points:\t%d\n", st.DataPoints)
		if st.Error != nil {
			fmt.Fprintf(w, "Error:\t%s\n", *st.Error)
		}
		return w.Flush()
	},
}

var missionStopCmd = &cobra.Command{
	Use:   "stop <id>",
	Short: "Ask the server to stop a mission",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		ctx := context.Background()
		id := resolveID(ctx, radar.NewArchive(cfg.DataDir), args[0])

		if err := apiClient(cfg).Stop(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Mission %s stopped.\n", id)
		return nil
	},
}

// resolveID expands a known id prefix; anything else is passed through as a
// full server-side id.
func resolveID(ctx context.Context, a *radar.Archive, arg string) types.MissionID {
	if idx, err := a.Mission(ctx, arg); err == nil {
		return idx.MissionID
	}
	return types.MissionID(arg)
}

func missionRecords(arg string) (*types.MissionIndex, []protocol.Record, error) {
	ctx := context.Background()
	a := archive()
	idx, err := a.Mission(ctx, arg)
	if err != nil {
		return nil, nil, err
	}
	records, err := a.RecordSet(ctx, idx.MissionID)
	if err != nil {
		return nil, nil, err
	}
	return idx, records, nil
}
