package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openbracket/gdrb/internal/client"
	"github.com/openbracket/gdrb/internal/db"
	"github.com/openbracket/gdrb/internal/mission"
)

func missionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mission",
		Short: "Run and inspect scripted QA missions",
	}
	cmd.AddCommand(missionRunCmd(), missionHistoryCmd())
	return cmd
}

func missionRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <mission.json>",
		Short: "Execute a mission file against a bridge",
		Long: `Execute a mission file against a bridge.

A mission with a launch block starts the host itself; otherwise the
run attaches to the bridge named by --port. The Markdown report lands
next to the mission file and the run is recorded in the history
database.`,
		Args: cobra.ExactArgs(1),
		RunE: runMissionRun,
	}
	f := cmd.Flags()
	f.Int("port", 0, "port of a running bridge (attach mode)")
	f.String("token", "", "session token")
	f.String("db", defaultHistoryPath(), "run history database (empty disables)")
	f.Bool("html", false, "also render the report as HTML")
	f.Bool("summarize", false, "append a Claude-written summary to the report")
	f.String("summary-model", "haiku", "Claude model for the report summary")
	return cmd
}

func runMissionRun(cmd *cobra.Command, args []string) error {
	for key, flag := range map[string]string{
		"port": "port", "token": "token", "db": "db", "html": "html",
		"summarize": "summarize", "summary_model": "summary-model",
	} {
		bindFlag(cmd, key, flag)
	}

	m, err := mission.Load(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bridge, cleanup, err := connectMission(ctx, m)
	if err != nil {
		return err
	}
	defer cleanup()

	var history *db.DB
	if path := viper.GetString("db"); path != "" {
		history, err = openHistory(path)
		if err != nil {
			return err
		}
		defer history.Close() //nolint:errcheck
	}

	runner := &mission.Runner{Bridge: bridge, History: history}
	result, err := runner.Execute(ctx, m)
	if err != nil {
		return err
	}

	if viper.GetBool("summarize") && result.ReportFile != "" {
		summarizeReport(ctx, history, result)
	}
	if viper.GetBool("html") && result.ReportFile != "" {
		if htmlPath, err := renderReportHTML(result.ReportFile); err != nil {
			slog.Warn("html render failed", "err", err)
		} else {
			fmt.Printf("HTML report: %s\n", htmlPath)
		}
	}

	failed := 0
	for _, sr := range result.Steps {
		if sr.Status == "failed" {
			failed++
		}
	}
	fmt.Printf("Mission %s: %s\n", result.Mission, strings.ToUpper(result.Status))
	fmt.Printf("  Steps: %d total, %d failed\n", len(result.Steps), failed)
	fmt.Printf("  Duration: %s\n", result.Duration.Round(time.Millisecond))
	if result.ReportFile != "" {
		fmt.Printf("  Report: %s\n", result.ReportFile)
	}

	if result.Status != "passed" {
		return fmt.Errorf("mission %q finished %s", result.Mission, result.Status)
	}
	return nil
}

// connectMission resolves the bridge for a run: the mission's launch
// block starts the host, otherwise --port attaches to a running one.
// Launched hosts are asked to quit during cleanup; attached ones are
// left running.
func connectMission(ctx context.Context, m *mission.Mission) (*client.Client, func(), error) {
	if m.Launch != nil {
		launcher := &client.Launcher{}
		session, err := launcher.Launch(ctx, client.LaunchSpec{
			Bin:       m.Launch.Bin,
			Args:      m.Launch.Args,
			Token:     viper.GetString("token"),
			Tier:      m.Launch.Tier,
			Danger:    m.Launch.Danger,
			InputMode: m.Launch.InputMode,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("launch %s: %w", m.Launch.Bin, err)
		}
		cleanup := func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := session.Shutdown(shutdownCtx); err != nil {
				slog.Warn("host shutdown failed", "err", err)
			}
		}
		return session.Client, cleanup, nil
	}

	port := viper.GetInt("port")
	if port == 0 {
		return nil, nil, fmt.Errorf("mission %q has no launch block; --port is required", m.Name)
	}
	conn, err := client.Dial(ctx, fmt.Sprintf("127.0.0.1:%d", port), viper.GetString("token"))
	if err != nil {
		return nil, nil, err
	}
	return conn, func() { _ = conn.Close() }, nil
}

func summarizeReport(ctx context.Context, history *db.DB, result *mission.Result) {
	md, err := os.ReadFile(result.ReportFile)
	if err != nil {
		slog.Warn("summary skipped", "err", err)
		return
	}
	summary, err := mission.Summarize(ctx, string(md), viper.GetString("summary_model"))
	if err != nil {
		slog.Warn("summary failed", "err", err)
		return
	}
	if summary == "" {
		slog.Info("summary skipped: ANTHROPIC_API_KEY not set")
		return
	}
	appended := append(md, []byte("\n## Summary\n\n"+summary+"\n")...)
	if err := os.WriteFile(result.ReportFile, appended, 0644); err != nil {
		slog.Warn("summary write failed", "err", err)
		return
	}
	if history != nil && result.RunID != 0 {
		if err := history.UpdateRunSummary(result.RunID, summary); err != nil {
			slog.Warn("summary history update failed", "err", err)
		}
	}
	fmt.Printf("\n%s\n\n", summary)
}

func renderReportHTML(reportFile string) (string, error) {
	md, err := os.ReadFile(reportFile)
	if err != nil {
		return "", err
	}
	html, err := mission.RenderHTML(md)
	if err != nil {
		return "", err
	}
	htmlPath := strings.TrimSuffix(reportFile, ".md") + ".html"
	if err := os.WriteFile(htmlPath, html, 0644); err != nil {
		return "", err
	}
	return htmlPath, nil
}

func missionHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent mission runs",
		Args:  cobra.NoArgs,
		RunE:  runMissionHistory,
	}
	f := cmd.Flags()
	f.String("db", defaultHistoryPath(), "run history database")
	f.Int("limit", 20, "maximum runs to list")
	f.String("mission", "", "only runs of this mission")
	f.Int64("run", 0, "show the steps of one run")
	return cmd
}

func runMissionHistory(cmd *cobra.Command, args []string) error {
	for key, flag := range map[string]string{
		"db": "db", "limit": "limit", "mission": "mission", "run": "run",
	} {
		bindFlag(cmd, key, flag)
	}

	path := viper.GetString("db")
	if path == "" {
		return fmt.Errorf("--db is required")
	}
	history, err := openHistory(path)
	if err != nil {
		return err
	}
	defer history.Close() //nolint:errcheck

	if runID := viper.GetInt64("run"); runID != 0 {
		return showRun(history, runID)
	}

	var runs []db.Run
	if name := viper.GetString("mission"); name != "" {
		runs, err = history.ListRunsByMission(name, viper.GetInt("limit"))
	} else {
		runs, err = history.ListRuns(viper.GetInt("limit"), 0)
	}
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMISSION\tSTATUS\tSTARTED\tDURATION\tSTEPS\tFAILED")
	for _, run := range runs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t%d\n",
			run.ID, run.Mission, run.Status, run.StartedAt,
			formatDurationMs(run.DurationMs), run.StepsTotal, run.StepsFailed)
	}
	return w.Flush()
}

func showRun(history *db.DB, runID int64) error {
	run, err := history.GetRun(runID)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run %d not found", runID)
	}

	fmt.Printf("Run %d: %s (%s)\n", run.ID, run.Mission, run.Status)
	fmt.Printf("  Started: %s\n", run.StartedAt)
	fmt.Printf("  Duration: %s\n", formatDurationMs(run.DurationMs))
	if run.ReportFile != nil {
		fmt.Printf("  Report: %s\n", *run.ReportFile)
	}
	fmt.Println()

	steps, err := history.ListSteps(runID)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tSTEP\tSTATUS\tDURATION\tDETAIL")
	for _, s := range steps {
		detail := ""
		if s.Detail != nil {
			detail = *s.Detail
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			s.Seq+1, s.Name, s.Status, (time.Duration(s.DurationMs) * time.Millisecond).String(), detail)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if run.Summary != nil {
		fmt.Printf("\n%s\n", *run.Summary)
	}
	return nil
}

func formatDurationMs(ms *int64) string {
	if ms == nil {
		return "-"
	}
	return (time.Duration(*ms) * time.Millisecond).String()
}

// defaultHistoryPath is ~/.gdrb/history.db, or "" when the home
// directory cannot be resolved.
func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".gdrb", "history.db")
}

func openHistory(path string) (*db.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	return db.Open(path)
}
