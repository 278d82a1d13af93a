package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run background freshness checks and syncs",
}

var scheduleRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduler in the foreground until interrupted",
	Long: `Run the scheduler in the foreground. Sentinels are checked on the
freshness interval and surveys flagged as changed (or with unfinished cycles)
are synchronised on the sync interval. Stop with Ctrl-C.`,
	Args: cobra.NoArgs,
	RunE: runScheduleRun,
}

var scheduleStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show scheduled task state",
	Args:  cobra.NoArgs,
	RunE:  runScheduleStatus,
}

func init() {
	scheduleCmd.AddCommand(scheduleRunCmd)
	scheduleCmd.AddCommand(scheduleStatusCmd)
	rootCmd.AddCommand(scheduleCmd)
}

func runScheduleRun(cmd *cobra.Command, _ []string) error {
	if scheduler == nil {
		return errors.New("scheduler not configured")
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd.Println("Scheduler running. Press Ctrl-C to stop.")
	err := scheduler.Start(ctx)
	if stopErr := scheduler.Stop(); stopErr != nil {
		return stopErr
	}
	if errors.Is(err, context.Canceled) {
		cmd.Println("Scheduler stopped.")
		return nil
	}
	return err
}

func runScheduleStatus(cmd *cobra.Command, _ []string) error {
	if scheduler == nil {
		return errors.New("scheduler not configured")
	}
	tasks, err := scheduler.Tasks(cmd.Context())
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		cmd.Println("No tasks yet. Run 'collector schedule run' to create them.")
		return nil
	}
	for i := range tasks {
		t := &tasks[i]
		state := okStyle.Render("enabled")
		if !t.Enabled {
			state = dimStyle.Render("disabled")
		}
		cmd.Printf("  %-16s %-8s every %-6s last run %s", t.ID, state, t.Interval, ago(t.LastRun))
		if t.LastError != "" {
			cmd.Printf("  %s", errStyle.Render(t.LastError))
		}
		cmd.Println()

		history, err := scheduler.History(cmd.Context(), t.ID, 1)
		if err != nil {
			return err
		}
		if len(history) > 0 {
			cmd.Printf("    %s\n", dimStyle.Render(describeRun(&history[0])))
		}
	}
	return nil
}

func describeRun(r *domain.TaskResult) string {
	outcome := "ok"
	if !r.Success {
		outcome = "failed"
	}
	s := fmt.Sprintf("%s in %s: %d processed, %d requests", outcome, r.Duration().Round(time.Second), r.ItemsProcessed, r.RequestsUsed)
	if len(r.Surveys) > 0 {
		s += " (" + strings.Join(r.Surveys, ", ") + ")"
	}
	return s
}
