package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"
)

var freshnessCmd = &cobra.Command{
	Use:   "freshness",
	Short: "Detect upstream releases with sentinel series",
	Long: `Check a small sample of sentinel series per survey to learn cheaply
whether upstream published new data since the last sync.`,
}

var freshnessCheckCmd = &cobra.Command{
	Use:   "check [SURVEY...]",
	Short: "Check sentinels and flag surveys with new data",
	Long:  `Check sentinels for the given surveys, or every configured survey when none are given.`,
	RunE:  runFreshnessCheck,
}

var freshnessStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the freshness of every checked survey",
	Args:  cobra.NoArgs,
	RunE:  runFreshnessStatus,
}

func init() {
	freshnessCmd.AddCommand(freshnessCheckCmd)
	freshnessCmd.AddCommand(freshnessStatusCmd)
	rootCmd.AddCommand(freshnessCmd)
}

func runFreshnessCheck(cmd *cobra.Command, args []string) error {
	if freshnessChecker == nil {
		return errors.New("freshness service not configured")
	}
	codes, err := resolveSurveys(args, len(args) == 0)
	if err != nil {
		return err
	}

	results := freshnessChecker.CheckAll(cmd.Context(), codes)
	failed, used := 0, 0
	var warnings []string
	for _, r := range results {
		used += r.RequestsUsed
		warnings = append(warnings, r.Warnings...)
		switch {
		case r.QuotaExhausted:
			cmd.Printf("  %-4s %s\n", r.SurveyCode, warnStyle.Render("skipped: quota exhausted"))
		case r.Err != nil:
			failed++
			cmd.Printf("  %-4s %s\n", r.SurveyCode, errStyle.Render("failed: "+r.Err.Error()))
		case r.HasNewData:
			cmd.Printf("  %-4s %s  %d/%d sentinels changed (stored %s, upstream %s)\n",
				r.SurveyCode, warnStyle.Render("new data"), r.SeriesWithNewData, r.SeriesChecked,
				r.OurLatest, r.UpstreamLatest)
		default:
			cmd.Printf("  %-4s %s  %d sentinels checked\n", r.SurveyCode, okStyle.Render("current"), r.SeriesChecked)
		}
	}
	cmd.Printf("Requests used: %d\n", used)
	for _, w := range warnings {
		cmd.Println(warnStyle.Render("Warning: " + w))
	}

	if failed > 0 && failed == len(results) {
		return ErrAllFailed
	}
	return nil
}

func runFreshnessStatus(cmd *cobra.Command, _ []string) error {
	if freshnessChecker == nil {
		return errors.New("freshness service not configured")
	}
	all, err := freshnessChecker.Freshness(cmd.Context())
	if err != nil {
		return err
	}
	if len(all) == 0 {
		cmd.Println("No surveys checked yet. Run 'collector sentinels select SURVEY' first.")
		return nil
	}

	cmd.Println(headingStyle.Render("Survey freshness"))
	for i := range all {
		f := &all[i]
		state := okStyle.Render("current")
		switch {
		case f.FullUpdateInProgress:
			state = warnStyle.Render(fmt.Sprintf("updating %d/%d", f.SeriesUpdatedCount, f.SeriesTotalCount))
		case f.NeedsFullUpdate:
			state = warnStyle.Render("needs update")
		}
		cmd.Printf("  %-4s %-16s checked %s  changed %s  updated %s",
			f.SurveyCode, state, ago(f.LastCheckedAt), ago(f.LastDetectedChange), ago(f.LastFullUpdateAt))
		if f.UpdateFrequencyDays > 0 {
			cmd.Printf("  %s", dimStyle.Render(fmt.Sprintf("every ~%.1f days", f.UpdateFrequencyDays)))
		}
		cmd.Println()
	}
	return nil
}

// ago renders a timestamp relative to now.
func ago(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// sentinelStatus labels a sentinel's most recent check.
func sentinelStatus(s *domain.SurveySentinel) string {
	switch {
	case s.CheckCount == 0:
		return dimStyle.Render("unchecked")
	case s.HasChanged:
		return warnStyle.Render("changed")
	default:
		return okStyle.Render("same")
	}
}
