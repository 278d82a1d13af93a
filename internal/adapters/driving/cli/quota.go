package cli

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"
)

var quotaDate string

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Show API quota usage for a day",
	Long: `Show requests spent against the shared daily API quota, per survey.
Days follow the upstream reporting time zone.`,
	Args: cobra.NoArgs,
	RunE: runQuota,
}

func init() {
	quotaCmd.Flags().StringVar(&quotaDate, "date", "", "day to report (YYYY-MM-DD, default today)")
	rootCmd.AddCommand(quotaCmd)
}

func runQuota(cmd *cobra.Command, _ []string) error {
	if quotaLedger == nil {
		return errors.New("quota service not configured")
	}
	date := quotaDate
	if date == "" {
		date = quotaLedger.Today()
	} else if _, err := time.Parse(domain.DateLayout, date); err != nil {
		return fmt.Errorf("%w: --date must be YYYY-MM-DD", domain.ErrInvalidInput)
	}

	status, err := quotaLedger.Status(cmd.Context(), date, currentSettings().Quota.DailyLimit)
	if err != nil {
		return err
	}

	cmd.Println(headingStyle.Render("Quota for " + status.Date))
	cmd.Printf("  Limit:     %d\n", status.DailyLimit)
	cmd.Printf("  Used:      %d\n", status.Used)
	remaining := fmt.Sprintf("%d", status.Remaining)
	if status.Remaining == 0 {
		remaining = errStyle.Render(remaining)
	}
	cmd.Printf("  Remaining: %s\n", remaining)
	if status.Overspent() {
		cmd.Println(warnStyle.Render(fmt.Sprintf("  Over the limit by %d requests", status.Used-status.DailyLimit)))
	}

	codes := make([]string, 0, len(status.BySurvey))
	for code := range status.BySurvey {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		cmd.Printf("    %-4s %d\n", code, status.BySurvey[code])
	}
	return nil
}
