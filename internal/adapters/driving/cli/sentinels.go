package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var sentinelCount int

var sentinelsCmd = &cobra.Command{
	Use:   "sentinels",
	Short: "Manage the sentinel sample of a survey",
}

var sentinelsSelectCmd = &cobra.Command{
	Use:   "select SURVEY",
	Short: "Select evenly spaced sentinel series",
	Long: `Select evenly spaced series from the survey's sorted active series as
sentinels, replacing any previous selection. Baselines are taken from stored
observations, so run this after the survey's first sync.`,
	Args: cobra.ExactArgs(1),
	RunE: runSentinelsSelect,
}

var sentinelsListCmd = &cobra.Command{
	Use:   "list SURVEY",
	Short: "List a survey's sentinels",
	Args:  cobra.ExactArgs(1),
	RunE:  runSentinelsList,
}

func init() {
	sentinelsSelectCmd.Flags().IntVar(&sentinelCount, "count", 0, "number of sentinels (default from config, 50)")
	sentinelsCmd.AddCommand(sentinelsSelectCmd)
	sentinelsCmd.AddCommand(sentinelsListCmd)
	rootCmd.AddCommand(sentinelsCmd)
}

func runSentinelsSelect(cmd *cobra.Command, args []string) error {
	if freshnessChecker == nil {
		return errors.New("freshness service not configured")
	}
	n := sentinelCount
	if n <= 0 {
		n = currentSettings().Sync.SentinelsPerSurvey
	}
	selected, err := freshnessChecker.SelectSentinels(cmd.Context(), args[0], n)
	if err != nil {
		return err
	}
	cmd.Printf("Selected %d sentinels\n", len(selected))
	return nil
}

func runSentinelsList(cmd *cobra.Command, args []string) error {
	if freshnessChecker == nil {
		return errors.New("freshness service not configured")
	}
	list, err := freshnessChecker.Sentinels(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if len(list) == 0 {
		cmd.Println("No sentinels selected.")
		return nil
	}
	for i := range list {
		s := &list[i]
		cmd.Printf("  %3d  %-24s %-10s last %s  checks %d  changes %d\n",
			s.Position, s.SeriesID, sentinelStatus(s), s.LastSeen, s.CheckCount, s.ChangeCount)
	}
	return nil
}
