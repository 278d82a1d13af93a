package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var importDeactivate bool

var seriesCmd = &cobra.Command{
	Use:   "series",
	Short: "Manage the tracked series of a survey",
}

var seriesImportCmd = &cobra.Command{
	Use:   "import SURVEY FILE",
	Short: "Import a survey's series catalog",
	Long: `Import a tab- or comma-delimited series catalog with a series_id column
(and optional series_title). Use "-" to read from stdin. Imported series are
marked active; with --deactivate-missing, active series absent from the file
are deactivated.`,
	Args: cobra.ExactArgs(2),
	RunE: runSeriesImport,
}

var seriesResetCmd = &cobra.Command{
	Use:   "reset SURVEY",
	Short: "Mark every series of a survey as needing an update",
	Args:  cobra.ExactArgs(1),
	RunE:  runSeriesReset,
}

var seriesStatusCmd = &cobra.Command{
	Use:   "status SURVEY",
	Short: "Show series counts and the current update cycle",
	Args:  cobra.ExactArgs(1),
	RunE:  runSeriesStatus,
}

func init() {
	seriesImportCmd.Flags().BoolVar(&importDeactivate, "deactivate-missing", false,
		"deactivate active series not present in the file")
	seriesCmd.AddCommand(seriesImportCmd)
	seriesCmd.AddCommand(seriesResetCmd)
	seriesCmd.AddCommand(seriesStatusCmd)
	rootCmd.AddCommand(seriesCmd)
}

func runSeriesImport(cmd *cobra.Command, args []string) error {
	if catalogImporter == nil {
		return errors.New("catalog service not configured")
	}

	var r io.Reader = cmd.InOrStdin()
	if args[1] != "-" {
		f, err := os.Open(args[1])
		if err != nil {
			return fmt.Errorf("open catalog: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	res, err := catalogImporter.Import(cmd.Context(), args[0], r, importDeactivate)
	if err != nil {
		return err
	}
	cmd.Printf("%s: imported %d series", res.SurveyCode, res.Imported)
	if res.Deactivated > 0 {
		cmd.Printf(", deactivated %d", res.Deactivated)
	}
	cmd.Println()
	return nil
}

func validSurvey(code string) (string, error) {
	if surveyRegistry == nil {
		return code, nil
	}
	codes, err := surveyRegistry.Validate([]string{code})
	if err != nil {
		return "", err
	}
	return codes[0], nil
}

func runSeriesReset(cmd *cobra.Command, args []string) error {
	if seriesTracker == nil {
		return errors.New("series tracker not configured")
	}
	code, err := validSurvey(args[0])
	if err != nil {
		return err
	}
	n, err := seriesTracker.ResetSurvey(cmd.Context(), code)
	if err != nil {
		return err
	}
	cmd.Printf("%s: %d series marked as needing an update\n", code, n)
	return nil
}

func runSeriesStatus(cmd *cobra.Command, args []string) error {
	if seriesTracker == nil || cycleManager == nil {
		return errors.New("series tracker not configured")
	}
	code, err := validSurvey(args[0])
	if err != nil {
		return err
	}
	active, current, outstanding, err := seriesTracker.Counts(cmd.Context(), code)
	if err != nil {
		return err
	}
	cycle, err := cycleManager.Status(cmd.Context(), code)
	if err != nil {
		return err
	}

	cmd.Println(headingStyle.Render(code))
	cmd.Printf("  Active series: %d\n", active)
	cmd.Printf("  Current:       %d\n", current)
	cmd.Printf("  Outstanding:   %d\n", outstanding)
	switch {
	case cycle == nil:
		cmd.Println("  Cycle:         none")
	case cycle.IsActive():
		state := "paused"
		if cycle.IsRunning {
			state = "running"
		}
		cmd.Printf("  Cycle:         %s, %d/%d (%.1f%%) since %s\n",
			state, cycle.SeriesUpdated, cycle.TotalSeries, cycle.Percent(), cycle.CreatedAt.Format("2006-01-02 15:04"))
	default:
		cmd.Printf("  Cycle:         %s %s\n", cycle.State(), ago(cycle.CompletedAt))
	}
	return nil
}
