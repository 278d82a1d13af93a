package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var surveysCmd = &cobra.Command{
	Use:   "surveys",
	Short: "List the surveys the collector can synchronise",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if surveyRegistry == nil {
			return errors.New("survey registry not configured")
		}
		configured := make(map[string]bool)
		for _, code := range currentSettings().Sync.Surveys {
			configured[code] = true
		}
		for _, s := range surveyRegistry.Surveys() {
			mark := " "
			if configured[s.Code] {
				mark = okStyle.Render("*")
			}
			cmd.Printf("%s %-4s %s\n", mark, s.Code, s.Name)
		}
		if len(configured) > 0 {
			cmd.Println(dimStyle.Render("* included in sync --all"))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(surveysCmd)
}
