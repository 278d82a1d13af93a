package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"
)

// maxSummaryErrors bounds the errors printed after a run.
const maxSummaryErrors = 5

type syncOptions struct {
	all            bool
	force          bool
	checkOnly      bool
	checkFreshness bool
	yes            bool
	quota          int
	budget         int
	startYear      int
	endYear        int
	parallel       int
}

var syncOpts syncOptions

// stdinIsTerminal is replaced in tests.
var stdinIsTerminal = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) //nolint:gosec // Fd fits in int on supported platforms
}

var syncCmd = &cobra.Command{
	Use:   "sync [SURVEY...]",
	Short: "Synchronise survey time series",
	Long: `Synchronise the active series of one or more surveys.

By default an interrupted update cycle is resumed and series already current
are skipped. --force starts a fresh cycle and re-fetches every series.
Each run spends at most the remaining daily quota (or --budget when lower);
progress is committed after every batch so a later run picks up where this
one stopped.`,
	RunE: runSync,
}

func init() {
	f := syncCmd.Flags()
	f.BoolVar(&syncOpts.all, "all", false, "synchronise every configured survey")
	f.BoolVar(&syncOpts.force, "force", false, "start a fresh cycle and re-fetch every series")
	f.BoolVar(&syncOpts.checkOnly, "check-only", false, "report outstanding work without calling the API")
	f.BoolVar(&syncOpts.checkFreshness, "check-freshness", false, "check sentinels first and sync only surveys with new data")
	f.BoolVarP(&syncOpts.yes, "yes", "y", false, "proceed without confirmation when quota is short")
	f.IntVar(&syncOpts.quota, "quota", 0, "daily request limit (default from config)")
	f.IntVar(&syncOpts.budget, "budget", 0, "maximum requests this run may spend")
	f.IntVar(&syncOpts.startYear, "start-year", 0, "first year to fetch (default prior year)")
	f.IntVar(&syncOpts.endYear, "end-year", 0, "last year to fetch (default current year)")
	f.IntVar(&syncOpts.parallel, "parallel", 0, "surveys to synchronise at once (default from config)")
	rootCmd.AddCommand(syncCmd)
}

//nolint:gocyclo // Flag resolution reads top to bottom
func runSync(cmd *cobra.Command, args []string) error {
	if cycleManager == nil {
		return errors.New("sync service not configured")
	}

	codes, err := resolveSurveys(args, syncOpts.all)
	if err != nil {
		return err
	}
	if surveyRegistry != nil {
		if codes, err = surveyRegistry.Validate(codes); err != nil {
			return err
		}
	}

	years, err := yearsFromFlags(time.Now())
	if err != nil {
		return err
	}

	settings := currentSettings()
	limit := settings.Quota.DailyLimit
	if syncOpts.quota > 0 {
		limit = syncOpts.quota
	}
	parallel := settings.Sync.Parallel
	if syncOpts.parallel > 0 {
		parallel = syncOpts.parallel
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if syncOpts.checkOnly {
		return runCheckOnly(ctx, cmd, codes, years, limit)
	}

	if syncOpts.checkFreshness {
		if codes, err = staleSurveys(ctx, cmd, codes); err != nil {
			return err
		}
		if len(codes) == 0 {
			cmd.Println(okStyle.Render("All surveys are current."))
			return nil
		}
	}

	mode := domain.SyncModeSoft
	if syncOpts.force {
		mode = domain.SyncModeForce
	}
	plan := domain.SyncPlan{
		SurveyCodes: codes,
		Mode:        mode,
		Years:       years,
		QuotaBudget: syncOpts.budget,
		DailyLimit:  limit,
		Parallel:    parallel,
		AutoConfirm: syncOpts.yes || !stdinIsTerminal(),
		Confirm:     confirmPrompt(cmd),
		Progress:    progressPrinter(cmd.ErrOrStderr()),
	}

	cmd.Printf("Synchronising %s (%s, %d-%d)\n", strings.Join(codes, ", "), mode, years.Start, years.End)
	summary, err := cycleManager.SyncSurveys(ctx, plan)
	if err != nil {
		return err
	}
	if summary.Declined {
		cmd.Println("Cancelled.")
		return nil
	}

	printSyncSummary(cmd.OutOrStdout(), summary)
	if summary.AllFailed() {
		return ErrAllFailed
	}
	return nil
}

func yearsFromFlags(now time.Time) (domain.YearRange, error) {
	years := domain.DefaultYearRange(now)
	if syncOpts.startYear > 0 {
		years.Start = syncOpts.startYear
	}
	if syncOpts.endYear > 0 {
		years.End = syncOpts.endYear
	}
	if err := years.Validate(); err != nil {
		return domain.YearRange{}, err
	}
	return years, nil
}

func runCheckOnly(ctx context.Context, cmd *cobra.Command, codes []string, years domain.YearRange, limit int) error {
	reports, err := cycleManager.CheckOnly(ctx, codes, years)
	if err != nil {
		return err
	}

	cmd.Println(headingStyle.Render("Outstanding work"))
	needed := 0
	for i := range reports {
		r := &reports[i]
		needed += r.RequestsNeeded
		line := fmt.Sprintf("  %-4s %7d active %7d current %7d outstanding  ~%d requests",
			r.SurveyCode, r.ActiveSeries, r.CurrentSeries, r.Outstanding, r.RequestsNeeded)
		if r.Cycle.IsActive() {
			line += fmt.Sprintf("  cycle %.1f%%", r.Cycle.Percent())
		}
		if r.NeedsFullUpdate {
			line += "  " + warnStyle.Render("new data upstream")
		}
		cmd.Println(line)
	}

	if quotaLedger != nil {
		remaining, err := quotaLedger.Remaining(ctx, quotaLedger.Today(), limit)
		if err != nil {
			return err
		}
		cmd.Printf("Requests needed: %d, remaining today: %d\n", needed, remaining)
	}
	return nil
}

// staleSurveys runs a sentinel check and keeps the surveys with new data.
func staleSurveys(ctx context.Context, cmd *cobra.Command, codes []string) ([]string, error) {
	if freshnessChecker == nil {
		return nil, errors.New("freshness service not configured")
	}
	var stale []string
	for _, res := range freshnessChecker.CheckAll(ctx, codes) {
		switch {
		case res.QuotaExhausted:
			cmd.Printf("  %-4s %s\n", res.SurveyCode, warnStyle.Render("check skipped: quota exhausted"))
		case res.Err != nil:
			cmd.Printf("  %-4s %s\n", res.SurveyCode, errStyle.Render("check failed: "+res.Err.Error()))
		case res.HasNewData:
			cmd.Printf("  %-4s %s\n", res.SurveyCode, warnStyle.Render("new data"))
			stale = append(stale, res.SurveyCode)
		default:
			cmd.Printf("  %-4s %s\n", res.SurveyCode, okStyle.Render("current"))
		}
	}
	return stale, nil
}

func confirmPrompt(cmd *cobra.Command) domain.ConfirmFunc {
	return func(needed, available int) bool {
		cmd.Printf("About %d requests are needed but only %d are available. Continue with a partial update? [y/N] ",
			needed, available)
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return false
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes"
	}
}

// progressPrinter reports batches; surveys may run concurrently.
func progressPrinter(w io.Writer) domain.ProgressFunc {
	var mu sync.Mutex
	return func(p domain.Progress) {
		mu.Lock()
		defer mu.Unlock()
		_, _ = fmt.Fprintf(w, "%s batch %d/%d: %d/%d series, %d requests\n",
			p.SurveyCode, p.Batch, p.Batches, p.SeriesUpdated, p.SeriesTotal, p.RequestsUsed)
	}
}

func printSyncSummary(w io.Writer, s *domain.SyncSummary) {
	p := func(format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

	p("\n%s\n", headingStyle.Render("Sync summary"))
	for _, r := range s.Results {
		p("  %-4s %-22s %6d series %8d observations %5d requests",
			r.SurveyCode, resultLabel(r), r.SeriesUpdated, r.ObservationsAdded, r.RequestsUsed)
		if r.Outstanding > 0 {
			p("  %s", dimStyle.Render(fmt.Sprintf("%d outstanding", r.Outstanding)))
		}
		p("\n")
	}

	p("Series updated:       %d\n", s.SeriesUpdated)
	p("Observations written: %d\n", s.ObservationsAdded)
	p("Requests used:        %d\n", s.RequestsUsed)

	for _, msg := range s.Warnings {
		p("%s\n", warnStyle.Render("warning: "+msg))
	}
	if len(s.Errors) > 0 {
		shown := s.FirstErrors(maxSummaryErrors)
		p("%s\n", errStyle.Render(fmt.Sprintf("Errors (%d of %d):", len(shown), len(s.Errors))))
		for _, e := range shown {
			p("  %s: %s\n", e.SurveyCode, e.Error())
		}
	}
}

func resultLabel(r *domain.SyncResult) string {
	switch {
	case r.Err != nil:
		return errStyle.Render("failed: " + r.Err.Error())
	case r.AlreadyRunning:
		return warnStyle.Render("already running")
	case r.Cancelled:
		return warnStyle.Render("interrupted")
	case r.QuotaExhausted:
		return warnStyle.Render("paused (quota)")
	case r.AllBatchesFailed():
		return errStyle.Render("all batches failed")
	case r.Completed:
		return okStyle.Render("complete")
	default:
		return "partial"
	}
}
