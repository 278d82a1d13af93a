package cli

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/ports/driving"
)

// mockCycleManager implements driving.CycleManager for testing.
type mockCycleManager struct {
	plan     *domain.SyncPlan
	summary  *domain.SyncSummary
	err      error
	reports  []domain.OutstandingReport
	checked  []string
	years    domain.YearRange
	status   *domain.UpdateCycle
	confirms []bool
}

var _ driving.CycleManager = (*mockCycleManager)(nil)

func (m *mockCycleManager) SyncSurvey(_ context.Context, req domain.SyncRequest) (*domain.SyncResult, error) {
	return &domain.SyncResult{SurveyCode: req.SurveyCode, Completed: true}, m.err
}

func (m *mockCycleManager) SyncSurveys(_ context.Context, plan domain.SyncPlan) (*domain.SyncSummary, error) {
	m.plan = &plan
	if m.err != nil {
		return nil, m.err
	}
	if !plan.AutoConfirm && plan.Confirm != nil {
		ok := plan.Confirm(100, 10)
		m.confirms = append(m.confirms, ok)
		if !ok {
			return &domain.SyncSummary{Declined: true}, nil
		}
	}
	if m.summary != nil {
		return m.summary, nil
	}
	s := &domain.SyncSummary{}
	for _, code := range plan.SurveyCodes {
		s.Add(&domain.SyncResult{SurveyCode: code, Completed: true, SeriesUpdated: 2, ObservationsAdded: 24, RequestsUsed: 1})
	}
	return s, nil
}

func (m *mockCycleManager) CheckOnly(_ context.Context, codes []string, years domain.YearRange) ([]domain.OutstandingReport, error) {
	m.checked = codes
	m.years = years
	return m.reports, m.err
}

func (m *mockCycleManager) Status(_ context.Context, _ string) (*domain.UpdateCycle, error) {
	return m.status, m.err
}

// mockFreshnessChecker implements driving.FreshnessChecker for testing.
type mockFreshnessChecker struct {
	results   map[string]domain.FreshnessResult
	sentinels []domain.SurveySentinel
	freshness []domain.SurveyFreshness
	selected  int
	err       error
}

var _ driving.FreshnessChecker = (*mockFreshnessChecker)(nil)

func (m *mockFreshnessChecker) SelectSentinels(_ context.Context, code string, n int) ([]domain.SurveySentinel, error) {
	m.selected = n
	if m.err != nil {
		return nil, m.err
	}
	out := make([]domain.SurveySentinel, n)
	for i := range out {
		out[i] = domain.SurveySentinel{SurveyCode: code, Position: i}
	}
	return out, nil
}

func (m *mockFreshnessChecker) Sentinels(context.Context, string) ([]domain.SurveySentinel, error) {
	return m.sentinels, m.err
}

func (m *mockFreshnessChecker) CheckSurvey(_ context.Context, code string) domain.FreshnessResult {
	if r, ok := m.results[code]; ok {
		return r
	}
	return domain.FreshnessResult{SurveyCode: code}
}

func (m *mockFreshnessChecker) CheckAll(ctx context.Context, codes []string) []domain.FreshnessResult {
	out := make([]domain.FreshnessResult, 0, len(codes))
	for _, c := range codes {
		out = append(out, m.CheckSurvey(ctx, c))
	}
	return out
}

func (m *mockFreshnessChecker) NeedingUpdate(context.Context) ([]domain.SurveyFreshness, error) {
	var out []domain.SurveyFreshness
	for _, f := range m.freshness {
		if f.NeedsFullUpdate {
			out = append(out, f)
		}
	}
	return out, m.err
}

func (m *mockFreshnessChecker) Freshness(context.Context) ([]domain.SurveyFreshness, error) {
	return m.freshness, m.err
}

// mockQuotaLedger implements driving.QuotaLedger for testing.
type mockQuotaLedger struct {
	used     int
	bySurvey map[string]int
	date     string
	limit    int
}

var _ driving.QuotaLedger = (*mockQuotaLedger)(nil)

func (m *mockQuotaLedger) Today() string { return "2026-10-19" }

func (m *mockQuotaLedger) Remaining(_ context.Context, _ string, limit int) (int, error) {
	if m.used >= limit {
		return 0, nil
	}
	return limit - m.used, nil
}

func (m *mockQuotaLedger) Used(context.Context, string) (int, error) { return m.used, nil }

func (m *mockQuotaLedger) Status(ctx context.Context, date string, limit int) (*domain.QuotaStatus, error) {
	m.date = date
	m.limit = limit
	remaining, _ := m.Remaining(ctx, date, limit)
	return &domain.QuotaStatus{Date: date, DailyLimit: limit, Used: m.used, Remaining: remaining, BySurvey: m.bySurvey}, nil
}

func (m *mockQuotaLedger) Record(_ context.Context, code string, n, series int) (*domain.APIUsageLogEntry, error) {
	m.used += n
	return &domain.APIUsageLogEntry{SurveyCode: code, RequestsUsed: n, SeriesCount: series}, nil
}

// mockSeriesTracker implements driving.SeriesTracker for testing.
type mockSeriesTracker struct {
	reset string
}

var _ driving.SeriesTracker = (*mockSeriesTracker)(nil)

func (m *mockSeriesTracker) Outstanding(context.Context, string, bool) ([]string, error) {
	return nil, nil
}

func (m *mockSeriesTracker) MarkChecked(context.Context, string, []domain.SeriesCheck) error {
	return nil
}

func (m *mockSeriesTracker) ResetSurvey(_ context.Context, code string) (int, error) {
	m.reset = code
	return 7, nil
}

func (m *mockSeriesTracker) Counts(context.Context, string) (int, int, int, error) {
	return 10, 3, 7, nil
}

// mockCatalogImporter implements driving.CatalogImporter for testing.
type mockCatalogImporter struct {
	body       string
	deactivate bool
}

var _ driving.CatalogImporter = (*mockCatalogImporter)(nil)

func (m *mockCatalogImporter) Import(_ context.Context, code string, r io.Reader, deactivate bool) (*driving.ImportResult, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	m.body = string(b)
	m.deactivate = deactivate
	return &driving.ImportResult{SurveyCode: code, Imported: 2, Deactivated: 1}, nil
}

func testRegistry() *domain.SurveyRegistry {
	r := domain.NewSurveyRegistry(
		domain.Survey{Code: "CU", Name: "Consumer Price Index"},
		domain.Survey{Code: "LA", Name: "Local Area Unemployment Statistics"},
	)
	return &r
}

// setupCLITest installs the given services, clears command state and
// returns a cleanup func.
func setupCLITest(s Services) func() {
	oldCycles, oldFresh, oldQuota := cycleManager, freshnessChecker, quotaLedger
	oldTracker, oldCatalog, oldSched := seriesTracker, catalogImporter, scheduler
	oldSettings, oldRegistry, oldAfter := settingsService, surveyRegistry, afterRun
	oldTTY := stdinIsTerminal

	if s.Registry == nil {
		s.Registry = testRegistry()
	}
	SetServices(s)
	stdinIsTerminal = func() bool { return false }
	resetFlags()

	return func() {
		cycleManager, freshnessChecker, quotaLedger = oldCycles, oldFresh, oldQuota
		seriesTracker, catalogImporter, scheduler = oldTracker, oldCatalog, oldSched
		settingsService, surveyRegistry, afterRun = oldSettings, oldRegistry, oldAfter
		stdinIsTerminal = oldTTY
		resetFlags()
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
	}
}

// resetFlags clears flag values left behind by earlier Execute calls.
func resetFlags() {
	syncOpts = syncOptions{}
	sentinelCount = 0
	importDeactivate = false
	quotaDate = ""
}

// execute runs the root command with args and returns combined output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}
