package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/ports/driven"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/ports/driving"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/logger"
)

// Ensure CycleManager implements the interface.
var _ driving.CycleManager = (*CycleManager)(nil)

// CycleManager resolves, runs and persists update cycles.
type CycleManager struct {
	registry  *domain.SurveyRegistry
	api       driven.TimeSeriesAPI
	data      driven.DataStore
	cycles    driven.UpdateCycleStore
	freshness driven.FreshnessStore
	tracker   *SeriesTracker
	ledger    *QuotaLedger
	metrics   driven.Metrics

	batchSize  int
	maxYears   int
	lease      time.Duration
	retryDelay time.Duration
	now        func() time.Time
}

// NewCycleManager creates a cycle manager.
// The freshness store and metrics are optional and may be nil.
func NewCycleManager(
	registry *domain.SurveyRegistry,
	api driven.TimeSeriesAPI,
	data driven.DataStore,
	cycles driven.UpdateCycleStore,
	freshness driven.FreshnessStore,
	tracker *SeriesTracker,
	ledger *QuotaLedger,
	metrics driven.Metrics,
) *CycleManager {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &CycleManager{
		registry:   registry,
		api:        api,
		data:       data,
		cycles:     cycles,
		freshness:  freshness,
		tracker:    tracker,
		ledger:     ledger,
		metrics:    metrics,
		batchSize:  domain.MaxSeriesPerRequest,
		maxYears:   domain.MaxYearsPerRequest,
		lease:      domain.DefaultCycleLease,
		retryDelay: 500 * time.Millisecond,
		now:        time.Now,
	}
}

// SetRequestShape matches batching to the API client's per-request limits,
// so request estimates and budget reservations agree with what is spent.
func (m *CycleManager) SetRequestShape(seriesPerRequest, yearsPerRequest int) {
	if seriesPerRequest > 0 {
		m.batchSize = seriesPerRequest
	}
	if yearsPerRequest > 0 {
		m.maxYears = yearsPerRequest
	}
}

// SetCycleLease sets how long a running cycle may go without a heartbeat
// before a later run takes it over. Zero or negative disables takeover.
func (m *CycleManager) SetCycleLease(d time.Duration) {
	m.lease = d
}

// staleBefore is the heartbeat bound below which a running cycle is
// presumed dead. Zero when takeover is disabled.
func (m *CycleManager) staleBefore() time.Time {
	if m.lease <= 0 {
		return time.Time{}
	}
	return m.now().Add(-m.lease)
}

// runBudget is the in-process request reservation shared by the surveys of one run.
type runBudget struct {
	mu        sync.Mutex
	remaining int
}

func (b *runBudget) reserve(n int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > b.remaining {
		return false
	}
	b.remaining -= n
	return true
}

func (b *runBudget) refund(n int) {
	if n <= 0 {
		return
	}
	b.mu.Lock()
	b.remaining += n
	b.mu.Unlock()
}

func (b *runBudget) available() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining
}

// newBudget caps the run at min(quotaBudget, quota remaining today).
// A non-positive quotaBudget means no cap beyond the daily quota.
func (m *CycleManager) newBudget(ctx context.Context, quotaBudget, dailyLimit int) (*runBudget, []string, error) {
	today := m.ledger.Today()
	used, err := m.ledger.Used(ctx, today)
	if err != nil {
		return nil, nil, err
	}

	var warnings []string
	if w := OverLimitWarning(today, used, dailyLimit); w != "" {
		warnings = append(warnings, w)
	}

	remaining := dailyLimit - used
	if remaining < 0 {
		remaining = 0
	}
	m.metrics.QuotaRemaining(remaining)

	if quotaBudget > 0 && quotaBudget < remaining {
		remaining = quotaBudget
	}
	return &runBudget{remaining: remaining}, warnings, nil
}

// normalise validates the mode and year range and fills defaults.
func (m *CycleManager) normalise(mode domain.SyncMode, years domain.YearRange, dailyLimit int) (domain.SyncMode, domain.YearRange, int, error) {
	if mode == "" {
		mode = domain.SyncModeSoft
	}
	if !mode.IsValid() {
		return "", years, 0, fmt.Errorf("%w: sync mode %q", domain.ErrInvalidInput, mode)
	}
	if years == (domain.YearRange{}) {
		years = domain.DefaultYearRange(m.now())
	}
	if err := years.Validate(); err != nil {
		return "", years, 0, err
	}
	if dailyLimit <= 0 {
		dailyLimit = DefaultDailyLimit
	}
	return mode, years, dailyLimit, nil
}

// SyncSurvey synchronises one survey.
func (m *CycleManager) SyncSurvey(ctx context.Context, req domain.SyncRequest) (*domain.SyncResult, error) {
	codes, err := m.registry.Validate([]string{req.SurveyCode})
	if err != nil {
		return nil, err
	}
	mode, years, limit, err := m.normalise(req.Mode, req.Years, req.DailyLimit)
	if err != nil {
		return nil, err
	}
	req.SurveyCode, req.Mode, req.Years, req.DailyLimit = codes[0], mode, years, limit

	budget, warnings, err := m.newBudget(ctx, req.QuotaBudget, limit)
	if err != nil {
		return nil, err
	}

	res, err := m.syncSurvey(ctx, req, budget)
	if res != nil {
		res.Warnings = append(warnings, res.Warnings...)
	}
	return res, err
}

// SyncSurveys validates every code before any network activity, then runs the
// surveys under one shared budget.
func (m *CycleManager) SyncSurveys(ctx context.Context, plan domain.SyncPlan) (*domain.SyncSummary, error) {
	codes, err := m.registry.Validate(plan.SurveyCodes)
	if err != nil {
		return nil, err
	}
	mode, years, limit, err := m.normalise(plan.Mode, plan.Years, plan.DailyLimit)
	if err != nil {
		return nil, err
	}

	budget, warnings, err := m.newBudget(ctx, plan.QuotaBudget, limit)
	if err != nil {
		return nil, err
	}
	summary := &domain.SyncSummary{Warnings: warnings}

	if !plan.AutoConfirm && plan.Confirm != nil {
		reports, err := m.CheckOnly(ctx, codes, years)
		if err != nil {
			return nil, err
		}
		needed := 0
		for i := range reports {
			if mode == domain.SyncModeForce {
				needed += requestsFor(reports[i].ActiveSeries, m.batchSize, years.Windows(m.maxYears))
			} else {
				needed += reports[i].RequestsNeeded
			}
		}
		if needed > budget.available() && !plan.Confirm(needed, budget.available()) {
			summary.Declined = true
			summary.Warnings = append(summary.Warnings, fmt.Sprintf("run declined: %d requests needed, %d available", needed, budget.available()))
			return summary, nil
		}
	}

	request := func(code string) domain.SyncRequest {
		return domain.SyncRequest{
			SurveyCode:  code,
			Mode:        mode,
			Years:       years,
			QuotaBudget: plan.QuotaBudget,
			DailyLimit:  limit,
			Progress:    plan.Progress,
		}
	}

	results := make([]*domain.SyncResult, len(codes))
	if plan.Parallel > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(plan.Parallel)
		for i, code := range codes {
			g.Go(func() error {
				res, err := m.runOne(gctx, request(code), budget)
				results[i] = res
				return err
			})
		}
		err = g.Wait()
	} else {
		for i, code := range codes {
			results[i], err = m.runOne(ctx, request(code), budget)
			if err != nil {
				break
			}
		}
	}

	for _, res := range results {
		summary.Add(res)
	}
	return summary, err
}

// runOne isolates survey-level failures into the result. Only persistence
// failures abort the whole run.
func (m *CycleManager) runOne(ctx context.Context, req domain.SyncRequest, budget *runBudget) (*domain.SyncResult, error) {
	res, err := m.syncSurvey(ctx, req, budget)
	if err == nil {
		return res, nil
	}
	if errors.Is(err, domain.ErrPersistence) {
		return res, err
	}
	logger.Error("sync %s: %v", req.SurveyCode, err)
	if res == nil {
		res = &domain.SyncResult{SurveyCode: req.SurveyCode}
	}
	res.Err = err
	return res, nil
}

// syncSurvey runs the state machine for one survey. req is already validated.
//
//nolint:gocyclo // Sequential batch loop with bookkeeping at each step
func (m *CycleManager) syncSurvey(ctx context.Context, req domain.SyncRequest, budget *runBudget) (*domain.SyncResult, error) {
	code := req.SurveyCode
	force := req.Mode == domain.SyncModeForce
	res := &domain.SyncResult{SurveyCode: code}

	logger.Section("Sync " + code)

	active, err := m.data.ActiveSeriesIDs(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("listing active series: %w", err)
	}

	cycle, busy, err := m.resolveCycle(ctx, code, force, len(active))
	if err != nil {
		return nil, err
	}

	// Computed after resolving: a force update resets series status first.
	outstanding, err := m.tracker.Outstanding(ctx, code, force)
	if err != nil {
		return nil, err
	}

	if cycle == nil {
		if len(outstanding) == 0 {
			logger.Info("%s: nothing outstanding, no cycle needed", code)
			res.Completed = true
			return res, nil
		}
		if cycle, err = m.createCycle(ctx, code, len(active), force); err != nil {
			return nil, err
		}
	}
	res.CycleID = cycle.ID
	res.Cycle = cycle

	if busy {
		res.AlreadyRunning = true
		logger.Info("%s: cycle %s already running", code, cycle.ID)
		return res, nil
	}

	staleBefore := m.staleBefore()
	started, err := m.cycles.TryStart(ctx, cycle.ID, m.now(), staleBefore)
	if err != nil {
		return nil, fmt.Errorf("starting cycle: %w", err)
	}
	if !started {
		res.AlreadyRunning = true
		logger.Info("%s: cycle %s already running", code, cycle.ID)
		return res, nil
	}
	if cycle.IsStale(staleBefore) {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"%s: took over cycle %s, its last run stopped without finishing (last heartbeat %s)",
			code, cycle.ID, cycle.LastBeat().Format(time.RFC3339)))
		logger.Warn("%s: took over stale cycle %s", code, cycle.ID)
	}

	// Bookkeeping after this point must survive an operator interrupt.
	bctx := context.WithoutCancel(ctx)

	total := len(active)
	updated := cycle.SeriesUpdated
	if seeded := total - len(outstanding); seeded > updated {
		updated = seeded
	}
	if updated > total {
		updated = total
	}

	complete := false
	defer func() {
		at := m.now()
		if err := m.cycles.Finish(bctx, cycle.ID, complete, at); err != nil {
			logger.Error("finishing cycle %s: %v", cycle.ID, err)
		}
		if !complete {
			at = time.Time{}
		}
		m.mirrorProgress(bctx, code, false, total, updated, at)
		if c, err := m.cycles.Get(bctx, cycle.ID); err == nil {
			res.Cycle = c
		}
	}()

	if err := m.cycles.SaveProgress(bctx, cycle.ID, total, updated, m.now()); err != nil {
		return res, fmt.Errorf("%w: saving cycle progress: %w", domain.ErrPersistence, err)
	}
	m.mirrorProgress(bctx, code, true, total, updated, time.Time{})

	lastObserved, err := m.tracker.LastObserved(ctx, code)
	if err != nil {
		return res, err
	}

	windows := req.Years.Windows(m.maxYears)
	batches := chunk(outstanding, m.batchSize)
	if need := len(batches) * windows; need > budget.available() {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"%s: %d requests needed, %d available; the cycle will pause and resume on a later run",
			code, need, budget.available()))
	}

	logger.Info("%s: cycle %s, %d/%d current, %d outstanding in %d batches",
		code, cycle.ID, updated, total, len(outstanding), len(batches))

	for i, batch := range batches {
		if ctx.Err() != nil {
			res.Cancelled = true
			logger.Warn("%s: interrupted before batch %d", code, i+1)
			break
		}

		// Re-read the date each batch: a long run may cross the quota reset.
		remaining, err := m.ledger.Remaining(bctx, m.ledger.Today(), req.DailyLimit)
		if err != nil {
			return res, err
		}
		if remaining < windows || !budget.reserve(windows) {
			res.QuotaExhausted = true
			logger.Info("%s: quota exhausted after %d batches", code, i)
			break
		}

		fr, err := m.api.FetchMany(bctx, batch, req.Years.Start, req.Years.End, domain.FetchOptions{})
		if err != nil {
			budget.refund(windows)
			return res, fmt.Errorf("fetching batch %d: %w", i+1, err)
		}
		budget.refund(windows - fr.RequestsUsed)

		// Quota first: spent requests must be on the ledger before progress is.
		if fr.RequestsUsed > 0 {
			err := m.retry(bctx, func() error {
				_, err := m.ledger.Record(bctx, code, fr.RequestsUsed, len(batch))
				return err
			})
			if err != nil {
				return res, fmt.Errorf("%w: recording quota for batch %d: %w", domain.ErrPersistence, i+1, err)
			}
		}
		res.RequestsUsed += fr.RequestsUsed
		res.BatchesAttempted++

		if fr.Failed() {
			res.BatchesFailed++
			for _, be := range fr.Errors {
				be.SurveyCode = code
				be.Batch = i
				res.Errors = append(res.Errors, be)
				logger.Warn("%s: %v", code, be)
			}
			m.metrics.BatchFailed(code)
		}

		failed := fr.FailedSeries()
		latest := domain.LatestBySeries(fr.Observations)
		var checks []domain.SeriesCheck
		for _, id := range batch {
			if failed[id] {
				continue
			}
			p := latest[id].Key()
			checks = append(checks, domain.SeriesCheck{
				SeriesID:   id,
				HadNewData: !p.IsZero() && p.After(lastObserved[id]),
				Latest:     p,
				CheckedAt:  m.now(),
			})
		}

		next := updated + len(checks)
		if next > total {
			next = total
		}

		written := 0
		err = m.retry(bctx, func() error {
			n, err := m.data.UpsertObservations(bctx, code, fr.Observations)
			if err != nil {
				return err
			}
			if err := m.tracker.MarkChecked(bctx, code, checks); err != nil {
				return err
			}
			if err := m.cycles.SaveProgress(bctx, cycle.ID, total, next, m.now()); err != nil {
				return err
			}
			written = n
			return nil
		})
		if err != nil {
			return res, fmt.Errorf("%w: committing batch %d: %w", domain.ErrPersistence, i+1, err)
		}

		updated = next
		for _, c := range checks {
			if !c.Latest.IsZero() {
				lastObserved[c.SeriesID] = c.Latest
			}
		}
		res.SeriesUpdated += len(checks)
		res.ObservationsAdded += written

		m.metrics.BatchCommitted(code, len(checks), written, fr.RequestsUsed)
		m.mirrorProgress(bctx, code, true, total, updated, time.Time{})
		if req.Progress != nil {
			req.Progress(domain.Progress{
				SurveyCode:        code,
				Batch:             i + 1,
				Batches:           len(batches),
				SeriesUpdated:     updated,
				SeriesTotal:       total,
				ObservationsAdded: res.ObservationsAdded,
				RequestsUsed:      res.RequestsUsed,
				Errors:            len(res.Errors),
			})
		}
	}

	left, err := m.tracker.Outstanding(bctx, code, false)
	if err != nil {
		return res, err
	}
	res.Outstanding = len(left)
	complete = len(left) == 0 && updated >= total
	res.Completed = complete

	logger.Info("%s: %d series updated, %d requests, complete=%t", code, res.SeriesUpdated, res.RequestsUsed, complete)
	return res, nil
}

// resolveCycle finds the cycle a run should use. A nil cycle with busy=false
// means there is no active cycle yet.
func (m *CycleManager) resolveCycle(ctx context.Context, code string, force bool, total int) (cycle *domain.UpdateCycle, busy bool, err error) {
	cycle, err = m.cycles.Active(ctx, code)
	if err != nil {
		return nil, false, fmt.Errorf("loading active cycle: %w", err)
	}
	if !force {
		return cycle, false, nil
	}

	if cycle != nil {
		staleBefore := m.staleBefore()
		if cycle.IsRunning && !cycle.IsStale(staleBefore) {
			return cycle, true, nil
		}
		ok, err := m.cycles.Supersede(ctx, cycle.ID, m.now(), staleBefore)
		if err != nil {
			return nil, false, fmt.Errorf("superseding cycle: %w", err)
		}
		if !ok {
			// Taken by another run between the read and the supersede.
			return cycle, true, nil
		}
		if cycle.IsRunning {
			logger.Warn("%s: superseded stale cycle %s (last heartbeat %s)", code, cycle.ID, cycle.LastBeat().Format(time.RFC3339))
		} else {
			logger.Info("%s: superseded cycle %s", code, cycle.ID)
		}
	}

	if _, err := m.tracker.ResetSurvey(ctx, code); err != nil {
		return nil, false, err
	}
	cycle, err = m.createCycle(ctx, code, total, true)
	return cycle, false, err
}

// createCycle inserts a new cycle, or returns the one a concurrent run created.
func (m *CycleManager) createCycle(ctx context.Context, code string, total int, force bool) (*domain.UpdateCycle, error) {
	cycle := &domain.UpdateCycle{
		ID:          uuid.NewString(),
		SurveyCode:  code,
		TotalSeries: total,
		Force:       force,
		CreatedAt:   m.now(),
	}
	err := m.cycles.Create(ctx, cycle)
	if errors.Is(err, domain.ErrAlreadyExists) {
		existing, err := m.cycles.Active(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("loading active cycle: %w", err)
		}
		if existing == nil {
			return nil, fmt.Errorf("creating cycle for %s: %w", code, domain.ErrSyncInProgress)
		}
		return existing, nil
	}
	if err != nil {
		return nil, fmt.Errorf("creating cycle: %w", err)
	}
	logger.Info("%s: created cycle %s (%d series, force=%t)", code, cycle.ID, total, force)
	return cycle, nil
}

func (m *CycleManager) mirrorProgress(ctx context.Context, code string, inProgress bool, total, updated int, completedAt time.Time) {
	if m.freshness == nil {
		return
	}
	if err := m.freshness.SaveProgress(ctx, code, inProgress, total, updated, completedAt); err != nil {
		logger.Warn("%s: mirroring progress: %v", code, err)
	}
}

// retry runs fn, and once more after a pause if it fails.
func (m *CycleManager) retry(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	logger.Warn("persistence failed, retrying: %v", err)
	select {
	case <-ctx.Done():
		return err
	case <-time.After(m.retryDelay):
	}
	return fn()
}

// CheckOnly reports outstanding work without calling the API or spending quota.
func (m *CycleManager) CheckOnly(ctx context.Context, surveyCodes []string, years domain.YearRange) ([]domain.OutstandingReport, error) {
	codes, err := m.registry.Validate(surveyCodes)
	if err != nil {
		return nil, err
	}
	if years == (domain.YearRange{}) {
		years = domain.DefaultYearRange(m.now())
	}
	if err := years.Validate(); err != nil {
		return nil, err
	}
	windows := years.Windows(m.maxYears)

	reports := make([]domain.OutstandingReport, 0, len(codes))
	for _, code := range codes {
		active, current, outstanding, err := m.tracker.Counts(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", code, err)
		}
		cycle, err := m.cycles.Active(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("%s: loading active cycle: %w", code, err)
		}
		r := domain.OutstandingReport{
			SurveyCode:     code,
			ActiveSeries:   active,
			CurrentSeries:  current,
			Outstanding:    outstanding,
			RequestsNeeded: requestsFor(outstanding, m.batchSize, windows),
			Cycle:          cycle,
		}
		if m.freshness != nil {
			f, err := m.freshness.GetFreshness(ctx, code)
			switch {
			case err == nil:
				r.NeedsFullUpdate = f.NeedsFullUpdate
			case !errors.Is(err, domain.ErrNotFound):
				return nil, fmt.Errorf("%s: loading freshness: %w", code, err)
			}
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// Status returns the survey's active cycle, or its most recent one.
func (m *CycleManager) Status(ctx context.Context, surveyCode string) (*domain.UpdateCycle, error) {
	codes, err := m.registry.Validate([]string{surveyCode})
	if err != nil {
		return nil, err
	}
	cycle, err := m.cycles.Active(ctx, codes[0])
	if err != nil || cycle != nil {
		return cycle, err
	}
	recent, err := m.cycles.List(ctx, codes[0], 1)
	if err != nil {
		return nil, err
	}
	if len(recent) == 0 {
		return nil, nil
	}
	return &recent[0], nil
}

func requestsFor(series, batchSize, windows int) int {
	if series <= 0 || batchSize <= 0 {
		return 0
	}
	return (series + batchSize - 1) / batchSize * windows
}

func chunk(ids []string, size int) [][]string {
	var out [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}

// nopMetrics discards every observation.
type nopMetrics struct{}

func (nopMetrics) APIRequest(string)                   {}
func (nopMetrics) APIRetry()                           {}
func (nopMetrics) BatchCommitted(string, int, int, int) {}
func (nopMetrics) BatchFailed(string)                  {}
func (nopMetrics) QuotaRemaining(int)                  {}
func (nopMetrics) FreshnessChecked(string, int)        {}
