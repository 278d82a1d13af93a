package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/ports/driven"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/ports/driving"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/logger"
)

// Ensure Scheduler implements the interface.
var _ driving.Scheduler = (*Scheduler)(nil)

// historyKeep is how many results are kept per task.
const historyKeep = 100

// Scheduler periodically checks survey freshness and syncs surveys that
// need a full update.
type Scheduler struct {
	config    domain.SchedulerConfig
	store     driven.SchedulerStore
	registry  *domain.SurveyRegistry
	checker   driving.FreshnessChecker
	cycles    driving.CycleManager
	tracker   driving.SeriesTracker
	syncTmpl  domain.SyncPlan
	tickEvery time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	busy    map[string]bool
}

// NewScheduler creates a scheduler. syncTmpl supplies the year range, budget
// and daily limit used by scheduled syncs; its survey list and mode are ignored.
func NewScheduler(
	config domain.SchedulerConfig,
	store driven.SchedulerStore,
	registry *domain.SurveyRegistry,
	checker driving.FreshnessChecker,
	cycles driving.CycleManager,
	tracker driving.SeriesTracker,
	syncTmpl domain.SyncPlan,
) *Scheduler {
	return &Scheduler{
		config:    config,
		store:     store,
		registry:  registry,
		checker:   checker,
		cycles:    cycles,
		tracker:   tracker,
		syncTmpl:  syncTmpl,
		tickEvery: time.Minute,
		busy:      make(map[string]bool),
	}
}

// Start begins the scheduler loop. This method blocks until Stop is called
// or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil // Already running
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	if err := s.initialiseTasks(ctx); err != nil {
		logger.Error("scheduler: failed to initialise tasks: %v", err)
	}

	return s.run(ctx)
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	// Wait for running tasks to complete
	s.wg.Wait()

	return nil
}

// Tasks returns the persisted task state.
func (s *Scheduler) Tasks(ctx context.Context) ([]domain.ScheduledTask, error) {
	return s.store.ListTasks(ctx)
}

// History returns a task's most recent runs, newest first.
func (s *Scheduler) History(ctx context.Context, taskID string, limit int) ([]domain.TaskResult, error) {
	if limit <= 0 || limit > historyKeep {
		limit = historyKeep
	}
	return s.store.History(ctx, taskID, limit)
}

// initialiseTasks ensures all configured tasks exist in the store.
func (s *Scheduler) initialiseTasks(ctx context.Context) error {
	tasks := []struct{ id, name string }{
		{domain.TaskIDFreshnessCheck, "Freshness Check"},
		{domain.TaskIDSurveySync, "Survey Sync"},
	}
	for _, t := range tasks {
		cfg := s.config.GetTaskConfig(t.id)
		if !cfg.Enabled {
			continue
		}
		if err := s.ensureTask(ctx, t.id, t.name, cfg); err != nil {
			return err
		}
	}
	return nil
}

// ensureTask creates or updates a task in the store.
func (s *Scheduler) ensureTask(ctx context.Context, id, name string, cfg domain.TaskConfig) error {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return err
	}

	if task == nil {
		// New tasks run on the first tick.
		task = &domain.ScheduledTask{
			ID:       id,
			Name:     name,
			Interval: cfg.Interval,
			Enabled:  cfg.Enabled,
			NextRun:  time.Now(),
		}
	} else {
		if task.Interval != cfg.Interval {
			task.Interval = cfg.Interval
			task.NextRun = time.Now().Add(cfg.Interval)
		}
		task.Enabled = cfg.Enabled
	}

	return s.store.SaveTask(ctx, task)
}

// run is the main scheduler loop.
func (s *Scheduler) run(ctx context.Context) error {
	s.checkAndRunDueTasks(ctx)

	ticker := time.NewTicker(s.tickEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		case <-ticker.C:
			s.checkAndRunDueTasks(ctx)
		}
	}
}

// checkAndRunDueTasks finds and executes tasks that are due.
func (s *Scheduler) checkAndRunDueTasks(ctx context.Context) {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		logger.Error("scheduler: failed to list tasks: %v", err)
		return
	}

	now := time.Now()
	for i := range tasks {
		task := tasks[i]
		if task.Due(now) {
			s.runTask(ctx, &task)
		}
	}
}

// claim marks a task as in flight. A task still running from an earlier tick
// is not started again.
func (s *Scheduler) claim(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy[id] {
		return false
	}
	s.busy[id] = true
	return true
}

func (s *Scheduler) release(id string) {
	s.mu.Lock()
	delete(s.busy, id)
	s.mu.Unlock()
}

// runTask executes a single task in the background.
func (s *Scheduler) runTask(ctx context.Context, task *domain.ScheduledTask) {
	if !s.claim(task.ID) {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(task.ID)

		result := &domain.TaskResult{
			TaskID:    task.ID,
			StartedAt: time.Now(),
		}

		var err error
		switch task.ID {
		case domain.TaskIDFreshnessCheck:
			err = s.runFreshnessCheck(ctx, result)
		case domain.TaskIDSurveySync:
			err = s.runSurveySync(ctx, result)
		default:
			logger.Warn("scheduler: unknown task ID: %s", task.ID)
			return
		}

		result.EndedAt = time.Now()
		if err != nil {
			result.Success = false
			result.Error = err.Error()
			task.LastError = err.Error()
		} else {
			result.Success = true
			task.LastError = ""
			task.LastSuccess = result.EndedAt
		}

		task.LastRun = result.StartedAt
		task.NextRun = result.EndedAt.Add(task.Interval)

		// State is saved even if the run was interrupted.
		if saveErr := s.store.FinishRun(context.WithoutCancel(ctx), task, result, historyKeep); saveErr != nil {
			logger.Error("scheduler: failed to save run of %s: %v", task.ID, saveErr)
		}
	}()
}

// surveys returns the configured survey codes, or every registered one.
func (s *Scheduler) surveys() []string {
	if len(s.config.Surveys) > 0 {
		return s.config.Surveys
	}
	return s.registry.Codes()
}

// runFreshnessCheck checks sentinels of every scheduled survey that has them.
func (s *Scheduler) runFreshnessCheck(ctx context.Context, res *domain.TaskResult) error {
	if s.checker == nil {
		return nil
	}
	var errs []error
	for _, fr := range s.checker.CheckAll(ctx, s.surveys()) {
		res.RequestsUsed += fr.RequestsUsed
		switch {
		case fr.QuotaExhausted:
			// Skipped until the quota resets; not a failure.
			for _, w := range fr.Warnings {
				logger.Warn("%s", w)
			}
		case fr.Err == nil:
			res.ItemsProcessed++
			res.Surveys = append(res.Surveys, fr.SurveyCode)
		case errors.Is(fr.Err, domain.ErrNoSentinels):
			// Surveys without a sample are not monitored.
		default:
			errs = append(errs, fr.Err)
		}
	}
	return errors.Join(errs...)
}

// runSurveySync soft-syncs every survey that needs a full update or has an
// unfinished cycle. A survey starting a new cycle is reset first so every
// series is re-checked.
func (s *Scheduler) runSurveySync(ctx context.Context, res *domain.TaskResult) error {
	if s.cycles == nil || s.checker == nil {
		return nil
	}

	stale, err := s.checker.NeedingUpdate(ctx)
	if err != nil {
		return err
	}
	needs := make(map[string]bool, len(stale))
	for i := range stale {
		needs[stale[i].SurveyCode] = true
	}

	var codes []string
	for _, code := range s.surveys() {
		cycle, err := s.cycles.Status(ctx, code)
		if err != nil {
			return err
		}
		resuming := cycle.IsActive()
		if !needs[code] && !resuming {
			continue
		}
		if !resuming && s.tracker != nil {
			if _, err := s.tracker.ResetSurvey(ctx, code); err != nil {
				return err
			}
		}
		codes = append(codes, code)
	}
	if len(codes) == 0 {
		logger.Debug("scheduler: no surveys need syncing")
		return nil
	}
	res.Surveys = codes

	plan := s.syncTmpl
	plan.SurveyCodes = codes
	plan.Mode = domain.SyncModeSoft
	plan.AutoConfirm = true

	summary, err := s.cycles.SyncSurveys(ctx, plan)
	if summary != nil {
		res.ItemsProcessed, res.RequestsUsed = summary.SeriesUpdated, summary.RequestsUsed
	}
	if err != nil {
		return err
	}
	if summary.AllFailed() {
		return errors.New("every scheduled survey sync failed")
	}
	return nil
}
