package services

import (
	"context"
	"fmt"
	"time"
	_ "time/tzdata" // quota zone must resolve on hosts without zoneinfo

	"github.com/google/uuid"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/ports/driven"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/ports/driving"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/logger"
)

// Ensure QuotaLedger implements the interface.
var _ driving.QuotaLedger = (*QuotaLedger)(nil)

// DefaultDailyLimit is the upstream daily request quota for a registered key.
const DefaultDailyLimit = 500

// DefaultQuotaTimezone is where the upstream daily quota resets.
const DefaultQuotaTimezone = "America/New_York"

// QuotaLedger sums the append-only usage log against a daily limit.
type QuotaLedger struct {
	store driven.APIUsageStore
	loc   *time.Location
	now   func() time.Time
}

// NewQuotaLedger creates a ledger reporting dates in loc. A nil loc uses local time.
func NewQuotaLedger(store driven.APIUsageStore, loc *time.Location) *QuotaLedger {
	if loc == nil {
		loc = time.Local
	}
	return &QuotaLedger{
		store: store,
		loc:   loc,
		now:   time.Now,
	}
}

// LoadReportingZone resolves the quota time zone, falling back to local time
// when the zone database is unavailable.
func LoadReportingZone(name string) *time.Location {
	if name == "" {
		name = DefaultQuotaTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		logger.Warn("quota timezone %q unavailable, using local time: %v", name, err)
		return time.Local
	}
	return loc
}

// Today returns the current quota date.
func (q *QuotaLedger) Today() string {
	return q.now().In(q.loc).Format(domain.DateLayout)
}

// Used returns requests recorded for date.
func (q *QuotaLedger) Used(ctx context.Context, date string) (int, error) {
	used, err := q.store.SumByDate(ctx, date)
	if err != nil {
		return 0, fmt.Errorf("summing usage for %s: %w", date, err)
	}
	return used, nil
}

// Remaining returns max(0, dailyLimit - used) for date.
func (q *QuotaLedger) Remaining(ctx context.Context, date string, dailyLimit int) (int, error) {
	used, err := q.Used(ctx, date)
	if err != nil {
		return 0, err
	}
	if used >= dailyLimit {
		return 0, nil
	}
	return dailyLimit - used, nil
}

// Status summarises date's usage per survey.
func (q *QuotaLedger) Status(ctx context.Context, date string, dailyLimit int) (*domain.QuotaStatus, error) {
	entries, err := q.store.ListByDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("listing usage for %s: %w", date, err)
	}

	status := &domain.QuotaStatus{
		Date:       date,
		DailyLimit: dailyLimit,
		BySurvey:   make(map[string]int),
	}
	for i := range entries {
		status.Used += entries[i].RequestsUsed
		status.BySurvey[entries[i].SurveyCode] += entries[i].RequestsUsed
	}
	if status.Used < dailyLimit {
		status.Remaining = dailyLimit - status.Used
	}
	return status, nil
}

// Record appends an immutable usage entry. The entry is dated by the
// ledger's clock in the reporting zone at the moment of recording; callers
// cannot backdate usage, so the requests are charged to the quota day in
// which they were spent.
func (q *QuotaLedger) Record(ctx context.Context, surveyCode string, requestsUsed, seriesCount int) (*domain.APIUsageLogEntry, error) {
	if requestsUsed < 0 || seriesCount < 0 {
		return nil, fmt.Errorf("%w: negative usage", domain.ErrInvalidInput)
	}
	now := q.now()
	entry := &domain.APIUsageLogEntry{
		ID:           uuid.NewString(),
		Date:         now.In(q.loc).Format(domain.DateLayout),
		SurveyCode:   surveyCode,
		RequestsUsed: requestsUsed,
		SeriesCount:  seriesCount,
		CreatedAt:    now,
	}
	if err := q.store.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("recording usage: %w", err)
	}
	return entry, nil
}

// OverLimitWarning returns a warning when used exceeds limit, or "".
func OverLimitWarning(date string, used, limit int) string {
	if used <= limit {
		return ""
	}
	return fmt.Sprintf("recorded usage for %s is %d requests, over the daily limit of %d", date, used, limit)
}
