package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/ports/driven"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/ports/driving"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/logger"
)

// Ensure FreshnessChecker implements the interface.
var _ driving.FreshnessChecker = (*FreshnessChecker)(nil)

// FreshnessChecker compares the latest upstream observation of each sentinel
// with the latest stored one and flags surveys that changed.
type FreshnessChecker struct {
	registry  *domain.SurveyRegistry
	api       driven.TimeSeriesAPI
	data      driven.DataStore
	sentinels driven.SentinelStore
	freshness driven.FreshnessStore
	ledger    *QuotaLedger
	metrics   driven.Metrics
	now       func() time.Time

	dailyLimit int
	batchSize  int
}

// NewFreshnessChecker creates a freshness checker. Metrics may be nil.
func NewFreshnessChecker(
	registry *domain.SurveyRegistry,
	api driven.TimeSeriesAPI,
	data driven.DataStore,
	sentinels driven.SentinelStore,
	freshness driven.FreshnessStore,
	ledger *QuotaLedger,
	metrics driven.Metrics,
) *FreshnessChecker {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &FreshnessChecker{
		registry:  registry,
		api:       api,
		data:      data,
		sentinels: sentinels,
		freshness: freshness,
		ledger:    ledger,
		metrics:   metrics,
		now:       time.Now,

		dailyLimit: DefaultDailyLimit,
		batchSize:  domain.MaxSeriesPerRequest,
	}
}

// SetLimits sets the daily quota checks are held to and the API client's
// series-per-request limit used to estimate their cost. Non-positive values
// keep the current setting.
func (c *FreshnessChecker) SetLimits(dailyLimit, seriesPerRequest int) {
	if dailyLimit > 0 {
		c.dailyLimit = dailyLimit
	}
	if seriesPerRequest > 0 {
		c.batchSize = seriesPerRequest
	}
}

// SelectSentinels picks n evenly spaced series from the sorted active set.
func (c *FreshnessChecker) SelectSentinels(ctx context.Context, surveyCode string, n int) ([]domain.SurveySentinel, error) {
	codes, err := c.registry.Validate([]string{surveyCode})
	if err != nil {
		return nil, err
	}
	code := codes[0]
	if n <= 0 {
		n = domain.DefaultSentinelsPerSurvey
	}

	active, err := c.data.ActiveSeriesIDs(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("listing active series: %w", err)
	}
	if len(active) == 0 {
		return nil, fmt.Errorf("%s: %w", code, domain.ErrNoActiveSeries)
	}

	picks := evenlySpaced(active, n)
	baseline, err := c.data.LatestObservations(ctx, picks)
	if err != nil {
		return nil, fmt.Errorf("loading baseline observations: %w", err)
	}

	now := c.now()
	sentinels := make([]domain.SurveySentinel, len(picks))
	for i, id := range picks {
		obs := baseline[id]
		sentinels[i] = domain.SurveySentinel{
			SeriesID:   id,
			SurveyCode: code,
			Position:   i,
			LastSeen:   obs.Key(),
			LastValue:  obs.Value,
			SelectedAt: now,
		}
	}

	if err := c.sentinels.ReplaceSentinels(ctx, code, sentinels); err != nil {
		return nil, fmt.Errorf("saving sentinels: %w", err)
	}

	f, err := c.loadFreshness(ctx, code)
	if err != nil {
		return nil, err
	}
	f.SentinelsTotal = len(sentinels)
	f.SentinelsChanged = 0
	if err := c.freshness.SaveCheck(ctx, f); err != nil {
		return nil, fmt.Errorf("saving freshness: %w", err)
	}

	logger.Info("%s: selected %d sentinels from %d active series", code, len(sentinels), len(active))
	return sentinels, nil
}

// evenlySpaced returns n items of sorted at a fixed stride, or all of them.
func evenlySpaced(sorted []string, n int) []string {
	if n >= len(sorted) {
		return append([]string(nil), sorted...)
	}
	out := make([]string, n)
	for i := range out {
		out[i] = sorted[i*len(sorted)/n]
	}
	return out
}

// Sentinels returns the survey's current sample.
func (c *FreshnessChecker) Sentinels(ctx context.Context, surveyCode string) ([]domain.SurveySentinel, error) {
	codes, err := c.registry.Validate([]string{surveyCode})
	if err != nil {
		return nil, err
	}
	return c.sentinels.ListSentinels(ctx, codes[0])
}

// CheckSurvey fetches the latest upstream observation of each sentinel.
// Any sentinel newer than, or differing from, the stored latest observation
// flags the survey as needing a full update. Revisions to historical periods
// are not detected.
//
//nolint:gocyclo // Comparison loop updates several aggregates
func (c *FreshnessChecker) CheckSurvey(ctx context.Context, surveyCode string) domain.FreshnessResult {
	res := domain.FreshnessResult{SurveyCode: surveyCode}

	codes, err := c.registry.Validate([]string{surveyCode})
	if err != nil {
		res.Err = err
		return res
	}
	code := codes[0]
	res.SurveyCode = code

	sentinels, err := c.sentinels.ListSentinels(ctx, code)
	if err != nil {
		res.Err = fmt.Errorf("listing sentinels: %w", err)
		return res
	}
	if len(sentinels) == 0 {
		res.Err = fmt.Errorf("%s: %w", code, domain.ErrNoSentinels)
		return res
	}

	ids := make([]string, len(sentinels))
	for i := range sentinels {
		ids[i] = sentinels[i].SeriesID
	}

	need := requestsFor(len(ids), c.batchSize, 1)
	remaining, err := c.ledger.Remaining(ctx, c.ledger.Today(), c.dailyLimit)
	if err != nil {
		res.Err = err
		return res
	}
	if remaining < need {
		res.QuotaExhausted = true
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"%s: sentinel check needs %d requests, %d remaining today; skipped", code, need, remaining))
		logger.Warn("%s: skipping sentinel check, %d requests needed, %d remaining", code, need, remaining)
		return res
	}

	fr, err := c.api.FetchLatest(ctx, ids)
	if err != nil {
		res.Err = fmt.Errorf("fetching sentinels: %w", err)
		return res
	}
	res.RequestsUsed = fr.RequestsUsed
	if fr.RequestsUsed > 0 {
		bctx := context.WithoutCancel(ctx)
		if _, err := c.ledger.Record(bctx, code, fr.RequestsUsed, len(ids)); err != nil {
			res.Err = fmt.Errorf("%w: recording quota: %w", domain.ErrPersistence, err)
			return res
		}
		// Another process may have spent quota since the check above.
		today := c.ledger.Today()
		if used, err := c.ledger.Used(bctx, today); err == nil {
			if w := OverLimitWarning(today, used, c.dailyLimit); w != "" {
				res.Warnings = append(res.Warnings, w)
				logger.Warn("%s", w)
			}
		}
	}

	failed := fr.FailedSeries()
	if len(failed) >= len(ids) {
		errs := make([]error, 0, len(fr.Errors))
		for _, be := range fr.Errors {
			errs = append(errs, be)
		}
		res.Err = fmt.Errorf("fetching sentinels: %w", errors.Join(errs...))
		return res
	}

	stored, err := c.data.LatestObservations(ctx, ids)
	if err != nil {
		res.Err = fmt.Errorf("loading stored observations: %w", err)
		return res
	}
	upstream := domain.LatestBySeries(fr.Observations)

	now := c.now()
	novel := false
	for i := range sentinels {
		s := &sentinels[i]
		up, ok := upstream[s.SeriesID]
		if failed[s.SeriesID] || !ok {
			continue
		}
		ours := stored[s.SeriesID]

		res.SeriesChecked++
		if ours.Key().After(res.OurLatest) {
			res.OurLatest = ours.Key()
		}
		if up.Key().After(res.UpstreamLatest) {
			res.UpstreamLatest = up.Key()
		}

		changed := up.Key().After(ours.Key()) ||
			(up.Key() == ours.Key() && up.Value != ours.Value)

		s.CheckCount++
		s.LastCheckedAt = now
		s.HasChanged = changed
		if changed {
			res.SeriesWithNewData++
			if up.Key() != s.LastSeen || up.Value != s.LastValue {
				novel = true
				s.ChangeCount++
				s.LastChangedAt = now
			}
		}
		s.LastSeen = up.Key()
		s.LastValue = up.Value
	}
	res.HasNewData = res.SeriesWithNewData > 0

	if err := c.sentinels.SaveSentinels(ctx, sentinels); err != nil {
		res.Err = fmt.Errorf("saving sentinels: %w", err)
		return res
	}

	f, err := c.loadFreshness(ctx, code)
	if err != nil {
		res.Err = err
		return res
	}
	f.CheckCount++
	f.LastCheckedAt = now
	f.SentinelsTotal = len(sentinels)
	f.SentinelsChanged = res.SeriesWithNewData
	f.LatestUpstream = res.UpstreamLatest
	f.LatestStored = res.OurLatest
	if res.HasNewData {
		f.NeedsFullUpdate = true
		// Only fresh upstream news advances the frequency estimate; a change
		// already seen but not yet synced does not.
		if novel {
			f.RecordChange(now)
		}
	}
	if err := c.freshness.SaveCheck(ctx, f); err != nil {
		res.Err = fmt.Errorf("saving freshness: %w", err)
		return res
	}

	c.metrics.FreshnessChecked(code, res.SeriesWithNewData)
	logger.Info("%s: %d/%d sentinels changed (stored %s, upstream %s)",
		code, res.SeriesWithNewData, res.SeriesChecked, res.OurLatest, res.UpstreamLatest)
	return res
}

// CheckAll checks each survey; one survey's failure does not stop the others.
func (c *FreshnessChecker) CheckAll(ctx context.Context, surveyCodes []string) []domain.FreshnessResult {
	results := make([]domain.FreshnessResult, 0, len(surveyCodes))
	for _, code := range surveyCodes {
		if ctx.Err() != nil {
			results = append(results, domain.FreshnessResult{SurveyCode: code, Err: ctx.Err()})
			continue
		}
		res := c.CheckSurvey(ctx, code)
		if res.Err != nil {
			logger.Warn("%s: freshness check failed: %v", code, res.Err)
		}
		results = append(results, res)
	}
	return results
}

// NeedingUpdate lists surveys flagged as needing a full update.
func (c *FreshnessChecker) NeedingUpdate(ctx context.Context) ([]domain.SurveyFreshness, error) {
	all, err := c.freshness.ListFreshness(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing freshness: %w", err)
	}
	var out []domain.SurveyFreshness
	for i := range all {
		if all[i].NeedsFullUpdate {
			out = append(out, all[i])
		}
	}
	return out, nil
}

// Freshness lists every survey's freshness aggregate.
func (c *FreshnessChecker) Freshness(ctx context.Context) ([]domain.SurveyFreshness, error) {
	return c.freshness.ListFreshness(ctx)
}

func (c *FreshnessChecker) loadFreshness(ctx context.Context, code string) (*domain.SurveyFreshness, error) {
	f, err := c.freshness.GetFreshness(ctx, code)
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.SurveyFreshness{SurveyCode: code}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading freshness: %w", err)
	}
	return f, nil
}
