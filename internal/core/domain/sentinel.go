package domain

import "time"

// DefaultSentinelsPerSurvey is the historical sentinel sample size.
const DefaultSentinelsPerSurvey = 50

// SurveySentinel is one of a small fixed sample of series used to detect
// cheaply whether a survey changed upstream.
type SurveySentinel struct {
	SeriesID   string
	SurveyCode string

	// Position is the sentinel's index within the sample.
	Position int

	// LastSeen is the latest upstream period observed at the previous check.
	LastSeen Period

	// LastValue is the value of LastSeen.
	LastValue float64

	// HasChanged is the result of the most recent check.
	HasChanged bool

	CheckCount  int
	ChangeCount int

	LastCheckedAt time.Time
	LastChangedAt time.Time
	SelectedAt    time.Time
}

// SurveyFreshness is the per-survey aggregate consulted by schedulers to
// decide whether a sync is needed.
type SurveyFreshness struct {
	SurveyCode string

	// LastDetectedChange is when sentinels last reported new upstream data.
	LastDetectedChange time.Time

	// LastCheckedAt is when sentinels were last checked.
	LastCheckedAt time.Time

	// LastFullUpdateAt is when an update cycle last completed.
	LastFullUpdateAt time.Time

	NeedsFullUpdate      bool
	FullUpdateInProgress bool

	// Cycle progress mirror.
	SeriesTotalCount   int
	SeriesUpdatedCount int

	SentinelsTotal   int
	SentinelsChanged int

	// UpdateFrequencyDays is a running mean of days between detected changes.
	// Informational only.
	UpdateFrequencyDays float64

	CheckCount  int
	DetectCount int

	// LatestUpstream and LatestStored are the newest periods seen at the last check.
	LatestUpstream Period
	LatestStored   Period
}

// RecordChange folds a detected change at now into the frequency estimate.
func (f *SurveyFreshness) RecordChange(now time.Time) {
	if !f.LastDetectedChange.IsZero() && now.After(f.LastDetectedChange) {
		days := now.Sub(f.LastDetectedChange).Hours() / 24
		prior := f.DetectCount - 1 // intervals already folded into the mean
		if prior < 1 {
			f.UpdateFrequencyDays = days
		} else {
			f.UpdateFrequencyDays = (f.UpdateFrequencyDays*float64(prior) + days) / float64(prior+1)
		}
	}
	f.DetectCount++
	f.LastDetectedChange = now
	f.NeedsFullUpdate = true
}

// FreshnessResult is the outcome of checking one survey's sentinels.
type FreshnessResult struct {
	SurveyCode string

	HasNewData bool

	// OurLatest is the newest period among stored sentinel observations.
	OurLatest Period

	// UpstreamLatest is the newest period among upstream sentinel observations.
	UpstreamLatest Period

	SeriesChecked     int
	SeriesWithNewData int
	RequestsUsed      int

	// QuotaExhausted is set when the check was skipped because today's
	// remaining quota could not cover it. It is not an error.
	QuotaExhausted bool

	// Warnings carries quota notices, such as usage over the daily limit.
	Warnings []string

	// Err is set when the survey could not be checked.
	Err error
}
