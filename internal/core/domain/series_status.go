package domain

import "time"

// DefaultFreshnessWindow is how long a checked series counts as current.
const DefaultFreshnessWindow = 24 * time.Hour

// SeriesUpdateStatus is per-series bookkeeping used to avoid re-fetching
// series that are already current.
type SeriesUpdateStatus struct {
	SeriesID   string
	SurveyCode string

	// LastCheckedAt is when the series was last fetched.
	LastCheckedAt time.Time

	// LastUpdatedAt is when a fetch last brought new data.
	LastUpdatedAt time.Time

	// IsCurrent is cleared by a survey reset to force a re-check.
	IsCurrent bool

	// LastObserved is the latest upstream period seen for the series.
	LastObserved Period
}

// IsFresh reports whether the series is current and was checked within window.
func (s *SeriesUpdateStatus) IsFresh(now time.Time, window time.Duration) bool {
	if s == nil || !s.IsCurrent || s.LastCheckedAt.IsZero() {
		return false
	}
	return now.Sub(s.LastCheckedAt) < window
}

// SeriesCheck is the outcome of one fetch for one series.
type SeriesCheck struct {
	SeriesID   string
	HadNewData bool
	Latest     Period
	CheckedAt  time.Time
}
