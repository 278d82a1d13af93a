package domain

import "time"

// DateLayout is the format of ledger dates.
const DateLayout = "2006-01-02"

// APIUsageLogEntry is an append-only record of requests spent against the
// shared daily API quota.
type APIUsageLogEntry struct {
	// ID uniquely identifies the entry.
	ID string

	// Date is the quota day (DateLayout) in the reporting time zone.
	Date string

	// SurveyCode is the survey the requests were spent on.
	SurveyCode string

	// RequestsUsed is the number of logical API calls issued.
	RequestsUsed int

	// SeriesCount is the number of series covered by those calls.
	SeriesCount int

	// CreatedAt is when the entry was recorded.
	CreatedAt time.Time
}

// QuotaStatus summarises the quota for one day.
type QuotaStatus struct {
	Date       string
	DailyLimit int
	Used       int
	Remaining  int
	BySurvey   map[string]int
}

// Overspent reports whether recorded usage exceeds the daily limit.
func (q QuotaStatus) Overspent() bool {
	return q.Used > q.DailyLimit
}
