package domain

import (
	"fmt"
	"time"
)

// Period identifies one data point of a series: a year and a sub-year period
// code such as "M01" (January), "Q02", "S01" or "A01" (annual).
type Period struct {
	Year   int
	Period string
}

// IsZero reports whether no period has been recorded.
func (p Period) IsZero() bool {
	return p.Year == 0 && p.Period == ""
}

// Compare orders periods chronologically. Period codes are fixed width within
// a series, so lexical order of the code matches chronological order.
func (p Period) Compare(other Period) int {
	switch {
	case p.Year < other.Year:
		return -1
	case p.Year > other.Year:
		return 1
	case p.Period < other.Period:
		return -1
	case p.Period > other.Period:
		return 1
	default:
		return 0
	}
}

// After reports whether p is strictly later than other.
func (p Period) After(other Period) bool {
	return p.Compare(other) > 0
}

// String formats the period as "2024-M01".
func (p Period) String() string {
	if p.IsZero() {
		return "-"
	}
	return fmt.Sprintf("%d-%s", p.Year, p.Period)
}

// Observation is one (series, year, period) -> value data point.
type Observation struct {
	// SeriesID identifies the series.
	SeriesID string

	// Year and Period locate the point in time.
	Year   int
	Period string

	// Value is the published value.
	Value float64

	// Footnotes holds upstream footnote codes, comma separated.
	Footnotes string

	// Latest is set when upstream flags this as the most recent point of the series.
	Latest bool

	// UpdatedAt is when the observation was last written to the store.
	UpdatedAt time.Time
}

// Key returns the observation's period coordinates.
func (o Observation) Key() Period {
	return Period{Year: o.Year, Period: o.Period}
}

// LatestBySeries reduces observations to the chronologically latest point per series.
func LatestBySeries(observations []Observation) map[string]Observation {
	latest := make(map[string]Observation)
	for _, obs := range observations {
		cur, ok := latest[obs.SeriesID]
		if !ok || obs.Key().After(cur.Key()) {
			latest[obs.SeriesID] = obs
		}
	}
	return latest
}

// Series is an entry of the active-series catalog for a survey.
type Series struct {
	// ID is the upstream series identifier (e.g. "CUUR0000SA0").
	ID string

	// SurveyCode is the survey the series belongs to.
	SurveyCode string

	// Title is an optional human-readable description.
	Title string

	// Active marks series that should be tracked.
	Active bool
}
