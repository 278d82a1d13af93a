package domain

import (
	"sort"
	"strings"
)

// Survey is one independently published statistical dataset.
type Survey struct {
	// Code is the short upstream prefix of every series id in the survey (e.g. "CU").
	Code string

	// Name is the human-readable survey title.
	Name string
}

// SurveyRegistry is the set of surveys the engine knows how to synchronise.
// It is passed explicitly to services rather than held in package state.
type SurveyRegistry struct {
	surveys map[string]Survey
}

// NewSurveyRegistry builds a registry from a list of surveys.
// Codes are normalised to upper case; later duplicates replace earlier ones.
func NewSurveyRegistry(surveys ...Survey) SurveyRegistry {
	r := SurveyRegistry{surveys: make(map[string]Survey, len(surveys))}
	for _, s := range surveys {
		s.Code = NormaliseSurveyCode(s.Code)
		r.surveys[s.Code] = s
	}
	return r
}

// DefaultSurveyRegistry returns the BLS surveys served by the time-series API.
func DefaultSurveyRegistry() SurveyRegistry {
	return NewSurveyRegistry(
		Survey{Code: "AP", Name: "Average Price Data"},
		Survey{Code: "BD", Name: "Business Employment Dynamics"},
		Survey{Code: "CE", Name: "Current Employment Statistics (National)"},
		Survey{Code: "CI", Name: "Employment Cost Index"},
		Survey{Code: "CM", Name: "Employer Costs for Employee Compensation"},
		Survey{Code: "CU", Name: "Consumer Price Index - All Urban Consumers"},
		Survey{Code: "CW", Name: "Consumer Price Index - Urban Wage Earners"},
		Survey{Code: "CX", Name: "Consumer Expenditure Survey"},
		Survey{Code: "EC", Name: "Employment Cost Index (Historical)"},
		Survey{Code: "EI", Name: "Import/Export Price Indexes"},
		Survey{Code: "IP", Name: "Industry Productivity"},
		Survey{Code: "JT", Name: "Job Openings and Labor Turnover Survey"},
		Survey{Code: "LA", Name: "Local Area Unemployment Statistics"},
		Survey{Code: "LE", Name: "Weekly and Hourly Earnings"},
		Survey{Code: "LN", Name: "Labor Force Statistics (CPS)"},
		Survey{Code: "OE", Name: "Occupational Employment and Wage Statistics"},
		Survey{Code: "PC", Name: "Producer Price Index - Industry"},
		Survey{Code: "PR", Name: "Major Sector Productivity and Costs"},
		Survey{Code: "SM", Name: "State and Metro Area Employment"},
		Survey{Code: "SU", Name: "Chained Consumer Price Index"},
		Survey{Code: "TU", Name: "American Time Use Survey"},
		Survey{Code: "WM", Name: "Modeled Wage Estimates"},
		Survey{Code: "WP", Name: "Producer Price Index - Commodities"},
	)
}

// NormaliseSurveyCode trims and upper-cases a survey code.
func NormaliseSurveyCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Get returns the survey with the given code.
func (r SurveyRegistry) Get(code string) (Survey, bool) {
	s, ok := r.surveys[NormaliseSurveyCode(code)]
	return s, ok
}

// Codes returns all registered survey codes in sorted order.
func (r SurveyRegistry) Codes() []string {
	codes := make([]string, 0, len(r.surveys))
	for code := range r.surveys {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Surveys returns all registered surveys sorted by code.
func (r SurveyRegistry) Surveys() []Survey {
	codes := r.Codes()
	out := make([]Survey, 0, len(codes))
	for _, code := range codes {
		out = append(out, r.surveys[code])
	}
	return out
}

// Len returns the number of registered surveys.
func (r SurveyRegistry) Len() int {
	return len(r.surveys)
}

// Validate normalises the given codes and checks every one of them against
// the registry. The first unknown code is reported as an *UnknownSurveyError.
// Duplicates are dropped, order is preserved.
func (r SurveyRegistry) Validate(codes []string) ([]string, error) {
	if len(codes) == 0 {
		return nil, ErrInvalidInput
	}
	seen := make(map[string]bool, len(codes))
	out := make([]string, 0, len(codes))
	for _, raw := range codes {
		code := NormaliseSurveyCode(raw)
		if _, ok := r.surveys[code]; !ok {
			return nil, &UnknownSurveyError{Code: raw, Valid: r.Codes()}
		}
		if seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, code)
	}
	return out, nil
}
