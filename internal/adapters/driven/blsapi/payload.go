package blsapi

import (
	"strconv"
	"strings"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"
)

// request is the v2 POST body.
type request struct {
	SeriesID        []string `json:"seriesid"`
	StartYear       string   `json:"startyear,omitempty"`
	EndYear         string   `json:"endyear,omitempty"`
	RegistrationKey string   `json:"registrationkey,omitempty"`
	Catalog         bool     `json:"catalog,omitempty"`
	Calculations    bool     `json:"calculations,omitempty"`
	AnnualAverage   bool     `json:"annualaverage,omitempty"`
	Latest          bool     `json:"latest,omitempty"`
}

type response struct {
	Status       string   `json:"status"`
	ResponseTime int      `json:"responseTime"`
	Message      []string `json:"message"`
	Results      struct {
		Series []seriesPayload `json:"series"`
	} `json:"Results"`
}

type seriesPayload struct {
	SeriesID string      `json:"seriesID"`
	Data     []dataPoint `json:"data"`
}

type dataPoint struct {
	Year       string     `json:"year"`
	Period     string     `json:"period"`
	PeriodName string     `json:"periodName"`
	Latest     string     `json:"latest"`
	Value      string     `json:"value"`
	Footnotes  []footnote `json:"footnotes"`
}

type footnote struct {
	Code string `json:"code"`
	Text string `json:"text"`
}

// observations converts the payload, skipping points without a numeric
// value (upstream uses "-" for unavailable data).
func (r *response) observations() []domain.Observation {
	var out []domain.Observation
	for _, s := range r.Results.Series {
		for _, dp := range s.Data {
			value, err := strconv.ParseFloat(strings.TrimSpace(dp.Value), 64)
			if err != nil {
				continue
			}
			year, err := strconv.Atoi(dp.Year)
			if err != nil {
				continue
			}
			out = append(out, domain.Observation{
				SeriesID:  s.SeriesID,
				Year:      year,
				Period:    dp.Period,
				Value:     value,
				Footnotes: footnoteCodes(dp.Footnotes),
				Latest:    dp.Latest == "true",
			})
		}
	}
	return out
}

func footnoteCodes(notes []footnote) string {
	codes := make([]string, 0, len(notes))
	for _, n := range notes {
		if n.Code != "" {
			codes = append(codes, n.Code)
		}
	}
	return strings.Join(codes, ",")
}
