package catalog

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"
)

const tabCatalog = "series_id\tarea_code\titem_code\tseries_title\tbegin_year\tend_year\n" +
	"CUUR0000SA0  \t0000\tSA0\tAll items in U.S. city average\t1913\t2026\n" +
	"CUUR0000SA0L1E\t0000\tSA0L1E\tAll items less food and energy\t1957\t2026\n" +
	"CUUR0000SA0\t0000\tSA0\tduplicate line\t1913\t2026\n" +
	"LAUCN010010000000003\tCN01001\t\tUnemployment rate: Autauga County\t1990\t2026\n"

func TestReader_Tab(t *testing.T) {
	series, err := NewReader().Read(strings.NewReader(tabCatalog), "cu")
	require.NoError(t, err)
	require.Len(t, series, 2)

	assert.Equal(t, domain.Series{
		ID:         "CUUR0000SA0",
		SurveyCode: "CU",
		Title:      "All items in U.S. city average",
		Active:     true,
	}, series[0])
	assert.Equal(t, "CUUR0000SA0L1E", series[1].ID)
}

func TestReader_Comma(t *testing.T) {
	csv := "Series_ID ,series_title\n" +
		"LAUCN010010000000003,\"Unemployment rate, Autauga County\"\n" +
		"CUUR0000SA0,All items\n"

	series, err := NewReader().Read(strings.NewReader(csv), "LA")
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, "LAUCN010010000000003", series[0].ID)
	assert.Equal(t, "Unemployment rate, Autauga County", series[0].Title)
}

func TestReader_IdsOnly(t *testing.T) {
	series, err := NewReader().Read(strings.NewReader("series_id\nCUUR0000SA0\n\nCUUR0000SEHA\n"), "CU")
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Empty(t, series[0].Title)
}

func TestReader_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"blank", "   \n"},
		{"no series column", "id\ttitle\nCUUR0000SA0\tx\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReader().Read(strings.NewReader(tt.input), "CU")
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk error") }

func TestReader_ReadFailure(t *testing.T) {
	_, err := NewReader().Read(failingReader{}, "CU")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk error")
}

func TestDetectDelimiter(t *testing.T) {
	assert.Equal(t, '\t', detectDelimiter([]byte("a\tb\nc,d")))
	assert.Equal(t, ',', detectDelimiter([]byte("a,b\nc\td")))
	assert.Equal(t, ',', detectDelimiter([]byte("series_id")))
}

func TestReader_RaggedLines(t *testing.T) {
	input := "series_id\tseries_title\tend_year\n" +
		"CUUR0000SA0\tAll items\t2026\t\n" +
		"CUUR0000SEHA\tRent\n"

	series, err := NewReader().Read(strings.NewReader(input), "CU")
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, "Rent", series[1].Title)
}
