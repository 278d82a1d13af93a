package driven

import (
	"io"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"
)

// SeriesCatalogReader parses a delimited series catalog file.
type SeriesCatalogReader interface {
	// Read returns the series listed in r that belong to surveyCode.
	Read(r io.Reader, surveyCode string) ([]domain.Series, error)
}
