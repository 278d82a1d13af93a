package driving

import (
	"context"
	"io"
)

// ImportResult summarises a catalog import.
type ImportResult struct {
	SurveyCode  string
	Imported    int
	Deactivated int
}

// CatalogImporter loads a survey's series catalog into the data store.
type CatalogImporter interface {
	// Import reads series for surveyCode from r. When deactivateMissing is set,
	// active series absent from r stop being tracked.
	Import(ctx context.Context, surveyCode string, r io.Reader, deactivateMissing bool) (*ImportResult, error)
}
