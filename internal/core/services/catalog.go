package services

import (
	"context"
	"fmt"
	"io"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/ports/driven"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/ports/driving"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/logger"
)

// Ensure CatalogService implements the interface.
var _ driving.CatalogImporter = (*CatalogService)(nil)

// CatalogService loads series catalogs into the data store.
type CatalogService struct {
	registry *domain.SurveyRegistry
	reader   driven.SeriesCatalogReader
	data     driven.DataStore
}

// NewCatalogService creates a catalog service.
func NewCatalogService(registry *domain.SurveyRegistry, reader driven.SeriesCatalogReader, data driven.DataStore) *CatalogService {
	return &CatalogService{registry: registry, reader: reader, data: data}
}

// Import reads the survey's series from r and saves them as active.
func (s *CatalogService) Import(ctx context.Context, surveyCode string, r io.Reader, deactivateMissing bool) (*driving.ImportResult, error) {
	codes, err := s.registry.Validate([]string{surveyCode})
	if err != nil {
		return nil, err
	}
	code := codes[0]
	if s.reader == nil {
		return nil, fmt.Errorf("import: catalog reader not configured")
	}

	series, err := s.reader.Read(r, code)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("%w: catalog has no %s series", domain.ErrInvalidInput, code)
	}

	result := &driving.ImportResult{SurveyCode: code, Imported: len(series)}

	var missing []string
	if deactivateMissing {
		listed := make(map[string]bool, len(series))
		for _, sr := range series {
			listed[sr.ID] = true
		}
		active, err := s.data.ActiveSeriesIDs(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("listing active series: %w", err)
		}
		for _, id := range active {
			if !listed[id] {
				missing = append(missing, id)
			}
		}
	}

	if err := s.data.SaveSeries(ctx, series); err != nil {
		return nil, fmt.Errorf("saving series: %w", err)
	}
	if len(missing) > 0 {
		n, err := s.data.DeactivateSeries(ctx, code, missing)
		if err != nil {
			return nil, fmt.Errorf("deactivating series: %w", err)
		}
		result.Deactivated = n
	}

	logger.Info("%s: imported %d series, deactivated %d", code, result.Imported, result.Deactivated)
	return result, nil
}
