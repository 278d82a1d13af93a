// Package catalog reads delimited series catalog files (the survey
// "*.series" listings) into domain series.
package catalog

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jszwec/csvutil"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/ports/driven"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/logger"
)

// row is one catalog line. Unknown columns are ignored.
type row struct {
	SeriesID string `csv:"series_id"`
	Title    string `csv:"series_title"`
}

// Reader implements driven.SeriesCatalogReader for tab- or comma-delimited
// files with a header line.
type Reader struct{}

var _ driven.SeriesCatalogReader = (*Reader)(nil)

// NewReader creates a catalog reader.
func NewReader() *Reader {
	return &Reader{}
}

// Read returns the series of surveyCode listed in r. The delimiter is
// detected from the header line; a series belongs to a survey when its id
// starts with the survey code.
func (c *Reader) Read(r io.Reader, surveyCode string) ([]domain.Series, error) {
	code := domain.NormaliseSurveyCode(surveyCode)
	br := bufio.NewReader(r)

	sample, err := br.Peek(peekSize(br))
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("reading catalog header: %w", err)
	}
	if len(bytes.TrimSpace(sample)) == 0 {
		return nil, fmt.Errorf("%w: catalog is empty", domain.ErrInvalidInput)
	}

	cr := csv.NewReader(br)
	cr.Comma = detectDelimiter(sample)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	cols, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading catalog header: %w", err)
	}
	for i := range cols {
		cols[i] = strings.ToLower(strings.TrimSpace(cols[i]))
	}
	if !hasColumn(cols, "series_id") {
		return nil, fmt.Errorf("%w: catalog has no series_id column", domain.ErrInvalidInput)
	}
	dec, err := csvutil.NewDecoder(&alignedReader{r: cr, width: len(cols)}, cols...)
	if err != nil {
		return nil, fmt.Errorf("reading catalog header: %w", err)
	}

	var out []domain.Series
	seen := make(map[string]bool)
	skipped := 0
	for {
		var rec row
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decoding catalog line %d: %w", len(out)+skipped+2, err)
		}
		id := strings.ToUpper(strings.TrimSpace(rec.SeriesID))
		if id == "" || !strings.HasPrefix(id, code) || seen[id] {
			skipped++
			continue
		}
		seen[id] = true
		out = append(out, domain.Series{
			ID:         id,
			SurveyCode: code,
			Title:      strings.TrimSpace(rec.Title),
			Active:     true,
		})
	}

	logger.Debug("catalog: %d %s series read, %d lines skipped", len(out), code, skipped)
	return out, nil
}

// alignedReader pads or truncates records to the header width; catalog
// lines often carry a trailing delimiter.
type alignedReader struct {
	r     *csv.Reader
	width int
}

func (a *alignedReader) Read() ([]string, error) {
	rec, err := a.r.Read()
	if err != nil {
		return nil, err
	}
	if len(rec) > a.width {
		return rec[:a.width], nil
	}
	for len(rec) < a.width {
		rec = append(rec, "")
	}
	return rec, nil
}

// peekSize bounds the header sniff to the reader's buffer.
func peekSize(br *bufio.Reader) int {
	const want = 4096
	if n := br.Size(); n < want {
		return n
	}
	return want
}

// detectDelimiter picks tab when the first line contains one, else comma.
func detectDelimiter(sample []byte) rune {
	line := sample
	if i := bytes.IndexByte(sample, '\n'); i >= 0 {
		line = sample[:i]
	}
	if bytes.IndexByte(line, '\t') >= 0 {
		return '\t'
	}
	return ','
}

func hasColumn(header []string, name string) bool {
	for _, h := range header {
		if h == name {
			return true
		}
	}
	return false
}
