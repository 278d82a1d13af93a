package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/adapters/driven/storage/memory"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/domain"
	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/ports/driven"
)

// --- Fake upstream API ---

var errUpstream = errors.New("upstream 503")

// fakeAPI implements driven.TimeSeriesAPI. Each (batch, window) pair is one
// numbered call; calls listed in failCalls fail after "retries".
type fakeAPI struct {
	mu        sync.Mutex
	calls     int
	failCalls map[int]bool
	latest    map[string]domain.Observation // FetchLatest overrides
	value     float64

	// entered is signalled on the first FetchMany; gate blocks it until closed.
	entered chan struct{}
	gate    chan struct{}
	once    sync.Once
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		failCalls: make(map[int]bool),
		latest:    make(map[string]domain.Observation),
		value:     100,
	}
}

func (f *fakeAPI) FetchMany(_ context.Context, ids []string, start, end int, _ domain.FetchOptions) (*domain.FetchResult, error) {
	if start > end {
		return nil, domain.ErrInvalidYearRange
	}
	if f.gate != nil {
		f.once.Do(func() { close(f.entered) })
		<-f.gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	res := &domain.FetchResult{}
	for _, batch := range chunk(ids, domain.MaxSeriesPerRequest) {
		for ws := start; ws <= end; ws += domain.MaxYearsPerRequest {
			we := ws + domain.MaxYearsPerRequest - 1
			if we > end {
				we = end
			}
			f.calls++
			res.RequestsUsed++
			if f.failCalls[f.calls] {
				res.Errors = append(res.Errors, domain.BatchError{
					SeriesIDs: batch, StartYear: ws, EndYear: we, Err: errUpstream,
				})
				continue
			}
			for _, id := range batch {
				for y := ws; y <= we; y++ {
					res.Observations = append(res.Observations, domain.Observation{
						SeriesID: id, Year: y, Period: "M01", Value: f.value,
					})
				}
			}
		}
	}
	return res, nil
}

func (f *fakeAPI) FetchLatest(_ context.Context, ids []string) (*domain.FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	res := &domain.FetchResult{}
	for _, batch := range chunk(ids, domain.MaxSeriesPerRequest) {
		f.calls++
		res.RequestsUsed++
		if f.failCalls[f.calls] {
			res.Errors = append(res.Errors, domain.BatchError{SeriesIDs: batch, Err: errUpstream})
			continue
		}
		for _, id := range batch {
			if obs, ok := f.latest[id]; ok {
				res.Observations = append(res.Observations, obs)
			}
		}
	}
	return res, nil
}

func (f *fakeAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// --- Failing data store ---

// flakyDataStore fails UpsertObservations the given number of times.
type flakyDataStore struct {
	*memory.DataStore
	mu       sync.Mutex
	failures int
}

func (s *flakyDataStore) UpsertObservations(ctx context.Context, code string, obs []domain.Observation) (int, error) {
	s.mu.Lock()
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return 0, errors.New("database is locked")
	}
	s.mu.Unlock()
	return s.DataStore.UpsertObservations(ctx, code, obs)
}

// --- Recording metrics ---

type recordingMetrics struct {
	mu        sync.Mutex
	committed int
	failed    int
	remaining int
	changed   map[string]int
}

func (m *recordingMetrics) APIRequest(string) {}
func (m *recordingMetrics) APIRetry()         {}
func (m *recordingMetrics) BatchCommitted(string, int, int, int) {
	m.mu.Lock()
	m.committed++
	m.mu.Unlock()
}
func (m *recordingMetrics) BatchFailed(string) {
	m.mu.Lock()
	m.failed++
	m.mu.Unlock()
}
func (m *recordingMetrics) QuotaRemaining(n int) {
	m.mu.Lock()
	m.remaining = n
	m.mu.Unlock()
}
func (m *recordingMetrics) FreshnessChecked(code string, changed int) {
	m.mu.Lock()
	if m.changed == nil {
		m.changed = make(map[string]int)
	}
	m.changed[code] = changed
	m.mu.Unlock()
}

var _ driven.Metrics = (*recordingMetrics)(nil)

// --- Harness ---

type harness struct {
	registry  domain.SurveyRegistry
	api       *fakeAPI
	data      *memory.DataStore
	cycles    *memory.UpdateCycleStore
	usage     *memory.APIUsageStore
	statuses  *memory.SeriesStatusStore
	sentinels *memory.SentinelStore
	metrics   *recordingMetrics

	ledger  *QuotaLedger
	tracker *SeriesTracker
	manager *CycleManager
	checker *FreshnessChecker
}

func testRegistry() domain.SurveyRegistry {
	return domain.NewSurveyRegistry(
		domain.Survey{Code: "CU", Name: "Consumer Price Index"},
		domain.Survey{Code: "LA", Name: "Local Area Unemployment Statistics"},
		domain.Survey{Code: "AP", Name: "Average Price Data"},
	)
}

// newHarness wires services over memory stores and seeds active series.
func newHarness(t *testing.T, series map[string]int) *harness {
	t.Helper()

	h := &harness{
		registry:  testRegistry(),
		api:       newFakeAPI(),
		data:      memory.NewDataStore(),
		cycles:    memory.NewUpdateCycleStore(),
		usage:     memory.NewAPIUsageStore(),
		statuses:  memory.NewSeriesStatusStore(),
		sentinels: memory.NewSentinelStore(),
		metrics:   &recordingMetrics{},
	}
	h.wire(h.data)

	for code, n := range series {
		h.seedSeries(t, code, n)
	}
	return h
}

// wire (re)builds the services over the given data store.
func (h *harness) wire(data driven.DataStore) {
	h.ledger = NewQuotaLedger(h.usage, time.UTC)
	h.tracker = NewSeriesTracker(data, h.statuses, domain.DefaultFreshnessWindow)
	h.manager = NewCycleManager(&h.registry, h.api, data, h.cycles, h.sentinels, h.tracker, h.ledger, h.metrics)
	h.manager.retryDelay = time.Millisecond
	h.checker = NewFreshnessChecker(&h.registry, h.api, data, h.sentinels, h.sentinels, h.ledger, h.metrics)
}

func seriesID(code string, i int) string {
	return fmt.Sprintf("%sUR%08d", code, i)
}

func (h *harness) seedSeries(t *testing.T, code string, n int) {
	t.Helper()
	series := make([]domain.Series, n)
	for i := range series {
		series[i] = domain.Series{ID: seriesID(code, i), SurveyCode: code, Active: true}
	}
	if err := h.data.SaveSeries(context.Background(), series); err != nil {
		t.Fatalf("seeding series: %v", err)
	}
}

// spend records usage for today directly in the ledger.
func (h *harness) spend(t *testing.T, code string, requests int) {
	t.Helper()
	if _, err := h.ledger.Record(context.Background(), code, requests, 0); err != nil {
		t.Fatalf("recording usage: %v", err)
	}
}

func (h *harness) usedToday(t *testing.T) int {
	t.Helper()
	used, err := h.ledger.Used(context.Background(), h.ledger.Today())
	if err != nil {
		t.Fatalf("reading usage: %v", err)
	}
	return used
}

// thisYear is a one-year range, one request per batch.
func thisYear() domain.YearRange {
	y := time.Now().Year()
	return domain.YearRange{Start: y, End: y}
}
