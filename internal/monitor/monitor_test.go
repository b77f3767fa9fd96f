package monitor

import (
	"context"
	"errors"
	"io"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jwulff/bptrack/internal/api"
	"github.com/jwulff/bptrack/internal/bloodpressure"
	"github.com/jwulff/bptrack/internal/storage/sqlite"
)

var errBackend = errors.New("backend unavailable")

// fakeBackend keeps records in memory, oldest first.
type fakeBackend struct {
	mu        sync.Mutex
	records   []api.Record
	nextID    int64
	listErr   error
	saveErr   error
	deleteErr error
	ocr       bloodpressure.OCRResult
	ocrErr    error
	onSave    func()

	savedConfidence *float64
	saves           int
	lists           []api.ListOptions
}

func (f *fakeBackend) ListRecords(ctx context.Context, opts api.ListOptions) (*api.RecordPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.lists = append(f.lists, opts)
	records := slices.Clone(f.records)
	slices.Reverse(records)

	page, perPage := max(opts.Page, 1), opts.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	start := min((page-1)*perPage, len(records))
	end := min(start+perPage, len(records))
	return &api.RecordPage{
		Records: records[start:end],
		Pagination: api.Pagination{
			CurrentPage: page,
			PerPage:     perPage,
			Total:       len(records),
			TotalPages:  (len(records) + perPage - 1) / perPage,
		},
	}, nil
}

func (f *fakeBackend) store(r bloodpressure.Reading) (*api.Record, error) {
	if f.onSave != nil {
		f.onSave()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	f.nextID++
	rec := api.Record{
		ID:              f.nextID,
		Systolic:        r.Systolic,
		Diastolic:       r.Diastolic,
		Pulse:           r.Pulse,
		MeasurementTime: r.MeasurementTime,
		Notes:           r.Notes,
	}
	if r.MeasurementDate != nil {
		rec.MeasurementDate = api.NewTime(*r.MeasurementDate)
	}
	f.records = append(f.records, rec)
	return &rec, nil
}

func (f *fakeBackend) CreateRecord(ctx context.Context, in api.RecordInput) (*api.Record, error) {
	r := bloodpressure.Reading{Systolic: in.Systolic, Diastolic: in.Diastolic, Pulse: in.Pulse, MeasurementTime: in.MeasurementTime, Notes: in.Notes}
	if ts, err := bloodpressure.ParseTimestamp(in.MeasurementDate); err == nil {
		r.MeasurementDate = &ts
	}
	return f.store(r)
}

func (f *fakeBackend) SaveFromOCR(ctx context.Context, r bloodpressure.Reading, confidence *float64) (*api.Record, error) {
	f.savedConfidence = confidence
	return f.store(r)
}

func (f *fakeBackend) DeleteRecord(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.records = slices.DeleteFunc(f.records, func(r api.Record) bool { return r.ID == id })
	return nil
}

func (f *fakeBackend) ProcessImage(ctx context.Context, filename string, image io.Reader) (bloodpressure.OCRResult, error) {
	if _, err := io.ReadAll(image); err != nil {
		return bloodpressure.OCRResult{}, err
	}
	return f.ocr, f.ocrErr
}

var fixedNow = time.Date(2024, 6, 15, 9, 30, 0, 0, time.UTC)

func newMonitor(backend Backend, opts Options) *Monitor {
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	if opts.Owner == "" {
		opts.Owner = "7"
	}
	return New(backend, nil, nil, opts)
}

func record(id int64, sys, dia, pulse int, day int) api.Record {
	return api.Record{
		ID:              id,
		Systolic:        sys,
		Diastolic:       dia,
		Pulse:           pulse,
		MeasurementDate: api.NewTime(time.Date(2024, 6, day, 8, 0, 0, 0, time.UTC)),
	}
}

func manual(t *testing.T, sys, dia, pulse int) bloodpressure.Reading {
	t.Helper()
	r, err := bloodpressure.NewManualReading(sys, dia, pulse, "2024-06-15", "09:00", time.UTC, "", fixedNow)
	require.NoError(t, err)
	return r
}

func TestNewSeedsSentinel(t *testing.T) {
	m := newMonitor(&fakeBackend{}, Options{})

	assert.Equal(t, []bloodpressure.Reading{bloodpressure.Sentinel()}, m.Readings())
	assert.Empty(t, m.Sorted())
	assert.Equal(t, 0, m.Summary(30).TotalCount)
}

func TestRefresh(t *testing.T) {
	backend := &fakeBackend{records: []api.Record{record(1, 120, 80, 70, 1), record(2, 150, 95, 80, 2)}}
	m := newMonitor(backend, Options{})

	require.NoError(t, m.Refresh(context.Background()))

	sorted := m.Sorted()
	require.Len(t, sorted, 2)
	assert.Equal(t, int64(2), sorted[0].ID)
	assert.Equal(t, int64(1), sorted[1].ID)

	summary := m.Summary(30)
	assert.Equal(t, 2, summary.TotalCount)
	assert.Equal(t, 75, summary.AveragePulse)
	assert.Equal(t, 150, summary.LastReading.Systolic)
}

func manyRecords(n int) []api.Record {
	records := make([]api.Record, 0, n)
	for i := 1; i <= n; i++ {
		records = append(records, record(int64(i), 110+i%30, 70+i%20, 60+i%25, 1+i%28))
	}
	return records
}

func TestRefreshKeepsBackendTotal(t *testing.T) {
	backend := &fakeBackend{records: manyRecords(250)}
	m := newMonitor(backend, Options{})

	require.NoError(t, m.Refresh(context.Background()))

	assert.Len(t, m.Sorted(), DefaultPageSize)
	assert.Equal(t, 250, m.Total())
	summary := m.Summary(30)
	assert.Equal(t, 250, summary.TotalCount)
	assert.Equal(t, 30, summary.Window)
	assert.Equal(t, DefaultPageSize, backend.lists[0].PerPage)
}

func TestTotalFollowsLocalChanges(t *testing.T) {
	backend := &fakeBackend{records: manyRecords(5), nextID: 100}
	m := newMonitor(backend, Options{PageSize: 2})
	require.NoError(t, m.Refresh(context.Background()))
	require.Equal(t, 5, m.Summary(30).TotalCount)

	backend.listErr = errBackend
	_, err := m.AddManual(context.Background(), manual(t, 132, 86, 72))
	require.NoError(t, err)
	assert.Equal(t, 6, m.Summary(30).TotalCount)

	require.NoError(t, m.Delete(context.Background(), 5))
	assert.Equal(t, 5, m.Summary(30).TotalCount)

	// Not held locally, so the count is left alone.
	require.NoError(t, m.Delete(context.Background(), 1))
	assert.Equal(t, 5, m.Summary(30).TotalCount)
}

func TestHistory(t *testing.T) {
	backend := &fakeBackend{records: manyRecords(7)}
	m := newMonitor(backend, Options{PageSize: 3})
	require.NoError(t, m.Refresh(context.Background()))
	backend.lists = nil

	history, err := m.History(context.Background())
	require.NoError(t, err)

	assert.Len(t, history, 7)
	assert.Len(t, m.Sorted(), 3)
	require.Len(t, backend.lists, 3)
	assert.Equal(t, 3, backend.lists[2].Page)
	for i := 1; i < len(history); i++ {
		prev, _ := history[i-1].EffectiveTimestamp()
		cur, _ := history[i].EffectiveTimestamp()
		assert.False(t, cur.After(prev))
	}
}

func TestHistoryEmptyAndFailure(t *testing.T) {
	backend := &fakeBackend{}
	m := newMonitor(backend, Options{})

	history, err := m.History(context.Background())
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Len(t, backend.lists, 1)

	backend.listErr = errBackend
	_, err = m.History(context.Background())
	assert.ErrorIs(t, err, errBackend)
}

func TestRefreshIsIdempotent(t *testing.T) {
	backend := &fakeBackend{records: []api.Record{record(1, 120, 80, 70, 1)}}
	m := newMonitor(backend, Options{})

	require.NoError(t, m.Refresh(context.Background()))
	first := m.Readings()
	require.NoError(t, m.Refresh(context.Background()))

	assert.Equal(t, first, m.Readings())
}

func TestRefreshFailureLeavesReadings(t *testing.T) {
	backend := &fakeBackend{records: []api.Record{record(1, 120, 80, 70, 1)}}
	m := newMonitor(backend, Options{})
	require.NoError(t, m.Refresh(context.Background()))
	before := m.Readings()

	backend.listErr = errBackend
	err := m.Refresh(context.Background())

	assert.ErrorIs(t, err, errBackend)
	assert.Equal(t, before, m.Readings())
}

func TestAddManual(t *testing.T) {
	backend := &fakeBackend{}
	m := newMonitor(backend, Options{})

	var during []bloodpressure.Reading
	backend.onSave = func() { during = m.Readings() }

	saved, err := m.AddManual(context.Background(), manual(t, 132, 86, 72))
	require.NoError(t, err)

	assert.Equal(t, int64(1), saved.ID)
	assert.Equal(t, bloodpressure.NotesManual, saved.Notes)

	// Visible before the backend confirmed it.
	require.Len(t, during, 2)
	assert.False(t, during[1].IsSaved())
	assert.Equal(t, 132, during[1].Systolic)

	// Replaced by the refreshed set afterwards.
	readings := m.Readings()
	require.Len(t, readings, 1)
	assert.Equal(t, int64(1), readings[0].ID)
}

func TestAddManualSaveFailureRollsBack(t *testing.T) {
	backend := &fakeBackend{records: []api.Record{record(1, 120, 80, 70, 1)}, saveErr: errBackend}
	m := newMonitor(backend, Options{})
	require.NoError(t, m.Refresh(context.Background()))
	before := m.Readings()

	_, err := m.AddManual(context.Background(), manual(t, 132, 86, 72))

	assert.ErrorIs(t, err, errBackend)
	assert.Equal(t, before, m.Readings())
}

func TestAddManualRefreshFailureKeepsSavedRecord(t *testing.T) {
	backend := &fakeBackend{listErr: errBackend}
	m := newMonitor(backend, Options{})

	saved, err := m.AddManual(context.Background(), manual(t, 132, 86, 72))
	require.NoError(t, err)

	sorted := m.Sorted()
	require.Len(t, sorted, 1)
	assert.Equal(t, saved.ID, sorted[0].ID)
	assert.True(t, sorted[0].IsSaved())
}

func TestAddManualRejectsInvalid(t *testing.T) {
	backend := &fakeBackend{}
	m := newMonitor(backend, Options{})

	_, err := m.AddManual(context.Background(), bloodpressure.Reading{})
	assert.ErrorIs(t, err, ErrNoReading)

	_, err = m.AddManual(context.Background(), manual(t, 400, 80, 70))
	assert.ErrorIs(t, err, bloodpressure.ErrInvalidReading)

	assert.Zero(t, backend.saves)
}

func TestCaptureImage(t *testing.T) {
	sys, dia, pulse := 128, 82, 71
	confidence := 0.93
	backend := &fakeBackend{ocr: bloodpressure.OCRResult{Systolic: &sys, Diastolic: &dia, Pulse: &pulse, Confidence: &confidence}}
	m := newMonitor(backend, Options{})

	saved, err := m.CaptureImage(context.Background(), "monitor.jpg", strings.NewReader("jpeg"))
	require.NoError(t, err)

	assert.Equal(t, 128, saved.Systolic)
	assert.Equal(t, "09:30:00", saved.MeasurementTime)
	require.NotNil(t, saved.MeasurementDate)
	assert.True(t, saved.MeasurementDate.Equal(fixedNow))
	assert.Equal(t, &confidence, backend.savedConfidence)
	assert.Len(t, m.Sorted(), 1)
}

func TestCaptureImageFailures(t *testing.T) {
	tests := []struct {
		name    string
		backend *fakeBackend
		wantErr error
	}{
		{"request fails", &fakeBackend{ocrErr: errBackend}, errBackend},
		{"ocr error", &fakeBackend{ocr: bloodpressure.OCRResult{Error: "display not found"}}, bloodpressure.ErrOCRFailed},
		{"nothing read", &fakeBackend{}, ErrNoReading},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMonitor(tt.backend, Options{})
			before := m.Readings()

			_, err := m.CaptureImage(context.Background(), "monitor.jpg", strings.NewReader("jpeg"))

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, before, m.Readings())
			assert.Zero(t, tt.backend.saves)
		})
	}
}

func TestDelete(t *testing.T) {
	backend := &fakeBackend{records: []api.Record{record(1, 120, 80, 70, 1), record(2, 150, 95, 80, 2)}}
	m := newMonitor(backend, Options{})
	require.NoError(t, m.Refresh(context.Background()))

	require.NoError(t, m.Delete(context.Background(), 1))

	sorted := m.Sorted()
	require.Len(t, sorted, 1)
	assert.Equal(t, int64(2), sorted[0].ID)
}

func TestDeleteWithoutRefreshRemovesLocally(t *testing.T) {
	backend := &fakeBackend{records: []api.Record{record(1, 120, 80, 70, 1), record(2, 150, 95, 80, 2)}}
	m := newMonitor(backend, Options{})
	require.NoError(t, m.Refresh(context.Background()))

	backend.listErr = errBackend
	require.NoError(t, m.Delete(context.Background(), 2))

	sorted := m.Sorted()
	require.Len(t, sorted, 1)
	assert.Equal(t, int64(1), sorted[0].ID)
}

func TestDeleteFailure(t *testing.T) {
	backend := &fakeBackend{records: []api.Record{record(1, 120, 80, 70, 1)}}
	m := newMonitor(backend, Options{})
	require.NoError(t, m.Refresh(context.Background()))

	backend.deleteErr = errBackend
	err := m.Delete(context.Background(), 1)

	assert.ErrorIs(t, err, errBackend)
	assert.Len(t, m.Sorted(), 1)
}

func TestPersistAndRestore(t *testing.T) {
	store, err := sqlite.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	backend := &fakeBackend{records: []api.Record{record(1, 120, 80, 70, 1)}}
	first := New(backend, store, nil, Options{Owner: "7"})
	require.NoError(t, first.Refresh(context.Background()))

	second := New(&fakeBackend{listErr: errBackend}, store, nil, Options{Owner: "7"})
	found, err := second.Restore(context.Background())
	require.NoError(t, err)
	assert.True(t, found)
	restored := second.Readings()
	require.Len(t, restored, 1)
	assert.Equal(t, int64(1), restored[0].ID)
	assert.Equal(t, 120, restored[0].Systolic)
	require.NotNil(t, restored[0].MeasurementDate)
	assert.True(t, restored[0].MeasurementDate.Equal(*first.Readings()[0].MeasurementDate))

	other := New(backend, store, nil, Options{Owner: "8"})
	found, err = other.Restore(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRestoreWithoutStore(t *testing.T) {
	found, err := newMonitor(&fakeBackend{}, Options{}).Restore(context.Background())

	require.NoError(t, err)
	assert.False(t, found)
}

func TestLimits(t *testing.T) {
	dob := time.Date(1950, 1, 1, 0, 0, 0, 0, time.UTC)
	m := newMonitor(&fakeBackend{}, Options{Person: bloodpressure.Person{DateOfBirth: &dob}})

	assert.Equal(t, bloodpressure.LimitsElderly, m.Limits(fixedNow))
	assert.Equal(t, bloodpressure.LimitsAdult, newMonitor(&fakeBackend{}, Options{}).Limits(fixedNow))
}

func TestLimitsLogsImplausibleAge(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	dob := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	m := New(&fakeBackend{}, nil, zap.New(core), Options{Person: bloodpressure.Person{DateOfBirth: &dob}})

	limits := m.Limits(fixedNow)

	assert.Equal(t, bloodpressure.LimitsInfant, limits)
	require.Equal(t, 1, logs.FilterMessage("implausible age").Len())
	assert.Equal(t, int64(-6), logs.All()[0].ContextMap()["age"])
}

func TestDomain(t *testing.T) {
	backend := &fakeBackend{records: []api.Record{record(1, 175, 95, 70, 1)}}
	m := newMonitor(backend, Options{})
	require.NoError(t, m.Refresh(context.Background()))

	yMin, yMax := m.Domain()

	assert.Equal(t, 40, yMin)
	assert.Equal(t, 185, yMax)
}
