// Package monitor keeps the signed-in person's reading set in sync with the
// backend. Captures are merged optimistically, confirmed by a backend save and
// followed by a full refresh.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jwulff/bptrack/internal/api"
	"github.com/jwulff/bptrack/internal/bloodpressure"
	"github.com/jwulff/bptrack/internal/chart"
	"github.com/jwulff/bptrack/internal/reconcile"
	"github.com/jwulff/bptrack/internal/storage"
)

// DefaultPageSize is the number of records fetched by Refresh.
const DefaultPageSize = 100

// ErrNoReading is returned when a capture carries no pressure values.
var ErrNoReading = errors.New("no reading captured")

// Backend is the part of the API client the monitor uses.
type Backend interface {
	ListRecords(ctx context.Context, opts api.ListOptions) (*api.RecordPage, error)
	CreateRecord(ctx context.Context, in api.RecordInput) (*api.Record, error)
	DeleteRecord(ctx context.Context, id int64) error
	ProcessImage(ctx context.Context, filename string, image io.Reader) (bloodpressure.OCRResult, error)
	SaveFromOCR(ctx context.Context, r bloodpressure.Reading, confidence *float64) (*api.Record, error)
}

// Options configures a Monitor.
type Options struct {
	Person   bloodpressure.Person
	Owner    string // Cache key, usually the user ID
	PageSize int
	Now      func() time.Time
}

// Monitor owns the in-memory reading list for one person. It is safe for
// concurrent use.
type Monitor struct {
	backend  Backend
	store    storage.Store
	logger   *zap.Logger
	person   bloodpressure.Person
	owner    string
	pageSize int
	now      func() time.Time

	mu       sync.RWMutex
	readings []bloodpressure.Reading
	total    int // backend record count from the last refresh, 0 if unknown
}

// New creates a monitor seeded with the sentinel reading. store may be nil.
func New(backend Backend, store storage.Store, logger *zap.Logger, opts Options) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Monitor{
		backend:  backend,
		store:    store,
		logger:   logger.With(zap.String("owner", opts.Owner)),
		person:   opts.Person,
		owner:    opts.Owner,
		pageSize: opts.PageSize,
		now:      opts.Now,
		readings: reconcile.Merge(nil, reconcile.Update{}),
	}
}

// Person returns the person the readings belong to.
func (m *Monitor) Person() bloodpressure.Person {
	return m.person
}

// Restore loads the cached reading set, if any. It reports whether a cached
// set was found.
func (m *Monitor) Restore(ctx context.Context) (bool, error) {
	if m.store == nil {
		return false, nil
	}
	cached, err := m.store.GetReadings(ctx, m.owner)
	if storage.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to restore readings: %w", err)
	}

	m.mu.Lock()
	m.readings = reconcile.Merge(nil, reconcile.Replace(cached.Readings))
	m.mu.Unlock()

	m.logger.Debug("restored cached readings",
		zap.Int("count", len(cached.Readings)),
		zap.Time("saved_at", cached.SavedAt),
	)
	return true, nil
}

// Refresh replaces the reading set with the backend's latest page and records
// the backend's total count. On failure the set is left unchanged.
func (m *Monitor) Refresh(ctx context.Context) error {
	page, err := m.backend.ListRecords(ctx, api.ListOptions{PerPage: m.pageSize})
	if err != nil {
		m.logger.Warn("refresh failed", zap.Error(err))
		return fmt.Errorf("failed to refresh readings: %w", err)
	}

	m.mu.Lock()
	m.readings = reconcile.Merge(m.readings, reconcile.Replace(api.Readings(page.Records)))
	m.total = page.Pagination.Total
	m.mu.Unlock()
	m.persist(ctx)

	m.logger.Debug("refreshed readings",
		zap.Int("count", len(page.Records)),
		zap.Int("total", page.Pagination.Total),
	)
	return nil
}

// History fetches every stored record, page by page, most recent first.
// The in-memory set is not changed.
func (m *Monitor) History(ctx context.Context) ([]bloodpressure.Reading, error) {
	var readings []bloodpressure.Reading
	for pageNum := 1; ; pageNum++ {
		page, err := m.backend.ListRecords(ctx, api.ListOptions{Page: pageNum, PerPage: m.pageSize})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch page %d: %w", pageNum, err)
		}
		readings = append(readings, api.Readings(page.Records)...)
		if len(page.Records) == 0 || pageNum >= page.Pagination.TotalPages {
			break
		}
	}
	return reconcile.SortDescending(reconcile.WithoutEmpty(readings)), nil
}

// CaptureImage sends a monitor photo for OCR and saves the result. The
// reading appears in the set as soon as OCR succeeds and is removed again if
// the save fails.
func (m *Monitor) CaptureImage(ctx context.Context, filename string, image io.Reader) (bloodpressure.Reading, error) {
	res, err := m.backend.ProcessImage(ctx, filename, image)
	if err != nil {
		return bloodpressure.Reading{}, fmt.Errorf("failed to process image: %w", err)
	}

	reading, err := bloodpressure.FromOCR(res, m.now())
	if err != nil {
		m.logger.Info("ocr returned no reading", zap.String("filename", filename), zap.Error(err))
		return bloodpressure.Reading{}, err
	}
	if reading.IsEmpty() {
		return bloodpressure.Reading{}, ErrNoReading
	}

	return m.commit(ctx, reading, func() (*api.Record, error) {
		return m.backend.SaveFromOCR(ctx, reading, res.Confidence)
	})
}

// AddManual saves a manually entered reading.
func (m *Monitor) AddManual(ctx context.Context, reading bloodpressure.Reading) (bloodpressure.Reading, error) {
	if reading.IsEmpty() {
		return bloodpressure.Reading{}, ErrNoReading
	}
	if err := bloodpressure.Validate(reading); err != nil {
		return bloodpressure.Reading{}, err
	}

	return m.commit(ctx, reading, func() (*api.Record, error) {
		return m.backend.CreateRecord(ctx, api.NewRecordInput(reading))
	})
}

// Delete removes a saved reading.
func (m *Monitor) Delete(ctx context.Context, id int64) error {
	if err := m.backend.DeleteRecord(ctx, id); err != nil {
		return fmt.Errorf("failed to delete reading %d: %w", id, err)
	}

	if err := m.Refresh(ctx); err != nil {
		m.mu.Lock()
		before := len(m.readings)
		m.readings = slices.DeleteFunc(slices.Clone(m.readings), func(r bloodpressure.Reading) bool {
			return r.ID == id
		})
		if m.total > 0 && len(m.readings) < before {
			m.total--
		}
		m.mu.Unlock()
		m.persist(ctx)
	}
	return nil
}

// commit appends reading optimistically, runs save and refreshes. A failed
// save rolls the append back.
func (m *Monitor) commit(ctx context.Context, reading bloodpressure.Reading, save func() (*api.Record, error)) (bloodpressure.Reading, error) {
	m.mu.Lock()
	m.readings = reconcile.Merge(m.readings, reconcile.Append(reading))
	m.mu.Unlock()

	rec, err := save()
	if err != nil {
		m.rollback(reading)
		m.logger.Warn("save failed, capture discarded", zap.Error(err))
		return bloodpressure.Reading{}, fmt.Errorf("failed to save reading: %w", err)
	}
	saved := rec.Reading()

	if err := m.Refresh(ctx); err != nil {
		// Keep the saved record in place of the optimistic one.
		m.mu.Lock()
		if i := m.lastUnsaved(reading); i >= 0 {
			m.readings = slices.Clone(m.readings)
			m.readings[i] = saved
		}
		if m.total > 0 {
			m.total++
		}
		m.mu.Unlock()
		m.persist(ctx)
	}

	m.logger.Info("reading saved",
		zap.Int64("id", saved.ID),
		zap.Int("systolic", saved.Systolic),
		zap.Int("diastolic", saved.Diastolic),
	)
	return saved, nil
}

func (m *Monitor) rollback(reading bloodpressure.Reading) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.lastUnsaved(reading); i >= 0 {
		m.readings = slices.Delete(slices.Clone(m.readings), i, i+1)
	}
}

// lastUnsaved returns the index of the newest unsaved copy of reading, or -1.
// Callers hold mu.
func (m *Monitor) lastUnsaved(reading bloodpressure.Reading) int {
	for i := len(m.readings) - 1; i >= 0; i-- {
		r := m.readings[i]
		if !r.IsSaved() && sameValues(r, reading) {
			return i
		}
	}
	return -1
}

func sameValues(a, b bloodpressure.Reading) bool {
	if a.Systolic != b.Systolic || a.Diastolic != b.Diastolic || a.Pulse != b.Pulse {
		return false
	}
	if a.MeasurementTime != b.MeasurementTime || a.Notes != b.Notes {
		return false
	}
	ta, okA := a.EffectiveTimestamp()
	tb, okB := b.EffectiveTimestamp()
	return okA == okB && ta.Equal(tb)
}

// persist writes the current set to the store. Failures are logged only.
func (m *Monitor) persist(ctx context.Context) {
	if m.store == nil {
		return
	}
	readings := m.Readings()
	if err := m.store.SaveReadings(ctx, m.owner, readings); err != nil {
		m.logger.Warn("failed to cache readings", zap.Error(err))
	}
}

// Readings returns a copy of the current set in merge order.
func (m *Monitor) Readings() []bloodpressure.Reading {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.readings)
}

// Sorted returns the captured readings, most recent first.
func (m *Monitor) Sorted() []bloodpressure.Reading {
	return reconcile.SortDescending(reconcile.WithoutEmpty(m.Readings()))
}

// Summary summarizes the set over the most recent window readings. TotalCount
// is the backend's record count when it exceeds the readings held locally.
func (m *Monitor) Summary(window int) reconcile.Summary {
	summary := reconcile.Summarize(m.Readings(), window)
	summary.TotalCount = max(summary.TotalCount, m.Total())
	return summary
}

// Total returns the backend's record count as of the last refresh, or 0 if
// the set has not been refreshed.
func (m *Monitor) Total() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.total
}

// Limits returns the reference range for the person's age at now. An
// implausible age is logged and used as is.
func (m *Monitor) Limits(now time.Time) bloodpressure.Limits {
	age := m.person.Age(now)
	if !bloodpressure.IsPlausibleAge(age) {
		m.logger.Warn("implausible age", zap.Int("age", age))
	}
	return bloodpressure.LimitsForAge(age)
}

// Domain returns the chart y-axis range for the current set.
func (m *Monitor) Domain() (yMin, yMax int) {
	return chart.Domain(m.Readings(), m.Limits(m.now()))
}

// Now returns the monitor's current time.
func (m *Monitor) Now() time.Time {
	return m.now()
}
