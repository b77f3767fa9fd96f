// Package dashboard serves the local web dashboard over a Monitor.
package dashboard

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/jwulff/bptrack/internal/api"
	"github.com/jwulff/bptrack/internal/bloodpressure"
	"github.com/jwulff/bptrack/internal/chart"
	"github.com/jwulff/bptrack/internal/export"
	"github.com/jwulff/bptrack/internal/monitor"
	"github.com/jwulff/bptrack/internal/reconcile"
)

// MaxUploadSize bounds the size of an uploaded monitor photo.
const MaxUploadSize = 10 << 20

const contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Options configures the dashboard.
type Options struct {
	Window   int            // Readings averaged in the summary
	Location *time.Location // Zone for manual entry, chart labels and export
	Title    string
}

// Handler serves the dashboard routes.
type Handler struct {
	monitor *monitor.Monitor
	logger  *zap.Logger
	opts    Options
}

// NewHandler creates a dashboard handler.
func NewHandler(m *monitor.Monitor, logger *zap.Logger, opts Options) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Window == 0 {
		opts.Window = reconcile.DefaultWindow
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Handler{monitor: m, logger: logger, opts: opts}
}

// Router returns a router with every dashboard route registered.
func (h *Handler) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(h.logRequests)

	router.HandleFunc("/health", h.health).Methods(http.MethodGet)
	router.HandleFunc("/chart", h.chart).Methods(http.MethodGet)
	router.HandleFunc("/export.xlsx", h.export).Methods(http.MethodGet)

	router.HandleFunc("/api/summary", h.summary).Methods(http.MethodGet)
	router.HandleFunc("/api/readings", h.readings).Methods(http.MethodGet)
	router.HandleFunc("/api/readings", h.addReading).Methods(http.MethodPost)
	router.HandleFunc("/api/readings/{id:[0-9]+}", h.deleteReading).Methods(http.MethodDelete)
	router.HandleFunc("/api/ocr", h.captureImage).Methods(http.MethodPost)
	router.HandleFunc("/api/refresh", h.refresh).Methods(http.MethodPost)

	return router
}

// logRequests tags each request with an ID and logs its outcome.
func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(api.HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(api.HeaderRequestID, id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		h.logger.Info("request",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// ReadingView is a reading with its classification.
type ReadingView struct {
	bloodpressure.Reading
	Status bloodpressure.Status `json:"status"`
	MAP    int                  `json:"map"`
}

func (h *Handler) view(r bloodpressure.Reading, limits bloodpressure.Limits) ReadingView {
	return ReadingView{Reading: r, Status: r.Status(limits), MAP: r.MeanArterialPressure()}
}

// SummaryResponse is the body of GET /api/summary.
type SummaryResponse struct {
	Person       string       `json:"person"`
	AgeGroup     string       `json:"age_group"`
	SysMax       int          `json:"sys_max"`
	DiaMax       int          `json:"dia_max"`
	LastReading  *ReadingView `json:"last_reading"`
	AveragePulse int          `json:"average_pulse"`
	TotalCount   int          `json:"total_count"`
	Window       int          `json:"window"`
	YMin         int          `json:"y_min"`
	YMax         int          `json:"y_max"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	window := h.opts.Window
	if v := r.URL.Query().Get("window"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid window %q", v))
			return
		}
		window = n
	}

	limits := h.monitor.Limits(h.monitor.Now())
	summary := h.monitor.Summary(window)
	yMin, yMax := h.monitor.Domain()

	resp := SummaryResponse{
		Person:       h.monitor.Person().FullName,
		AgeGroup:     limits.AgeGroup,
		SysMax:       limits.SysMax,
		DiaMax:       limits.DiaMax,
		AveragePulse: summary.AveragePulse,
		TotalCount:   summary.TotalCount,
		Window:       summary.Window,
		YMin:         yMin,
		YMax:         yMax,
	}
	if summary.LastReading != nil {
		v := h.view(*summary.LastReading, limits)
		resp.LastReading = &v
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) readings(w http.ResponseWriter, r *http.Request) {
	limits := h.monitor.Limits(h.monitor.Now())
	sorted := h.monitor.Sorted()

	views := make([]ReadingView, 0, len(sorted))
	for _, reading := range sorted {
		views = append(views, h.view(reading, limits))
	}
	writeJSON(w, http.StatusOK, views)
}

// ManualEntry is the body of POST /api/readings. Date and time default to now.
type ManualEntry struct {
	Systolic  int    `json:"systolic"`
	Diastolic int    `json:"diastolic"`
	Pulse     int    `json:"pulse"`
	Date      string `json:"date,omitempty"` // YYYY-MM-DD
	Time      string `json:"time,omitempty"` // HH:MM
	Notes     string `json:"notes,omitempty"`
}

func (h *Handler) addReading(w http.ResponseWriter, r *http.Request) {
	var entry ManualEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	notes := entry.Notes
	if notes == "" {
		notes = bloodpressure.NotesWeb
	}
	reading, err := bloodpressure.NewManualReading(entry.Systolic, entry.Diastolic, entry.Pulse,
		entry.Date, entry.Time, h.opts.Location, notes, h.monitor.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	saved, err := h.monitor.AddManual(r.Context(), reading)
	if err != nil {
		h.writeCaptureError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.view(saved, h.monitor.Limits(h.monitor.Now())))
}

func (h *Handler) captureImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing image: %w", err))
		return
	}
	defer file.Close()

	saved, err := h.monitor.CaptureImage(r.Context(), header.Filename, file)
	if err != nil {
		h.writeCaptureError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.view(saved, h.monitor.Limits(h.monitor.Now())))
}

func (h *Handler) deleteReading(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.monitor.Delete(r.Context(), id); err != nil {
		writeError(w, backendStatus(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.monitor.Refresh(r.Context()); err != nil {
		writeError(w, backendStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": len(h.monitor.Sorted())})
}

func (h *Handler) chart(w http.ResponseWriter, r *http.Request) {
	cfg := chart.NewConfig(h.opts.Title)
	cfg.Timezone = h.opts.Location.String()

	var buf bytes.Buffer
	if err := chart.RenderTrend(&buf, h.monitor.Readings(), h.monitor.Limits(h.monitor.Now()), cfg); err != nil {
		h.logger.Error("failed to render chart", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	now := h.monitor.Now()

	readings, err := h.monitor.History(r.Context())
	if err != nil {
		h.logger.Warn("failed to fetch full history, exporting cached readings", zap.Error(err))
		readings = h.monitor.Readings()
	}

	var buf bytes.Buffer
	err = export.WriteWorkbook(&buf, h.monitor.Person(), readings, h.monitor.Limits(now), h.opts.Location)
	if err != nil {
		h.logger.Error("failed to export readings", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	filename := fmt.Sprintf("bp-readings-%s.xlsx", now.In(h.opts.Location).Format(bloodpressure.DateLayout))
	w.Header().Set("Content-Type", contentTypeXLSX)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	_, _ = buf.WriteTo(w)
}

// writeCaptureError maps a capture failure to a status code. Rejected input
// is the client's fault, anything else came from the backend.
func (h *Handler) writeCaptureError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, bloodpressure.ErrInvalidReading):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, bloodpressure.ErrOCRFailed), errors.Is(err, monitor.ErrNoReading):
		writeError(w, http.StatusUnprocessableEntity, err)
	default:
		h.logger.Warn("capture failed", zap.Error(err))
		writeError(w, backendStatus(err), err)
	}
}

// backendStatus passes client errors from the backend through and reports
// anything else as a bad gateway.
func backendStatus(err error) int {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
		return apiErr.StatusCode
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
