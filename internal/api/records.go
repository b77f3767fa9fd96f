package api

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/jwulff/bptrack/internal/bloodpressure"
)

// Record is a stored blood pressure record.
type Record struct {
	ID              int64    `json:"id"`
	Systolic        int      `json:"systolic"`
	Diastolic       int      `json:"diastolic"`
	Pulse           int      `json:"pulse"`
	MeasurementDate *Time    `json:"measurement_date,omitempty"`
	MeasurementTime string   `json:"measurement_time,omitempty"`
	Notes           string   `json:"notes,omitempty"`
	ImagePath       string   `json:"image_path,omitempty"`
	OCRConfidence   *float64 `json:"ocr_confidence,omitempty"`
	CreatedAt       *Time    `json:"created_at,omitempty"`
}

// Reading converts the record to a Reading.
func (r Record) Reading() bloodpressure.Reading {
	return bloodpressure.Reading{
		ID:              r.ID,
		Systolic:        r.Systolic,
		Diastolic:       r.Diastolic,
		Pulse:           r.Pulse,
		MeasurementDate: r.MeasurementDate.Ptr(),
		MeasurementTime: r.MeasurementTime,
		CreatedAt:       r.CreatedAt.Ptr(),
		Notes:           r.Notes,
	}
}

// Readings converts records to Readings.
func Readings(records []Record) []bloodpressure.Reading {
	out := make([]bloodpressure.Reading, 0, len(records))
	for _, r := range records {
		out = append(out, r.Reading())
	}
	return out
}

// RecordInput is the body of a create request.
type RecordInput struct {
	Systolic        int    `json:"systolic"`
	Diastolic       int    `json:"diastolic"`
	Pulse           int    `json:"pulse"`
	MeasurementDate string `json:"measurement_date"`
	MeasurementTime string `json:"measurement_time,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

// NewRecordInput builds a create request from a reading. The measurement
// date is sent as RFC 3339 and falls back to the creation time.
func NewRecordInput(r bloodpressure.Reading) RecordInput {
	in := RecordInput{
		Systolic:        r.Systolic,
		Diastolic:       r.Diastolic,
		Pulse:           r.Pulse,
		MeasurementTime: r.MeasurementTime,
		Notes:           r.Notes,
	}
	if ts, ok := r.EffectiveTimestamp(); ok {
		in.MeasurementDate = ts.Format(time.RFC3339)
	}
	return in
}

// RecordUpdate holds the fields to change. Nil fields are left as is.
type RecordUpdate struct {
	Systolic        *int    `json:"systolic,omitempty"`
	Diastolic       *int    `json:"diastolic,omitempty"`
	Pulse           *int    `json:"pulse,omitempty"`
	MeasurementDate *Time   `json:"measurement_date,omitempty"`
	MeasurementTime *string `json:"measurement_time,omitempty"`
	Notes           *string `json:"notes,omitempty"`
}

// ListOptions filters and pages ListRecords. Zero values use the backend defaults.
type ListOptions struct {
	Page      int
	PerPage   int
	StartDate *time.Time
	EndDate   *time.Time
}

func (o ListOptions) query() map[string]string {
	q := map[string]string{}
	if o.Page > 0 {
		q["page"] = strconv.Itoa(o.Page)
	}
	if o.PerPage > 0 {
		q["per_page"] = strconv.Itoa(o.PerPage)
	}
	if o.StartDate != nil {
		q["start_date"] = o.StartDate.Format(time.RFC3339)
	}
	if o.EndDate != nil {
		q["end_date"] = o.EndDate.Format(time.RFC3339)
	}
	return q
}

// Pagination describes one page of results.
type Pagination struct {
	CurrentPage int `json:"current_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
	TotalPages  int `json:"total_pages"`
}

// RecordPage is one page of records, newest first.
type RecordPage struct {
	Records    []Record
	Pagination Pagination
}

// ListRecords returns the signed-in user's records, newest first.
func (c *Client) ListRecords(ctx context.Context, opts ListOptions) (*RecordPage, error) {
	var data struct {
		Records []Record `json:"records"`
	}
	var meta struct {
		Pagination Pagination `json:"pagination"`
	}
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   Prefix + "/bp-records",
		query:  opts.query(),
		data:   &data,
		meta:   &meta,
	})
	if err != nil {
		return nil, err
	}
	return &RecordPage{Records: data.Records, Pagination: meta.Pagination}, nil
}

// GetRecord returns one record.
func (c *Client) GetRecord(ctx context.Context, id int64) (*Record, error) {
	return c.record(ctx, call{method: http.MethodGet, path: recordPath(id)})
}

// CreateRecord stores a new record.
func (c *Client) CreateRecord(ctx context.Context, in RecordInput) (*Record, error) {
	return c.record(ctx, call{method: http.MethodPost, path: Prefix + "/bp-records", body: in})
}

// UpdateRecord changes an existing record.
func (c *Client) UpdateRecord(ctx context.Context, id int64, u RecordUpdate) (*Record, error) {
	return c.record(ctx, call{method: http.MethodPut, path: recordPath(id), body: u})
}

// DeleteRecord removes a record.
func (c *Client) DeleteRecord(ctx context.Context, id int64) error {
	return c.do(ctx, call{method: http.MethodDelete, path: recordPath(id)})
}

func (c *Client) record(ctx context.Context, cl call) (*Record, error) {
	var data struct {
		Record Record `json:"record"`
	}
	cl.data = &data
	if err := c.do(ctx, cl); err != nil {
		return nil, err
	}
	return &data.Record, nil
}

func recordPath(id int64) string {
	return Prefix + "/bp-records/" + strconv.FormatInt(id, 10)
}

// ocrResult is the wire form of an OCR result. Older backends send the
// clock time as "time".
type ocrResult struct {
	Systolic        *int     `json:"systolic,omitempty"`
	Diastolic       *int     `json:"diastolic,omitempty"`
	Pulse           *int     `json:"pulse,omitempty"`
	MeasurementDate string   `json:"measurement_date,omitempty"`
	MeasurementTime string   `json:"measurement_time,omitempty"`
	Time            string   `json:"time,omitempty"`
	Confidence      *float64 `json:"confidence,omitempty"`
	Error           string   `json:"error,omitempty"`
}

func (o ocrResult) result() bloodpressure.OCRResult {
	clock := o.MeasurementTime
	if clock == "" {
		clock = o.Time
	}
	return bloodpressure.OCRResult{
		Systolic:        o.Systolic,
		Diastolic:       o.Diastolic,
		Pulse:           o.Pulse,
		MeasurementDate: o.MeasurementDate,
		MeasurementTime: clock,
		Confidence:      o.Confidence,
		Error:           o.Error,
	}
}

// ProcessImage uploads a photo of a monitor display for OCR. A result whose
// Error field is set is returned without error; bloodpressure.FromOCR turns
// it into one.
func (c *Client) ProcessImage(ctx context.Context, filename string, image io.Reader) (bloodpressure.OCRResult, error) {
	var data struct {
		OCRResult ocrResult `json:"ocr_result"`
	}
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   Prefix + "/ocr/process-image",
		prep: func(r *resty.Request) {
			r.SetFileReader("file", filename, image)
		},
		data: &data,
	})
	if err != nil {
		return bloodpressure.OCRResult{}, err
	}
	return data.OCRResult.result(), nil
}

// SaveFromOCR stores a reading confirmed from an OCR result.
func (c *Client) SaveFromOCR(ctx context.Context, r bloodpressure.Reading, confidence *float64) (*Record, error) {
	sys, dia, pulse := r.Systolic, r.Diastolic, r.Pulse
	body := ocrResult{
		Systolic:        &sys,
		Diastolic:       &dia,
		Pulse:           &pulse,
		MeasurementTime: r.MeasurementTime,
		Time:            r.MeasurementTime,
		Confidence:      confidence,
	}
	if r.MeasurementDate != nil {
		body.MeasurementDate = r.MeasurementDate.Format(time.RFC3339)
	}
	return c.record(ctx, call{
		method: http.MethodPost,
		path:   Prefix + "/bp-records/save-from-ocr",
		body:   body,
	})
}

// MetricStats are the statistics for one measurement.
type MetricStats struct {
	Avg float64 `json:"avg"`
	Min int     `json:"min"`
	Max int     `json:"max"`
}

// Stats summarizes recent records.
type Stats struct {
	PeriodDays          int         `json:"-"`
	Systolic            MetricStats `json:"systolic"`
	Diastolic           MetricStats `json:"diastolic"`
	Pulse               MetricStats `json:"pulse"`
	TotalRecordsPeriod  int         `json:"total_records_period"`
	TotalRecordsAllTime int         `json:"total_records_all_time"`
}

// StatsSummary returns average, minimum and maximum values over the period.
func (c *Client) StatsSummary(ctx context.Context, days int) (*Stats, error) {
	var data struct {
		PeriodDays int   `json:"period_days"`
		Stats      Stats `json:"stats"`
	}
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   Prefix + "/stats/summary",
		query:  map[string]string{"days": strconv.Itoa(days)},
		data:   &data,
	})
	if err != nil {
		return nil, err
	}
	data.Stats.PeriodDays = data.PeriodDays
	return &data.Stats, nil
}
