package bloodpressure

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrOCRFailed is returned when the OCR service reports an error.
var ErrOCRFailed = errors.New("ocr failed")

// Display and input layouts.
const (
	DateLayout     = "2006-01-02"
	ClockLayout    = "15:04"
	OCRClockLayout = "15:04:05"
	NotesManual    = "Manual Entry"
	NotesWeb       = "Web Entry"
)

// timestampLayouts are tried in order by ParseTimestamp.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05", // naive backend datetime, fraction optional
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	DateLayout,
}

// OCRResult holds the fields extracted from a photo of a monitor display.
// Any field may be missing.
type OCRResult struct {
	Systolic        *int
	Diastolic       *int
	Pulse           *int
	MeasurementDate string
	MeasurementTime string
	Confidence      *float64
	Error           string
}

// ParseTimestamp parses the timestamp formats the backend and the capture
// forms produce. Zone-less values are interpreted as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("failed to parse timestamp: empty value")
	}

	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, fmt.Errorf("failed to parse timestamp '%s': %w", s, lastErr)
}

// FromOCR normalizes an OCR result into a Reading. Missing pressure values
// become zero, so an empty result normalizes to the sentinel. A missing clock
// time is replaced with the time of capture.
func FromOCR(res OCRResult, now time.Time) (Reading, error) {
	if res.Error != "" {
		return Reading{}, fmt.Errorf("%w: %s", ErrOCRFailed, res.Error)
	}

	r := Reading{
		Systolic:        deref(res.Systolic),
		Diastolic:       deref(res.Diastolic),
		Pulse:           deref(res.Pulse),
		MeasurementTime: strings.TrimSpace(res.MeasurementTime),
	}
	if r.MeasurementTime == "" {
		r.MeasurementTime = now.Format(OCRClockLayout)
	}

	measured := now
	if res.MeasurementDate != "" {
		if t, err := ParseTimestamp(res.MeasurementDate); err == nil {
			measured = t
		}
	}
	r.MeasurementDate = &measured

	return r, nil
}

// NewManualReading builds a reading from form input. date is YYYY-MM-DD and
// clock is HH:MM, both interpreted in loc; empty values default to now.
func NewManualReading(systolic, diastolic, pulse int, date, clock string, loc *time.Location, notes string, now time.Time) (Reading, error) {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	if date == "" {
		date = local.Format(DateLayout)
	}
	if clock == "" {
		clock = local.Format(ClockLayout)
	}
	if notes == "" {
		notes = NotesManual
	}

	measured, err := time.ParseInLocation(DateLayout+" "+ClockLayout, date+" "+clock, loc)
	if err != nil {
		return Reading{}, fmt.Errorf("failed to parse measurement date %q %q: %w", date, clock, err)
	}

	return Reading{
		Systolic:        systolic,
		Diastolic:       diastolic,
		Pulse:           pulse,
		MeasurementDate: &measured,
		MeasurementTime: clock,
		Notes:           notes,
	}, nil
}

func deref(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
