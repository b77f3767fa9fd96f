// Package bloodpressure holds the blood pressure domain types and the
// age-banded reference ranges used to classify readings.
package bloodpressure

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Status represents the classification of a reading against its limits.
type Status string

const (
	StatusNormal   Status = "normal"
	StatusElevated Status = "elevated"
)

// Role gates which screens a person sees. It does not affect classification.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
)

// DefaultAge is assumed when no date of birth is known.
const DefaultAge = 30

// Age band boundaries in whole years.
const (
	AgeChild     = 3
	AgeSchool    = 7
	AgeAdult     = 18
	AgeElderly   = 60
	AgePlausible = 130
)

// Expected physiological ranges, used only by Validate.
const (
	MinSystolic  = 40
	MaxSystolic  = 300
	MinDiastolic = 20
	MaxDiastolic = 200
	MinPulse     = 20
	MaxPulse     = 250
)

// ErrInvalidReading is returned by Validate for values outside the expected ranges.
var ErrInvalidReading = errors.New("invalid reading")

// Reading is a single blood pressure observation.
type Reading struct {
	ID              int64      `json:"id,omitempty"`               // Backend ID, 0 when unsaved
	Systolic        int        `json:"systolic"`                   // mmHg
	Diastolic       int        `json:"diastolic"`                  // mmHg
	Pulse           int        `json:"pulse"`                      // beats per minute
	MeasurementDate *time.Time `json:"measurement_date,omitempty"` // When the reading was taken
	MeasurementTime string     `json:"measurement_time,omitempty"` // Clock time as displayed or read by OCR
	CreatedAt       *time.Time `json:"created_at,omitempty"`       // Server-assigned, fallback ordering key
	Notes           string     `json:"notes,omitempty"`
}

// Sentinel returns the all-zero placeholder reading.
func Sentinel() Reading {
	return Reading{}
}

// IsEmpty reports whether the reading carries no captured pressure values.
// Zero systolic and diastolic together mark the sentinel and OCR no-op results.
func (r Reading) IsEmpty() bool {
	return r.Systolic == 0 && r.Diastolic == 0
}

// IsSaved reports whether the backend has assigned an ID.
func (r Reading) IsSaved() bool {
	return r.ID != 0
}

// EffectiveTimestamp returns the ordering key: the measurement date, else the
// creation time. ok is false when neither is set.
func (r Reading) EffectiveTimestamp() (ts time.Time, ok bool) {
	if r.MeasurementDate != nil && !r.MeasurementDate.IsZero() {
		return *r.MeasurementDate, true
	}
	if r.CreatedAt != nil && !r.CreatedAt.IsZero() {
		return *r.CreatedAt, true
	}
	return time.Time{}, false
}

// Status classifies the reading against the given limits.
func (r Reading) Status(limits Limits) Status {
	return Classify(r.Systolic, r.Diastolic, limits)
}

// MeanArterialPressure returns the reading's MAP in mmHg.
func (r Reading) MeanArterialPressure() int {
	return MeanArterialPressure(r.Systolic, r.Diastolic)
}

// Validate checks the reading against the expected physiological ranges.
// Merge and Classify accept any values; callers that want input checks use this.
func Validate(r Reading) error {
	switch {
	case r.Systolic < MinSystolic || r.Systolic > MaxSystolic:
		return fmt.Errorf("%w: systolic %d outside %d-%d", ErrInvalidReading, r.Systolic, MinSystolic, MaxSystolic)
	case r.Diastolic < MinDiastolic || r.Diastolic > MaxDiastolic:
		return fmt.Errorf("%w: diastolic %d outside %d-%d", ErrInvalidReading, r.Diastolic, MinDiastolic, MaxDiastolic)
	case r.Pulse < MinPulse || r.Pulse > MaxPulse:
		return fmt.Errorf("%w: pulse %d outside %d-%d", ErrInvalidReading, r.Pulse, MinPulse, MaxPulse)
	}
	return nil
}

// Limits is the upper edge of the acceptable range for an age group.
type Limits struct {
	AgeGroup string
	SysMax   int
	DiaMax   int
}

// Age group reference ranges.
var (
	LimitsInfant  = Limits{AgeGroup: "Infant", SysMax: 90, DiaMax: 60}
	LimitsChild   = Limits{AgeGroup: "Child (3-6)", SysMax: 110, DiaMax: 70}
	LimitsSchool  = Limits{AgeGroup: "Child (7-17)", SysMax: 120, DiaMax: 80}
	LimitsAdult   = Limits{AgeGroup: "Adult", SysMax: 140, DiaMax: 90}
	LimitsElderly = Limits{AgeGroup: "Elderly", SysMax: 160, DiaMax: 90}
)

// LimitsForAge returns the reference range for an age in whole years.
// Negative ages fall into the infant band.
func LimitsForAge(age int) Limits {
	if age < AgeChild {
		return LimitsInfant
	}
	if age < AgeSchool {
		return LimitsChild
	}
	if age < AgeAdult {
		return LimitsSchool
	}
	if age < AgeElderly {
		return LimitsAdult
	}
	return LimitsElderly
}

// Classify reports whether a reading is above the limits. Either value over
// its maximum makes the reading elevated.
func Classify(systolic, diastolic int, limits Limits) Status {
	if systolic > limits.SysMax || diastolic > limits.DiaMax {
		return StatusElevated
	}
	return StatusNormal
}

// CalculateAge returns completed years between dob and now. A nil dob yields
// DefaultAge. Future dates are not rejected and give zero or negative ages.
func CalculateAge(dob *time.Time, now time.Time) int {
	if dob == nil || dob.IsZero() {
		return DefaultAge
	}
	// Birth dates are calendar dates, so compare fields without zone conversion.
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	return age
}

// IsPlausibleAge reports whether an age is within 0-130 years.
func IsPlausibleAge(age int) bool {
	return age >= 0 && age <= AgePlausible
}

// MeanArterialPressure returns (2*diastolic + systolic) / 3 rounded to the nearest mmHg.
func MeanArterialPressure(systolic, diastolic int) int {
	return int(math.Round(float64(2*diastolic+systolic) / 3))
}

// Person is the context the age-banded computations need.
type Person struct {
	FullName    string
	Role        Role
	DateOfBirth *time.Time
}

// Age returns the person's age at now.
func (p Person) Age(now time.Time) int {
	return CalculateAge(p.DateOfBirth, now)
}

// Limits returns the reference range for the person's age at now.
func (p Person) Limits(now time.Time) Limits {
	return LimitsForAge(p.Age(now))
}
