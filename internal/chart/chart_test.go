package chart

import (
	"bytes"
	"testing"
	"time"

	"github.com/jwulff/bptrack/internal/bloodpressure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) *time.Time {
	t := time.Date(2024, time.May, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("Trend")

	assert.Equal(t, "Trend", cfg.Title)
	assert.Equal(t, "100%", cfg.Width)
	assert.Equal(t, "350px", cfg.Height)
	assert.Equal(t, "UTC", cfg.Timezone)
}

func TestConfigDefaults(t *testing.T) {
	cfg := &Config{Height: "200px"}
	cfg.ApplyDefaults()

	assert.Equal(t, "Blood Pressure", cfg.Title)
	assert.Equal(t, "200px", cfg.Height)
}

func TestDomainDataAboveLimit(t *testing.T) {
	readings := []bloodpressure.Reading{
		{Systolic: 155, Diastolic: 95, Pulse: 80},
		{Systolic: 130, Diastolic: 85, Pulse: 70},
	}

	yMin, yMax := Domain(readings, bloodpressure.LimitsAdult)

	assert.Equal(t, 165, yMax)
	assert.Equal(t, 40, yMin)
}

func TestDomainLimitDominates(t *testing.T) {
	readings := []bloodpressure.Reading{{Systolic: 118, Diastolic: 76, Pulse: 64}}

	_, yMax := Domain(readings, bloodpressure.LimitsAdult)

	assert.Equal(t, 160, yMax)
}

func TestDomainLowValues(t *testing.T) {
	readings := []bloodpressure.Reading{{Systolic: 49, Diastolic: 30, Pulse: 25}}

	yMin, _ := Domain(readings, bloodpressure.LimitsAdult)
	assert.Equal(t, 15, yMin)

	readings = []bloodpressure.Reading{{Systolic: 8, Diastolic: 5, Pulse: 4}}
	yMin, _ = Domain(readings, bloodpressure.LimitsAdult)
	assert.Equal(t, 0, yMin, "axis never goes negative")
}

func TestDomainMinimumFifty(t *testing.T) {
	readings := []bloodpressure.Reading{{Systolic: 50, Diastolic: 50, Pulse: 50}}

	yMin, _ := Domain(readings, bloodpressure.LimitsAdult)

	assert.Equal(t, 40, yMin)
}

func TestDomainIgnoresSentinel(t *testing.T) {
	readings := []bloodpressure.Reading{bloodpressure.Sentinel(), {Systolic: 120, Diastolic: 80, Pulse: 70}}

	yMin, yMax := Domain(readings, bloodpressure.LimitsAdult)

	assert.Equal(t, 40, yMin)
	assert.Equal(t, 160, yMax)
}

func TestDomainEmpty(t *testing.T) {
	yMin, yMax := Domain(nil, bloodpressure.LimitsElderly)

	assert.Equal(t, 40, yMin)
	assert.Equal(t, 180, yMax)
}

func TestSortAscending(t *testing.T) {
	readings := []bloodpressure.Reading{
		{Systolic: 3, Diastolic: 1, MeasurementDate: day(3)},
		{Systolic: 2, Diastolic: 1, MeasurementDate: day(1), MeasurementTime: "18:30"},
		{Systolic: 1, Diastolic: 1, MeasurementDate: day(1), MeasurementTime: "07:15:00"},
		{Systolic: 9, Diastolic: 1},
		bloodpressure.Sentinel(),
	}

	sorted := SortAscending(readings)

	require.Len(t, sorted, 4)
	assert.Equal(t, []int{1, 2, 3, 9}, []int{sorted[0].Systolic, sorted[1].Systolic, sorted[2].Systolic, sorted[3].Systolic})
}

func TestRenderTrend(t *testing.T) {
	readings := []bloodpressure.Reading{
		{Systolic: 128, Diastolic: 84, Pulse: 72, MeasurementDate: day(1), MeasurementTime: "08:00"},
		{Systolic: 145, Diastolic: 92, Pulse: 78, MeasurementDate: day(2), MeasurementTime: "08:10"},
	}

	var buf bytes.Buffer
	err := RenderTrend(&buf, readings, bloodpressure.LimitsAdult, NewConfig("My readings"))
	require.NoError(t, err)

	html := buf.String()
	assert.Contains(t, html, "My readings")
	assert.Contains(t, html, "Systolic")
	assert.Contains(t, html, "Diastolic")
	assert.Contains(t, html, "Pulse")
	assert.Contains(t, html, "Systolic limit")
	assert.Contains(t, html, "Adult: up to 140/90 mmHg")
	assert.Contains(t, html, "1 May 08:00")
}

func TestRenderTrendEmpty(t *testing.T) {
	var buf bytes.Buffer

	err := RenderTrend(&buf, nil, bloodpressure.LimitsAdult, Config{})

	require.NoError(t, err)
	assert.NotEmpty(t, buf.String())
}

func TestAxisLabelBadTimezoneFallsBack(t *testing.T) {
	var buf bytes.Buffer
	readings := []bloodpressure.Reading{{Systolic: 120, Diastolic: 80, Pulse: 70, MeasurementDate: day(4)}}

	err := RenderTrend(&buf, readings, bloodpressure.LimitsAdult, Config{Timezone: "Not/AZone"})

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "4 May")
}
